// Package pipeline wires the detection stages into a single batch
// computation: validate, normalize, score with an isolation forest, then
// derive mitigation recommendations. Each Run owns its table, normalization
// state and ensemble exclusively; nothing is shared or cached across runs.
package pipeline

import (
	"fmt"
	"log"
	"math"

	"github.com/rdally/netflow-sentinel/pkg/config"
	"github.com/rdally/netflow-sentinel/pkg/flow"
	"github.com/rdally/netflow-sentinel/pkg/iforest"
	"github.com/rdally/netflow-sentinel/pkg/mitigation"
)

// Warning is a non-fatal event recorded during a run. Warnings are reported
// to the caller but never halt processing.
type Warning struct {
	Stage   string
	Message string
}

// Result is the outcome of one pipeline run, consumed by the report and
// HTTP layers.
type Result struct {
	// Table is the scored table: the input plus scaled feature columns and
	// the anomaly_score / anomaly verdict columns.
	Table *flow.Table
	// State is the normalization scale fitted for this run.
	State NormalizationState

	TotalRecords      int
	AnomalyCount      int
	AnomalyPercentage float64

	Recommendations []mitigation.Recommendation
	Warnings        []Warning
}

// Pipeline runs the full detection chain for one configuration.
type Pipeline struct {
	cfg        config.Config
	engine     *mitigation.Engine
	logger     *log.Logger
	sampleSize int
	workers    int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger injects the log sink used for run progress. The default logs
// through the process logger with a pipeline prefix.
func WithLogger(l *log.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithSampleSize overrides the per-tree sub-sample cap.
func WithSampleSize(n int) Option {
	return func(p *Pipeline) { p.sampleSize = n }
}

// WithWorkers bounds parallel tree construction.
func WithWorkers(n int) Option {
	return func(p *Pipeline) { p.workers = n }
}

// WithMitigationEngine swaps the recommendation engine, mainly for tuning
// thresholds in tests.
func WithMitigationEngine(e *mitigation.Engine) Option {
	return func(p *Pipeline) { p.engine = e }
}

// New validates the configuration and builds a pipeline. Malformed
// configuration fails here, before any data is touched.
func New(cfg config.Config, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Pipeline{
		cfg:    cfg,
		engine: mitigation.NewEngine(),
		logger: log.New(log.Writer(), "[Pipeline] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Run executes validate -> normalize -> score -> recommend over one table.
// The input table is never mutated; verdict columns are appended to a copy.
func (p *Pipeline) Run(t *flow.Table) (*Result, error) {
	if err := Validate(t, p.cfg); err != nil {
		return nil, err
	}

	scored, state, warnings, err := Normalize(t, p.cfg.Features)
	if err != nil {
		return nil, err
	}

	matrix, err := featureMatrix(scored, p.cfg.Features)
	if err != nil {
		return nil, err
	}

	ensemble, err := iforest.Fit(matrix, iforest.Options{
		Trees:         p.cfg.NEstimators,
		SampleSize:    p.sampleSize,
		Contamination: p.cfg.Contamination,
		Seed:          p.cfg.RandomState,
		Workers:       p.workers,
	})
	if err != nil {
		return nil, err
	}

	scores := ensemble.ScoreAll(matrix)
	flags := iforest.Label(scores, p.cfg.Contamination)

	labels := make([]string, len(flags))
	anomalyCount := 0
	for i, anomalous := range flags {
		if anomalous {
			labels[i] = flow.LabelAnomaly
			anomalyCount++
		} else {
			labels[i] = flow.LabelNormal
		}
	}
	if err := scored.AddNumeric(flow.ColAnomalyScore, scores); err != nil {
		return nil, err
	}
	if err := scored.AddText(flow.ColAnomalyLabel, labels); err != nil {
		return nil, err
	}

	recommendations := p.engine.Recommend(scored)

	total := scored.Len()
	result := &Result{
		Table:           scored,
		State:           state,
		TotalRecords:    total,
		AnomalyCount:    anomalyCount,
		Recommendations: recommendations,
		Warnings:        warnings,
	}
	if total > 0 {
		result.AnomalyPercentage = math.Round(float64(anomalyCount)/float64(total)*100*100) / 100
	}

	p.logger.Printf("analyzed %d records: %d anomalies (%.2f%%), %d recommendations",
		total, anomalyCount, result.AnomalyPercentage, len(recommendations))
	for _, w := range result.Warnings {
		p.logger.Printf("warning [%s]: %s", w.Stage, w.Message)
	}

	return result, nil
}

// featureMatrix assembles the row-major sample matrix the ensemble trains
// on, reading the scaled feature columns in configured order.
func featureMatrix(t *flow.Table, features []string) ([][]float64, error) {
	cols := make([][]float64, len(features))
	for j, name := range features {
		col, ok := t.Numeric(ScaledName(name))
		if !ok {
			return nil, fmt.Errorf("missing scaled column for feature %q", name)
		}
		cols[j] = col
	}

	matrix := make([][]float64, t.Len())
	for i := range matrix {
		row := make([]float64, len(features))
		for j := range features {
			row[j] = cols[j][i]
		}
		matrix[i] = row
	}
	return matrix, nil
}
