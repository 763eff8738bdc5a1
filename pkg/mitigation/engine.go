package mitigation

import (
	"fmt"
	"math"
	"sort"

	"github.com/rdally/netflow-sentinel/pkg/flow"
)

// Engine partitions anomalous records by traffic-shape signature and emits
// one recommendation per detected pattern. It never fails on well-formed
// input: anomalies matching no signature fall back to the unclassified
// bucket instead of raising an error.
type Engine struct {
	thresholds Thresholds
}

// NewEngine builds an engine with the default signature thresholds.
func NewEngine() *Engine {
	return &Engine{thresholds: DefaultThresholds()}
}

// NewEngineWithThresholds builds an engine with custom signature constants.
func NewEngineWithThresholds(t Thresholds) *Engine {
	return &Engine{thresholds: t}
}

// population holds the normal records' pre-scaling mean and standard
// deviation for one traffic column.
type population struct {
	mean float64
	std  float64
	ok   bool
}

// far reports whether v sits more than mult standard deviations above the
// normal mean.
func (p population) far(v, mult float64) bool {
	return p.ok && v > p.mean+mult*p.std
}

// signatureContext carries the raw columns and normal-population statistics
// rules evaluate against.
type signatureContext struct {
	bytes    []float64
	packets  []float64
	duration []float64
	dstPort  []float64

	bytesPop    population
	packetsPop  population
	durationPop population

	thresholds Thresholds
}

// Recommend inspects the anomalous subset of a scored table and returns one
// recommendation per non-empty signature bucket, ordered by descending
// affected-record count. An unlabeled or anomaly-free table yields nil.
func (e *Engine) Recommend(t *flow.Table) []Recommendation {
	labels, ok := t.Text(flow.ColAnomalyLabel)
	if !ok {
		return nil
	}

	var anomalies []int
	var normals []int
	for i, label := range labels {
		if label == flow.LabelAnomaly {
			anomalies = append(anomalies, i)
		} else {
			normals = append(normals, i)
		}
	}
	if len(anomalies) == 0 {
		return nil
	}

	ctx := e.newContext(t, normals)

	buckets := map[Type]int{}
	for _, row := range anomalies {
		buckets[classify(ctx, row)]++
	}

	total := t.Len()
	recs := make([]Recommendation, 0, len(buckets))
	for typ, count := range buckets {
		recs = append(recs, Recommendation{
			Type:                typ,
			Description:         describe(typ, count),
			Severity:            e.severity(count, total),
			AffectedRecordCount: count,
		})
	}
	sort.SliceStable(recs, func(a, b int) bool {
		if recs[a].AffectedRecordCount != recs[b].AffectedRecordCount {
			return recs[a].AffectedRecordCount > recs[b].AffectedRecordCount
		}
		return archetypeRank(recs[a].Type) < archetypeRank(recs[b].Type)
	})
	return recs
}

func (e *Engine) newContext(t *flow.Table, normals []int) *signatureContext {
	ctx := &signatureContext{thresholds: e.thresholds}
	ctx.bytes, _ = t.Numeric(flow.ColBytes)
	ctx.packets, _ = t.Numeric(flow.ColPackets)
	ctx.duration, _ = t.Numeric(flow.ColDuration)
	ctx.dstPort, _ = t.Numeric(flow.ColDestPort)

	ctx.bytesPop = fitPopulation(ctx.bytes, normals)
	ctx.packetsPop = fitPopulation(ctx.packets, normals)
	ctx.durationPop = fitPopulation(ctx.duration, normals)
	return ctx
}

// fitPopulation computes mean and population standard deviation over the
// normal rows of a raw column, skipping missing values.
func fitPopulation(col []float64, rows []int) population {
	if col == nil {
		return population{}
	}
	var sum float64
	n := 0
	for _, r := range rows {
		if !flow.IsMissing(col[r]) {
			sum += col[r]
			n++
		}
	}
	if n == 0 {
		return population{}
	}
	mean := sum / float64(n)
	var variance float64
	for _, r := range rows {
		if !flow.IsMissing(col[r]) {
			d := col[r] - mean
			variance += d * d
		}
	}
	return population{mean: mean, std: math.Sqrt(variance / float64(n)), ok: true}
}

// classify evaluates the signatures in fixed priority order. A record that
// matches none is unclassified so no anomaly is silently dropped.
func classify(ctx *signatureContext, row int) Type {
	switch {
	case isVolumetricFlood(ctx, row):
		return TypeVolumetricFlood
	case isDataExfiltration(ctx, row):
		return TypeDataExfiltration
	case isReconnaissanceScan(ctx, row):
		return TypeReconnaissanceScan
	default:
		return TypeUnclassified
	}
}

// isVolumetricFlood matches bytes and packets both far above the normal
// population with near-zero connection duration.
func isVolumetricFlood(ctx *signatureContext, row int) bool {
	if ctx.bytes == nil || ctx.packets == nil || ctx.duration == nil {
		return false
	}
	b, p, d := ctx.bytes[row], ctx.packets[row], ctx.duration[row]
	if flow.IsMissing(b) || flow.IsMissing(p) || flow.IsMissing(d) {
		return false
	}
	mult := ctx.thresholds.DeviationMultiplier
	return ctx.bytesPop.far(b, mult) &&
		ctx.packetsPop.far(p, mult) &&
		d <= ctx.thresholds.FloodMaxDuration
}

// isDataExfiltration matches long-lived low-volume connections to sensitive
// service ports.
func isDataExfiltration(ctx *signatureContext, row int) bool {
	if ctx.bytes == nil || ctx.duration == nil || ctx.dstPort == nil {
		return false
	}
	b, d, port := ctx.bytes[row], ctx.duration[row], ctx.dstPort[row]
	if flow.IsMissing(b) || flow.IsMissing(d) || flow.IsMissing(port) {
		return false
	}
	return ctx.durationPop.far(d, ctx.thresholds.DeviationMultiplier) &&
		ctx.bytesPop.ok && b < ctx.bytesPop.mean &&
		sensitivePorts[int(port)]
}

// isReconnaissanceScan matches very short connections with packet counts
// elevated relative to bytes, aimed at non-standard destination ports.
func isReconnaissanceScan(ctx *signatureContext, row int) bool {
	if ctx.bytes == nil || ctx.packets == nil || ctx.duration == nil || ctx.dstPort == nil {
		return false
	}
	b, p, d, port := ctx.bytes[row], ctx.packets[row], ctx.duration[row], ctx.dstPort[row]
	if flow.IsMissing(b) || flow.IsMissing(p) || flow.IsMissing(d) || flow.IsMissing(port) {
		return false
	}
	return d < ctx.thresholds.ScanMaxDuration &&
		ctx.packetsPop.ok && p > ctx.packetsPop.mean &&
		ctx.bytesPop.ok && b < ctx.bytesPop.mean &&
		!commonServicePorts[int(port)]
}

func (e *Engine) severity(affected, total int) Severity {
	if total == 0 {
		return SeverityInfo
	}
	ratio := float64(affected) / float64(total)
	switch {
	case ratio >= e.thresholds.CriticalRatio:
		return SeverityCritical
	case ratio >= e.thresholds.WarningRatio:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

func describe(typ Type, count int) string {
	switch typ {
	case TypeVolumetricFlood:
		return fmt.Sprintf("Detected %d flows consistent with a volumetric flood (DDoS): traffic volume and packet rate far above baseline with near-zero connection duration. Rate-limit inbound traffic at the edge, enable SYN cookies, and engage upstream scrubbing for the offending sources.", count)
	case TypeDataExfiltration:
		return fmt.Sprintf("Detected %d flows consistent with data exfiltration: long-lived low-volume connections to sensitive service ports. Inspect and terminate the sessions, review egress filtering rules, and rotate credentials on the contacted hosts.", count)
	case TypeReconnaissanceScan:
		return fmt.Sprintf("Detected %d flows consistent with reconnaissance scanning: very short connections probing non-standard ports. Block the scanning sources at the perimeter and close or firewall unused ports.", count)
	default:
		return fmt.Sprintf("Detected %d anomalous flows matching no known attack signature. Review the exported records manually and consider tightening monitoring on the involved hosts.", count)
	}
}

func archetypeRank(typ Type) int {
	switch typ {
	case TypeVolumetricFlood:
		return 0
	case TypeDataExfiltration:
		return 1
	case TypeReconnaissanceScan:
		return 2
	default:
		return 3
	}
}
