package pipeline

import (
	"fmt"
	"math"

	"github.com/rdally/netflow-sentinel/pkg/flow"
)

// FeatureScale is the fitted (mean, standard deviation) pair for one
// feature.
type FeatureScale struct {
	Mean float64
	Std  float64
}

// NormalizationState holds the per-feature scale fitted over one table.
// It is created by Normalize, applied consistently to every record of that
// table, and discarded after scoring; there is no cross-run reuse.
type NormalizationState struct {
	Scales map[string]FeatureScale
}

// ScaledName returns the column name holding the normalized values of a
// feature. Raw columns stay untouched; scaled columns are appended.
func ScaledName(feature string) string { return feature + "_scaled" }

// Normalize mean-imputes missing values and rescales each configured
// feature to zero mean and unit variance, appending a scaled column per
// feature to a copy of the table. Constant columns scale to all zeros
// instead of dividing by zero; a feature with no present values at all is
// imputed with zeros and reported as a warning. The input table is never
// mutated, and the result depends only on the input values, not row order.
func Normalize(t *flow.Table, features []string) (*flow.Table, NormalizationState, []Warning, error) {
	out := t.Clone()
	state := NormalizationState{Scales: make(map[string]FeatureScale, len(features))}
	var warnings []Warning

	for _, name := range features {
		col, ok := out.Numeric(name)
		if !ok {
			return nil, NormalizationState{}, nil, &NonNumericFeaturesError{Features: []string{name}}
		}

		// Mean over present values; imputing with it leaves the column
		// mean unchanged.
		var sum float64
		present := 0
		for _, v := range col {
			if !flow.IsMissing(v) {
				sum += v
				present++
			}
		}

		var mean float64
		if present == 0 {
			warnings = append(warnings, Warning{
				Stage:   "normalize",
				Message: fmt.Sprintf("feature %q has no values at all, imputing with 0", name),
			})
		} else {
			mean = sum / float64(present)
		}

		completed := make([]float64, len(col))
		for i, v := range col {
			if flow.IsMissing(v) {
				completed[i] = mean
			} else {
				completed[i] = v
			}
		}

		var variance float64
		if len(completed) > 0 {
			for _, v := range completed {
				d := v - mean
				variance += d * d
			}
			variance /= float64(len(completed))
		}
		std := math.Sqrt(variance)

		scaled := make([]float64, len(completed))
		if std > 0 {
			for i, v := range completed {
				scaled[i] = (v - mean) / std
			}
		}
		// std == 0: constant column, every scaled value stays 0.

		if err := out.AddNumeric(ScaledName(name), scaled); err != nil {
			return nil, NormalizationState{}, nil, err
		}
		state.Scales[name] = FeatureScale{Mean: mean, Std: std}
	}

	return out, state, warnings, nil
}
