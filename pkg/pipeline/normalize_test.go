package pipeline

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rdally/netflow-sentinel/pkg/flow"
)

func TestNormalizeScaling(t *testing.T) {
	table := flow.NewTable(4)
	require.NoError(t, table.AddNumeric("a", []float64{2, 4, 6, 8}))

	out, state, warnings, err := Normalize(table, []string{"a"})
	require.NoError(t, err)
	assert.Empty(t, warnings)

	scale := state.Scales["a"]
	assert.InDelta(t, 5, scale.Mean, 1e-12)
	assert.InDelta(t, math.Sqrt(5), scale.Std, 1e-12, "population standard deviation")

	scaled, ok := out.Numeric("a_scaled")
	require.True(t, ok)

	var sum, sumSq float64
	for _, v := range scaled {
		sum += v
		sumSq += v * v
	}
	n := float64(len(scaled))
	assert.InDelta(t, 0, sum/n, 1e-12, "scaled mean is zero")
	assert.InDelta(t, 1, sumSq/n, 1e-12, "scaled variance is one")

	// Raw column stays untouched.
	raw, _ := out.Numeric("a")
	assert.Equal(t, []float64{2, 4, 6, 8}, raw)
}

func TestNormalizeDoesNotMutateInput(t *testing.T) {
	table := flow.NewTable(2)
	require.NoError(t, table.AddNumeric("a", []float64{1, 3}))

	_, _, _, err := Normalize(table, []string{"a"})
	require.NoError(t, err)

	assert.Equal(t, []string{"a"}, table.Columns(), "input table gains no columns")
	raw, _ := table.Numeric("a")
	assert.Equal(t, []float64{1, 3}, raw)
}

func TestNormalizeMeanImputation(t *testing.T) {
	table := flow.NewTable(4)
	require.NoError(t, table.AddNumeric("a", []float64{1, flow.Missing(), 3, flow.Missing()}))

	out, state, warnings, err := Normalize(table, []string{"a"})
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.InDelta(t, 2, state.Scales["a"].Mean, 1e-12, "mean over present values only")

	scaled, _ := out.Numeric("a_scaled")
	assert.InDelta(t, 0, scaled[1], 1e-12, "imputed cells land on the mean, scaling to zero")
	assert.InDelta(t, 0, scaled[3], 1e-12)
	assert.InDelta(t, -scaled[0], scaled[2], 1e-12, "present values scale symmetrically around the mean")
}

func TestNormalizeConstantColumn(t *testing.T) {
	table := flow.NewTable(3)
	require.NoError(t, table.AddNumeric("a", []float64{7, 7, 7}))

	out, state, warnings, err := Normalize(table, []string{"a"})
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, 0.0, state.Scales["a"].Std)

	scaled, _ := out.Numeric("a_scaled")
	assert.Equal(t, []float64{0, 0, 0}, scaled, "constant columns scale to zeros, not NaN")
}

func TestNormalizeAllMissing(t *testing.T) {
	table := flow.NewTable(2)
	require.NoError(t, table.AddNumeric("a", []float64{flow.Missing(), flow.Missing()}))

	out, _, warnings, err := Normalize(table, []string{"a"})
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Equal(t, "normalize", warnings[0].Stage)
	assert.Contains(t, warnings[0].Message, `"a"`)

	scaled, _ := out.Numeric("a_scaled")
	assert.Equal(t, []float64{0, 0}, scaled)
}

func TestNormalizeNonNumericFeature(t *testing.T) {
	table := flow.NewTable(1)
	require.NoError(t, table.AddText("proto", []string{"TCP"}))

	_, _, _, err := Normalize(table, []string{"proto"})
	require.Error(t, err)

	var nonNumeric *NonNumericFeaturesError
	require.ErrorAs(t, err, &nonNumeric)
	assert.Equal(t, []string{"proto"}, nonNumeric.Features)
}

func TestNormalizeOrderIndependent(t *testing.T) {
	forward := flow.NewTable(4)
	require.NoError(t, forward.AddNumeric("a", []float64{1, 2, 3, 4}))
	reversed := flow.NewTable(4)
	require.NoError(t, reversed.AddNumeric("a", []float64{4, 3, 2, 1}))

	_, stateA, _, err := Normalize(forward, []string{"a"})
	require.NoError(t, err)
	_, stateB, _, err := Normalize(reversed, []string{"a"})
	require.NoError(t, err)

	assert.Equal(t, stateA.Scales["a"], stateB.Scales["a"],
		"fitted scale depends on values, not row order")
}
