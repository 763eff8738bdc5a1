package iforest

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clusterWithOutliers builds a tight two-dimensional cluster around the
// origin plus a handful of far-away records at the end.
func clusterWithOutliers(n, outliers int, seed int64) [][]float64 {
	rng := rand.New(rand.NewSource(seed))
	data := make([][]float64, 0, n+outliers)
	for i := 0; i < n; i++ {
		data = append(data, []float64{rng.NormFloat64(), rng.NormFloat64()})
	}
	for i := 0; i < outliers; i++ {
		data = append(data, []float64{20 + rng.NormFloat64(), 20 + rng.NormFloat64()})
	}
	return data
}

func TestFitValidation(t *testing.T) {
	data := clusterWithOutliers(10, 0, 1)

	_, err := Fit(data, Options{Trees: 0, Contamination: 0.05, Seed: 1})
	var invalid *InvalidConfigError
	require.ErrorAs(t, err, &invalid)

	_, err = Fit(data, Options{Trees: 10, Contamination: 0, Seed: 1})
	require.ErrorAs(t, err, &invalid)

	_, err = Fit(data, Options{Trees: 10, Contamination: 0.6, Seed: 1})
	require.ErrorAs(t, err, &invalid)

	_, err = Fit(data[:1], Options{Trees: 10, Contamination: 0.05, Seed: 1})
	var insufficient *InsufficientDataError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 1, insufficient.Records)

	_, err = Fit(nil, Options{Trees: 10, Contamination: 0.05, Seed: 1})
	require.ErrorAs(t, err, &insufficient)
}

func TestScoresInRange(t *testing.T) {
	data := clusterWithOutliers(500, 20, 2)
	e, err := Fit(data, Options{Trees: 50, Contamination: 0.05, Seed: 42})
	require.NoError(t, err)

	for _, s := range e.ScoreAll(data) {
		assert.GreaterOrEqual(t, s, 0.0)
		assert.LessOrEqual(t, s, 1.0)
	}
}

func TestOutliersScoreHigher(t *testing.T) {
	n, outliers := 500, 10
	data := clusterWithOutliers(n, outliers, 3)
	e, err := Fit(data, Options{Trees: 100, Contamination: 0.05, Seed: 42})
	require.NoError(t, err)

	scores := e.ScoreAll(data)
	var inlierMax float64
	for _, s := range scores[:n] {
		if s > inlierMax {
			inlierMax = s
		}
	}
	for i, s := range scores[n:] {
		assert.Greater(t, s, inlierMax, "outlier %d should out-score every inlier", i)
	}
}

func TestDeterminism(t *testing.T) {
	data := clusterWithOutliers(300, 15, 4)
	opts := Options{Trees: 100, Contamination: 0.05, Seed: 42}

	first, err := Fit(data, opts)
	require.NoError(t, err)
	second, err := Fit(data, opts)
	require.NoError(t, err)

	assert.Equal(t, first.ScoreAll(data), second.ScoreAll(data),
		"same seed must reproduce identical scores")
}

func TestDeterminismAcrossWorkerCounts(t *testing.T) {
	data := clusterWithOutliers(300, 15, 5)
	base := Options{Trees: 64, Contamination: 0.05, Seed: 7}

	serial := base
	serial.Workers = 1
	parallel := base
	parallel.Workers = 8

	a, err := Fit(data, serial)
	require.NoError(t, err)
	b, err := Fit(data, parallel)
	require.NoError(t, err)

	assert.Equal(t, a.ScoreAll(data), b.ScoreAll(data),
		"scheduling must not influence the ensemble")
}

func TestSeedChangesScores(t *testing.T) {
	data := clusterWithOutliers(300, 15, 6)
	a, err := Fit(data, Options{Trees: 50, Contamination: 0.05, Seed: 1})
	require.NoError(t, err)
	b, err := Fit(data, Options{Trees: 50, Contamination: 0.05, Seed: 2})
	require.NoError(t, err)

	assert.NotEqual(t, a.ScoreAll(data), b.ScoreAll(data))
}

func TestSampleSizeCap(t *testing.T) {
	data := clusterWithOutliers(100, 0, 7)

	e, err := Fit(data, Options{Trees: 10, Contamination: 0.05, Seed: 1})
	require.NoError(t, err)
	assert.Equal(t, 100, e.SampleSize(), "sample size clamps to the record count")

	e, err = Fit(clusterWithOutliers(1000, 0, 8), Options{Trees: 10, Contamination: 0.05, Seed: 1})
	require.NoError(t, err)
	assert.Equal(t, 256, e.SampleSize())

	e, err = Fit(data, Options{Trees: 10, SampleSize: 32, Contamination: 0.05, Seed: 1})
	require.NoError(t, err)
	assert.Equal(t, 32, e.SampleSize())
}

func TestLabelExactCount(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	scores := make([]float64, 1000)
	for i := range scores {
		scores[i] = rng.Float64()
	}

	labels := Label(scores, 0.05)
	count := 0
	for _, anomalous := range labels {
		if anomalous {
			count++
		}
	}
	assert.Equal(t, 50, count, "exactly round(contamination*N) records are labeled")
}

func TestLabelTiesAreStable(t *testing.T) {
	// All scores equal: the earliest rows win the k slots.
	scores := []float64{0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5}
	labels := Label(scores, 0.2)
	assert.Equal(t, []bool{true, true, false, false, false, false, false, false, false, false}, labels)
}

func TestLabelRounding(t *testing.T) {
	scores := []float64{0.9, 0.1, 0.2}
	// round(0.5*3) = 2
	labels := Label(scores, 0.5)
	assert.Equal(t, []bool{true, false, true}, labels)
}

// zeroSource makes rng.Float64 return exactly 0.
type zeroSource struct{}

func (zeroSource) Int63() int64 { return 0 }
func (zeroSource) Seed(int64)   {}

func TestSplitThresholdStrictlyAboveMinimum(t *testing.T) {
	// A zero draw would land the split exactly on the minimum, leaving the
	// left child empty; it gets nudged just above instead.
	rng := rand.New(zeroSource{})
	th := splitThreshold(rng, 1, 2)
	assert.Greater(t, th, 1.0)
	assert.LessOrEqual(t, th, 2.0)

	rng = rand.New(rand.NewSource(11))
	for i := 0; i < 1000; i++ {
		th := splitThreshold(rng, -3, 7)
		assert.Greater(t, th, -3.0)
		assert.Less(t, th, 7.0)
	}
}

func TestAveragePathLength(t *testing.T) {
	assert.Equal(t, 0.0, averagePathLength(1))
	assert.Equal(t, 0.0, averagePathLength(0))

	// c(2) = 2(ln(1) + gamma) - 2*1/2 = 2*gamma - 1
	assert.InDelta(t, 2*0.5772156649-1, averagePathLength(2), 1e-12)

	// Monotonically increasing in n.
	prev := averagePathLength(2)
	for n := 3.0; n <= 1024; n *= 2 {
		cur := averagePathLength(n)
		assert.Greater(t, cur, prev)
		prev = cur
	}
	assert.False(t, math.IsNaN(prev))
}
