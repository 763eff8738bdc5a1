package synthetic

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rdally/netflow-sentinel/pkg/flow"
)

func TestGenerateShape(t *testing.T) {
	start := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	table, err := Generate(Options{Start: start, DurationHours: 24, Seed: 42})
	require.NoError(t, err)
	assert.Equal(t, 1440, table.Len(), "one record per minute")

	for _, name := range []string{
		flow.ColBytes, flow.ColPackets, flow.ColDuration,
		flow.ColSourcePort, flow.ColDestPort, flow.ColRetransRate,
		"bytes_per_packet", "packets_per_second",
	} {
		_, ok := table.Numeric(name)
		assert.True(t, ok, "numeric column %s", name)
	}
	for _, name := range []string{flow.ColProtocol, flow.ColTimestamp, ColTrafficType} {
		_, ok := table.Text(name)
		assert.True(t, ok, "text column %s", name)
	}
}

func TestGenerateMixture(t *testing.T) {
	table, err := Generate(Options{
		Start:         time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		DurationHours: 24,
		Seed:          1,
	})
	require.NoError(t, err)

	kinds, _ := table.Text(ColTrafficType)
	counts := map[string]int{}
	for _, k := range kinds {
		counts[k]++
	}

	assert.Equal(t, 1224, counts[TrafficNormal], "85%% of 1440 records")
	assert.Equal(t, 216, counts[TrafficFlood]+counts[TrafficExfiltration]+counts[TrafficScan])
	assert.Equal(t, 72, counts[TrafficFlood], "even three-way split")
	assert.Equal(t, 72, counts[TrafficExfiltration])
	assert.Equal(t, 72, counts[TrafficScan])
}

func TestGenerateReproducible(t *testing.T) {
	opts := Options{
		Start:         time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		DurationHours: 4,
		Seed:          99,
	}
	a, err := Generate(opts)
	require.NoError(t, err)
	b, err := Generate(opts)
	require.NoError(t, err)

	for _, name := range []string{flow.ColBytes, flow.ColPackets, flow.ColDuration} {
		colA, _ := a.Numeric(name)
		colB, _ := b.Numeric(name)
		assert.Equal(t, colA, colB, "column %s must reproduce byte for byte", name)
	}
}

func TestGenerateSeedMatters(t *testing.T) {
	start := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	a, err := Generate(Options{Start: start, DurationHours: 2, Seed: 1})
	require.NoError(t, err)
	b, err := Generate(Options{Start: start, DurationHours: 2, Seed: 2})
	require.NoError(t, err)

	colA, _ := a.Numeric(flow.ColBytes)
	colB, _ := b.Numeric(flow.ColBytes)
	assert.NotEqual(t, colA, colB)
}

func TestGenerateValuesPlausible(t *testing.T) {
	table, err := Generate(Options{
		Start:         time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		DurationHours: 24,
		Seed:          5,
	})
	require.NoError(t, err)

	for _, name := range []string{flow.ColBytes, flow.ColPackets, flow.ColDuration} {
		col, _ := table.Numeric(name)
		for i, v := range col {
			require.GreaterOrEqual(t, v, 0.0, "%s row %d", name, i)
		}
	}

	ports, _ := table.Numeric(flow.ColDestPort)
	for _, p := range ports {
		require.GreaterOrEqual(t, p, 1.0)
		require.LessOrEqual(t, p, 65535.0)
	}

	// Timestamps advance one minute per record.
	timestamps, _ := table.Text(flow.ColTimestamp)
	first, err := time.Parse(time.RFC3339, timestamps[0])
	require.NoError(t, err)
	second, err := time.Parse(time.RFC3339, timestamps[1])
	require.NoError(t, err)
	assert.Equal(t, time.Minute, second.Sub(first))
}

func TestGenerateArchetypeContrast(t *testing.T) {
	table, err := Generate(Options{
		Start:         time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		DurationHours: 24,
		Seed:          3,
	})
	require.NoError(t, err)

	kinds, _ := table.Text(ColTrafficType)
	bytes, _ := table.Numeric(flow.ColBytes)
	duration, _ := table.Numeric(flow.ColDuration)

	mean := func(kind string, col []float64) float64 {
		var sum float64
		n := 0
		for i, k := range kinds {
			if k == kind {
				sum += col[i]
				n++
			}
		}
		return sum / float64(n)
	}

	assert.Greater(t, mean(TrafficFlood, bytes), 2*mean(TrafficNormal, bytes),
		"floods move far more data than normal traffic")
	assert.Less(t, mean(TrafficExfiltration, bytes), mean(TrafficNormal, bytes)/100,
		"exfiltration payloads are tiny")
	assert.Greater(t, mean(TrafficExfiltration, duration), 5*mean(TrafficNormal, duration),
		"exfiltration sessions are long-lived")
	assert.Less(t, mean(TrafficScan, duration), 1.0,
		"scan connections are near-instant")
}
