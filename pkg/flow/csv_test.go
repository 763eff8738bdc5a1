package flow

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCSVTypeInference(t *testing.T) {
	in := strings.Join([]string{
		"bytes_transferred,protocol,mixed,empty",
		"100,TCP,1,",
		",UDP,abc,",
		"300.5,HTTP,3,",
	}, "\n")

	table, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, 3, table.Len())

	// All non-empty cells parse, so the column is numeric with the empty
	// cell as a missing value.
	num, ok := table.Numeric("bytes_transferred")
	require.True(t, ok)
	assert.Equal(t, float64(100), num[0])
	assert.True(t, IsMissing(num[1]))
	assert.Equal(t, 300.5, num[2])

	// One non-numeric cell keeps the whole column as text.
	_, ok = table.Numeric("mixed")
	assert.False(t, ok)
	txt, ok := table.Text("mixed")
	require.True(t, ok)
	assert.Equal(t, []string{"1", "abc", "3"}, txt)

	// A column with no values at all stays text.
	_, ok = table.Numeric("empty")
	assert.False(t, ok)
}

func TestReadCSVEmptyInput(t *testing.T) {
	_, err := ReadCSV(strings.NewReader(""))
	assert.Error(t, err)
}

func TestReadCSVHeaderOnly(t *testing.T) {
	table, err := ReadCSV(strings.NewReader("a,b\n"))
	require.NoError(t, err)
	assert.Equal(t, 0, table.Len())
	assert.True(t, table.HasColumn("a"))
}

func TestCSVRoundTrip(t *testing.T) {
	table := NewTable(3)
	require.NoError(t, table.AddNumeric(ColBytes, []float64{100, Missing(), 300.5}))
	require.NoError(t, table.AddText(ColProtocol, []string{"TCP", "UDP", "HTTP"}))

	var buf bytes.Buffer
	require.NoError(t, table.WriteCSV(&buf))

	back, err := ReadCSV(&buf)
	require.NoError(t, err)
	assert.Equal(t, table.Columns(), back.Columns())

	num, _ := back.Numeric(ColBytes)
	assert.Equal(t, float64(100), num[0])
	assert.True(t, IsMissing(num[1]), "missing survives the round trip as an empty cell")
	assert.Equal(t, 300.5, num[2])

	txt, _ := back.Text(ColProtocol)
	assert.Equal(t, []string{"TCP", "UDP", "HTTP"}, txt)
}

func TestCSVFileRoundTrip(t *testing.T) {
	table := NewTable(2)
	require.NoError(t, table.AddNumeric("a", []float64{1.5, 2.5}))

	path := t.TempDir() + "/out.csv"
	require.NoError(t, table.WriteCSVFile(path))

	back, err := ReadCSVFile(path)
	require.NoError(t, err)
	num, _ := back.Numeric("a")
	assert.Equal(t, []float64{1.5, 2.5}, num)
}
