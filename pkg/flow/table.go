// Package flow defines the tabular data model for network traffic records:
// an ordered, column-oriented table of per-flow statistics with numeric
// feature columns and pass-through context columns.
package flow

import (
	"fmt"
	"math"
	"sort"
)

// Well-known column names shared across the pipeline.
const (
	ColAnomalyScore = "anomaly_score"
	ColAnomalyLabel = "anomaly"

	ColBytes       = "bytes_transferred"
	ColPackets     = "packet_count"
	ColDuration    = "connection_duration"
	ColSourcePort  = "source_port"
	ColDestPort    = "destination_port"
	ColProtocol    = "protocol"
	ColTimestamp   = "timestamp"
	ColRetransRate = "retransmission_rate"
)

// Label values written to the anomaly column.
const (
	LabelNormal  = "Normal"
	LabelAnomaly = "Anomaly"
)

// Missing is the sentinel for an absent numeric value.
func Missing() float64 { return math.NaN() }

// IsMissing reports whether a numeric cell holds no value.
func IsMissing(v float64) bool { return math.IsNaN(v) }

// Table is an ordered collection of traffic records sharing one schema.
// Columns are stored columnwise: numeric columns as []float64 with NaN for
// missing cells, everything else as []string pass-through. Columns may be
// appended but never removed or retyped.
type Table struct {
	order   []string
	numeric map[string][]float64
	text    map[string][]string
	rows    int
}

// NewTable creates an empty table expecting rows records per column.
func NewTable(rows int) *Table {
	return &Table{
		numeric: make(map[string][]float64),
		text:    make(map[string][]string),
		rows:    rows,
	}
}

// Len returns the number of records.
func (t *Table) Len() int { return t.rows }

// Columns returns the column names in insertion order.
func (t *Table) Columns() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// HasColumn reports whether the table contains the named column.
func (t *Table) HasColumn(name string) bool {
	_, num := t.numeric[name]
	_, txt := t.text[name]
	return num || txt
}

// AddNumeric appends a numeric column. The column length must match the
// table's record count and the name must be unused.
func (t *Table) AddNumeric(name string, values []float64) error {
	if err := t.checkAdd(name, len(values)); err != nil {
		return err
	}
	t.numeric[name] = values
	t.order = append(t.order, name)
	return nil
}

// AddText appends a pass-through text column.
func (t *Table) AddText(name string, values []string) error {
	if err := t.checkAdd(name, len(values)); err != nil {
		return err
	}
	t.text[name] = values
	t.order = append(t.order, name)
	return nil
}

func (t *Table) checkAdd(name string, n int) error {
	if t.HasColumn(name) {
		return fmt.Errorf("column %q already exists", name)
	}
	if n != t.rows {
		return fmt.Errorf("column %q has %d values, table has %d records", name, n, t.rows)
	}
	return nil
}

// Numeric returns the named numeric column. The slice is the table's own
// storage; callers that mutate it mutate the table.
func (t *Table) Numeric(name string) ([]float64, bool) {
	col, ok := t.numeric[name]
	return col, ok
}

// Text returns the named text column.
func (t *Table) Text(name string) ([]string, bool) {
	col, ok := t.text[name]
	return col, ok
}

// Clone returns a deep copy of the table.
func (t *Table) Clone() *Table {
	out := NewTable(t.rows)
	out.order = append(out.order, t.order...)
	for name, col := range t.numeric {
		cp := make([]float64, len(col))
		copy(cp, col)
		out.numeric[name] = cp
	}
	for name, col := range t.text {
		cp := make([]string, len(col))
		copy(cp, col)
		out.text[name] = cp
	}
	return out
}

// Select returns a new table containing the given rows, in the given order.
// Row indices may repeat; out-of-range indices are an error.
func (t *Table) Select(rows []int) (*Table, error) {
	for _, r := range rows {
		if r < 0 || r >= t.rows {
			return nil, fmt.Errorf("row index %d out of range [0,%d)", r, t.rows)
		}
	}
	out := NewTable(len(rows))
	out.order = append(out.order, t.order...)
	for name, col := range t.numeric {
		cp := make([]float64, len(rows))
		for i, r := range rows {
			cp[i] = col[r]
		}
		out.numeric[name] = cp
	}
	for name, col := range t.text {
		cp := make([]string, len(rows))
		for i, r := range rows {
			cp[i] = col[r]
		}
		out.text[name] = cp
	}
	return out, nil
}

// Filter returns a new table with the rows for which keep returns true,
// preserving original order.
func (t *Table) Filter(keep func(row int) bool) *Table {
	var rows []int
	for i := 0; i < t.rows; i++ {
		if keep(i) {
			rows = append(rows, i)
		}
	}
	out, _ := t.Select(rows)
	return out
}

// SortBy returns a new table sorted by the named numeric column. The sort is
// stable, so equal values keep their original row order. Missing values sort
// last in either direction.
func (t *Table) SortBy(name string, descending bool) (*Table, error) {
	col, ok := t.numeric[name]
	if !ok {
		return nil, fmt.Errorf("no numeric column %q", name)
	}
	rows := make([]int, t.rows)
	for i := range rows {
		rows[i] = i
	}
	sort.SliceStable(rows, func(a, b int) bool {
		va, vb := col[rows[a]], col[rows[b]]
		switch {
		case IsMissing(va):
			return false
		case IsMissing(vb):
			return true
		case descending:
			return va > vb
		default:
			return va < vb
		}
	})
	return t.Select(rows)
}
