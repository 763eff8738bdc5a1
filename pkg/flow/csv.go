package flow

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
)

// ReadCSV parses a header-carrying CSV stream into a Table. A column becomes
// numeric when every non-empty cell parses as a float and at least one cell
// is non-empty; otherwise it is kept as a pass-through text column. Empty
// cells in numeric columns become missing values.
func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty input: no header row")
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	var records [][]string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading record %d: %w", len(records)+2, err)
		}
		records = append(records, rec)
	}

	table := NewTable(len(records))
	for col, name := range header {
		raw := make([]string, len(records))
		for i, rec := range records {
			if col < len(rec) {
				raw[i] = rec[col]
			}
		}

		values, numeric := parseColumn(raw)
		if numeric {
			err = table.AddNumeric(name, values)
		} else {
			err = table.AddText(name, raw)
		}
		if err != nil {
			return nil, err
		}
	}
	return table, nil
}

// ReadCSVFile reads a CSV file into a Table.
func ReadCSVFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCSV(f)
}

// parseColumn attempts a full numeric parse of a raw column. It reports
// failure if any non-empty cell is non-numeric or all cells are empty.
func parseColumn(raw []string) ([]float64, bool) {
	values := make([]float64, len(raw))
	present := false
	for i, cell := range raw {
		if cell == "" {
			values[i] = Missing()
			continue
		}
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return nil, false
		}
		values[i] = v
		present = true
	}
	return values, present
}

// WriteCSV writes the table with a header row. Missing numeric cells are
// written as empty strings.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.order); err != nil {
		return err
	}

	record := make([]string, len(t.order))
	for row := 0; row < t.rows; row++ {
		for i, name := range t.order {
			if col, ok := t.numeric[name]; ok {
				if IsMissing(col[row]) {
					record[i] = ""
				} else {
					record[i] = strconv.FormatFloat(col[row], 'g', -1, 64)
				}
			} else {
				record[i] = t.text[name][row]
			}
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSVFile writes the table to a file, creating or truncating it.
func (t *Table) WriteCSVFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := t.WriteCSV(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
