package flow

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// TimestampKey formats a generation timestamp the way exported artifacts are
// keyed on disk and in download URLs.
func TimestampKey(t time.Time) string {
	return t.Format("20060102_150405")
}

// AnomalyExportName returns the export filename for a timestamp key.
func AnomalyExportName(key string) string {
	return fmt.Sprintf("anomalies_%s.csv", key)
}

// ExportAnomalies writes the anomalous subset of a scored table to
// dir/anomalies_<key>.csv, most anomalous records first. It returns the
// written path. The table must carry the anomaly label and score columns;
// a table without anomalies still produces a file with only the header.
func ExportAnomalies(t *Table, dir, key string) (string, error) {
	labels, ok := t.Text(ColAnomalyLabel)
	if !ok {
		return "", fmt.Errorf("table has no %q column", ColAnomalyLabel)
	}
	if _, ok := t.Numeric(ColAnomalyScore); !ok {
		return "", fmt.Errorf("table has no %q column", ColAnomalyScore)
	}

	anomalies := t.Filter(func(row int) bool { return labels[row] == LabelAnomaly })
	// Higher score means more anomalous, so descending order puts the most
	// anomalous records first.
	sorted, err := anomalies.SortBy(ColAnomalyScore, true)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, AnomalyExportName(key))
	if err := sorted.WriteCSVFile(path); err != nil {
		return "", err
	}
	return path, nil
}
