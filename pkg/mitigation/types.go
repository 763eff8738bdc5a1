// Package mitigation classifies detected anomalies into attack archetypes
// and maps each detected pattern to an actionable recommendation.
package mitigation

// Type identifies an attack archetype.
type Type string

const (
	TypeVolumetricFlood    Type = "volumetric_flood"
	TypeDataExfiltration   Type = "data_exfiltration"
	TypeReconnaissanceScan Type = "reconnaissance_scan"
	TypeUnclassified       Type = "unclassified"
)

// Severity expresses how much of the analyzed traffic a pattern affects.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Recommendation is one actionable finding: a detected pattern, guidance on
// mitigating it, and how many records it covers. Produced fresh per
// analysis call.
type Recommendation struct {
	Type                Type     `json:"type"`
	Description         string   `json:"description"`
	Severity            Severity `json:"severity"`
	AffectedRecordCount int      `json:"affected_record_count"`
}

// Thresholds are the tunable signature constants, calibrated against the
// synthetic traffic archetypes rather than fixed contract values.
type Thresholds struct {
	// DeviationMultiplier is how many pre-scaling standard deviations above
	// the normal population's mean counts as "far above".
	DeviationMultiplier float64
	// FloodMaxDuration is the near-zero connection duration bound for
	// volumetric floods, in seconds.
	FloodMaxDuration float64
	// ScanMaxDuration is the very-short duration bound for scans, in
	// seconds.
	ScanMaxDuration float64
	// CriticalRatio and WarningRatio derive severity from the affected
	// share of total records.
	CriticalRatio float64
	WarningRatio  float64
}

// DefaultThresholds returns the signature constants used in production.
func DefaultThresholds() Thresholds {
	return Thresholds{
		DeviationMultiplier: 2.0,
		FloodMaxDuration:    1.5,
		ScanMaxDuration:     1.0,
		CriticalRatio:       0.10,
		WarningRatio:        0.05,
	}
}

// sensitivePorts are services whose long outbound sessions indicate
// possible exfiltration: FTP, SSH, Telnet, SMB, MSSQL, MySQL, PostgreSQL.
var sensitivePorts = map[int]bool{
	20: true, 21: true, 22: true, 23: true,
	445: true, 1433: true, 3306: true, 5432: true,
}

// commonServicePorts are destinations ordinary traffic concentrates on; a
// scan sprays connections outside this set.
var commonServicePorts = map[int]bool{
	21: true, 22: true, 25: true, 53: true, 80: true,
	443: true, 3306: true, 5432: true, 8080: true, 8443: true,
}
