package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rdally/netflow-sentinel/pkg/config"
	"github.com/rdally/netflow-sentinel/pkg/flow"
)

// MissingFeaturesError reports configured features absent from an input
// table. It is fatal and surfaced before any statistical work begins.
type MissingFeaturesError struct {
	Missing []string
}

func (e *MissingFeaturesError) Error() string {
	return fmt.Sprintf("missing required features: %s", strings.Join(e.Missing, ", "))
}

// NonNumericFeaturesError reports configured features that exist only as
// text columns, so they cannot be normalized or scored. Like a missing
// feature, it is fatal and surfaced before any statistical work begins.
type NonNumericFeaturesError struct {
	Features []string
}

func (e *NonNumericFeaturesError) Error() string {
	return fmt.Sprintf("features are not numeric columns: %s", strings.Join(e.Features, ", "))
}

// Validate checks that every configured feature is present as a numeric
// table column. It never mutates the table; re-validating a valid table is
// a no-op. Offending names are reported sorted for stable error messages.
func Validate(t *flow.Table, cfg config.Config) error {
	var missing, nonNumeric []string
	for _, name := range cfg.Features {
		if !t.HasColumn(name) {
			missing = append(missing, name)
			continue
		}
		if _, ok := t.Numeric(name); !ok {
			nonNumeric = append(nonNumeric, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return &MissingFeaturesError{Missing: missing}
	}
	if len(nonNumeric) > 0 {
		sort.Strings(nonNumeric)
		return &NonNumericFeaturesError{Features: nonNumeric}
	}
	return nil
}
