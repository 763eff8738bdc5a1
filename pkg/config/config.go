// Package config supplies the detection configuration: the recognized
// feature list, contamination rate, ensemble size and random seed. The
// on-disk format is a JSON document with keys features, contamination,
// n_estimators and random_state.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config holds the tunable parameters of the detection pipeline.
type Config struct {
	Features      []string `json:"features"`
	Contamination float64  `json:"contamination"`
	NEstimators   int      `json:"n_estimators"`
	RandomState   int64    `json:"random_state"`
}

// Default returns the documented fallback configuration used when no config
// source is available.
func Default() Config {
	return Config{
		Features:      []string{"feature1", "feature2", "feature3"},
		Contamination: 0.05,
		NEstimators:   100,
		RandomState:   42,
	}
}

// Load reads a JSON config file. An absent or unparseable file is not an
// error: Load falls back to Default and reports what happened through the
// returned warnings, so the pipeline stays usable without external
// configuration. Out-of-range values in a file that did parse are caught
// later by Validate.
func Load(path string) (Config, []string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Default(), []string{fmt.Sprintf("config file %s not found, using defaults", path)}
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Default(), []string{fmt.Sprintf("config file %s is not valid JSON (%v), using defaults", path, err)}
	}
	return cfg, nil
}

// InvalidConfigError reports a malformed or out-of-range configuration
// value. It is fatal at pipeline start.
type InvalidConfigError struct {
	Field  string
	Reason string
}

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid config: %s %s", e.Field, e.Reason)
}

// Validate checks the configuration constraints: at least two features,
// contamination in (0, 0.5], a positive ensemble size.
func (c Config) Validate() error {
	if len(c.Features) < 2 {
		return &InvalidConfigError{Field: "features", Reason: fmt.Sprintf("needs at least 2 names, got %d", len(c.Features))}
	}
	seen := make(map[string]bool, len(c.Features))
	for _, f := range c.Features {
		if f == "" {
			return &InvalidConfigError{Field: "features", Reason: "contains an empty name"}
		}
		if seen[f] {
			return &InvalidConfigError{Field: "features", Reason: fmt.Sprintf("contains duplicate name %q", f)}
		}
		seen[f] = true
	}
	if c.Contamination <= 0 || c.Contamination > 0.5 {
		return &InvalidConfigError{Field: "contamination", Reason: fmt.Sprintf("must be in (0, 0.5], got %v", c.Contamination)}
	}
	if c.NEstimators < 1 {
		return &InvalidConfigError{Field: "n_estimators", Reason: fmt.Sprintf("must be positive, got %d", c.NEstimators)}
	}
	return nil
}
