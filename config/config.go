// Package config loads the immutable parameters that drive the masker and
// the Drain engine from a TOML file.
package config

import (
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// MaskRule is a single (pattern, replacement name) instruction. Rules are
// applied in declaration order; later rules see the output of earlier ones.
type MaskRule struct {
	Regex   string `toml:"regex_pattern"`
	MaskWith string `toml:"mask_with"`
}

// Config holds every tunable the masker and Drain engine need. All fields
// are optional in the TOML source; Load decodes the file over Default, so
// keys absent from the file keep Default's values.
type Config struct {
	DrainDepth             int        `toml:"drain_depth"`
	DrainSimTh             float64    `toml:"drain_sim_th"`
	DrainMaxChildren       int        `toml:"drain_max_children"`
	DrainMaxClusters       int        `toml:"drain_max_clusters"`
	DrainExtraDelimiters   []string   `toml:"drain_extra_delimiters"`
	ParametrizeNumeric     bool       `toml:"parametrize_numeric_tokens"`
	MaskPrefix             string     `toml:"mask_prefix"`
	MaskSuffix             string     `toml:"mask_suffix"`
	MaskName               string     `toml:"mask_name"`
	SnapshotIntervalMin    int        `toml:"snapshot_interval_minutes"`
	ExtractionCacheCap     int        `toml:"parameter_extraction_cache_capacity"`
	MaskingInstructions    []MaskRule `toml:"masking_instructions"`
	SampleCapacity         int        `toml:"sample_capacity"`
	LogLevel               string     `toml:"log_level"`
	StatePath              string     `toml:"state_path"`
}

// Default returns a Config populated with the spec's documented defaults.
func Default() *Config {
	return &Config{
		DrainDepth:          4,
		DrainSimTh:          0.4,
		DrainMaxChildren:    100,
		DrainMaxClusters:    0,
		ParametrizeNumeric:  true,
		MaskPrefix:          "<",
		MaskSuffix:          ">",
		MaskName:            "TOKEN",
		SnapshotIntervalMin: 1,
		ExtractionCacheCap:  3000,
		SampleCapacity:      3,
		LogLevel:            "info",
	}
}

// SnapshotInterval returns the configured snapshot cadence as a
// time.Duration, for use by the Miner facade.
func (c *Config) SnapshotInterval() time.Duration {
	return time.Duration(c.SnapshotIntervalMin) * time.Minute
}

// Load reads a TOML file at path, merging it over Default, and validates
// the result. Construction errors (unreadable/unparsable file, invalid
// field values) are returned wrapped, never panicked.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, errors.Wrapf(err, "loading config from %q", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the invariants the rest of the core relies on holding
// before it ever touches the Masker or Drain engine.
func (c *Config) Validate() error {
	if c.DrainDepth < 3 {
		return errors.Errorf("drain_depth must be >= 3, got %d", c.DrainDepth)
	}
	if c.DrainSimTh < 0 || c.DrainSimTh > 1 {
		return errors.Errorf("drain_sim_th must be in [0,1], got %f", c.DrainSimTh)
	}
	if c.DrainMaxChildren < 1 {
		return errors.Errorf("drain_max_children must be >= 1, got %d", c.DrainMaxChildren)
	}
	if c.MaskPrefix == "" || c.MaskSuffix == "" {
		return errors.New("mask_prefix and mask_suffix must be non-empty")
	}
	if c.MaskName == "" {
		return errors.New("mask_name must be non-empty")
	}
	return nil
}
