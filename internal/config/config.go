// Package config defines the pipeline configuration surface: a JSON
// document describing one ingestion job, plus environment overrides for
// the deployment-specific fields. Every threshold the cleaner and
// profiler use is explicit here, never a hard-coded constant.
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"

	"tripetl/internal/clean"
	"tripetl/internal/profile"
	"tripetl/internal/schema"
)

// Pipeline is the top-level configuration for one ingestion job.
type Pipeline struct {
	Job     string        `json:"job"`
	Data    DataConfig    `json:"data"`
	Clean   CleanConfig   `json:"clean"`
	Profile ProfileConfig `json:"profile"`
	Runtime RuntimeConfig `json:"runtime"`
	Audit   AuditConfig   `json:"audit"`

	// Mode is "full" (default) or "quick".
	Mode string `json:"mode"`
}

// DataConfig locates the raw archive.
type DataConfig struct {
	// Root contains the raw/{year}/ tree.
	Root string `json:"root"`
	// Series is the dataset name embedded in raw file names.
	Series string `json:"series"`
	// CutoverYear is the first year published as monthly files.
	// 0 selects the default (2020).
	CutoverYear int `json:"cutover_year"`
	// StagingDir is where scopes spill intermediate files. Empty means
	// the system temp dir.
	StagingDir string `json:"staging_dir"`
}

// CleanConfig carries the consistency-rule thresholds.
type CleanConfig struct {
	MinDurationSec int     `json:"min_duration_sec"`
	MaxDurationSec int     `json:"max_duration_sec"`
	LatMin         float64 `json:"lat_min"`
	LatMax         float64 `json:"lat_max"`
	LngMin         float64 `json:"lng_min"`
	LngMax         float64 `json:"lng_max"`

	// Essential lists canonical column names that must be present per
	// row. Empty selects the default essential set.
	Essential []string `json:"essential,omitempty"`
}

// ProfileConfig carries the report warning thresholds.
type ProfileConfig struct {
	MaxNullRate       float64 `json:"max_null_rate"`
	MaxOutOfRangeRate float64 `json:"max_out_of_range_rate"`
	MaxDistinct       int64   `json:"max_distinct"`
}

// RuntimeConfig controls pipeline execution behavior.
type RuntimeConfig struct {
	ReaderWorkers int `json:"reader_workers"`
	ChannelBuffer int `json:"channel_buffer"`
	BatchSize     int `json:"batch_size"`
}

// AuditConfig selects the rejection audit backend. An empty Kind disables
// auditing.
type AuditConfig struct {
	Kind string `json:"kind"` // "sqlite" | "postgres" | ""
	DSN  string `json:"dsn"`
}

// envOverrides are deployment-specific fields that may be set without
// editing the JSON document. Prefix: TRIPETL_ (e.g. TRIPETL_DATA_ROOT).
type envOverrides struct {
	DataRoot  string `envconfig:"DATA_ROOT"`
	AuditKind string `envconfig:"AUDIT_KIND"`
	AuditDSN  string `envconfig:"AUDIT_DSN"`
}

// Load reads a pipeline JSON document and applies environment overrides.
func Load(path string) (Pipeline, error) {
	f, err := os.Open(path)
	if err != nil {
		return Pipeline{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode parses a pipeline document from r and applies environment
// overrides.
func Decode(r io.Reader) (Pipeline, error) {
	var p Pipeline
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return Pipeline{}, fmt.Errorf("decode config: %w", err)
	}

	var env envOverrides
	if err := envconfig.Process("tripetl", &env); err != nil {
		return Pipeline{}, fmt.Errorf("env overrides: %w", err)
	}
	if env.DataRoot != "" {
		p.Data.Root = env.DataRoot
	}
	if env.AuditKind != "" {
		p.Audit.Kind = env.AuditKind
	}
	if env.AuditDSN != "" {
		p.Audit.DSN = env.AuditDSN
	}
	return p, nil
}

// CleanSettings converts to the cleaner's runtime form, filling defaults
// for unset fields.
func (p Pipeline) CleanSettings() (clean.Config, error) {
	cfg := clean.DefaultConfig()
	c := p.Clean
	if c.MinDurationSec > 0 {
		cfg.MinDuration = time.Duration(c.MinDurationSec) * time.Second
	}
	if c.MaxDurationSec > 0 {
		cfg.MaxDuration = time.Duration(c.MaxDurationSec) * time.Second
	}
	if c.LatMin != 0 || c.LatMax != 0 || c.LngMin != 0 || c.LngMax != 0 {
		cfg.Bounds = clean.Bounds{
			LatMin: c.LatMin, LatMax: c.LatMax,
			LngMin: c.LngMin, LngMax: c.LngMax,
		}
	}
	if len(c.Essential) > 0 {
		cols := make([]int, 0, len(c.Essential))
		for _, name := range c.Essential {
			i := schema.Index(name)
			if i < 0 {
				return clean.Config{}, fmt.Errorf("essential column %q is not canonical", name)
			}
			cols = append(cols, i)
		}
		cfg.Essential = cols
	}
	return cfg, nil
}

// ProfileSettings converts to the profiler's thresholds, filling
// defaults for unset fields.
func (p Pipeline) ProfileSettings() profile.Thresholds {
	t := profile.DefaultThresholds()
	if p.Profile.MaxNullRate > 0 {
		t.MaxNullRate = p.Profile.MaxNullRate
	}
	if p.Profile.MaxOutOfRangeRate > 0 {
		t.MaxOutOfRangeRate = p.Profile.MaxOutOfRangeRate
	}
	if p.Profile.MaxDistinct > 0 {
		t.MaxDistinct = p.Profile.MaxDistinct
	}
	return t
}

// CleanMode maps the mode string onto the cleaner/profiler enum.
func (p Pipeline) CleanMode() clean.Mode {
	if p.Mode == "quick" {
		return clean.ModeQuick
	}
	return clean.ModeFull
}
