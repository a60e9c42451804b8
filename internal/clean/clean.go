// Package clean applies the consistency rules that split the canonical row
// stream into the accepted set and the rejected set. Every rejection
// carries an enumerated reason plus the source file and line, so the audit
// trail survives multi-million-row loads.
package clean

import (
	"sync"
	"time"

	"tripetl/internal/record"
	"tripetl/internal/schema"
)

// Reason enumerates why a row was rejected. Reasons are stable identifiers,
// not free text; they key metrics, audit rows, and report counts.
type Reason string

const (
	ReasonMissingEssentialField Reason = "missing_essential_field"
	ReasonNegativeDuration      Reason = "negative_duration"
	ReasonImplausibleDuration   Reason = "implausible_duration"
	ReasonOutOfBounds           Reason = "out_of_bounds"
	ReasonDuplicateID           Reason = "duplicate_id"
)

// Mode selects how much work the cleaner and profiler do per row.
type Mode uint8

const (
	// ModeFull retains full rejected row payloads and full profiling.
	ModeFull Mode = iota
	// ModeQuick keeps rejection reasons and source refs but drops row
	// payloads, and skips distinct-value tracking in the profiler.
	ModeQuick
)

// Bounds is the service-area bounding box for coordinate checks.
type Bounds struct {
	LatMin, LatMax float64
	LngMin, LngMax float64
}

// Contains reports whether (lat, lng) falls inside the box.
func (b Bounds) Contains(lat, lng float64) bool {
	return lat >= b.LatMin && lat <= b.LatMax && lng >= b.LngMin && lng <= b.LngMax
}

// Config carries every cleaning threshold explicitly, so behavior is
// reproducible and testable across policy changes.
type Config struct {
	// MinDuration and MaxDuration bound plausible trip lengths.
	MinDuration time.Duration
	MaxDuration time.Duration

	// Bounds is the service-area box coordinates must fall inside.
	Bounds Bounds

	// Essential lists canonical column indexes that must be present for a
	// row to be acceptable. Columns a layout does not carry at all are
	// exempt for that layout's rows.
	Essential []int
}

// DefaultConfig returns the production policy: 1 minute to 24 hours, the
// Chicago service-area box, and the standard essential field set.
func DefaultConfig() Config {
	return Config{
		MinDuration: time.Minute,
		MaxDuration: 24 * time.Hour,
		Bounds: Bounds{
			LatMin: 41.5, LatMax: 42.5,
			LngMin: -88.0, LngMax: -87.0,
		},
		Essential: []int{
			schema.ColStartedAt,
			schema.ColEndedAt,
			schema.ColStartStationID,
			schema.ColEndStationID,
			schema.ColStartLat,
			schema.ColStartLng,
			schema.ColEndLat,
			schema.ColEndLng,
		},
	}
}

// RejectedRecord is a rejected candidate plus why and where it came from.
// Row is nil in quick mode.
type RejectedRecord struct {
	Row     *record.Row
	File    string
	Line    int
	RideID  string
	Reasons []Reason
}

// Cleaner applies the rules in a single pass over the row stream. The
// duplicate-identifier set is the only cross-record state and is mutex
// protected, so feeds may be parallelized.
type Cleaner struct {
	Cfg  Config
	Mode Mode

	mu   sync.Mutex
	seen map[string]struct{}
}

// New constructs a Cleaner for one accepted-set scope.
func New(cfg Config, mode Mode) *Cleaner {
	return &Cleaner{Cfg: cfg, Mode: mode, seen: make(map[string]struct{})}
}

// Apply runs the rules on one candidate, in order: essential fields,
// temporal consistency, spatial consistency, identity. On acceptance it
// derives duration_sec (end − start, overwriting any source-provided
// value) and returns ownership of the row to the caller. On rejection the
// pooled row is released and a RejectedRecord is returned.
//
// The identity rule only runs on rows that passed everything else: a row
// rejected for other reasons must not claim its identifier against later
// occurrences.
func (c *Cleaner) Apply(row *record.Row) (accepted bool, rej RejectedRecord) {
	var reasons []Reason

	for _, col := range c.Cfg.Essential {
		if !schema.Covers(row.Layout, col) {
			continue
		}
		if row.V[col] == nil {
			reasons = append(reasons, ReasonMissingEssentialField)
			break
		}
	}

	start, okStart := schema.TimeOf(row.V[schema.ColStartedAt])
	end, okEnd := schema.TimeOf(row.V[schema.ColEndedAt])
	var dur time.Duration
	if okStart && okEnd {
		dur = end.Sub(start)
		switch {
		case dur < 0:
			reasons = append(reasons, ReasonNegativeDuration)
		case dur > c.Cfg.MaxDuration || dur < c.Cfg.MinDuration:
			reasons = append(reasons, ReasonImplausibleDuration)
		}
	}

	if c.outOfBounds(row, schema.ColStartLat, schema.ColStartLng) ||
		c.outOfBounds(row, schema.ColEndLat, schema.ColEndLng) {
		reasons = append(reasons, ReasonOutOfBounds)
	}

	rideID, _ := schema.StringOf(row.V[schema.ColRideID])

	if len(reasons) == 0 && rideID != "" {
		c.mu.Lock()
		if _, dup := c.seen[rideID]; dup {
			reasons = append(reasons, ReasonDuplicateID)
		} else {
			c.seen[rideID] = struct{}{}
		}
		c.mu.Unlock()
	}

	if len(reasons) > 0 {
		rej = RejectedRecord{
			File:    row.File,
			Line:    row.Line,
			RideID:  rideID,
			Reasons: reasons,
		}
		if c.Mode == ModeFull {
			rej.Row = row.Clone()
		}
		row.Free()
		return false, rej
	}

	row.V[schema.ColDurationSec] = int64(dur / time.Second)
	return true, RejectedRecord{}
}

func (c *Cleaner) outOfBounds(row *record.Row, latCol, lngCol int) bool {
	lat, okLat := schema.FloatOf(row.V[latCol])
	lng, okLng := schema.FloatOf(row.V[lngCol])
	if !okLat || !okLng {
		return false
	}
	return !c.Cfg.Bounds.Contains(lat, lng)
}
