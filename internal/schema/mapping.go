package schema

import (
	"fmt"
	"strings"

	"tripetl/internal/layout"
	"tripetl/internal/record"
)

// colMapping binds one canonical column to the raw header names that feed
// it under a given layout. sources are normalized header names; the first
// match in header order wins. required means the whole layout is unusable
// without the column, which fails the load before any rows are read.
type colMapping struct {
	col      int
	required bool
	sources  []string
}

// legacyMappings covers the quarterly exports. The verbose aliases are the
// 2018-era headers ("01 - Rental Details Rental ID" and friends), which
// normalize to the underscored forms below.
var legacyMappings = []colMapping{
	{col: ColRideID, required: true, sources: []string{
		"trip_id", "01_-_rental_details_rental_id"}},
	{col: ColStartedAt, required: true, sources: []string{
		"start_time", "starttime", "01_-_rental_details_local_start_time"}},
	{col: ColEndedAt, required: true, sources: []string{
		"end_time", "stoptime", "01_-_rental_details_local_end_time"}},
	{col: ColStartStationID, required: true, sources: []string{
		"from_station_id", "03_-_rental_start_station_id"}},
	{col: ColStartStationName, sources: []string{
		"from_station_name", "03_-_rental_start_station_name"}},
	{col: ColEndStationID, required: true, sources: []string{
		"to_station_id", "02_-_rental_end_station_id"}},
	{col: ColEndStationName, sources: []string{
		"to_station_name", "02_-_rental_end_station_name"}},
	{col: ColMemberCasual, required: true, sources: []string{
		"usertype", "user_type"}},
	{col: ColDurationSec, sources: []string{
		"tripduration", "01_-_rental_details_duration_in_seconds_uncapped"}},
}

// legacyIgnored lists legacy columns with no canonical counterpart. They
// are dropped by the mapping table itself, so no unknown-column warning is
// recorded for them.
var legacyIgnored = map[string]bool{
	"bikeid":                                  true,
	"01_-_rental_details_bike_id":             true,
	"gender":                                  true,
	"member_gender":                           true,
	"birthyear":                               true,
	"05_-_member_details_member_birthday_year": true,
}

// modernMappings covers the monthly exports, which already use the
// canonical names.
var modernMappings = []colMapping{
	{col: ColRideID, required: true, sources: []string{"ride_id"}},
	{col: ColRideableType, sources: []string{"rideable_type"}},
	{col: ColStartedAt, required: true, sources: []string{"started_at"}},
	{col: ColEndedAt, required: true, sources: []string{"ended_at"}},
	{col: ColStartStationID, required: true, sources: []string{"start_station_id"}},
	{col: ColStartStationName, sources: []string{"start_station_name"}},
	{col: ColEndStationID, required: true, sources: []string{"end_station_id"}},
	{col: ColEndStationName, sources: []string{"end_station_name"}},
	{col: ColStartLat, required: true, sources: []string{"start_lat"}},
	{col: ColStartLng, required: true, sources: []string{"start_lng"}},
	{col: ColEndLat, required: true, sources: []string{"end_lat"}},
	{col: ColEndLng, required: true, sources: []string{"end_lng"}},
	{col: ColMemberCasual, required: true, sources: []string{"member_casual"}},
}

func mappingsFor(l layout.Layout) ([]colMapping, map[string]bool, error) {
	switch l {
	case layout.Legacy:
		return legacyMappings, legacyIgnored, nil
	case layout.Modern:
		return modernMappings, nil, nil
	default:
		return nil, nil, fmt.Errorf("schema: no mapping table for %s", l)
	}
}

// MismatchError reports that a layout is structurally missing required
// columns. It aborts the file before any rows are processed, distinct from
// per-row missing values which route to the rejected set.
type MismatchError struct {
	Layout  layout.Layout
	File    string
	Missing []string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("schema mismatch in %s (%s layout): missing required columns %s",
		e.File, e.Layout, strings.Join(e.Missing, ", "))
}

// NormalizeHeader rewrites a raw header cell to its lookup form: BOM and
// edge space stripped, lowercased, spaces to underscores.
func NormalizeHeader(h string) string {
	h = strings.TrimPrefix(strings.TrimSpace(h), "\uFEFF")
	return strings.ReplaceAll(strings.ToLower(h), " ", "_")
}

// RowPlan is the compiled header mapping for one file: for every canonical
// column, the index of the raw field that feeds it (-1 when the layout or
// this particular file does not carry it).
type RowPlan struct {
	Layout layout.Layout
	File   string

	src [NumCols]int

	// Warnings records raw columns that were dropped without a mapping.
	Warnings []string
}

// Reconciler compiles header plans and applies them row by row. It is
// stateless and safe for concurrent use across files.
type Reconciler struct{}

// Plan validates a file header against the layout's mapping table.
//
// Required-column absence fails fast with *MismatchError. Unknown raw
// columns are dropped with a recorded warning on the plan, never silently.
func (Reconciler) Plan(l layout.Layout, file string, header []string) (*RowPlan, error) {
	mappings, ignored, err := mappingsFor(l)
	if err != nil {
		return nil, err
	}

	srcToIdx := make(map[string]int, len(header))
	for i, h := range header {
		srcToIdx[NormalizeHeader(h)] = i
	}

	p := &RowPlan{Layout: l, File: file}
	for i := range p.src {
		p.src[i] = -1
	}

	claimed := make(map[string]bool, len(header))
	var missing []string
	for _, m := range mappings {
		found := false
		for _, s := range m.sources {
			if idx, ok := srcToIdx[s]; ok {
				p.src[m.col] = idx
				claimed[s] = true
				found = true
				break
			}
		}
		if !found && m.required {
			missing = append(missing, Columns[m.col].Name)
		}
	}
	if len(missing) > 0 {
		return nil, &MismatchError{Layout: l, File: file, Missing: missing}
	}

	for _, h := range header {
		n := NormalizeHeader(h)
		if claimed[n] || ignored[n] {
			continue
		}
		p.Warnings = append(p.Warnings, fmt.Sprintf("unknown column %q dropped", strings.TrimSpace(h)))
	}
	return p, nil
}

// Apply coerces one raw record into the canonical row. Coercion failure on
// a field marks that field missing; it never aborts the row.
func (p *RowPlan) Apply(rec []string, row *record.Row) {
	for col := 0; col < NumCols; col++ {
		si := p.src[col]
		if si < 0 || si >= len(rec) {
			row.V[col] = nil
			continue
		}
		v := strings.TrimSpace(rec[si])
		if v == "" {
			row.V[col] = nil
			continue
		}
		switch col {
		case ColStartedAt, ColEndedAt:
			if t, ok := ParseTime(v); ok {
				row.V[col] = t
			} else {
				row.V[col] = nil
			}
		case ColStartLat, ColStartLng, ColEndLat, ColEndLng:
			if f, ok := ParseFloat(v); ok {
				row.V[col] = f
			} else {
				row.V[col] = nil
			}
		case ColDurationSec:
			if n, ok := ParseInt(v); ok {
				row.V[col] = n
			} else {
				row.V[col] = nil
			}
		case ColMemberCasual:
			row.V[col] = MapUserType(v)
		case ColRideableType:
			row.V[col] = strings.ToLower(v)
		default:
			row.V[col] = v
		}
	}
}

// Src exposes the raw field index feeding a canonical column, for tests
// and diagnostics.
func (p *RowPlan) Src(col int) int { return p.src[col] }
