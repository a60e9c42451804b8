// Package schema defines the canonical trip record layout and reconciles
// each raw file convention onto it through explicit per-layout mapping
// tables. Raw rows never escape this package: everything downstream sees
// only canonical positional rows.
package schema

import (
	"time"

	"tripetl/internal/layout"
)

// Kind is the canonical value type of a column.
type Kind uint8

const (
	KindString Kind = iota + 1
	KindCategory
	KindTime
	KindFloat
	KindInt
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindCategory:
		return "category"
	case KindTime:
		return "time"
	case KindFloat:
		return "float"
	case KindInt:
		return "int"
	default:
		return "unknown"
	}
}

// Canonical column indexes. Row values are positional; these constants are
// the only way code addresses a field.
const (
	ColRideID = iota
	ColRideableType
	ColStartedAt
	ColEndedAt
	ColStartStationID
	ColStartStationName
	ColEndStationID
	ColEndStationName
	ColStartLat
	ColStartLng
	ColEndLat
	ColEndLng
	ColMemberCasual
	ColDurationSec

	NumCols
)

// Column describes one canonical field.
type Column struct {
	Name string
	Kind Kind
}

// Columns is the canonical schema, identical regardless of source layout.
// Field order is fixed; persisted artifacts use exactly this order.
var Columns = [NumCols]Column{
	ColRideID:           {Name: "ride_id", Kind: KindString},
	ColRideableType:     {Name: "rideable_type", Kind: KindCategory},
	ColStartedAt:        {Name: "started_at", Kind: KindTime},
	ColEndedAt:          {Name: "ended_at", Kind: KindTime},
	ColStartStationID:   {Name: "start_station_id", Kind: KindString},
	ColStartStationName: {Name: "start_station_name", Kind: KindString},
	ColEndStationID:     {Name: "end_station_id", Kind: KindString},
	ColEndStationName:   {Name: "end_station_name", Kind: KindString},
	ColStartLat:         {Name: "start_lat", Kind: KindFloat},
	ColStartLng:         {Name: "start_lng", Kind: KindFloat},
	ColEndLat:           {Name: "end_lat", Kind: KindFloat},
	ColEndLng:           {Name: "end_lng", Kind: KindFloat},
	ColMemberCasual:     {Name: "member_casual", Kind: KindCategory},
	ColDurationSec:      {Name: "duration_sec", Kind: KindInt},
}

// Names returns canonical column names in schema order.
func Names() []string {
	out := make([]string, NumCols)
	for i, c := range Columns {
		out[i] = c.Name
	}
	return out
}

// Index returns the canonical column index for name, or -1.
func Index(name string) int {
	for i, c := range Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Covers reports whether a layout's files carry the canonical column at
// all. Legacy quarterly files have no coordinates and no rideable type;
// treating those as per-row missing data would reject every legacy row, so
// consistency rules consult coverage before requiring a value.
func Covers(l layout.Layout, col int) bool {
	if l != layout.Legacy {
		return true
	}
	switch col {
	case ColRideableType, ColStartLat, ColStartLng, ColEndLat, ColEndLng:
		return false
	default:
		return true
	}
}

// TimeOf extracts a time value from a canonical row cell, reporting
// whether one is present.
func TimeOf(v any) (time.Time, bool) {
	t, ok := v.(time.Time)
	return t, ok
}

// FloatOf extracts a float value from a canonical row cell.
func FloatOf(v any) (float64, bool) {
	f, ok := v.(float64)
	return f, ok
}

// StringOf extracts a string value from a canonical row cell.
func StringOf(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

// IntOf extracts an int value from a canonical row cell.
func IntOf(v any) (int64, bool) {
	n, ok := v.(int64)
	return n, ok
}
