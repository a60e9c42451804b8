package profile

import (
	"fmt"
	"testing"
	"time"

	"tripetl/internal/clean"
	"tripetl/internal/record"
	"tripetl/internal/schema"
)

func tripRow(id, rideable string, started time.Time, durSec int64, startLat float64) *record.Row {
	r := record.Get(schema.NumCols)
	r.V[schema.ColRideID] = id
	r.V[schema.ColRideableType] = rideable
	r.V[schema.ColStartedAt] = started
	r.V[schema.ColEndedAt] = started.Add(time.Duration(durSec) * time.Second)
	r.V[schema.ColStartStationID] = "101"
	r.V[schema.ColEndStationID] = "202"
	r.V[schema.ColStartLat] = startLat
	r.V[schema.ColStartLng] = -87.63
	r.V[schema.ColEndLat] = 41.88
	r.V[schema.ColEndLng] = -87.62
	r.V[schema.ColMemberCasual] = "member"
	r.V[schema.ColDurationSec] = durSec
	return r
}

func statFor(t *testing.T, rep *Report, name string) ColumnStats {
	t.Helper()
	for _, cs := range rep.Columns {
		if cs.Name == name {
			return cs
		}
	}
	t.Fatalf("no column %q in report", name)
	return ColumnStats{}
}

func TestProfile_BasicStats(t *testing.T) {
	t.Parallel()

	base := time.Date(2021, 4, 1, 10, 0, 0, 0, time.UTC)
	rows := []*record.Row{
		tripRow("A", "classic_bike", base, 600, 41.90),
		tripRow("B", "electric_bike", base.Add(time.Hour), 1200, 41.95),
		tripRow("C", "classic_bike", base.Add(2*time.Hour), 300, 41.85),
	}
	rows[2].V[schema.ColEndStationName] = nil // already nil; station names missing throughout

	p := New(DefaultThresholds(), clean.DefaultConfig(), clean.ModeFull)
	rep := p.Profile(rows)

	if rep.Rows != 3 {
		t.Fatalf("Rows = %d, want 3", rep.Rows)
	}
	if len(rep.Columns) != schema.NumCols {
		t.Fatalf("len(Columns) = %d, want %d", len(rep.Columns), schema.NumCols)
	}

	lat := statFor(t, rep, "start_lat")
	if lat.MinNum == nil || *lat.MinNum != 41.85 || *lat.MaxNum != 41.95 {
		t.Fatalf("start_lat min/max = %v/%v", lat.MinNum, lat.MaxNum)
	}
	if lat.NullCount != 0 || lat.OutOfRange != 0 {
		t.Fatalf("start_lat nulls=%d oor=%d", lat.NullCount, lat.OutOfRange)
	}

	started := statFor(t, rep, "started_at")
	if started.MinAt == nil || !started.MinAt.Equal(base) {
		t.Fatalf("started_at min = %v, want %v", started.MinAt, base)
	}
	if !started.MaxAt.Equal(base.Add(2 * time.Hour)) {
		t.Fatalf("started_at max = %v", started.MaxAt)
	}

	names := statFor(t, rep, "start_station_name")
	if names.NullCount != 3 {
		t.Fatalf("start_station_name nulls = %d, want 3", names.NullCount)
	}

	rideable := statFor(t, rep, "rideable_type")
	if rideable.Distinct != 2 {
		t.Fatalf("rideable_type distinct = %d, want 2", rideable.Distinct)
	}
}

func TestProfile_OutOfRangeUsesCleanThresholds(t *testing.T) {
	t.Parallel()

	base := time.Date(2021, 4, 1, 10, 0, 0, 0, time.UTC)
	rows := []*record.Row{
		tripRow("A", "classic_bike", base, 600, 41.90),
		tripRow("B", "classic_bike", base, 30, 43.5), // lat above box, duration under a minute
	}

	p := New(DefaultThresholds(), clean.DefaultConfig(), clean.ModeFull)
	rep := p.Profile(rows)

	if statFor(t, rep, "start_lat").OutOfRange != 1 {
		t.Fatalf("start_lat out_of_range = %d, want 1", statFor(t, rep, "start_lat").OutOfRange)
	}
	if statFor(t, rep, "duration_sec").OutOfRange != 1 {
		t.Fatalf("duration_sec out_of_range = %d, want 1", statFor(t, rep, "duration_sec").OutOfRange)
	}
}

func TestProfile_Breaches(t *testing.T) {
	t.Parallel()

	base := time.Date(2021, 4, 1, 10, 0, 0, 0, time.UTC)
	var rows []*record.Row
	for i := 0; i < 10; i++ {
		r := tripRow(fmt.Sprintf("R%d", i), "classic_bike", base, 600, 41.90)
		if i < 3 {
			r.V[schema.ColEndStationID] = nil // 30% null, above the 10% threshold
		}
		rows = append(rows, r)
	}

	p := New(DefaultThresholds(), clean.DefaultConfig(), clean.ModeFull)
	rep := p.Profile(rows)

	found := false
	for _, b := range rep.Breaches {
		if b.Column == "end_station_id" && b.Metric == "null_rate" {
			found = true
			if b.Value < 0.29 || b.Value > 0.31 {
				t.Fatalf("breach value = %v, want ~0.30", b.Value)
			}
			if b.Threshold != 0.10 {
				t.Fatalf("breach threshold = %v, want 0.10", b.Threshold)
			}
		}
	}
	if !found {
		t.Fatalf("Breaches = %+v, want null_rate breach on end_station_id", rep.Breaches)
	}
}

func TestProfile_DistinctExplosionBreach(t *testing.T) {
	t.Parallel()

	base := time.Date(2021, 4, 1, 10, 0, 0, 0, time.UTC)
	var rows []*record.Row
	for i := 0; i < 60; i++ {
		// Every row a different category value.
		rows = append(rows, tripRow(fmt.Sprintf("R%d", i), fmt.Sprintf("bike_%d", i), base, 600, 41.90))
	}

	p := New(DefaultThresholds(), clean.DefaultConfig(), clean.ModeFull)
	rep := p.Profile(rows)

	found := false
	for _, b := range rep.Breaches {
		if b.Column == "rideable_type" && b.Metric == "distinct" {
			found = true
		}
	}
	if !found {
		t.Fatalf("Breaches = %+v, want distinct breach on rideable_type", rep.Breaches)
	}
}

func TestProfile_QuickModeSkipsDistinct(t *testing.T) {
	t.Parallel()

	base := time.Date(2021, 4, 1, 10, 0, 0, 0, time.UTC)
	rows := []*record.Row{
		tripRow("A", "classic_bike", base, 600, 41.90),
		tripRow("B", "electric_bike", base, 600, 41.90),
	}

	p := New(DefaultThresholds(), clean.DefaultConfig(), clean.ModeQuick)
	rep := p.Profile(rows)

	if d := statFor(t, rep, "rideable_type").Distinct; d != 0 {
		t.Fatalf("quick mode distinct = %d, want 0 (untracked)", d)
	}
	// Null and range stats still run in quick mode.
	if statFor(t, rep, "start_lat").NullCount != 0 {
		t.Fatal("quick mode lost null tracking")
	}
}

func TestProfile_EmptyInput(t *testing.T) {
	t.Parallel()

	p := New(DefaultThresholds(), clean.DefaultConfig(), clean.ModeFull)
	rep := p.Profile(nil)

	if rep.Rows != 0 {
		t.Fatalf("Rows = %d, want 0", rep.Rows)
	}
	if len(rep.Breaches) != 0 {
		t.Fatalf("Breaches = %+v, want none on empty input", rep.Breaches)
	}
}
