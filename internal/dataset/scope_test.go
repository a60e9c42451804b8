package dataset

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tripetl/internal/clean"
	"tripetl/internal/profile"
	"tripetl/internal/record"
	"tripetl/internal/schema"
	"tripetl/internal/storage"
)

type fakeAuditStore struct {
	batches [][]storage.RejectionRow
	failOn  int // 1-based batch index to fail at, 0 means never
}

func (f *fakeAuditStore) Close()                                 {}
func (f *fakeAuditStore) EnsureSchema(context.Context) error     { return nil }
func (f *fakeAuditStore) CountByReason(context.Context) (map[string]int64, error) {
	counts := map[string]int64{}
	for _, b := range f.batches {
		for _, r := range b {
			counts[r.Reason]++
		}
	}
	return counts, nil
}

func (f *fakeAuditStore) InsertRejections(_ context.Context, rows []storage.RejectionRow) error {
	cp := make([]storage.RejectionRow, len(rows))
	copy(cp, rows)
	f.batches = append(f.batches, cp)
	if f.failOn > 0 && len(f.batches) >= f.failOn {
		return errors.New("boom")
	}
	return nil
}

func sampleRow(id string) *record.Row {
	r := record.Get(schema.NumCols)
	r.File = "202104-divvy-tripdata.csv"
	r.Line = 2
	r.V[schema.ColRideID] = id
	r.V[schema.ColRideableType] = "classic_bike"
	r.V[schema.ColStartedAt] = time.Date(2021, 4, 1, 10, 0, 0, 0, time.UTC)
	r.V[schema.ColEndedAt] = time.Date(2021, 4, 1, 10, 20, 0, 0, time.UTC)
	r.V[schema.ColStartStationID] = "101"
	r.V[schema.ColEndStationID] = "202"
	r.V[schema.ColStartLat] = 41.90
	r.V[schema.ColStartLng] = -87.63
	r.V[schema.ColEndLat] = 41.88
	r.V[schema.ColEndLng] = -87.62
	r.V[schema.ColMemberCasual] = "member"
	r.V[schema.ColDurationSec] = int64(1200)
	return r
}

func TestScope_Lifecycle(t *testing.T) {
	t.Parallel()

	s, err := NewScope(t.TempDir())
	if err != nil {
		t.Fatalf("NewScope: %v", err)
	}

	if s.StagingDir() == "" {
		t.Fatal("scope has no staging dir")
	}
	if _, err := os.Stat(s.StagingDir()); err != nil {
		t.Fatalf("staging dir missing: %v", err)
	}

	if err := s.SetAccepted([]*record.Row{sampleRow("A")}); err != nil {
		t.Fatalf("SetAccepted: %v", err)
	}
	if err := s.SetReport(&profile.Report{Rows: 1}); err != nil {
		t.Fatalf("SetReport: %v", err)
	}

	s.Seal()
	if err := s.SetAccepted(nil); !errors.Is(err, ErrSealed) {
		t.Fatalf("SetAccepted after Seal = %v, want ErrSealed", err)
	}
	if len(s.Accepted()) != 1 || s.Report() == nil {
		t.Fatal("sealed scope lost its data")
	}

	dir := s.StagingDir()
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(dir); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("staging dir still present after Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close = %v, want nil (idempotent)", err)
	}
	if err := s.SetRejected(nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("SetRejected after Close = %v, want ErrClosed", err)
	}
}

// Installing a new accepted set invalidates a report computed for the old
// one; a stale report must never be persisted alongside fresh rows.
func TestScope_SetAcceptedDropsStaleReport(t *testing.T) {
	t.Parallel()

	s, err := NewScope(t.TempDir())
	if err != nil {
		t.Fatalf("NewScope: %v", err)
	}
	defer s.Close()

	if err := s.SetReport(&profile.Report{Rows: 5}); err != nil {
		t.Fatalf("SetReport: %v", err)
	}
	if err := s.SetAccepted([]*record.Row{sampleRow("A")}); err != nil {
		t.Fatalf("SetAccepted: %v", err)
	}
	if s.Report() != nil {
		t.Fatal("stale report survived SetAccepted")
	}
}

func TestFlushRejections_OneRowPerReason(t *testing.T) {
	t.Parallel()

	s, err := NewScope(t.TempDir())
	if err != nil {
		t.Fatalf("NewScope: %v", err)
	}
	defer s.Close()

	recs := []clean.RejectedRecord{
		{File: "a.csv", Line: 5, RideID: "R1",
			Reasons: []clean.Reason{clean.ReasonNegativeDuration, clean.ReasonOutOfBounds}},
		{File: "a.csv", Line: 9, RideID: "R2",
			Reasons: []clean.Reason{clean.ReasonDuplicateID}},
	}
	if err := s.SetRejected(recs); err != nil {
		t.Fatalf("SetRejected: %v", err)
	}

	store := &fakeAuditStore{}
	if err := s.FlushRejections(context.Background(), store, 0); err != nil {
		t.Fatalf("FlushRejections: %v", err)
	}

	var total int
	for _, b := range store.batches {
		total += len(b)
	}
	if total != 3 {
		t.Fatalf("flushed %d rows, want 3 (one per reason)", total)
	}
	counts, _ := store.CountByReason(context.Background())
	if counts["negative_duration"] != 1 || counts["out_of_bounds"] != 1 || counts["duplicate_id"] != 1 {
		t.Fatalf("counts = %v", counts)
	}
}

func TestFlushRejections_Batching(t *testing.T) {
	t.Parallel()

	s, err := NewScope(t.TempDir())
	if err != nil {
		t.Fatalf("NewScope: %v", err)
	}
	defer s.Close()

	var recs []clean.RejectedRecord
	for i := 0; i < 7; i++ {
		recs = append(recs, clean.RejectedRecord{
			File: "a.csv", Line: i + 2, RideID: fmt.Sprintf("R%d", i),
			Reasons: []clean.Reason{clean.ReasonOutOfBounds},
		})
	}
	if err := s.SetRejected(recs); err != nil {
		t.Fatalf("SetRejected: %v", err)
	}

	store := &fakeAuditStore{}
	if err := s.FlushRejections(context.Background(), store, 3); err != nil {
		t.Fatalf("FlushRejections: %v", err)
	}
	if len(store.batches) != 3 {
		t.Fatalf("batches = %d, want 3 (3+3+1)", len(store.batches))
	}
	if len(store.batches[2]) != 1 {
		t.Fatalf("last batch size = %d, want 1", len(store.batches[2]))
	}

	failing := &fakeAuditStore{failOn: 1}
	if err := s.FlushRejections(context.Background(), failing, 3); err == nil {
		t.Fatal("store failure not propagated")
	}
}

func TestWriteCSV_RoundTrip(t *testing.T) {
	t.Parallel()

	s, err := NewScope(t.TempDir())
	if err != nil {
		t.Fatalf("NewScope: %v", err)
	}
	defer s.Close()

	rows := []*record.Row{sampleRow("A"), sampleRow("B")}
	rows[1].V[schema.ColEndStationName] = nil
	if err := s.SetAccepted(rows); err != nil {
		t.Fatalf("SetAccepted: %v", err)
	}

	target := filepath.Join(t.TempDir(), "out", "trips.csv")
	if err := s.WriteCSV(target); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want header + 2 rows", len(lines))
	}
	if lines[0] != strings.Join(schema.Names(), ",") {
		t.Fatalf("header = %q", lines[0])
	}
	if !strings.Contains(lines[1], "2021-04-01T10:00:00Z") {
		t.Fatalf("row = %q, want RFC3339 timestamp", lines[1])
	}

	// No temp files may linger next to the target.
	entries, err := os.ReadDir(filepath.Dir(target))
	if err != nil {
		t.Fatalf("list target dir: %v", err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Fatalf("stale temp file %s", e.Name())
		}
	}
}

func TestWriteParquet_RoundTrip(t *testing.T) {
	t.Parallel()

	s, err := NewScope(t.TempDir())
	if err != nil {
		t.Fatalf("NewScope: %v", err)
	}
	defer s.Close()

	rows := []*record.Row{sampleRow("A"), sampleRow("B"), sampleRow("C")}
	rows[1].V[schema.ColStartStationName] = "Clark St"
	rows[2].V[schema.ColEndLat] = nil // missing marker must survive
	if err := s.SetAccepted(rows); err != nil {
		t.Fatalf("SetAccepted: %v", err)
	}

	target := filepath.Join(t.TempDir(), "trips.parquet")
	if err := s.WriteParquet(target); err != nil {
		t.Fatalf("WriteParquet: %v", err)
	}

	got, err := ReadParquet(target)
	if err != nil {
		t.Fatalf("ReadParquet: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len(got) = %d, want 3", len(got))
	}

	for i, want := range []string{"A", "B", "C"} {
		if id, _ := schema.StringOf(got[i].V[schema.ColRideID]); id != want {
			t.Fatalf("got[%d] ride_id = %v, want %s (order must survive)", i, got[i].V[schema.ColRideID], want)
		}
	}
	if name, _ := schema.StringOf(got[1].V[schema.ColStartStationName]); name != "Clark St" {
		t.Fatalf("station name = %v", got[1].V[schema.ColStartStationName])
	}
	if got[2].V[schema.ColEndLat] != nil {
		t.Fatalf("end_lat = %v, want nil missing marker", got[2].V[schema.ColEndLat])
	}
	if ts, ok := schema.TimeOf(got[0].V[schema.ColStartedAt]); !ok ||
		!ts.Equal(time.Date(2021, 4, 1, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("started_at = %v", got[0].V[schema.ColStartedAt])
	}
	if n, _ := schema.IntOf(got[0].V[schema.ColDurationSec]); n != 1200 {
		t.Fatalf("duration_sec = %v", got[0].V[schema.ColDurationSec])
	}
}

// A failed write must leave a prior artifact untouched.
func TestAtomicWrite_PreservesPriorArtifact(t *testing.T) {
	t.Parallel()

	target := filepath.Join(t.TempDir(), "trips.csv")
	if err := os.WriteFile(target, []byte("prior"), 0o644); err != nil {
		t.Fatalf("seed target: %v", err)
	}

	err := atomicWrite(target, func(tmp string) error {
		_ = os.WriteFile(tmp, []byte("partial"), 0o644)
		return errors.New("disk full")
	})
	if err == nil {
		t.Fatal("atomicWrite must propagate the write error")
	}

	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read target: %v", err)
	}
	if string(data) != "prior" {
		t.Fatalf("target = %q, want untouched prior artifact", data)
	}
}
