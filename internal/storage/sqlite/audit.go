// Package sqlite implements the rejection audit store on an embedded
// SQLite database. It is the default backend: a local ingestion run gets
// an auditable rejection trail with zero infrastructure.
package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"tripetl/internal/storage"
)

// Store implements storage.AuditStore for SQLite.
//
// SQLite has no native timestamp type; observed_at is stored as an
// RFC3339Nano string for reliable round-trip behavior and easy debugging.
type Store struct {
	db *sql.DB
}

func init() {
	storage.Register("sqlite", New)
}

// New opens (or creates) the SQLite database at cfg.DSN.
func New(ctx context.Context, cfg storage.Config) (storage.AuditStore, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() { _ = s.db.Close() }

const createSQL = `
CREATE TABLE IF NOT EXISTS rejected_trips (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	source_file TEXT    NOT NULL,
	line        INTEGER NOT NULL,
	ride_id     TEXT,
	reason      TEXT    NOT NULL,
	observed_at TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_rejected_trips_reason ON rejected_trips (reason);
`

// EnsureSchema creates the audit table and index. Idempotent, so pipeline
// startup can always call it.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, createSQL)
	return err
}

// InsertRejections appends rows in one multi-values statement per batch.
func (s *Store) InsertRejections(ctx context.Context, rows []storage.RejectionRow) error {
	if len(rows) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString("INSERT INTO rejected_trips (source_file, line, ride_id, reason, observed_at) VALUES ")

	args := make([]any, 0, len(rows)*5)
	for i, r := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(?, ?, ?, ?, ?)")
		observed := r.ObservedAt
		if observed.IsZero() {
			observed = time.Now().UTC()
		}
		args = append(args, r.SourceFile, r.Line, nullable(r.RideID), r.Reason,
			observed.Format(time.RFC3339Nano))
	}

	_, err := s.db.ExecContext(ctx, b.String(), args...)
	return err
}

// CountByReason returns per-reason totals.
func (s *Store) CountByReason(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT reason, COUNT(*) FROM rejected_trips GROUP BY reason`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int64{}
	for rows.Next() {
		var reason string
		var n int64
		if err := rows.Scan(&reason, &n); err != nil {
			return nil, err
		}
		out[reason] = n
	}
	return out, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
