// Package postgres implements the rejection audit store on Postgres, for
// deployments where rejection trails from many ingestion hosts land in one
// shared database.
package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tripetl/internal/storage"
)

// Store implements storage.AuditStore for Postgres.
type Store struct {
	pool *pgxpool.Pool
}

func init() {
	storage.Register("postgres", New)
}

// New connects a pgx pool to cfg.DSN.
func New(ctx context.Context, cfg storage.Config) (storage.AuditStore, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Close closes the connection pool.
func (s *Store) Close() { s.pool.Close() }

const createSQL = `
CREATE TABLE IF NOT EXISTS rejected_trips (
	id          BIGSERIAL PRIMARY KEY,
	source_file TEXT        NOT NULL,
	line        INTEGER     NOT NULL,
	ride_id     TEXT,
	reason      TEXT        NOT NULL,
	observed_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_rejected_trips_reason ON rejected_trips (reason);
`

// EnsureSchema creates the audit table and index. Idempotent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, createSQL)
	return err
}

// InsertRejections appends rows using a pgx batch so one round trip covers
// the whole cleaner flush.
func (s *Store) InsertRejections(ctx context.Context, rows []storage.RejectionRow) error {
	if len(rows) == 0 {
		return nil
	}

	b := &pgx.Batch{}
	for _, r := range rows {
		observed := r.ObservedAt
		if observed.IsZero() {
			observed = time.Now().UTC()
		}
		var rideID any
		if r.RideID != "" {
			rideID = r.RideID
		}
		b.Queue(
			`INSERT INTO rejected_trips (source_file, line, ride_id, reason, observed_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			r.SourceFile, r.Line, rideID, r.Reason, observed,
		)
	}

	br := s.pool.SendBatch(ctx, b)
	defer br.Close()

	for range rows {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// CountByReason returns per-reason totals.
func (s *Store) CountByReason(ctx context.Context) (map[string]int64, error) {
	rows, err := s.pool.Query(ctx,
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
