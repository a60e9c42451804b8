// Package storage defines the backend-agnostic rejection audit store and
// its backend registry. The cleaner produces rejected records; flushing
// them here gives downstream analysts a queryable record of what was
// dropped from every load and why.
package storage

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Config is the minimal configuration needed to create an audit store.
//
// Edge cases:
//   - Kind must be non-empty and must match a registered backend kind.
//   - DSN is passed through to the backend factory; validation is
//     backend-specific.
type Config struct {
	Kind string
	DSN  string
}

// RejectionRow is one (record, reason) pair. A record rejected for two
// reasons produces two rows; that keeps CountByReason a plain GROUP BY in
// every backend.
type RejectionRow struct {
	SourceFile string
	Line       int
	RideID     string
	Reason     string
	ObservedAt time.Time
}

// AuditStore is a backend-agnostic interface over the rejection audit
// table.
//
// IMPORTANT: This interface is intentionally minimal and focused on what
// the pipeline needs. Each backend implements these semantics in its own
// idiomatic way (Postgres TIMESTAMPTZ, SQLite RFC3339 text, etc).
type AuditStore interface {
	// Close releases any backend resources. Treat Close as "call once".
	Close()

	// EnsureSchema creates the audit table if needed. Idempotent.
	EnsureSchema(ctx context.Context) error

	// InsertRejections appends a batch of rejection rows.
	InsertRejections(ctx context.Context, rows []RejectionRow) error

	// CountByReason returns per-reason totals over the whole table.
	CountByReason(ctx context.Context) (map[string]int64, error)
}

// ---- backend factories ----

type factory func(ctx context.Context, cfg Config) (AuditStore, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register registers an audit backend under a kind (e.g. "postgres",
// "sqlite"). Call Register from an init() function in a backend package.
//
// Panics:
//   - If kind is empty.
//   - If f is nil.
//   - If kind is already registered. This is intentional to fail fast and
//     avoid ambiguous backend selection.
func Register(kind string, f factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}

	factories[kind] = f
}

// New constructs an AuditStore using the registered backend factory.
//
// Errors:
//   - Returns an error if cfg.Kind is empty or unsupported.
//   - Returns whatever error the registered factory returns.
func New(ctx context.Context, cfg Config) (AuditStore, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing Kind")
	}

	mu.RLock()
	f, ok := factories[cfg.Kind]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("storage: unsupported backend kind %q", cfg.Kind)
	}
	return f(ctx, cfg)
}
