// Package dataset owns the in-memory dataset for one processing session:
// the accepted set, the rejected set, and the validation report. A Scope
// guarantees release of backing resources on every exit path and persists
// artifacts atomically, so a crash mid-write never corrupts a target file.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"

	"tripetl/internal/clean"
	"tripetl/internal/profile"
	"tripetl/internal/record"
	"tripetl/internal/storage"
)

// ErrSealed is returned by mutations after Seal. A sealed scope is
// immutable; further cleaning produces a new scope.
var ErrSealed = errors.New("dataset: scope is sealed")

// ErrClosed is returned by any use of a scope after Close.
var ErrClosed = errors.New("dataset: scope is closed")

// Scope is the scoped handle for one processing session. Exactly one
// writer may populate it; after Seal, concurrent readers are unrestricted.
type Scope struct {
	// ID tags staging files and log lines for this session.
	ID uuid.UUID

	stagingDir string

	mu       sync.Mutex
	sealed   bool
	closed   bool
	accepted []*record.Row
	rejected []clean.RejectedRecord
	report   *profile.Report
}

// NewScope creates a scope with a private staging directory under
// stagingRoot (or the system temp dir when empty).
func NewScope(stagingRoot string) (*Scope, error) {
	id := uuid.New()
	dir, err := os.MkdirTemp(stagingRoot, "tripetl-scope-"+id.String()[:8]+"-*")
	if err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	return &Scope{ID: id, stagingDir: dir}, nil
}

// StagingDir is where the scope may spill intermediate files. It is
// removed by Close.
func (s *Scope) StagingDir() string { return s.stagingDir }

// SetAccepted installs the accepted set. The scope takes ownership of the
// rows and will release them on Close.
func (s *Scope) SetAccepted(rows []*record.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writableLocked(); err != nil {
		return err
	}
	s.accepted = rows
	// The report describes the previous accepted set; drop it so a stale
	// one can never be persisted alongside new rows.
	s.report = nil
	return nil
}

// SetRejected installs the rejected set.
func (s *Scope) SetRejected(recs []clean.RejectedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writableLocked(); err != nil {
		return err
	}
	s.rejected = recs
	return nil
}

// SetReport installs the validation report for the current accepted set.
func (s *Scope) SetReport(r *profile.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writableLocked(); err != nil {
		return err
	}
	s.report = r
	return nil
}

func (s *Scope) writableLocked() error {
	if s.closed {
		return ErrClosed
	}
	if s.sealed {
		return ErrSealed
	}
	return nil
}

// Seal freezes the scope. After Seal all mutation fails with ErrSealed
// and readers may access the sets concurrently without locking.
func (s *Scope) Seal() {
	s.mu.Lock()
	s.sealed = true
	s.mu.Unlock()
}

// Accepted returns the accepted set. Callers must not mutate it.
func (s *Scope) Accepted() []*record.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepted
}

// Rejected returns the rejected set with reasons and source references.
func (s *Scope) Rejected() []clean.RejectedRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rejected
}

// Report returns the validation report, or nil when none was computed.
func (s *Scope) Report() *profile.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.report
}

// Close releases backing resources: pooled rows return to the pool and
// the staging directory is removed. Close is idempotent and must run on
// every exit path, including early termination after an upstream error.
func (s *Scope) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	for _, r := range s.accepted {
		r.Free()
	}
	s.accepted = nil
	s.rejected = nil
	s.report = nil

	if s.stagingDir != "" {
		if err := os.RemoveAll(s.stagingDir); err != nil {
			return fmt.Errorf("remove staging dir: %w", err)
		}
	}
	return nil
}

// FlushRejections writes the rejected set to an audit store, one row per
// (record, reason), in batches of batchSize (default 1024).
func (s *Scope) FlushRejections(ctx context.Context, store storage.AuditStore, batchSize int) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	rejected := s.rejected
	s.mu.Unlock()

	if batchSize <= 0 {
		batchSize = 1024
	}

	batch := make([]storage.RejectionRow, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := store.InsertRejections(ctx, batch); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}

	for _, rr := range rejected {
		for _, reason := range rr.Reasons {
			batch = append(batch, storage.RejectionRow{
				SourceFile: rr.File,
				Line:       rr.Line,
				RideID:     rr.RideID,
				Reason:     string(reason),
			})
			if len(batch) >= batchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
	}
	return flush()
}
