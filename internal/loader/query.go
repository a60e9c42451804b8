package loader

import (
	"context"
	"errors"
	"time"

	"tripetl/internal/layout"
	"tripetl/internal/record"
	"tripetl/internal/schema"
)

// Predicate decides whether a canonical row survives a deferred query.
type Predicate func(*record.Row) bool

// Query is a deferred-evaluation plan over a set of raw files. Nothing
// touches disk until Collect or Count runs, so a narrow question over a
// multi-year range never materializes the full dataset.
//
// Builder methods mutate and return the same Query; build the plan, then
// trigger it once.
type Query struct {
	loader  *Loader
	refs    []layout.FileRef
	filters []Predicate
	project []int
	limit   int
}

// NewQuery starts a deferred plan over refs using l for execution.
func NewQuery(l *Loader, refs []layout.FileRef) *Query {
	return &Query{loader: l, refs: refs}
}

// Filter adds a row predicate. Predicates are conjunctive.
func (q *Query) Filter(p Predicate) *Query {
	q.filters = append(q.filters, p)
	return q
}

// Select restricts the materialized columns to the given canonical column
// indexes. Unselected cells come back nil.
func (q *Query) Select(cols ...int) *Query {
	q.project = append(q.project, cols...)
	return q
}

// Limit caps the number of collected rows. 0 means no cap.
func (q *Query) Limit(n int) *Query {
	q.limit = n
	return q
}

func (q *Query) keep(r *record.Row) bool {
	for _, p := range q.filters {
		if !p(r) {
			return false
		}
	}
	return true
}

// Collect executes the plan and materializes the matching rows in
// chronological order. Returned rows are detached from the pool; the
// caller owns them.
func (q *Query) Collect(ctx context.Context) ([]*record.Row, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s := q.loader.Stream(ctx, q.refs)
	var out []*record.Row
	full := false
	for r := range s.C {
		if full || !q.keep(r) {
			r.Free()
			continue
		}
		kept := r.Clone()
		r.Free()
		if len(q.project) > 0 {
			projected := make([]any, schema.NumCols)
			for _, c := range q.project {
				if c >= 0 && c < schema.NumCols {
					projected[c] = kept.V[c]
				}
			}
			kept.V = projected
		}
		out = append(out, kept)
		if q.limit > 0 && len(out) >= q.limit {
			// Stop the readers; keep draining so they can unwind.
			full = true
			cancel()
		}
	}
	if err := s.Wait(); err != nil && !(full && errors.Is(err, context.Canceled)) {
		return nil, err
	}
	return out, nil
}

// Count executes the plan and returns the number of matching rows without
// materializing them. A configured Limit caps the count exactly as it caps
// Collect.
func (q *Query) Count(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s := q.loader.Stream(ctx, q.refs)
	var n int64
	full := false
	for r := range s.C {
		if !full && q.keep(r) {
			n++
			if q.limit > 0 && n >= int64(q.limit) {
				// Stop the readers; keep draining so they can unwind.
				full = true
				cancel()
			}
		}
		r.Free()
	}
	if err := s.Wait(); err != nil && !(full && errors.Is(err, context.Canceled)) {
		return 0, err
	}
	return n, nil
}

// WhereTimeBetween keeps rows whose time column falls in [from, to).
// Rows missing the column never match.
func WhereTimeBetween(col int, from, to time.Time) Predicate {
	return func(r *record.Row) bool {
		t, ok := schema.TimeOf(r.V[col])
		if !ok {
			return false
		}
		return !t.Before(from) && t.Before(to)
	}
}

// WhereEquals keeps rows whose string column equals v exactly.
func WhereEquals(col int, v string) Predicate {
	return func(r *record.Row) bool {
		s, ok := schema.StringOf(r.V[col])
		return ok && s == v
	}
}
