// Package record provides the pooled positional row used across
// parser → reconciler → cleaner to reduce heap churn and GC pressure at
// tens-of-millions-of-rows volumes.
package record

import (
	"sync"

	"tripetl/internal/layout"
)

// Row is a pooled container holding one canonical trip row in positional
// form, aligned to schema.Columns order. Missing values are nil.
//
// Ownership contract:
//   - Exactly one goroutine "owns" a Row at a time.
//   - A Row may be passed downstream via channels (ownership transfer).
//   - The final consumer must call Free() AFTER it is fully done with the
//     Row (and anything referencing r.V).
//
// IMPORTANT:
//   - During ctx cancellation, drain-safe stages may still be running while
//     the parser is also unwinding. If canceled rows are returned to the
//     pool, they can be reused immediately and written concurrently with
//     downstream reads.
//
// Therefore:
//   - Use Free() only on the normal path.
//   - Use Drop() on cancellation paths (no re-pooling; allow GC to reclaim).
type Row struct {
	V      []any
	File   string        // source file basename, for rejection traceability
	Line   int           // 1-based physical line within the source file
	Layout layout.Layout // raw convention the row came from
}

var rowPool sync.Pool

// Get returns a pooled Row with length set to colCount. All elements are
// zeroed for safety.
func Get(colCount int) *Row {
	if v := rowPool.Get(); v != nil {
		r := v.(*Row)
		if cap(r.V) < colCount {
			r.V = make([]any, colCount)
		}
		r.V = r.V[:colCount]
		for i := range r.V {
			r.V[i] = nil
		}
		r.File = ""
		r.Line = 0
		r.Layout = 0
		return r
	}
	return &Row{V: make([]any, colCount)}
}

// Free returns the Row to the pool.
// Call this ONLY when you're sure no other goroutine can observe r or r.V.
func (r *Row) Free() {
	rowPool.Put(r)
}

// Drop discards the Row WITHOUT returning it to the pool.
//
// Use this on ctx-cancellation paths to prevent "canceled drain" from
// racing with upstream reuse of the same pooled Row.
func (r *Row) Drop() {
	r.V = nil
	r.File = ""
	r.Line = 0
	r.Layout = 0
}

// Clone copies the row into a fresh non-pooled Row. Use when a consumer
// must retain values past the pooled lifetime (e.g. rejected-set capture).
func (r *Row) Clone() *Row {
	c := &Row{
		V:      make([]any, len(r.V)),
		File:   r.File,
		Line:   r.Line,
		Layout: r.Layout,
	}
	copy(c.V, r.V)
	return c
}
