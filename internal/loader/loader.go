// Package loader streams detected raw files through the schema reconciler
// and yields canonical rows. Files within one request load in parallel but
// rows are always emitted in the detector's chronological file order.
package loader

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"tripetl/internal/layout"
	"tripetl/internal/record"
	"tripetl/internal/schema"
)

// Logger is the minimal logging interface used by the loader.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

// IOError wraps a read failure with enough context (file, line) to retry
// or report. It aborts the current file load.
type IOError struct {
	File string
	Line int
	Err  error
}

func (e *IOError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("io failure in %s line %d: %v", e.File, e.Line, e.Err)
	}
	return fmt.Sprintf("io failure in %s: %v", e.File, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Loader turns (file, layout) refs into a canonical row stream.
//
// All configuration is injected; two loaders with different settings can
// run side by side.
type Loader struct {
	Rec schema.Reconciler

	// Workers bounds how many files are read concurrently. <=0 means 1.
	Workers int
	// Buffer is the per-file channel depth. <=0 selects 256.
	Buffer int

	Logger Logger

	// OnSkippedLine, when set, observes per-line CSV parse errors. Such
	// lines are skipped; only real I/O errors abort the file.
	OnSkippedLine func(file string, line int, err error)
}

func (l *Loader) logf(format string, v ...any) {
	if l.Logger == nil {
		return
	}
	l.Logger.Printf(format, v...)
}

func (l *Loader) buffer() int {
	if l.Buffer <= 0 {
		return 256
	}
	return l.Buffer
}

func (l *Loader) workers() int {
	if l.Workers <= 0 {
		return 1
	}
	return l.Workers
}

// Stream is a live canonical row stream. Receive from C until it closes,
// then call Wait for the terminal error.
type Stream struct {
	C <-chan *record.Row

	wait func() error
}

// Wait blocks until all file readers finish and returns the first fatal
// error, if any. It must be called after C is drained.
func (s *Stream) Wait() error { return s.wait() }

// Stream launches readers for refs and returns the merged, ordered stream.
//
// Each file gets its own bounded channel; a merger forwards file channels
// strictly in refs order, so chronological ordering holds no matter which
// file finishes first. A fatal error in any file cancels the rest.
func (l *Loader) Stream(ctx context.Context, refs []layout.FileRef) *Stream {
	ctx, cancel := context.WithCancel(ctx)

	fileChans := make([]chan *record.Row, len(refs))
	for i := range refs {
		fileChans[i] = make(chan *record.Row, l.buffer())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.workers())

	// g.Go blocks while all worker slots are busy, and a busy reader only
	// frees its slot once the merger drains its channel. Launch from a
	// separate goroutine so the merger below is always running first.
	go func() {
		for i, ref := range refs {
			ref := ref
			out := fileChans[i]
			g.Go(func() error {
				defer close(out)
				return l.streamFile(gctx, ref, out)
			})
		}
	}()

	merged := make(chan *record.Row, l.buffer())
	done := make(chan error, 1)
	go func() {
		defer close(merged)
		for _, ch := range fileChans {
			for r := range ch {
				select {
				case merged <- r:
				case <-ctx.Done():
					r.Drop()
					// Keep draining so producers can unwind.
				}
			}
		}
		done <- g.Wait()
	}()

	return &Stream{
		C: merged,
		wait: func() error {
			err := <-done
			cancel()
			return err
		},
	}
}

// Load eagerly materializes the full requested range in order.
func (l *Loader) Load(ctx context.Context, refs []layout.FileRef) ([]*record.Row, error) {
	s := l.Stream(ctx, refs)
	var rows []*record.Row
	for r := range s.C {
		rows = append(rows, r)
	}
	if err := s.Wait(); err != nil {
		for _, r := range rows {
			r.Free()
		}
		return nil, err
	}
	return rows, nil
}

func (l *Loader) streamFile(ctx context.Context, ref layout.FileRef, out chan<- *record.Row) error {
	f, err := os.Open(ref.Path)
	if err != nil {
		return &IOError{File: ref.Path, Err: err}
	}
	defer f.Close()

	base := filepath.Base(ref.Path)

	cr := csv.NewReader(decodeReader(f, ref.Layout))
	cr.ReuseRecord = true
	cr.FieldsPerRecord = -1

	line := 1
	hdr, err := cr.Read()
	if err != nil {
		return &IOError{File: ref.Path, Line: line, Err: fmt.Errorf("read header: %w", err)}
	}

	plan, err := l.Rec.Plan(ref.Layout, base, hdr)
	if err != nil {
		return err
	}
	for _, w := range plan.Warnings {
		l.logf("file=%s layout=%s %s", base, ref.Layout, w)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line++
		rec, err := cr.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				if l.OnSkippedLine != nil {
					l.OnSkippedLine(base, line, err)
				}
				continue
			}
			return &IOError{File: ref.Path, Line: line, Err: err}
		}

		row := record.Get(schema.NumCols)
		row.File = base
		row.Line = line
		row.Layout = ref.Layout
		plan.Apply(rec, row)

		select {
		case out <- row:
		case <-ctx.Done():
			// Do not re-pool on cancellation.
			row.Drop()
			return ctx.Err()
		}
	}
}

var _ Logger = (*log.Logger)(nil)
