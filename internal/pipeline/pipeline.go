// Package pipeline wires the stages of one processing session: format
// detection, parallel loading through the schema reconciler, cleaning,
// and profiling, all held by a dataset scope.
//
// Structural failures (no files, schema mismatch, I/O) abort the run and
// surface to the caller; per-row quality failures land in the rejected
// set and never abort a multi-million-row load.
package pipeline

import (
	"context"
	"time"

	"tripetl/internal/clean"
	"tripetl/internal/config"
	"tripetl/internal/dataset"
	"tripetl/internal/layout"
	"tripetl/internal/loader"
	"tripetl/internal/metrics"
	"tripetl/internal/profile"
	"tripetl/internal/record"
	"tripetl/internal/storage"
)

// Logger is the minimal logging interface used by the pipeline.
// *log.Logger satisfies it.
type Logger interface {
	Printf(format string, v ...any)
}

// Pipeline executes ingestion sessions. All collaborators are injected;
// several pipelines with different configs can coexist in one process.
type Pipeline struct {
	Cfg     config.Pipeline
	Metrics metrics.Backend
	Logger  Logger

	// Audit, when non-nil, receives the rejected set after each run.
	Audit storage.AuditStore
}

func (p *Pipeline) logf(format string, v ...any) {
	if p.Logger == nil {
		return
	}
	p.Logger.Printf(format, v...)
}

func (p *Pipeline) backend() metrics.Backend {
	if p.Metrics == nil {
		return metrics.Nop{}
	}
	return p.Metrics
}

func (p *Pipeline) detector() *layout.Detector {
	return layout.NewDetector(p.Cfg.Data.Root, p.Cfg.Data.Series, p.Cfg.Data.CutoverYear)
}

func durMS(start time.Time) time.Duration {
	return time.Since(start).Truncate(time.Millisecond)
}

// Run loads, cleans, and profiles one period and returns a sealed scope.
// The caller owns the scope and must Close it.
func (p *Pipeline) Run(ctx context.Context, period layout.Period) (*dataset.Scope, error) {
	refs, err := p.detector().Resolve(period)
	if err != nil {
		return nil, err
	}
	p.logf("stage=resolve period=%s files=%d", period, len(refs))
	return p.run(ctx, refs)
}

// RunYears loads a contiguous range of whole years in one session. Years
// on both sides of the publication cutover may mix freely; every row
// lands in the same canonical shape regardless of source layout.
func (p *Pipeline) RunYears(ctx context.Context, fromYear, toYear int) (*dataset.Scope, error) {
	refs, err := p.detector().ResolveRange(fromYear, toYear)
	if err != nil {
		return nil, err
	}
	p.logf("stage=resolve years=%d..%d files=%d", fromYear, toYear, len(refs))
	return p.run(ctx, refs)
}

func (p *Pipeline) run(ctx context.Context, refs []layout.FileRef) (*dataset.Scope, error) {
	m := p.backend()
	m.IncCounter(metrics.MetricFilesTotal, float64(len(refs)), nil)

	cleanCfg, err := p.Cfg.CleanSettings()
	if err != nil {
		return nil, err
	}
	mode := p.Cfg.CleanMode()

	scope, err := dataset.NewScope(p.Cfg.Data.StagingDir)
	if err != nil {
		return nil, err
	}
	// The scope is still ours until Seal; any failure below must release
	// its staging directory.
	sealed := false
	defer func() {
		if !sealed {
			_ = scope.Close()
		}
	}()

	ld := &loader.Loader{
		Workers: p.Cfg.Runtime.ReaderWorkers,
		Buffer:  p.Cfg.Runtime.ChannelBuffer,
		Logger:  p.Logger,
		OnSkippedLine: func(file string, line int, lineErr error) {
			p.logf("scope=%s file=%s line=%d skipped: %v", scope.ID, file, line, lineErr)
		},
	}
	cleaner := clean.New(cleanCfg, mode)

	accepted, rejected, err := p.loadAndClean(ctx, ld, cleaner, refs, m)
	if err != nil {
		for _, r := range accepted {
			r.Free()
		}
		for _, r := range rejected {
			if r.Row != nil {
				r.Row.Free()
			}
		}
		return nil, err
	}

	profStart := time.Now()
	report := profile.New(p.Cfg.ProfileSettings(), cleanCfg, mode).Profile(accepted)
	m.ObserveHistogram(metrics.MetricStageDuration, time.Since(profStart).Seconds(),
		metrics.Labels{"stage": "profile"})
	p.logf("stage=profile ok scope=%s rows=%d breaches=%d duration=%s",
		scope.ID, report.Rows, len(report.Breaches), durMS(profStart))

	if err = scope.SetAccepted(accepted); err != nil {
		return nil, err
	}
	if err = scope.SetRejected(rejected); err != nil {
		return nil, err
	}
	if err = scope.SetReport(report); err != nil {
		return nil, err
	}

	if p.Audit != nil && len(rejected) > 0 {
		auditStart := time.Now()
		if err = scope.FlushRejections(ctx, p.Audit, p.Cfg.Runtime.BatchSize); err != nil {
			return nil, err
		}
		p.logf("stage=audit ok scope=%s rejected=%d duration=%s",
			scope.ID, len(rejected), durMS(auditStart))
	}

	scope.Seal()
	sealed = true
	return scope, nil
}

// loadAndClean drains the file stream through the cleaner. Accepted rows
// stay pooled and pass to the caller; rejected rows are released by the
// cleaner (after cloning in full mode).
func (p *Pipeline) loadAndClean(
	ctx context.Context,
	ld *loader.Loader,
	cleaner *clean.Cleaner,
	refs []layout.FileRef,
	m metrics.Backend,
) ([]*record.Row, []clean.RejectedRecord, error) {
	loadStart := time.Now()
	stream := ld.Stream(ctx, refs)

	var (
		accepted []*record.Row
		rejected []clean.RejectedRecord
	)
	for row := range stream.C {
		ok, rej := cleaner.Apply(row)
		if ok {
			accepted = append(accepted, row)
			continue
		}
		rejected = append(rejected, rej)
	}
	if err := stream.Wait(); err != nil {
		return accepted, rejected, err
	}

	m.ObserveHistogram(metrics.MetricStageDuration, time.Since(loadStart).Seconds(),
		metrics.Labels{"stage": "load_clean"})
	m.IncCounter(metrics.MetricRowsTotal, float64(len(accepted)),
		metrics.Labels{"status": "accepted"})
	m.IncCounter(metrics.MetricRowsTotal, float64(len(rejected)),
		metrics.Labels{"status": "rejected"})
	for reason, n := range countReasons(rejected) {
		m.IncCounter(metrics.MetricRejectsTotal, float64(n),
			metrics.Labels{"reason": string(reason)})
	}

	p.logf("stage=load_clean ok files=%d accepted=%d rejected=%d duration=%s",
		len(refs), len(accepted), len(rejected), durMS(loadStart))
	return accepted, rejected, nil
}

func countReasons(recs []clean.RejectedRecord) map[clean.Reason]int {
	counts := make(map[clean.Reason]int)
	for _, r := range recs {
		for _, reason := range r.Reasons {
			counts[reason]++
		}
	}
	return counts
}
