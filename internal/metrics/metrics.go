// Package metrics defines the minimal backend interface the ingestion
// pipeline emits through. The core depends only on Backend; concrete
// transports (Datadog, none) live in subpackages.
package metrics

// Labels are metric dimensions, e.g. {"reason": "duplicate_id"}.
type Labels map[string]string

// Backend receives pipeline metrics.
//
// Implementations must be safe for concurrent use: loaders and the cleaner
// call IncCounter/ObserveHistogram from multiple goroutines.
type Backend interface {
	// IncCounter adds delta to a monotonically increasing counter.
	IncCounter(name string, delta float64, labels Labels)

	// ObserveHistogram records one sample of a distribution (seconds,
	// bytes, rows per file, ...).
	ObserveHistogram(name string, value float64, labels Labels)

	// Flush submits buffered metrics now. Backends may also flush on an
	// internal schedule.
	Flush() error

	// Close stops background work and performs one final flush.
	Close() error
}

// Metric names emitted by the pipeline.
const (
	MetricFilesTotal    = "ingest_files_total"
	MetricRowsTotal     = "ingest_rows_total"     // labels: status=accepted|rejected
	MetricRejectsTotal  = "ingest_rejects_total"  // labels: reason
	MetricStageDuration = "ingest_stage_duration_seconds" // labels: stage
)

// Nop is a Backend that discards everything. Use it when metrics are not
// configured; callers never need nil checks.
type Nop struct{}

func (Nop) IncCounter(string, float64, Labels)       {}
func (Nop) ObserveHistogram(string, float64, Labels) {}
func (Nop) Flush() error                             { return nil }
func (Nop) Close() error                             { return nil }

var _ Backend = Nop{}
