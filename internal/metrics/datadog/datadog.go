// Package datadog implements a Datadog backend for the internal/metrics
// package.
//
// NOTE ABOUT FLUSHING:
// Ingestion runs range from seconds (one month) to hours (a decade of
// files). Submitting only once at process exit makes dashboards awkward
// for long runs, so this backend:
//   - buffers metrics in-memory (fast, lock-protected)
//   - periodically Flush()es on a ticker (default: once per minute)
//   - Flush()es one final time on Close()
//
// Concurrency model:
//   - pipeline goroutines call IncCounter/ObserveHistogram at any time
//   - Flush snapshots+resets buffers under a mutex, then submits out-of-lock
//   - the flush loop calls Flush() periodically; Close() stops the loop
//
// If the process dies with SIGKILL/OOM, Close() won't run (no backend can
// fix that).
package datadog

import (
	"context"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	dd "github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"

	"tripetl/internal/metrics"
)

// Options controls Datadog backend configuration.
type Options struct {
	// JobName becomes tag "job:<name>" on every metric.
	// If empty, defaults to "tripetl".
	JobName string

	// Tags are extra Datadog tags (e.g. []string{"env:prod"}).
	Tags []string

	// FlushEvery controls how often buffered metrics are submitted.
	// If <= 0, defaults to 60 seconds.
	FlushEvery time.Duration

	// The following fields are unexported test seams. Production code
	// never sets them; unit tests use them to avoid real network
	// submission and nondeterministic clocks.
	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker
	submitter metricsSubmitter
}

// metricsSubmitter is the minimal interface needed to submit metrics.
// The Datadog SDK exposes a concrete *datadogV2.MetricsApi; depending on
// this tiny private interface instead keeps tests free of real HTTP.
type metricsSubmitter interface {
	SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error)
}

// Backend implements metrics.Backend for Datadog.
type Backend struct {
	api metricsSubmitter
	ctx context.Context

	flushEvery time.Duration
	stopCh     chan struct{}
	doneCh     chan struct{}

	baseTags []string

	// now is injected for deterministic tests. Production uses time.Now.
	now func() time.Time

	// newTicker is injected for deterministic tests.
	newTicker func(d time.Duration) *time.Ticker

	mu       sync.Mutex
	counters map[string]float64   // series key -> running total
	samples  map[string][]float64 // series key -> samples
}

func resolveEnvTag() string {
	if v := strings.TrimSpace(os.Getenv("ENV")); v != "" {
		return "env:" + v
	}
	if v := strings.TrimSpace(os.Getenv("DD_ENV")); v != "" {
		return "env:" + v
	}
	return "env:unknown"
}

// NewBackend constructs a Datadog backend using the official client.
//
// Edge cases:
//   - If opts.FlushEvery <= 0, defaults to 60s.
//   - If opts.JobName is empty, defaults to "tripetl".
//   - Environment tag selection uses ENV then DD_ENV, otherwise env:unknown.
//
// Errors:
//   - Datadog client construction is not expected to fail; network errors
//     surface from Flush().
func NewBackend(parent context.Context, opts Options) (*Backend, error) {
	job := opts.JobName
	if job == "" {
		job = "tripetl"
	}

	flushEvery := opts.FlushEvery
	if flushEvery <= 0 {
		flushEvery = 60 * time.Second
	}

	baseTags := make([]string, 0, 2+len(opts.Tags))
	baseTags = append(baseTags, resolveEnvTag(), "job:"+job)
	baseTags = append(baseTags, opts.Tags...)

	nowFn := opts.now
	if nowFn == nil {
		nowFn = time.Now
	}
	newTicker := opts.newTicker
	if newTicker == nil {
		newTicker = time.NewTicker
	}

	submitter := opts.submitter
	if submitter == nil {
		cfg := dd.NewConfiguration()
		client := dd.NewAPIClient(cfg)
		submitter = datadogV2.NewMetricsApi(client)
	}

	b := &Backend{
		api:        submitter,
		ctx:        dd.NewDefaultContext(parent),
		flushEvery: flushEvery,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		baseTags:   baseTags,
		now:        nowFn,
		newTicker:  newTicker,
		counters:   make(map[string]float64),
		samples:    make(map[string][]float64),
	}

	go b.loop()
	return b, nil
}

func (b *Backend) loop() {
	defer close(b.doneCh)

	t := b.newTicker(b.flushEvery)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			_ = b.Flush()
		case <-b.stopCh:
			return
		}
	}
}

// seriesKey folds name+labels into a stable buffer key: "name|k:v|k:v"
// with labels sorted so identical series always hit the same bucket.
func seriesKey(name string, labels metrics.Labels) string {
	if len(labels) == 0 {
		return name
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(name)
	for _, k := range keys {
		sb.WriteByte('|')
		sb.WriteString(k)
		sb.WriteByte(':')
		sb.WriteString(labels[k])
	}
	return sb.String()
}

func splitSeriesKey(key string) (name string, tags []string) {
	parts := strings.Split(key, "|")
	return parts[0], parts[1:]
}

// IncCounter implements metrics.Backend.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}
	k := seriesKey(name, labels)

	b.mu.Lock()
	b.counters[k] += delta
	b.mu.Unlock()
}

// ObserveHistogram implements metrics.Backend.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	k := seriesKey(name, labels)

	b.mu.Lock()
	b.samples[k] = append(b.samples[k], value)
	b.mu.Unlock()
}

// Flush snapshots and resets the buffers, then submits one payload.
// Histogram samples are collapsed to count/avg/max series, which is what
// the ingestion dashboards consume.
func (b *Backend) Flush() error {
	b.mu.Lock()
	counters := b.counters
	samples := b.samples
	b.counters = make(map[string]float64)
	b.samples = make(map[string][]float64)
	b.mu.Unlock()

	if len(counters) == 0 && len(samples) == 0 {
		return nil
	}

	ts := b.now().Unix()
	var series []datadogV2.MetricSeries

	counterType := datadogV2.METRICINTAKETYPE_COUNT
	gaugeType := datadogV2.METRICINTAKETYPE_GAUGE

	counterKeys := make([]string, 0, len(counters))
	for k := range counters {
		counterKeys = append(counterKeys, k)
	}
	sort.Strings(counterKeys)
	for _, k := range counterKeys {
		name, tags := splitSeriesKey(k)
		series = append(series, b.series(name, counters[k], ts, counterType, tags))
	}

	sampleKeys := make([]string, 0, len(samples))
	for k := range samples {
		sampleKeys = append(sampleKeys, k)
	}
	sort.Strings(sampleKeys)
	for _, k := range sampleKeys {
		vals := samples[k]
		if len(vals) == 0 {
			continue
		}
		name, tags := splitSeriesKey(k)
		var sum, maxV float64
		for i, v := range vals {
			sum += v
			if i == 0 || v > maxV {
				maxV = v
			}
		}
		series = append(series, b.series(name+".count", float64(len(vals)), ts, counterType, tags))
		series = append(series, b.series(name+".avg", sum/float64(len(vals)), ts, gaugeType, tags))
		series = append(series, b.series(name+".max", maxV, ts, gaugeType, tags))
	}

	_, _, err := b.api.SubmitMetrics(b.ctx, datadogV2.MetricPayload{Series: series})
	return err
}

func (b *Backend) series(name string, v float64, ts int64, typ datadogV2.MetricIntakeType, extraTags []string) datadogV2.MetricSeries {
	tags := make([]string, 0, len(b.baseTags)+len(extraTags))
	tags = append(tags, b.baseTags...)
	tags = append(tags, extraTags...)

	return datadogV2.MetricSeries{
		Metric: name,
		Type:   typ.Ptr(),
		Tags:   tags,
		Points: []datadogV2.MetricPoint{{
			Timestamp: dd.PtrInt64(ts),
			Value:     dd.PtrFloat64(v),
		}},
	}
}

// Close stops the background flush loop and performs one final Flush().
// Close must be called at most once.
func (b *Backend) Close() error {
	close(b.stopCh)
	<-b.doneCh
	return b.Flush()
}

var _ metrics.Backend = (*Backend)(nil)
