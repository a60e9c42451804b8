package config

import "fmt"

// Severity grades a validation issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one finding from ValidatePipeline.
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

func errAt(path, format string, v ...any) Issue {
	return Issue{Severity: SeverityError, Path: path, Message: fmt.Sprintf(format, v...)}
}

func warnAt(path, format string, v ...any) Issue {
	return Issue{Severity: SeverityWarning, Path: path, Message: fmt.Sprintf(format, v...)}
}

// ValidatePipeline checks a decoded pipeline document. It returns every
// finding rather than stopping at the first, so operators can fix a
// config in one pass.
func ValidatePipeline(p Pipeline) []Issue {
	var issues []Issue

	if p.Job == "" {
		issues = append(issues, warnAt("job", "empty job name; metrics will tag job:tripetl"))
	}
	if p.Data.Root == "" {
		issues = append(issues, errAt("data.root", "data root is required"))
	}
	if p.Data.Series == "" {
		issues = append(issues, errAt("data.series", "series name is required"))
	}
	if p.Data.CutoverYear != 0 && (p.Data.CutoverYear < 2000 || p.Data.CutoverYear > 2100) {
		issues = append(issues, errAt("data.cutover_year", "cutover year %d out of range", p.Data.CutoverYear))
	}

	if p.Clean.MinDurationSec < 0 {
		issues = append(issues, errAt("clean.min_duration_sec", "must be >= 0"))
	}
	if p.Clean.MaxDurationSec < 0 {
		issues = append(issues, errAt("clean.max_duration_sec", "must be >= 0"))
	}
	if p.Clean.MinDurationSec > 0 && p.Clean.MaxDurationSec > 0 &&
		p.Clean.MinDurationSec >= p.Clean.MaxDurationSec {
		issues = append(issues, errAt("clean", "min_duration_sec must be below max_duration_sec"))
	}
	if p.Clean.LatMin > p.Clean.LatMax {
		issues = append(issues, errAt("clean", "lat_min above lat_max"))
	}
	if p.Clean.LngMin > p.Clean.LngMax {
		issues = append(issues, errAt("clean", "lng_min above lng_max"))
	}

	if p.Profile.MaxNullRate < 0 || p.Profile.MaxNullRate > 1 {
		issues = append(issues, errAt("profile.max_null_rate", "must be in [0, 1]"))
	}
	if p.Profile.MaxOutOfRangeRate < 0 || p.Profile.MaxOutOfRangeRate > 1 {
		issues = append(issues, errAt("profile.max_out_of_range_rate", "must be in [0, 1]"))
	}

	if p.Runtime.ReaderWorkers < 0 {
		issues = append(issues, errAt("runtime.reader_workers", "must be >= 0"))
	}
	if p.Runtime.ChannelBuffer < 0 {
		issues = append(issues, errAt("runtime.channel_buffer", "must be >= 0"))
	}

	switch p.Mode {
	case "", "full", "quick":
	default:
		issues = append(issues, errAt("mode", "unknown mode %q (want full or quick)", p.Mode))
	}

	switch p.Audit.Kind {
	case "", "sqlite", "postgres":
	default:
		issues = append(issues, errAt("audit.kind", "unknown audit backend %q", p.Audit.Kind))
	}
	if p.Audit.Kind != "" && p.Audit.DSN == "" {
		issues = append(issues, errAt("audit.dsn", "dsn is required when audit.kind is set"))
	}

	return issues
}
