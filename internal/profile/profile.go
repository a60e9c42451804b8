// Package profile computes per-column quality statistics over the accepted
// set and flags configured thresholds that were exceeded. Breaches are
// warning-level signals on the report; profiling never fails a load.
package profile

import (
	"time"

	"tripetl/internal/clean"
	"tripetl/internal/record"
	"tripetl/internal/schema"
)

// ColumnStats is the per-column slice of the validation report. Field
// names are stable; external report collaborators consume this shape.
type ColumnStats struct {
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	NullCount  int64  `json:"null_count"`
	OutOfRange int64  `json:"out_of_range_count"`

	// Distinct is tracked for categorical columns in full mode only.
	Distinct int64 `json:"distinct_count,omitempty"`

	MinNum *float64   `json:"min,omitempty"`
	MaxNum *float64   `json:"max,omitempty"`
	MinAt  *time.Time `json:"min_at,omitempty"`
	MaxAt  *time.Time `json:"max_at,omitempty"`
}

// Breach records one exceeded threshold.
type Breach struct {
	Column    string  `json:"column"`
	Metric    string  `json:"metric"` // "null_rate", "out_of_range_rate", "distinct"
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
}

// Report is the serializable validation report for one accepted set.
type Report struct {
	Rows        int64         `json:"rows"`
	GeneratedAt time.Time     `json:"generated_at"`
	Columns     []ColumnStats `json:"columns"`
	Breaches    []Breach      `json:"breaches,omitempty"`
}

// Thresholds configures when a column statistic becomes a warning.
type Thresholds struct {
	// MaxNullRate flags columns whose null share exceeds it.
	MaxNullRate float64
	// MaxOutOfRangeRate flags columns with too many out-of-range values.
	MaxOutOfRangeRate float64
	// MaxDistinct flags categorical columns whose distinct-value count
	// explodes past it.
	MaxDistinct int64
}

// DefaultThresholds matches the report policy used by the downstream
// quality dashboards.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxNullRate:       0.10,
		MaxOutOfRangeRate: 0.01,
		MaxDistinct:       50,
	}
}

// Profiler computes reports. Ranges reuses the cleaning thresholds so
// "out of range" means the same thing in the report as in the cleaner.
type Profiler struct {
	Cfg    Thresholds
	Ranges clean.Config
	Mode   clean.Mode
}

// New constructs a Profiler.
func New(cfg Thresholds, ranges clean.Config, mode clean.Mode) *Profiler {
	return &Profiler{Cfg: cfg, Ranges: ranges, Mode: mode}
}

type colAcc struct {
	nulls      int64
	outOfRange int64
	distinct   map[string]struct{}
	minNum     float64
	maxNum     float64
	haveNum    bool
	minAt      time.Time
	maxAt      time.Time
	haveAt     bool
}

// Profile runs one pass over rows and produces the report.
func (p *Profiler) Profile(rows []*record.Row) *Report {
	accs := make([]colAcc, schema.NumCols)
	if p.Mode == clean.ModeFull {
		for i, c := range schema.Columns {
			if c.Kind == schema.KindCategory {
				accs[i].distinct = make(map[string]struct{})
			}
		}
	}

	for _, r := range rows {
		for col := 0; col < schema.NumCols; col++ {
			v := r.V[col]
			if v == nil {
				accs[col].nulls++
				continue
			}
			a := &accs[col]
			switch schema.Columns[col].Kind {
			case schema.KindFloat:
				f, ok := schema.FloatOf(v)
				if !ok {
					a.nulls++
					continue
				}
				a.observeNum(f)
				if p.floatOutOfRange(col, f) {
					a.outOfRange++
				}
			case schema.KindInt:
				n, ok := schema.IntOf(v)
				if !ok {
					a.nulls++
					continue
				}
				f := float64(n)
				a.observeNum(f)
				if p.intOutOfRange(col, n) {
					a.outOfRange++
				}
			case schema.KindTime:
				t, ok := schema.TimeOf(v)
				if !ok {
					a.nulls++
					continue
				}
				a.observeTime(t)
			case schema.KindCategory:
				s, ok := schema.StringOf(v)
				if !ok {
					a.nulls++
					continue
				}
				if a.distinct != nil {
					a.distinct[s] = struct{}{}
				}
			}
		}
	}

	rep := &Report{
		Rows:        int64(len(rows)),
		GeneratedAt: time.Now().UTC(),
		Columns:     make([]ColumnStats, schema.NumCols),
	}
	for col := 0; col < schema.NumCols; col++ {
		a := &accs[col]
		cs := ColumnStats{
			Name:       schema.Columns[col].Name,
			Kind:       schema.Columns[col].Kind.String(),
			NullCount:  a.nulls,
			OutOfRange: a.outOfRange,
		}
		if a.haveNum {
			minV, maxV := a.minNum, a.maxNum
			cs.MinNum, cs.MaxNum = &minV, &maxV
		}
		if a.haveAt {
			minT, maxT := a.minAt, a.maxAt
			cs.MinAt, cs.MaxAt = &minT, &maxT
		}
		if a.distinct != nil {
			cs.Distinct = int64(len(a.distinct))
		}
		rep.Columns[col] = cs
		rep.Breaches = append(rep.Breaches, p.breaches(cs, rep.Rows)...)
	}
	return rep
}

func (a *colAcc) observeNum(f float64) {
	if !a.haveNum || f < a.minNum {
		a.minNum = f
	}
	if !a.haveNum || f > a.maxNum {
		a.maxNum = f
	}
	a.haveNum = true
}

func (a *colAcc) observeTime(t time.Time) {
	if !a.haveAt || t.Before(a.minAt) {
		a.minAt = t
	}
	if !a.haveAt || t.After(a.maxAt) {
		a.maxAt = t
	}
	a.haveAt = true
}

func (p *Profiler) floatOutOfRange(col int, f float64) bool {
	b := p.Ranges.Bounds
	switch col {
	case schema.ColStartLat, schema.ColEndLat:
		return f < b.LatMin || f > b.LatMax
	case schema.ColStartLng, schema.ColEndLng:
		return f < b.LngMin || f > b.LngMax
	default:
		return false
	}
}

func (p *Profiler) intOutOfRange(col int, n int64) bool {
	if col != schema.ColDurationSec {
		return false
	}
	d := time.Duration(n) * time.Second
	return d < p.Ranges.MinDuration || d > p.Ranges.MaxDuration
}

func (p *Profiler) breaches(cs ColumnStats, rows int64) []Breach {
	if rows == 0 {
		return nil
	}
	var out []Breach
	nullRate := float64(cs.NullCount) / float64(rows)
	if p.Cfg.MaxNullRate > 0 && nullRate > p.Cfg.MaxNullRate {
		out = append(out, Breach{Column: cs.Name, Metric: "null_rate", Value: nullRate, Threshold: p.Cfg.MaxNullRate})
	}
	oorRate := float64(cs.OutOfRange) / float64(rows)
	if p.Cfg.MaxOutOfRangeRate > 0 && oorRate > p.Cfg.MaxOutOfRangeRate {
		out = append(out, Breach{Column: cs.Name, Metric: "out_of_range_rate", Value: oorRate, Threshold: p.Cfg.MaxOutOfRangeRate})
	}
	if p.Cfg.MaxDistinct > 0 && cs.Distinct > p.Cfg.MaxDistinct {
		out = append(out, Breach{Column: cs.Name, Metric: "distinct", Value: float64(cs.Distinct), Threshold: float64(p.Cfg.MaxDistinct)})
	}
	return out
}
