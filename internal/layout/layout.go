// Package layout resolves requested time periods to the raw trip files on
// disk and tags each file with the naming convention it belongs to.
//
// Two conventions exist:
//   - legacy, one file per quarter:  raw/{year}/{series}_{year}_Q{1..4}.csv
//   - modern, one file per month:    raw/{year}/{yyyymm}-{series}-tripdata.csv
//
// The switch between them is a single cutover year. Adding a third
// convention means adding a Layout value and one branch in Detector.Resolve;
// nothing downstream branches on the year.
package layout

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Layout tags which raw file convention a file belongs to.
type Layout uint8

const (
	Legacy Layout = iota + 1
	Modern
)

func (l Layout) String() string {
	switch l {
	case Legacy:
		return "legacy"
	case Modern:
		return "modern"
	default:
		return fmt.Sprintf("layout(%d)", uint8(l))
	}
}

// Period is a requested load window: a year plus at most one of quarter or
// month. The zero Quarter/Month mean "whole year".
type Period struct {
	Year    int
	Quarter int // 1..4, 0 when unset
	Month   int // 1..12, 0 when unset
}

func (p Period) String() string {
	switch {
	case p.Month != 0:
		return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
	case p.Quarter != 0:
		return fmt.Sprintf("%04d Q%d", p.Year, p.Quarter)
	default:
		return fmt.Sprintf("%04d", p.Year)
	}
}

// Validate rejects impossible periods before any disk access.
func (p Period) Validate() error {
	if p.Year < 2000 || p.Year > 2100 {
		return fmt.Errorf("layout: year %d out of range", p.Year)
	}
	if p.Quarter != 0 && p.Month != 0 {
		return fmt.Errorf("layout: period %s sets both quarter and month", p)
	}
	if p.Quarter < 0 || p.Quarter > 4 {
		return fmt.Errorf("layout: quarter %d out of range", p.Quarter)
	}
	if p.Month < 0 || p.Month > 12 {
		return fmt.Errorf("layout: month %d out of range", p.Month)
	}
	return nil
}

// FileRef is one resolved raw file plus its layout tag and position in the
// chronological order of the request.
type FileRef struct {
	Path    string
	Layout  Layout
	Year    int
	Quarter int // set for legacy refs
	Month   int // set for modern refs
}

// NotFoundError reports that zero raw files matched a requested period.
// Tried carries every path the detector looked at so the caller can act
// (e.g. trigger a fetch from external storage).
type NotFoundError struct {
	Period Period
	Tried  []string
	Hint   string
}

func (e *NotFoundError) Error() string {
	msg := fmt.Sprintf("no raw trip files for %s (tried %s)",
		e.Period, strings.Join(e.Tried, ", "))
	if e.Hint != "" {
		msg += ": " + e.Hint
	}
	return msg
}

// Detector maps periods to on-disk raw files. All state is injected so
// multiple detectors (different roots, different series) can coexist.
type Detector struct {
	// Root is the directory containing raw/{year}/ subdirectories.
	Root string
	// Series is the dataset name embedded in file names.
	Series string
	// CutoverYear is the first year published as monthly files.
	CutoverYear int

	// statFn is a test seam; defaults to os.Stat.
	statFn func(string) (os.FileInfo, error)
}

// NewDetector builds a Detector rooted at root for the given series.
// cutoverYear <= 0 selects the default of 2020.
func NewDetector(root, series string, cutoverYear int) *Detector {
	if cutoverYear <= 0 {
		cutoverYear = 2020
	}
	return &Detector{Root: root, Series: series, CutoverYear: cutoverYear}
}

func (d *Detector) stat(path string) (os.FileInfo, error) {
	if d.statFn != nil {
		return d.statFn(path)
	}
	return os.Stat(path)
}

func (d *Detector) legacyPath(year, quarter int) string {
	name := fmt.Sprintf("%s_%d_Q%d.csv", d.Series, year, quarter)
	return filepath.Join(d.Root, "raw", fmt.Sprintf("%d", year), name)
}

func (d *Detector) modernPath(year, month int) string {
	name := fmt.Sprintf("%04d%02d-%s-tripdata.csv", year, month, d.Series)
	return filepath.Join(d.Root, "raw", fmt.Sprintf("%d", year), name)
}

// Resolve returns the ordered (file, layout) list covering exactly the
// requested period. Only files that exist on disk are returned; when none
// exist the error is a *NotFoundError carrying every attempted path.
//
// A month request against a pre-cutover year is unsupported: legacy data
// has quarter granularity only, and silently widening the window would
// return rows the caller did not ask for. The NotFoundError hint names the
// enclosing quarterly file instead.
func (d *Detector) Resolve(p Period) ([]FileRef, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	legacy := p.Year < d.CutoverYear

	if p.Month != 0 && legacy {
		q := (p.Month-1)/3 + 1
		return nil, &NotFoundError{
			Period: p,
			Tried:  []string{d.legacyPath(p.Year, q)},
			Hint: fmt.Sprintf("year %d predates the monthly cutover (%d); request %04d Q%d instead",
				p.Year, d.CutoverYear, p.Year, q),
		}
	}

	var candidates []FileRef
	switch {
	case p.Month != 0:
		candidates = append(candidates, FileRef{
			Path: d.modernPath(p.Year, p.Month), Layout: Modern, Year: p.Year, Month: p.Month,
		})
	case p.Quarter != 0 && legacy:
		candidates = append(candidates, FileRef{
			Path: d.legacyPath(p.Year, p.Quarter), Layout: Legacy, Year: p.Year, Quarter: p.Quarter,
		})
	case p.Quarter != 0:
		for m := (p.Quarter-1)*3 + 1; m <= p.Quarter*3; m++ {
			candidates = append(candidates, FileRef{
				Path: d.modernPath(p.Year, m), Layout: Modern, Year: p.Year, Month: m,
			})
		}
	case legacy:
		for q := 1; q <= 4; q++ {
			candidates = append(candidates, FileRef{
				Path: d.legacyPath(p.Year, q), Layout: Legacy, Year: p.Year, Quarter: q,
			})
		}
	default:
		for m := 1; m <= 12; m++ {
			candidates = append(candidates, FileRef{
				Path: d.modernPath(p.Year, m), Layout: Modern, Year: p.Year, Month: m,
			})
		}
	}

	refs := make([]FileRef, 0, len(candidates))
	tried := make([]string, 0, len(candidates))
	for _, c := range candidates {
		tried = append(tried, c.Path)
		if fi, err := d.stat(c.Path); err == nil && !fi.IsDir() {
			refs = append(refs, c)
		}
	}
	if len(refs) == 0 {
		return nil, &NotFoundError{Period: p, Tried: tried}
	}
	return refs, nil
}

// ResolveRange resolves whole-year periods for [fromYear, toYear] and
// concatenates the results chronologically. Years with no files at all are
// skipped; the range fails with *NotFoundError only when every year is empty.
func (d *Detector) ResolveRange(fromYear, toYear int) ([]FileRef, error) {
	if fromYear > toYear {
		return nil, fmt.Errorf("layout: year range %d..%d is inverted", fromYear, toYear)
	}
	var refs []FileRef
	var tried []string
	for y := fromYear; y <= toYear; y++ {
		got, err := d.Resolve(Period{Year: y})
		if err != nil {
			var nf *NotFoundError
			if errors.As(err, &nf) {
				tried = append(tried, nf.Tried...)
				continue
			}
			return nil, err
		}
		refs = append(refs, got...)
	}
	if len(refs) == 0 {
		return nil, &NotFoundError{Period: Period{Year: fromYear}, Tried: tried}
	}
	return refs, nil
}
