package layout

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// fakeFS is a statFn seam backed by a set of existing paths.
type fakeFS map[string]bool

func (f fakeFS) stat(path string) (os.FileInfo, error) {
	if f[filepath.ToSlash(path)] {
		return fakeInfo{}, nil
	}
	return nil, fs.ErrNotExist
}

type fakeInfo struct{ os.FileInfo }

func (fakeInfo) IsDir() bool { return false }

func newTestDetector(existing ...string) *Detector {
	fsys := fakeFS{}
	for _, p := range existing {
		fsys[p] = true
	}
	d := NewDetector("/data", "divvy", 0)
	d.statFn = fsys.stat
	return d
}

func TestPeriodValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		p       Period
		wantErr bool
	}{
		{"whole year", Period{Year: 2021}, false},
		{"quarter", Period{Year: 2019, Quarter: 2}, false},
		{"month", Period{Year: 2021, Month: 7}, false},
		{"year out of range", Period{Year: 1999}, true},
		{"quarter and month both set", Period{Year: 2021, Quarter: 1, Month: 1}, true},
		{"quarter too big", Period{Year: 2021, Quarter: 5}, true},
		{"month too big", Period{Year: 2021, Month: 13}, true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.p.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate(%+v) error = %v, wantErr %v", tt.p, err, tt.wantErr)
			}
		})
	}
}

func TestResolve_LegacyQuarter(t *testing.T) {
	t.Parallel()

	d := newTestDetector("/data/raw/2019/divvy_2019_Q2.csv")

	refs, err := d.Resolve(Period{Year: 2019, Quarter: 2})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(refs) != 1 {
		t.Fatalf("len(refs) = %d, want 1", len(refs))
	}
	if refs[0].Layout != Legacy || refs[0].Quarter != 2 {
		t.Fatalf("ref = %+v, want legacy Q2", refs[0])
	}
	if !strings.HasSuffix(filepath.ToSlash(refs[0].Path), "raw/2019/divvy_2019_Q2.csv") {
		t.Fatalf("unexpected path %q", refs[0].Path)
	}
}

// A quarter after the cutover resolves to its three monthly files, and only
// the files actually on disk are returned.
func TestResolve_ModernQuarter(t *testing.T) {
	t.Parallel()

	d := newTestDetector(
		"/data/raw/2021/202104-divvy-tripdata.csv",
		"/data/raw/2021/202105-divvy-tripdata.csv",
		"/data/raw/2021/202106-divvy-tripdata.csv",
	)

	refs, err := d.Resolve(Period{Year: 2021, Quarter: 2})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(refs) != 3 {
		t.Fatalf("len(refs) = %d, want 3", len(refs))
	}
	for i, want := range []int{4, 5, 6} {
		if refs[i].Month != want || refs[i].Layout != Modern {
			t.Fatalf("refs[%d] = %+v, want modern month %d", i, refs[i], want)
		}
	}
}

func TestResolve_WholeYearCounts(t *testing.T) {
	t.Parallel()

	var legacyFiles, modernFiles []string
	for q := 1; q <= 4; q++ {
		legacyFiles = append(legacyFiles, fmt.Sprintf("/data/raw/2019/divvy_2019_Q%d.csv", q))
	}
	for m := 1; m <= 12; m++ {
		modernFiles = append(modernFiles, fmt.Sprintf("/data/raw/2021/2021%02d-divvy-tripdata.csv", m))
	}
	d := newTestDetector(append(legacyFiles, modernFiles...)...)

	legacy, err := d.Resolve(Period{Year: 2019})
	if err != nil {
		t.Fatalf("Resolve(2019): %v", err)
	}
	if len(legacy) != 4 {
		t.Fatalf("legacy year len = %d, want 4", len(legacy))
	}

	modern, err := d.Resolve(Period{Year: 2021})
	if err != nil {
		t.Fatalf("Resolve(2021): %v", err)
	}
	if len(modern) != 12 {
		t.Fatalf("modern year len = %d, want 12", len(modern))
	}
	for i := 1; i < len(modern); i++ {
		if modern[i].Month <= modern[i-1].Month {
			t.Fatalf("months out of order: %+v", modern)
		}
	}
}

func TestResolve_MissingFilesAreSkipped(t *testing.T) {
	t.Parallel()

	// Only two of twelve months present.
	d := newTestDetector(
		"/data/raw/2021/202101-divvy-tripdata.csv",
		"/data/raw/2021/202111-divvy-tripdata.csv",
	)

	refs, err := d.Resolve(Period{Year: 2021})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(refs) != 2 || refs[0].Month != 1 || refs[1].Month != 11 {
		t.Fatalf("refs = %+v, want months 1 and 11", refs)
	}
}

func TestResolve_NothingFound(t *testing.T) {
	t.Parallel()

	d := newTestDetector()

	_, err := d.Resolve(Period{Year: 2021, Quarter: 1})
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("err = %v, want *NotFoundError", err)
	}
	if len(nf.Tried) != 3 {
		t.Fatalf("len(Tried) = %d, want 3 attempted monthly paths", len(nf.Tried))
	}
}

// Legacy years only exist at quarter granularity. A month request must not
// silently widen to the quarter; it fails with a hint naming it.
func TestResolve_MonthOnLegacyYear(t *testing.T) {
	t.Parallel()

	d := newTestDetector("/data/raw/2019/divvy_2019_Q3.csv")

	_, err := d.Resolve(Period{Year: 2019, Month: 8})
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("err = %v, want *NotFoundError", err)
	}
	if !strings.Contains(nf.Hint, "2019 Q3") {
		t.Fatalf("Hint = %q, want enclosing quarter 2019 Q3", nf.Hint)
	}
	if len(nf.Tried) != 1 || !strings.Contains(nf.Tried[0], "divvy_2019_Q3.csv") {
		t.Fatalf("Tried = %v, want the Q3 legacy path", nf.Tried)
	}
}

func TestResolve_CutoverIsConfigurable(t *testing.T) {
	t.Parallel()

	d := newTestDetector("/data/raw/2019/201906-divvy-tripdata.csv")
	d.CutoverYear = 2018

	refs, err := d.Resolve(Period{Year: 2019, Month: 6})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(refs) != 1 || refs[0].Layout != Modern {
		t.Fatalf("refs = %+v, want one modern ref", refs)
	}
}

func TestResolveRange(t *testing.T) {
	t.Parallel()

	d := newTestDetector(
		"/data/raw/2019/divvy_2019_Q4.csv",
		"/data/raw/2021/202101-divvy-tripdata.csv",
	)

	// 2020 has no files at all; the range skips it.
	refs, err := d.ResolveRange(2019, 2021)
	if err != nil {
		t.Fatalf("ResolveRange: %v", err)
	}
	if len(refs) != 2 {
		t.Fatalf("len(refs) = %d, want 2", len(refs))
	}
	if refs[0].Layout != Legacy || refs[1].Layout != Modern {
		t.Fatalf("refs = %+v, want legacy then modern", refs)
	}

	if _, err := d.ResolveRange(2021, 2019); err == nil {
		t.Fatal("inverted range must fail")
	}

	var nf *NotFoundError
	if _, err := d.ResolveRange(2022, 2023); !errors.As(err, &nf) {
		t.Fatalf("empty range err = %v, want *NotFoundError", err)
	}
}
