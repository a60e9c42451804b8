package schema

import (
	"strconv"
	"strings"
	"time"
)

// Timestamp layouts observed across the raw archives. Legacy quarterly
// exports use bare "2006-01-02 15:04:05"; some early quarters carried
// US-style "1/2/2006 15:04"; modern monthly exports added fractional
// seconds in 2024.
var timeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999",
	time.RFC3339,
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"2006-01-02",
}

// ParseTime coerces a textual timestamp into time.Time. The bool result is
// false when no known layout matches; callers mark the field missing.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, l := range timeLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// NormalizeDecimal rewrites a numeric string with locale-dependent
// separators into canonical dot-decimal form:
//
//	"1,783.0"  -> "1783.0"   (US thousands)
//	"1 783,0"  -> "1783.0"   (EU thousands + comma decimal)
//	"1783,0"   -> "1783.0"   (comma decimal)
//
// It never inspects the locale itself; the shape of the string decides.
func NormalizeDecimal(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, " ", "")

	hasComma := strings.Contains(s, ",")
	hasDot := strings.Contains(s, ".")
	switch {
	case hasComma && hasDot:
		// Whichever separator comes last is the decimal point.
		if strings.LastIndexByte(s, ',') > strings.LastIndexByte(s, '.') {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case hasComma:
		// A single comma with 1-2 trailing digits is a decimal comma;
		// otherwise commas are thousands separators.
		i := strings.LastIndexByte(s, ',')
		if strings.Count(s, ",") == 1 && len(s)-i-1 <= 2 {
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	}
	return s
}

// ParseFloat coerces a numeric string, tolerating locale separators.
func ParseFloat(s string) (float64, bool) {
	s = NormalizeDecimal(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// ParseInt coerces an integer-valued string. Legacy duration columns are
// exported as "1,783.0"; integral floats are accepted, true fractions are
// not.
func ParseInt(s string) (int64, bool) {
	s = NormalizeDecimal(s)
	if s == "" {
		return 0, false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int64(f)) {
		return 0, false
	}
	return int64(f), true
}

// userTypeMap folds the legacy user categories onto the modern ones.
// This is a value translation, not a default: unknown inputs pass through
// lowercased so the profiler can surface them as distinct values.
var userTypeMap = map[string]string{
	"subscriber": "member",
	"customer":   "casual",
	"member":     "member",
	"casual":     "casual",
}

// MapUserType returns the canonical member_casual value for a raw
// user-type string.
func MapUserType(s string) string {
	lc := strings.ToLower(strings.TrimSpace(s))
	if mapped, ok := userTypeMap[lc]; ok {
		return mapped
	}
	return lc
}
