// Package dates parses the partial dates that show up in obituaries
// ("1928", "January 1928", "Jan. 12th, 1928", "1928-01-12") and compares
// them at a common precision.
package dates

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Precision is how much of a date is known.
type Precision int

const (
	PrecisionNone Precision = iota
	PrecisionYear
	PrecisionMonth
	PrecisionDay
)

func (p Precision) String() string {
	switch p {
	case PrecisionYear:
		return "year"
	case PrecisionMonth:
		return "month"
	case PrecisionDay:
		return "day"
	}
	return "none"
}

// PartialDate is a date known to some precision. Unknown parts are zero.
type PartialDate struct {
	Year      int
	Month     time.Month
	Day       int
	Precision Precision
}

var months = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may":  time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sep": time.September, "sept": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

var (
	ordinalRe = regexp.MustCompile(`(?i)\b(\d{1,2})(st|nd|rd|th)\b`)
	isoRe     = regexp.MustCompile(`^(\d{4})-(\d{1,2})(?:-(\d{1,2}))?$`)
	numericRe = regexp.MustCompile(`^(\d{1,2})[/.-](\d{1,2})[/.-](\d{4})$`)
	yearRe    = regexp.MustCompile(`^(\d{4})$`)
)

// Parse reads a partial date. The second return is false when nothing
// date-like could be read.
func Parse(s string) (PartialDate, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return PartialDate{}, false
	}
	if m := isoRe.FindStringSubmatch(s); m != nil {
		return build(m[1], m[2], m[3])
	}
	s = ordinalRe.ReplaceAllString(s, "$1")
	s = strings.NewReplacer(",", " ", ".", " ").Replace(s)
	s = strings.Join(strings.Fields(s), " ")

	if m := yearRe.FindStringSubmatch(s); m != nil {
		return build(m[1], "", "")
	}

	// Numeric dates: month first, day first only when the month slot cannot be a month.
	if m := numericRe.FindStringSubmatch(strings.ReplaceAll(s, " ", "/")); m != nil {
		a, _ := strconv.Atoi(m[1])
		b, _ := strconv.Atoi(m[2])
		if a > 12 && b <= 12 {
			return build(m[3], m[2], m[1])
		}
		return build(m[3], m[1], m[2])
	}

	parts := strings.Fields(strings.ToLower(s))
	var (
		year, day int
		month     time.Month
	)
	for _, p := range parts {
		if mo, ok := months[p]; ok && month == 0 {
			month = mo
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return PartialDate{}, false
		}
		switch {
		case len(p) == 4 && year == 0:
			year = n
		case len(p) <= 2 && day == 0:
			day = n
		default:
			return PartialDate{}, false
		}
	}
	if year == 0 {
		return PartialDate{}, false
	}
	d := PartialDate{Year: year, Month: month, Day: day}
	switch {
	case month != 0 && day != 0:
		d.Precision = PrecisionDay
	case month != 0:
		d.Precision = PrecisionMonth
		d.Day = 0
	default:
		d.Precision = PrecisionYear
		d.Day = 0
	}
	if !d.valid() {
		return PartialDate{}, false
	}
	return d, true
}

func build(y, m, d string) (PartialDate, bool) {
	out := PartialDate{Precision: PrecisionYear}
	out.Year, _ = strconv.Atoi(y)
	if m != "" {
		mo, _ := strconv.Atoi(m)
		out.Month = time.Month(mo)
		out.Precision = PrecisionMonth
	}
	if d != "" {
		out.Day, _ = strconv.Atoi(d)
		out.Precision = PrecisionDay
	}
	if !out.valid() {
		return PartialDate{}, false
	}
	return out, true
}

func (d PartialDate) valid() bool {
	if d.Year < 1 || d.Year > 9999 {
		return false
	}
	if d.Precision >= PrecisionMonth && (d.Month < time.January || d.Month > time.December) {
		return false
	}
	if d.Precision == PrecisionDay {
		t := time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
		return d.Day >= 1 && t.Day() == d.Day
	}
	return true
}

// String renders the date in the stored form: "12 Jan 1928", "Jan 1928" or "1928".
func (d PartialDate) String() string {
	switch d.Precision {
	case PrecisionDay:
		return fmt.Sprintf("%02d %s %d", d.Day, d.Month.String()[:3], d.Year)
	case PrecisionMonth:
		return fmt.Sprintf("%s %d", d.Month.String()[:3], d.Year)
	case PrecisionYear:
		return strconv.Itoa(d.Year)
	}
	return ""
}

// Truncate drops the parts finer than p.
func (d PartialDate) Truncate(p Precision) PartialDate {
	if p >= d.Precision {
		return d
	}
	out := PartialDate{Year: d.Year, Precision: p}
	if p >= PrecisionMonth {
		out.Month = d.Month
	}
	return out
}

// EqualAtCommonPrecision compares two dates at the coarser of their precisions.
func EqualAtCommonPrecision(a, b PartialDate) bool {
	p := a.Precision
	if b.Precision < p {
		p = b.Precision
	}
	if p == PrecisionNone {
		return false
	}
	return a.Truncate(p) == b.Truncate(p)
}

// Normalize returns the stored form of s, or s trimmed when it does not parse.
func Normalize(s string) string {
	if d, ok := Parse(s); ok {
		return d.String()
	}
	return strings.TrimSpace(s)
}

// Year returns the year of s, or 0.
func Year(s string) int {
	if d, ok := Parse(s); ok {
		return d.Year
	}
	return 0
}
