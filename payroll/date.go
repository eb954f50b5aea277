package payroll

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jinzhu/now"
)

// =============================================================================
// DATE - Calendar date at day granularity (no time-of-day, always UTC)
// =============================================================================

// DateLayout is the wire and storage format for dates.
const DateLayout = "2006-01-02"

// Date is a calendar date. All payroll comparisons and arithmetic are
// date-based, never timestamp-based, so the wrapped time is always midnight UTC.
// The zero Date means "no date"; 0001-01-01 is a valid date distinct from it.
type Date struct {
	t  time.Time
	ok bool
}

// Constructors
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC), ok: true}
}

// DateOf drops the time-of-day of t, keeping the calendar date in t's location.
func DateOf(t time.Time) Date {
	if t.IsZero() {
		return Date{}
	}
	return NewDate(t.Year(), t.Month(), t.Day())
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return Date{t: t, ok: true}, nil
}

// MustParseDate is ParseDate for literals in tests and presets.
func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Comparison
func (d Date) Before(other Date) bool        { return d.t.Before(other.t) }
func (d Date) Equal(other Date) bool         { return d.ok == other.ok && d.t.Equal(other.t) }
func (d Date) After(other Date) bool         { return d.t.After(other.t) }
func (d Date) BeforeOrEqual(other Date) bool { return !d.After(other) }
func (d Date) AfterOrEqual(other Date) bool  { return !d.Before(other) }

// Arithmetic
func (d Date) AddDays(n int) Date   { return Date{t: d.t.AddDate(0, 0, n), ok: d.ok} }
func (d Date) AddMonths(n int) Date { return Date{t: d.t.AddDate(0, n, 0), ok: d.ok} }

// Properties
func (d Date) Year() int             { return d.t.Year() }
func (d Date) Month() time.Month     { return d.t.Month() }
func (d Date) Day() int              { return d.t.Day() }
func (d Date) Weekday() time.Weekday { return d.t.Weekday() }
func (d Date) IsWeekend() bool       { wd := d.Weekday(); return wd == time.Saturday || wd == time.Sunday }
func (d Date) IsZero() bool          { return !d.ok }
func (d Date) Time() time.Time       { return d.t }

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// =============================================================================
// CALENDAR UTILITIES
// =============================================================================

// DaysBetween returns to - from in whole days. It works on Unix seconds
// because time.Duration saturates for spans over ~292 years.
func DaysBetween(from, to Date) int {
	return int((to.t.Unix() - from.t.Unix()) / secondsPerDay)
}

const secondsPerDay = 24 * 60 * 60

func StartOfMonth(year int, month time.Month) Date {
	return calendarDate(now.With(time.Date(year, month, 1, 12, 0, 0, 0, time.UTC)).BeginningOfMonth())
}

func EndOfMonth(year int, month time.Month) Date {
	return calendarDate(now.With(time.Date(year, month, 1, 12, 0, 0, 0, time.UTC)).EndOfMonth())
}

// calendarDate is DateOf without the zero-time check, so January of year 1
// still resolves.
func calendarDate(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// IsLeapYear applies the Gregorian rule.
func IsLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

func DaysInMonth(year int, month time.Month) int {
	return EndOfMonth(year, month).Day()
}
