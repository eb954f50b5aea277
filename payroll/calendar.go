package payroll

import "time"

// MonthEnd returns the last day of the one-month rolling window that starts
// at anchor: the day before the same day-of-month in the following month.
// When the following month is too short, the result clips to its last day.
//
//	2024-02-01 -> 2024-02-29
//	2024-02-06 -> 2024-03-05
//	2024-01-31 -> 2024-02-29
//	2023-01-31 -> 2023-02-28
func MonthEnd(anchor Date) (Date, error) {
	if anchor.IsZero() {
		return Date{}, &ComputationError{Op: "MonthEnd", Input: anchor, Reason: "zero date"}
	}
	if anchor.Day() == 1 {
		return EndOfMonth(anchor.Year(), anchor.Month()), nil
	}

	next := StartOfMonth(anchor.Year(), anchor.Month()).AddMonths(1)
	day := anchor.Day() - 1
	if last := DaysInMonth(next.Year(), next.Month()); day > last {
		day = last
	}
	return NewDate(next.Year(), next.Month(), day), nil
}

// AdjustCheckDate moves a disbursement date that lands on a weekend back to
// the preceding Friday. Weekdays are returned unchanged.
func AdjustCheckDate(raw Date) (Date, error) {
	if raw.IsZero() {
		return Date{}, &ComputationError{Op: "AdjustCheckDate", Input: raw, Reason: "zero date"}
	}
	switch raw.Weekday() {
	case time.Saturday:
		return raw.AddDays(-1), nil
	case time.Sunday:
		return raw.AddDays(-2), nil
	default:
		return raw, nil
	}
}
