package payroll

import "fmt"

// =============================================================================
// PERIOD STATE - The value threaded through every advancement
// =============================================================================

// PeriodState is one pay period's boundaries and disbursement dates.
//
// Examples:
//   - Weekly:  2024-01-01 .. 2024-01-07, actual check 2024-01-09, check 2024-01-09
//   - Monthly: 2024-02-01 .. 2024-02-29, actual check 2024-03-05, check 2024-03-05
type PeriodState struct {
	From Date
	To   Date

	// ActualCheck is the rule-derived disbursement date.
	ActualCheck Date

	// Check is ActualCheck moved off the weekend.
	Check Date
}

// Validate rejects zero dates, inverted ranges and a Check that is not
// ActualCheck moved off the weekend.
func (p PeriodState) Validate() error {
	if p.From.IsZero() || p.To.IsZero() || p.ActualCheck.IsZero() || p.Check.IsZero() {
		return &ComputationError{Op: "PeriodState.Validate", Input: p.From, Reason: "period has a zero date"}
	}
	if p.To.Before(p.From) {
		return fmt.Errorf("%w: %s", ErrInvalidPeriod, p)
	}
	adjusted, err := AdjustCheckDate(p.ActualCheck)
	if err != nil {
		return err
	}
	if !p.Check.Equal(adjusted) {
		return fmt.Errorf("%w: check %s, expected %s for actual check %s", ErrInvalidPeriod, p.Check, adjusted, p.ActualCheck)
	}
	return nil
}

// Span is To - From in days (6 for a Monday..Sunday week).
func (p PeriodState) Span() int {
	return DaysBetween(p.From, p.To)
}

// RaiseDays is the fixed lag between period end and disbursement.
func (p PeriodState) RaiseDays() int {
	return DaysBetween(p.To, p.ActualCheck)
}

// Contains returns true if d is within [From, To].
func (p PeriodState) Contains(d Date) bool {
	return d.AfterOrEqual(p.From) && d.BeforeOrEqual(p.To)
}

func (p PeriodState) String() string {
	return "[" + p.From.String() + ", " + p.To.String() + "] check " + p.Check.String()
}

// withCheck fills ActualCheck and Check from a raw disbursement date.
func (p PeriodState) withCheck(actual Date) (PeriodState, error) {
	check, err := AdjustCheckDate(actual)
	if err != nil {
		return PeriodState{}, err
	}
	p.ActualCheck = actual
	p.Check = check
	return p, nil
}
