package payroll

import "fmt"

// =============================================================================
// CYCLE ADVANCER - Computes the period that follows a config's current one
// =============================================================================

// Advancement is the outcome of advancing a config by one period.
type Advancement struct {
	// Finalized is the period being closed out (the config's old Current).
	Finalized PeriodState

	// Next becomes the config's new Current.
	Next PeriodState

	// NextSecondHalf is the new pre-computed half for semi-monthly configs, nil otherwise.
	NextSecondHalf *PeriodState
}

// Apply returns cfg with its current period (and second half) replaced.
// cfg itself is not modified.
func (a Advancement) Apply(cfg CycleConfig) CycleConfig {
	out := cfg.Clone()
	out.Current = a.Next
	if a.NextSecondHalf != nil {
		second := *a.NextSecondHalf
		out.SecondHalf = &second
	}
	return out
}

// Advance computes the next period for cfg according to its cycle type.
//
// The lag between a period's end and its actual check date (raise days) is
// kept constant for span-based cycles. Month-based cycles move the actual
// check date forward by one rolling month instead.
func Advance(cfg CycleConfig) (Advancement, error) {
	current := cfg.Current
	if err := current.Validate(); err != nil {
		return Advancement{}, fmt.Errorf("advance %q: %w", cfg.ID, err)
	}

	var (
		adv Advancement
		err error
	)
	switch cfg.Cycle {
	case CycleWeekly, CycleBiWeekly, CycleCustom:
		adv, err = advanceSpan(current)
	case CycleMonthly:
		adv, err = advanceMonthly(current)
	case CycleSemiMonthly:
		adv, err = advanceSemiMonthly(cfg)
	default:
		return Advancement{}, fmt.Errorf("advance %q: %w: %d", cfg.ID, ErrUnknownCycleType, int(cfg.Cycle))
	}
	if err != nil {
		return Advancement{}, fmt.Errorf("advance %q: %w", cfg.ID, err)
	}
	adv.Finalized = current
	return adv, nil
}

// advanceSpan keeps the period length and the raise days unchanged.
func advanceSpan(current PeriodState) (Advancement, error) {
	span := current.Span()
	next := PeriodState{
		From: current.To.AddDays(1),
		To:   current.To.AddDays(span + 1),
	}
	next, err := next.withCheck(next.To.AddDays(current.RaiseDays()))
	if err != nil {
		return Advancement{}, err
	}
	return Advancement{Next: next}, nil
}

func advanceMonthly(current PeriodState) (Advancement, error) {
	next, err := nextMonthWindow(current.To.AddDays(1), current.ActualCheck)
	if err != nil {
		return Advancement{}, err
	}
	return Advancement{Next: next}, nil
}

// advanceSemiMonthly promotes the second half to current and computes a new
// second half after it.
func advanceSemiMonthly(cfg CycleConfig) (Advancement, error) {
	if cfg.SecondHalf == nil {
		return Advancement{}, &UnsupportedCycleStateError{
			ConfigID: cfg.ID,
			Cycle:    cfg.Cycle,
			Reason:   "second-half window is not populated",
		}
	}
	promoted := *cfg.SecondHalf
	if err := promoted.Validate(); err != nil {
		return Advancement{}, fmt.Errorf("second half: %w", err)
	}

	second, err := nextMonthWindow(promoted.To.AddDays(1), cfg.Current.ActualCheck)
	if err != nil {
		return Advancement{}, err
	}
	return Advancement{Next: promoted, NextSecondHalf: &second}, nil
}

// nextMonthWindow builds a period starting at from and ending one rolling
// month later, paid one rolling month after prevActualCheck.
func nextMonthWindow(from, prevActualCheck Date) (PeriodState, error) {
	to, err := MonthEnd(from)
	if err != nil {
		return PeriodState{}, err
	}
	actual, err := MonthEnd(prevActualCheck.AddDays(1))
	if err != nil {
		return PeriodState{}, err
	}
	return PeriodState{From: from, To: to}.withCheck(actual)
}

// =============================================================================
// PREVIEW - Pure projection, nothing is persisted
// =============================================================================

// MaxPreviewPeriods bounds Preview.
const MaxPreviewPeriods = 52

// Preview returns the next n periods cfg would roll through.
func Preview(cfg CycleConfig, n int) ([]PeriodState, error) {
	if n <= 0 {
		return nil, nil
	}
	if n > MaxPreviewPeriods {
		n = MaxPreviewPeriods
	}

	periods := make([]PeriodState, 0, n)
	for i := 0; i < n; i++ {
		adv, err := Advance(cfg)
		if err != nil {
			return periods, err
		}
		periods = append(periods, adv.Next)
		cfg = adv.Apply(cfg)
	}
	return periods, nil
}
