/*
Package payroll provides the payroll cycle date engine.

PURPOSE:
  Given a recurring payroll configuration and its current pay period, the
  engine computes the next period's boundaries and rolls the configuration
  forward, one period at a time, until it is caught up with today.

KEY CONCEPTS IN THIS FILE (types.go):
  - ConfigID / PeriodID: Type-safe identifiers
  - CycleType: Weekly, BiWeekly, SemiMonthly, Monthly, Custom (ids 1-5)
  - CycleConfig: One recurring payroll schedule and its current period
  - Period: An immutable generated record, appended per advancement

DESIGN PRINCIPLES:
  1. Immutability: PeriodState is a value; advancing produces a new one
  2. Calendar dates only: Date never carries a time-of-day
  3. Append-only periods: generated periods are never updated by the engine
  4. Explicit failure: unknown cycle ids and incomplete semi-monthly configs
     are rejected, never silently skipped

SEE ALSO:
  - calendar.go: MonthEnd and AdjustCheckDate
  - cycle.go: Advance (next period per cycle type)
  - generator.go: The bounded catch-up loop
*/
package payroll

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ConfigID string
type PeriodID string

// =============================================================================
// CYCLE TYPE
// =============================================================================

// CycleType is the recurrence pattern of a payroll schedule.
// Numeric values are persisted and must not change.
type CycleType int

const (
	CycleWeekly      CycleType = 1
	CycleBiWeekly    CycleType = 2
	CycleSemiMonthly CycleType = 3
	CycleMonthly     CycleType = 4
	// CycleCustom is a fixed-length span advanced exactly like weekly.
	CycleCustom CycleType = 5
)

var cycleNames = map[CycleType]string{
	CycleWeekly:      "weekly",
	CycleBiWeekly:    "bi_weekly",
	CycleSemiMonthly: "semi_monthly",
	CycleMonthly:     "monthly",
	CycleCustom:      "custom",
}

func (c CycleType) Valid() bool {
	_, ok := cycleNames[c]
	return ok
}

func (c CycleType) String() string {
	if name, ok := cycleNames[c]; ok {
		return name
	}
	return fmt.Sprintf("cycle(%d)", int(c))
}

// ParseCycleType accepts either the name ("semi_monthly") or the numeric id ("3").
func ParseCycleType(s string) (CycleType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for c, name := range cycleNames {
		if name == s || fmt.Sprint(int(c)) == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownCycleType, s)
}

// =============================================================================
// CYCLE CONFIG
// =============================================================================

// CycleConfig is one recurring payroll schedule.
//
// INVARIANTS:
//   - Current.To >= Current.From
//   - SecondHalf is nil unless Cycle is semi-monthly
//   - For semi-monthly configs, SecondHalf (when set) starts the day after Current.To
//   - Version increases by one on every successful store update
type CycleConfig struct {
	ID      ConfigID
	Name    string
	Cycle   CycleType
	Current PeriodState

	// SecondHalf is the pre-computed half-month window that follows Current.
	// Only semi-monthly configs use it.
	SecondHalf *PeriodState

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks the shape of a config before it is stored.
func (c CycleConfig) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("%w: empty config id", ErrInvalidConfig)
	}
	if !c.Cycle.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownCycleType, int(c.Cycle))
	}
	if err := c.Current.Validate(); err != nil {
		return fmt.Errorf("current period: %w", err)
	}
	if c.SecondHalf == nil {
		return nil
	}
	if c.Cycle != CycleSemiMonthly {
		return &UnsupportedCycleStateError{
			ConfigID: c.ID,
			Cycle:    c.Cycle,
			Reason:   "second half is only used by semi-monthly cycles",
		}
	}
	if err := c.SecondHalf.Validate(); err != nil {
		return fmt.Errorf("second half: %w", err)
	}
	if !c.SecondHalf.From.Equal(c.Current.To.AddDays(1)) {
		return &UnsupportedCycleStateError{
			ConfigID: c.ID,
			Cycle:    c.Cycle,
			Reason:   fmt.Sprintf("second half starts %s, expected %s", c.SecondHalf.From, c.Current.To.AddDays(1)),
		}
	}
	return nil
}

// Clone returns a deep copy (SecondHalf is a pointer).
func (c CycleConfig) Clone() CycleConfig {
	if c.SecondHalf != nil {
		second := *c.SecondHalf
		c.SecondHalf = &second
	}
	return c
}

// =============================================================================
// GENERATED PERIOD
// =============================================================================

type PeriodStatus string

const (
	StatusYetToGenerate PeriodStatus = "yet_to_generate"
	StatusDrafted       PeriodStatus = "drafted"
	StatusSubmitted     PeriodStatus = "submitted"
	StatusSkipped       PeriodStatus = "skipped"
)

// Period is appended once per advancement and never mutated by the engine.
type Period struct {
	ID        PeriodID
	ConfigID  ConfigID
	From      Date
	To        Date
	Check     Date
	Status    PeriodStatus
	CreatedAt time.Time
}
