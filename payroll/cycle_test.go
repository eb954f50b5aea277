package payroll_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func state(from, to, actual string) payroll.PeriodState {
	a := date(actual)
	check, err := payroll.AdjustCheckDate(a)
	if err != nil {
		panic(err)
	}
	return payroll.PeriodState{From: date(from), To: date(to), ActualCheck: a, Check: check}
}

func weeklyConfig() payroll.CycleConfig {
	return payroll.CycleConfig{
		ID:      "weekly-1",
		Name:    "Weekly",
		Cycle:   payroll.CycleWeekly,
		Current: state("2024-01-01", "2024-01-07", "2024-01-09"),
	}
}

func monthlyConfig() payroll.CycleConfig {
	return payroll.CycleConfig{
		ID:      "monthly-1",
		Name:    "Monthly",
		Cycle:   payroll.CycleMonthly,
		Current: state("2024-01-01", "2024-01-31", "2024-02-05"),
	}
}

func semiMonthlyConfig() payroll.CycleConfig {
	second := state("2024-01-16", "2024-01-31", "2024-02-05")
	return payroll.CycleConfig{
		ID:         "semi-1",
		Name:       "Semi-monthly",
		Cycle:      payroll.CycleSemiMonthly,
		Current:    state("2024-01-01", "2024-01-15", "2024-01-19"),
		SecondHalf: &second,
	}
}

// =============================================================================
// SPAN-BASED CYCLES
// =============================================================================

func TestAdvance_WeeklyScenario(t *testing.T) {
	// GIVEN: Week 2024-01-01..07 paid Tuesday 2024-01-09
	// WHEN: Advancing once
	// THEN: Next week 2024-01-08..14 paid Tuesday 2024-01-16, no weekend shift

	adv, err := payroll.Advance(weeklyConfig())
	require.NoError(t, err)

	assert.Equal(t, "2024-01-08", adv.Next.From.String())
	assert.Equal(t, "2024-01-14", adv.Next.To.String())
	assert.Equal(t, "2024-01-16", adv.Next.ActualCheck.String())
	assert.Equal(t, "2024-01-16", adv.Next.Check.String())
	assert.Nil(t, adv.NextSecondHalf)
	assert.Equal(t, weeklyConfig().Current, adv.Finalized)
}

func TestAdvance_SpanPreservation(t *testing.T) {
	// GIVEN: Weekly, bi-weekly and custom configs over many start dates
	// WHEN: Advancing
	// THEN: The period length and raise days never change

	for _, cycle := range []payroll.CycleType{payroll.CycleWeekly, payroll.CycleBiWeekly, payroll.CycleCustom} {
		span := 6
		if cycle == payroll.CycleBiWeekly {
			span = 13
		}
		for from := date("2023-12-01"); from.Before(date("2024-04-01")); from = from.AddDays(3) {
			to := from.AddDays(span)
			cfg := payroll.CycleConfig{
				ID:      "span",
				Cycle:   cycle,
				Current: state(from.String(), to.String(), to.AddDays(4).String()),
			}

			adv, err := payroll.Advance(cfg)
			require.NoError(t, err)
			assert.Equal(t, cfg.Current.Span(), adv.Next.Span(), "%s from %s", cycle, from)
			assert.Equal(t, cfg.Current.RaiseDays(), adv.Next.RaiseDays(), "%s from %s", cycle, from)
			assert.Equal(t, cfg.Current.To.AddDays(1), adv.Next.From)
		}
	}
}

func TestAdvance_WeekendShiftedCheck(t *testing.T) {
	// GIVEN: A week whose next actual check lands on Saturday 2024-03-16
	// WHEN: Advancing
	// THEN: The check date moves back to Friday 2024-03-15

	cfg := payroll.CycleConfig{
		ID:      "weekly-sat",
		Cycle:   payroll.CycleWeekly,
		Current: state("2024-03-03", "2024-03-09", "2024-03-09"),
	}

	adv, err := payroll.Advance(cfg)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-16", adv.Next.ActualCheck.String())
	assert.Equal(t, "2024-03-15", adv.Next.Check.String())
}

// =============================================================================
// MONTH-BASED CYCLES
// =============================================================================

func TestAdvance_MonthlyAcrossLeapFebruary(t *testing.T) {
	// GIVEN: January 2024 paid Monday 2024-02-05
	// WHEN: Advancing once
	// THEN: February 2024-02-01..29, actual check resolve(2024-02-06) = 2024-03-05 (Tuesday)

	adv, err := payroll.Advance(monthlyConfig())
	require.NoError(t, err)

	assert.Equal(t, "2024-02-01", adv.Next.From.String())
	assert.Equal(t, "2024-02-29", adv.Next.To.String())
	assert.Equal(t, "2024-03-05", adv.Next.ActualCheck.String())
	assert.Equal(t, "2024-03-05", adv.Next.Check.String())
}

func TestAdvance_SemiMonthlyPromotesSecondHalf(t *testing.T) {
	// GIVEN: First half of January current, second half pre-computed
	// WHEN: Advancing
	// THEN: The second half becomes current and a new second half follows it

	cfg := semiMonthlyConfig()
	adv, err := payroll.Advance(cfg)
	require.NoError(t, err)

	assert.Equal(t, *cfg.SecondHalf, adv.Next)
	require.NotNil(t, adv.NextSecondHalf)
	assert.Equal(t, "2024-02-01", adv.NextSecondHalf.From.String())
	assert.Equal(t, "2024-02-29", adv.NextSecondHalf.To.String())
	assert.Equal(t, "2024-02-19", adv.NextSecondHalf.ActualCheck.String())
	assert.Equal(t, "2024-02-19", adv.NextSecondHalf.Check.String())

	next := adv.Apply(cfg)
	assert.Equal(t, adv.Next, next.Current)
	assert.Equal(t, *adv.NextSecondHalf, *next.SecondHalf)
	assert.NoError(t, next.Validate())
	assert.Equal(t, "2024-01-15", cfg.Current.To.String(), "Apply must not modify its input")
}

func TestAdvance_SemiMonthlyWithoutSecondHalf(t *testing.T) {
	// GIVEN: A semi-monthly config missing its second half
	// WHEN: Advancing
	// THEN: UnsupportedCycleStateError, not a silent no-op

	cfg := semiMonthlyConfig()
	cfg.SecondHalf = nil

	_, err := payroll.Advance(cfg)

	var stateErr *payroll.UnsupportedCycleStateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, payroll.ConfigID("semi-1"), stateErr.ConfigID)
	assert.ErrorIs(t, err, payroll.ErrUnsupportedCycleState)
	assert.True(t, payroll.IsClientError(err))
}

func TestAdvance_SemiMonthlyWeekendSecondHalfCheck(t *testing.T) {
	// GIVEN: A second half whose check date sits on a Saturday
	// WHEN: Advancing would promote it to current
	// THEN: ErrInvalidPeriod; a weekend check never reaches a stored period

	cfg := semiMonthlyConfig()
	cfg.SecondHalf.ActualCheck = date("2024-02-03")
	cfg.SecondHalf.Check = date("2024-02-03")

	_, err := payroll.Advance(cfg)
	assert.ErrorIs(t, err, payroll.ErrInvalidPeriod)
}

func TestAdvance_UnknownCycleType(t *testing.T) {
	for _, c := range []payroll.CycleType{0, 6, 42} {
		cfg := weeklyConfig()
		cfg.Cycle = c

		_, err := payroll.Advance(cfg)
		assert.ErrorIs(t, err, payroll.ErrUnknownCycleType, "cycle %d", c)
	}
}

func TestAdvance_InvertedPeriod(t *testing.T) {
	cfg := weeklyConfig()
	cfg.Current.To = date("2023-12-25")

	_, err := payroll.Advance(cfg)
	assert.ErrorIs(t, err, payroll.ErrInvalidPeriod)
}

// =============================================================================
// CONFIG
// =============================================================================

func TestCycleConfig_Validate(t *testing.T) {
	assert.NoError(t, weeklyConfig().Validate())
	assert.NoError(t, semiMonthlyConfig().Validate())

	noID := weeklyConfig()
	noID.ID = ""
	assert.ErrorIs(t, noID.Validate(), payroll.ErrInvalidConfig)

	gap := semiMonthlyConfig()
	gap.SecondHalf.From = date("2024-01-17")
	assert.ErrorIs(t, gap.Validate(), payroll.ErrUnsupportedCycleState)

	weeklySecond := weeklyConfig()
	second := state("2024-01-08", "2024-01-14", "2024-01-16")
	weeklySecond.SecondHalf = &second
	assert.ErrorIs(t, weeklySecond.Validate(), payroll.ErrUnsupportedCycleState)
}

func TestPeriodState_Validate_Check(t *testing.T) {
	// GIVEN: Periods whose check date is not the adjusted actual check
	// WHEN: Validating
	// THEN: ErrInvalidPeriod

	assert.NoError(t, state("2024-03-04", "2024-03-10", "2024-03-16").Validate())

	weekend := state("2024-03-04", "2024-03-10", "2024-03-16")
	weekend.Check = date("2024-03-16")
	assert.ErrorIs(t, weekend.Validate(), payroll.ErrInvalidPeriod)

	early := state("2024-01-01", "2024-01-07", "2024-01-09")
	early.Check = date("2024-01-08")
	assert.ErrorIs(t, early.Validate(), payroll.ErrInvalidPeriod)
}

func TestParseCycleType(t *testing.T) {
	c, err := payroll.ParseCycleType("semi_monthly")
	require.NoError(t, err)
	assert.Equal(t, payroll.CycleSemiMonthly, c)

	c, err = payroll.ParseCycleType("4")
	require.NoError(t, err)
	assert.Equal(t, payroll.CycleMonthly, c)

	_, err = payroll.ParseCycleType("fortnightly")
	assert.ErrorIs(t, err, payroll.ErrUnknownCycleType)
}

// =============================================================================
// PREVIEW
// =============================================================================

func TestPreview_Monthly(t *testing.T) {
	// GIVEN: A monthly config for January 2024
	// WHEN: Previewing three periods
	// THEN: February, March and April follow each other with no gaps

	periods, err := payroll.Preview(monthlyConfig(), 3)
	require.NoError(t, err)
	require.Len(t, periods, 3)

	assert.Equal(t, "2024-02-01", periods[0].From.String())
	assert.Equal(t, "2024-02-29", periods[0].To.String())
	for i := 1; i < len(periods); i++ {
		assert.Equal(t, periods[i-1].To.AddDays(1), periods[i].From)
		assert.False(t, periods[i].Check.IsWeekend())
	}
	assert.Equal(t, "2024-03-31", periods[1].To.String())
	assert.Equal(t, "2024-04-30", periods[2].To.String())
}

func TestPreview_Capped(t *testing.T) {
	periods, err := payroll.Preview(weeklyConfig(), 1000)
	require.NoError(t, err)
	assert.Len(t, periods, payroll.MaxPreviewPeriods)

	none, err := payroll.Preview(weeklyConfig(), 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}
