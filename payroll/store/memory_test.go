package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/payroll/store"
)

func testConfig(id string, to string) payroll.CycleConfig {
	toDate := payroll.MustParseDate(to)
	return payroll.CycleConfig{
		ID:    payroll.ConfigID(id),
		Name:  id,
		Cycle: payroll.CycleWeekly,
		Current: payroll.PeriodState{
			From:        toDate.AddDays(-6),
			To:          toDate,
			ActualCheck: toDate.AddDays(2),
			Check:       toDate.AddDays(2),
		},
	}
}

func testPeriod(id, configID, from string) payroll.Period {
	f := payroll.MustParseDate(from)
	return payroll.Period{
		ID:       payroll.PeriodID(id),
		ConfigID: payroll.ConfigID(configID),
		From:     f,
		To:       f.AddDays(6),
		Check:    f.AddDays(8),
		Status:   payroll.StatusYetToGenerate,
	}
}

func TestMemory_UpdateConfig_CompareAndSwap(t *testing.T) {
	// GIVEN: A stored config at version 1
	// WHEN: Updating with the right version, then again with the stale one
	// THEN: The first update bumps to 2; the second is a concurrent modification

	m := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, m.CreateConfig(ctx, testConfig("c1", "2024-01-07")))

	cfg, err := m.GetConfig(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), cfg.Version)

	cfg.Name = "renamed"
	require.NoError(t, m.UpdateConfig(ctx, *cfg, 1))

	err = m.UpdateConfig(ctx, *cfg, 1)
	assert.ErrorIs(t, err, payroll.ErrConcurrentModification)

	got, err := m.GetConfig(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
	assert.Equal(t, "renamed", got.Name)

	err = m.UpdateConfig(ctx, testConfig("nope", "2024-01-07"), 1)
	assert.ErrorIs(t, err, payroll.ErrConfigNotFound)
}

func TestMemory_DuplicateConfigAndPeriod(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()

	require.NoError(t, m.CreateConfig(ctx, testConfig("c1", "2024-01-07")))
	assert.ErrorIs(t, m.CreateConfig(ctx, testConfig("c1", "2024-01-07")), payroll.ErrDuplicateConfig)

	require.NoError(t, m.InsertPeriod(ctx, testPeriod("p1", "c1", "2024-01-01")))
	assert.ErrorIs(t, m.InsertPeriod(ctx, testPeriod("p2", "c1", "2024-01-01")), payroll.ErrDuplicatePeriod)

	// same window under a different config is fine
	assert.NoError(t, m.InsertPeriod(ctx, testPeriod("p3", "c2", "2024-01-01")))
}

func TestMemory_ListPeriodsOrdered(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()

	require.NoError(t, m.InsertPeriod(ctx, testPeriod("p2", "c1", "2024-01-08")))
	require.NoError(t, m.InsertPeriod(ctx, testPeriod("p1", "c1", "2024-01-01")))
	require.NoError(t, m.InsertPeriod(ctx, testPeriod("p3", "c1", "2024-01-15")))

	periods, err := m.ListPeriods(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, periods, 3)
	assert.Equal(t, payroll.PeriodID("p1"), periods[0].ID)
	assert.Equal(t, payroll.PeriodID("p2"), periods[1].ID)
	assert.Equal(t, payroll.PeriodID("p3"), periods[2].ID)
}

func TestMemory_ListDueConfigs(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()

	require.NoError(t, m.CreateConfig(ctx, testConfig("behind", "2024-01-07")))
	require.NoError(t, m.CreateConfig(ctx, testConfig("today", "2024-01-10")))
	require.NoError(t, m.CreateConfig(ctx, testConfig("ahead", "2024-01-14")))

	due, err := m.ListDueConfigs(ctx, payroll.MustParseDate("2024-01-10"))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, payroll.ConfigID("behind"), due[0].ID)

	all, err := m.ListConfigs(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, payroll.ConfigID("ahead"), all[0].ID)
}

func TestMemory_GetConfigReturnsCopy(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()

	cfg := testConfig("c1", "2024-01-15")
	second := cfg.Current
	cfg.SecondHalf = &second
	require.NoError(t, m.CreateConfig(ctx, cfg))

	got, err := m.GetConfig(ctx, "c1")
	require.NoError(t, err)
	got.SecondHalf.To = payroll.MustParseDate("2030-01-01")

	again, err := m.GetConfig(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-15", again.SecondHalf.To.String())
}

func TestTxMemory_RollbackOnError(t *testing.T) {
	// GIVEN: A transaction that updates the config, inserts a period, then fails
	// WHEN: WithTx returns
	// THEN: Neither write is visible

	tm := store.NewTxMemory()
	ctx := context.Background()
	require.NoError(t, tm.CreateConfig(ctx, testConfig("c1", "2024-01-07")))

	boom := errors.New("boom")
	err := tm.WithTx(ctx, func(s payroll.Store) error {
		cfg, err := s.GetConfig(ctx, "c1")
		require.NoError(t, err)
		cfg.Name = "changed"
		require.NoError(t, s.UpdateConfig(ctx, *cfg, cfg.Version))
		require.NoError(t, s.InsertPeriod(ctx, testPeriod("p1", "c1", "2024-01-01")))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	cfg, err := tm.GetConfig(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "c1", cfg.Name)
	assert.Equal(t, int64(1), cfg.Version)

	periods, err := tm.ListPeriods(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, periods)

	// the rolled-back key is free again
	assert.NoError(t, tm.InsertPeriod(ctx, testPeriod("p1", "c1", "2024-01-01")))
}

func TestTxMemory_CommitOnSuccess(t *testing.T) {
	tm := store.NewTxMemory()
	ctx := context.Background()
	require.NoError(t, tm.CreateConfig(ctx, testConfig("c1", "2024-01-07")))

	err := tm.WithTx(ctx, func(s payroll.Store) error {
		return s.InsertPeriod(ctx, testPeriod("p1", "c1", "2024-01-01"))
	})
	require.NoError(t, err)

	periods, err := tm.ListPeriods(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, periods, 1)
}
