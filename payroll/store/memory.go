// Package store provides in-memory payroll.Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu      sync.RWMutex
	configs map[payroll.ConfigID]payroll.CycleConfig
	periods map[payroll.ConfigID][]payroll.Period
	keys    map[periodKey]bool
}

type periodKey struct {
	ConfigID payroll.ConfigID
	From     string
	To       string
}

func keyOf(p payroll.Period) periodKey {
	return periodKey{ConfigID: p.ConfigID, From: p.From.String(), To: p.To.String()}
}

func NewMemory() *Memory {
	return &Memory{
		configs: make(map[payroll.ConfigID]payroll.CycleConfig),
		periods: make(map[payroll.ConfigID][]payroll.Period),
		keys:    make(map[periodKey]bool),
	}
}

func (m *Memory) CreateConfig(_ context.Context, cfg payroll.CycleConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createLocked(cfg)
}

func (m *Memory) createLocked(cfg payroll.CycleConfig) error {
	if _, ok := m.configs[cfg.ID]; ok {
		return payroll.ErrDuplicateConfig
	}
	cfg = cfg.Clone()
	cfg.Version = 1
	m.configs[cfg.ID] = cfg
	return nil
}

func (m *Memory) GetConfig(_ context.Context, id payroll.ConfigID) (*payroll.CycleConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getLocked(id)
}

func (m *Memory) getLocked(id payroll.ConfigID) (*payroll.CycleConfig, error) {
	cfg, ok := m.configs[id]
	if !ok {
		return nil, payroll.ErrConfigNotFound
	}
	out := cfg.Clone()
	return &out, nil
}

// UpdateConfig is a compare-and-swap on Version.
func (m *Memory) UpdateConfig(_ context.Context, cfg payroll.CycleConfig, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateLocked(cfg, expectedVersion)
}

func (m *Memory) updateLocked(cfg payroll.CycleConfig, expectedVersion int64) error {
	stored, ok := m.configs[cfg.ID]
	if !ok {
		return payroll.ErrConfigNotFound
	}
	if stored.Version != expectedVersion {
		return payroll.ErrConcurrentModification
	}
	cfg = cfg.Clone()
	cfg.Version = expectedVersion + 1
	cfg.CreatedAt = stored.CreatedAt
	m.configs[cfg.ID] = cfg
	return nil
}

func (m *Memory) ListConfigs(_ context.Context) ([]payroll.CycleConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listLocked(func(payroll.CycleConfig) bool { return true }), nil
}

func (m *Memory) ListDueConfigs(_ context.Context, asOf payroll.Date) ([]payroll.CycleConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listLocked(func(c payroll.CycleConfig) bool { return c.Current.To.Before(asOf) }), nil
}

func (m *Memory) listLocked(keep func(payroll.CycleConfig) bool) []payroll.CycleConfig {
	var result []payroll.CycleConfig
	for _, cfg := range m.configs {
		if keep(cfg) {
			result = append(result, cfg.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// InsertPeriod appends a period. Append-only.
func (m *Memory) InsertPeriod(_ context.Context, p payroll.Period) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLocked(p)
}

func (m *Memory) insertLocked(p payroll.Period) error {
	k := keyOf(p)
	if m.keys[k] {
		return payroll.ErrDuplicatePeriod
	}
	ps := m.periods[p.ConfigID]

	// Keep ordered by From
	i := sort.Search(len(ps), func(i int) bool {
		return ps[i].From.After(p.From)
	})
	ps = append(ps, payroll.Period{})
	copy(ps[i+1:], ps[i:])
	ps[i] = p
	m.periods[p.ConfigID] = ps
	m.keys[k] = true
	return nil
}

func (m *Memory) ListPeriods(_ context.Context, configID payroll.ConfigID) ([]payroll.Period, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]payroll.Period, len(m.periods[configID]))
	copy(result, m.periods[configID])
	return result, nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(payroll.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()

	if err := fn(&txMemoryView{parent: tm.Memory}); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	configs map[payroll.ConfigID]payroll.CycleConfig
	periods map[payroll.ConfigID][]payroll.Period
	keys    map[periodKey]bool
}

func (tm *TxMemory) snapshot() memorySnapshot {
	s := memorySnapshot{
		configs: make(map[payroll.ConfigID]payroll.CycleConfig, len(tm.configs)),
		periods: make(map[payroll.ConfigID][]payroll.Period, len(tm.periods)),
		keys:    make(map[periodKey]bool, len(tm.keys)),
	}
	for k, v := range tm.configs {
		s.configs[k] = v.Clone()
	}
	for k, v := range tm.periods {
		s.periods[k] = append([]payroll.Period{}, v...)
	}
	for k, v := range tm.keys {
		s.keys[k] = v
	}
	return s
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.configs = s.configs
	tm.periods = s.periods
	tm.keys = s.keys
}

// txMemoryView runs with the parent's lock already held.
type txMemoryView struct {
	parent *Memory
}

func (tv *txMemoryView) CreateConfig(_ context.Context, cfg payroll.CycleConfig) error {
	return tv.parent.createLocked(cfg)
}

func (tv *txMemoryView) GetConfig(_ context.Context, id payroll.ConfigID) (*payroll.CycleConfig, error) {
	return tv.parent.getLocked(id)
}

func (tv *txMemoryView) UpdateConfig(_ context.Context, cfg payroll.CycleConfig, expectedVersion int64) error {
	return tv.parent.updateLocked(cfg, expectedVersion)
}

func (tv *txMemoryView) ListConfigs(_ context.Context) ([]payroll.CycleConfig, error) {
	return tv.parent.listLocked(func(payroll.CycleConfig) bool { return true }), nil
}

func (tv *txMemoryView) ListDueConfigs(_ context.Context, asOf payroll.Date) ([]payroll.CycleConfig, error) {
	return tv.parent.listLocked(func(c payroll.CycleConfig) bool { return c.Current.To.Before(asOf) }), nil
}

func (tv *txMemoryView) InsertPeriod(_ context.Context, p payroll.Period) error {
	return tv.parent.insertLocked(p)
}

func (tv *txMemoryView) ListPeriods(_ context.Context, configID payroll.ConfigID) ([]payroll.Period, error) {
	return append([]payroll.Period{}, tv.parent.periods[configID]...), nil
}

// Compile-time interface checks
var (
	_ payroll.Store   = (*Memory)(nil)
	_ payroll.TxStore = (*TxMemory)(nil)
	_ payroll.Store   = (*txMemoryView)(nil)
)
