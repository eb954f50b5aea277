/*
store.go - Persistence interface for cycle configs and generated periods

PURPOSE:
  Defines the interface between the engine and the database.
  Different implementations can use SQLite, PostgreSQL, or in-memory storage.

KEY INTERFACES:
  ConfigStore: Read and compare-and-swap update of cycle configs
  PeriodStore: Append-only generated periods
  Store:       Both of the above
  TxStore:     Store plus atomic multi-write transactions

APPEND-ONLY PERIODS:
  PeriodStore has InsertPeriod and nothing that mutates a period.
  Status changes after generation belong to other services.

OPTIMISTIC LOCKING:
  UpdateConfig takes the version that was read. If the stored version
  moved on, the update is rejected with ErrConcurrentModification and
  the caller re-reads. A successful update bumps Version by one.

ATOMIC ADVANCEMENT:
  The generator updates the config pointer and inserts the finalized
  period inside one WithTx call, so a failure leaves neither write behind.

IMPLEMENTATIONS:
  - store/sqlstore: SQLite and PostgreSQL via database/sql
  - payroll/store:  In-memory for tests and dev

SEE ALSO:
  - generator.go: The only writer of advancements
*/
package payroll

import "context"

// =============================================================================
// STORE - Interfaces consumed by the engine
// =============================================================================

type ConfigStore interface {
	// GetConfig returns ErrConfigNotFound when id does not exist.
	GetConfig(ctx context.Context, id ConfigID) (*CycleConfig, error)

	// UpdateConfig overwrites the config if its stored version equals
	// expectedVersion. Returns ErrConcurrentModification otherwise.
	UpdateConfig(ctx context.Context, cfg CycleConfig, expectedVersion int64) error
}

type PeriodStore interface {
	// InsertPeriod appends a period. Returns ErrDuplicatePeriod when the
	// same (config, from, to) already exists.
	InsertPeriod(ctx context.Context, p Period) error

	// ListPeriods returns periods for a config ordered by From.
	ListPeriods(ctx context.Context, configID ConfigID) ([]Period, error)
}

// Store is everything the engine and the admin surface need.
type Store interface {
	ConfigStore
	PeriodStore

	// CreateConfig inserts a new config with Version 1.
	// Returns ErrDuplicateConfig if the id exists.
	CreateConfig(ctx context.Context, cfg CycleConfig) error

	// ListConfigs returns all configs ordered by id.
	ListConfigs(ctx context.Context) ([]CycleConfig, error)

	// ListDueConfigs returns configs whose current period ended before asOf.
	ListDueConfigs(ctx context.Context, asOf Date) ([]CycleConfig, error)
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
