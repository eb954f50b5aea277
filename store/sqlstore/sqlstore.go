/*
Package sqlstore provides a database/sql implementation of payroll.TxStore.

PURPOSE:
  Persists cycle configs and generated periods in SQLite (default) or
  PostgreSQL. Both dialects share one schema and one set of queries;
  "?" placeholders are rebound to "$n" for PostgreSQL.

DRIVERS:
  sqlite3:  github.com/mattn/go-sqlite3, opened with foreign keys and WAL
  postgres: github.com/lib/pq, pooled like the rest of our services

KEY TABLES:
  payroll_cycle_configs: One row per schedule, current period overwritten in place
  payroll_periods:       Append-only generated periods

CONCURRENCY:
  UpdateConfig is a compare-and-swap on the version column. For SQLite the
  store additionally serializes access with a mutex and a single connection,
  so ":memory:" databases behave like one database.

DATES:
  Stored as YYYY-MM-DD text in both dialects so ordering and equality are
  plain string comparisons.

USAGE:
  store, err := sqlstore.Open("sqlite3", "./data/payroll.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - payroll/store.go: Interface definitions
  - payroll/store/memory.go: In-memory implementation for testing
*/
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/warp/payroll-engine/payroll"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"

	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 25
	defaultConnMaxLifetime = 5 * time.Minute
	defaultConnMaxIdleTime = 1 * time.Minute
)

// Store implements payroll.TxStore on database/sql.
type Store struct {
	db     *sql.DB
	driver string
	mu     sync.RWMutex
}

// New opens a SQLite store at dbPath. Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	return Open(DriverSQLite, dbPath)
}

// Open connects with the given driver and migrates the schema.
func Open(driver, dsn string) (*Store, error) {
	var (
		db  *sql.DB
		err error
	)
	switch driver {
	case DriverSQLite:
		db, err = sql.Open(DriverSQLite, dsn+"?_foreign_keys=on&_journal_mode=WAL")
		if err == nil {
			db.SetMaxOpenConns(1)
		}
	case DriverPostgres:
		db, err = sql.Open(DriverPostgres, dsn)
		if err == nil {
			db.SetMaxOpenConns(defaultMaxOpenConns)
			db.SetMaxIdleConns(defaultMaxIdleConns)
			db.SetConnMaxLifetime(defaultConnMaxLifetime)
			db.SetConnMaxIdleTime(defaultConnMaxIdleTime)
		}
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &Store{db: db, driver: driver}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Driver returns the driver name the store was opened with.
func (s *Store) Driver() string {
	return s.driver
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS payroll_cycle_configs (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		cycle_type INTEGER NOT NULL,
		from_date TEXT NOT NULL,
		to_date TEXT NOT NULL,
		actual_check_date TEXT NOT NULL,
		check_date TEXT NOT NULL,
		second_from_date TEXT,
		second_to_date TEXT,
		second_actual_check_date TEXT,
		second_check_date TEXT,
		version BIGINT NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Catch-up sweep looks for configs whose current period has ended
	CREATE INDEX IF NOT EXISTS idx_payroll_cycle_configs_to_date
		ON payroll_cycle_configs(to_date);

	CREATE TABLE IF NOT EXISTS payroll_periods (
		id TEXT PRIMARY KEY,
		config_id TEXT NOT NULL REFERENCES payroll_cycle_configs(id),
		from_date TEXT NOT NULL,
		to_date TEXT NOT NULL,
		check_date TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- A config never generates the same period twice
	CREATE UNIQUE INDEX IF NOT EXISTS idx_payroll_periods_config_range
		ON payroll_periods(config_id, from_date, to_date);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// QUERIES (shared by Store and txStore)
// =============================================================================

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type conn struct {
	q      querier
	driver string
}

// rebind turns "?" placeholders into "$1, $2, ..." for PostgreSQL.
func (c conn) rebind(query string) string {
	if c.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const configColumns = `id, name, cycle_type, from_date, to_date, actual_check_date, check_date,
	second_from_date, second_to_date, second_actual_check_date, second_check_date,
	version, created_at, updated_at`

func (c conn) createConfig(ctx context.Context, cfg payroll.CycleConfig) error {
	now := time.Now().UTC()
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = now
	}
	if cfg.UpdatedAt.IsZero() {
		cfg.UpdatedAt = now
	}
	second := secondHalfArgs(cfg.SecondHalf)

	query := `INSERT INTO payroll_cycle_configs (` + configColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`
	_, err := c.q.ExecContext(ctx, c.rebind(query),
		string(cfg.ID), cfg.Name, int(cfg.Cycle),
		cfg.Current.From.String(), cfg.Current.To.String(),
		cfg.Current.ActualCheck.String(), cfg.Current.Check.String(),
		second[0], second[1], second[2], second[3],
		cfg.CreatedAt.Format(time.RFC3339), cfg.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return payroll.ErrDuplicateConfig
		}
		return fmt.Errorf("failed to create config: %w", err)
	}
	return nil
}

func (c conn) getConfig(ctx context.Context, id payroll.ConfigID) (*payroll.CycleConfig, error) {
	query := `SELECT ` + configColumns + ` FROM payroll_cycle_configs WHERE id = ?`
	rows, err := c.q.QueryContext(ctx, c.rebind(query), string(id))
	if err != nil {
		return nil, fmt.Errorf("failed to query config: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, payroll.ErrConfigNotFound
	}
	cfg, err := scanConfig(rows)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// updateConfig overwrites the row only if version still equals expectedVersion.
func (c conn) updateConfig(ctx context.Context, cfg payroll.CycleConfig, expectedVersion int64) error {
	if cfg.UpdatedAt.IsZero() {
		cfg.UpdatedAt = time.Now().UTC()
	}
	second := secondHalfArgs(cfg.SecondHalf)

	query := `
		UPDATE payroll_cycle_configs SET
			name = ?, cycle_type = ?,
			from_date = ?, to_date = ?, actual_check_date = ?, check_date = ?,
			second_from_date = ?, second_to_date = ?, second_actual_check_date = ?, second_check_date = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`
	res, err := c.q.ExecContext(ctx, c.rebind(query),
		cfg.Name, int(cfg.Cycle),
		cfg.Current.From.String(), cfg.Current.To.String(),
		cfg.Current.ActualCheck.String(), cfg.Current.Check.String(),
		second[0], second[1], second[2], second[3],
		cfg.UpdatedAt.Format(time.RFC3339),
		string(cfg.ID), expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update config: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update config: %w", err)
	}
	if n == 1 {
		return nil
	}

	// Nothing updated: either the row is gone or someone else bumped the version
	var count int
	err = c.q.QueryRowContext(ctx,
		c.rebind(`SELECT COUNT(*) FROM payroll_cycle_configs WHERE id = ?`), string(cfg.ID),
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("failed to check config: %w", err)
	}
	if count == 0 {
		return payroll.ErrConfigNotFound
	}
	return payroll.ErrConcurrentModification
}

func (c conn) listConfigs(ctx context.Context, where string, args ...any) ([]payroll.CycleConfig, error) {
	query := `SELECT ` + configColumns + ` FROM payroll_cycle_configs ` + where + ` ORDER BY id ASC`
	rows, err := c.q.QueryContext(ctx, c.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query configs: %w", err)
	}
	defer rows.Close()

	var configs []payroll.CycleConfig
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

func (c conn) insertPeriod(ctx context.Context, p payroll.Period) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO payroll_periods (id, config_id, from_date, to_date, check_date, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := c.q.ExecContext(ctx, c.rebind(query),
		string(p.ID), string(p.ConfigID),
		p.From.String(), p.To.String(), p.Check.String(),
		string(p.Status), p.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return payroll.ErrDuplicatePeriod
		}
		return fmt.Errorf("failed to insert period: %w", err)
	}
	return nil
}

func (c conn) listPeriods(ctx context.Context, configID payroll.ConfigID) ([]payroll.Period, error) {
	query := `
		SELECT id, config_id, from_date, to_date, check_date, status, created_at
		FROM payroll_periods
		WHERE config_id = ?
		ORDER BY from_date ASC
	`
	rows, err := c.q.QueryContext(ctx, c.rebind(query), string(configID))
	if err != nil {
		return nil, fmt.Errorf("failed to query periods: %w", err)
	}
	defer rows.Close()

	var periods []payroll.Period
	for rows.Next() {
		var (
			p                 payroll.Period
			id, cfgID, status string
			from, to, check   string
			createdAt         string
		)
		if err := rows.Scan(&id, &cfgID, &from, &to, &check, &status, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan period: %w", err)
		}
		p.ID = payroll.PeriodID(id)
		p.ConfigID = payroll.ConfigID(cfgID)
		p.Status = payroll.PeriodStatus(status)
		if p.From, err = payroll.ParseDate(from); err != nil {
			return nil, err
		}
		if p.To, err = payroll.ParseDate(to); err != nil {
			return nil, err
		}
		if p.Check, err = payroll.ParseDate(check); err != nil {
			return nil, err
		}
		p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		periods = append(periods, p)
	}
	return periods, rows.Err()
}

// =============================================================================
// STORE (payroll.Store interface)
// =============================================================================

func (s *Store) conn() conn { return conn{q: s.db, driver: s.driver} }

// lock and rlock serialize access for SQLite only. Postgres handles
// concurrent connections itself.
func (s *Store) lock() func() {
	if s.driver != DriverSQLite {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) rlock() func() {
	if s.driver != DriverSQLite {
		return func() {}
	}
	s.mu.RLock()
	return s.mu.RUnlock
}

func (s *Store) CreateConfig(ctx context.Context, cfg payroll.CycleConfig) error {
	defer s.lock()()
	return s.conn().createConfig(ctx, cfg)
}

func (s *Store) GetConfig(ctx context.Context, id payroll.ConfigID) (*payroll.CycleConfig, error) {
	defer s.rlock()()
	return s.conn().getConfig(ctx, id)
}

func (s *Store) UpdateConfig(ctx context.Context, cfg payroll.CycleConfig, expectedVersion int64) error {
	defer s.lock()()
	return s.conn().updateConfig(ctx, cfg, expectedVersion)
}

func (s *Store) ListConfigs(ctx context.Context) ([]payroll.CycleConfig, error) {
	defer s.rlock()()
	return s.conn().listConfigs(ctx, "")
}

func (s *Store) ListDueConfigs(ctx context.Context, asOf payroll.Date) ([]payroll.CycleConfig, error) {
	defer s.rlock()()
	return s.conn().listConfigs(ctx, "WHERE to_date < ?", asOf.String())
}

func (s *Store) InsertPeriod(ctx context.Context, p payroll.Period) error {
	defer s.lock()()
	return s.conn().insertPeriod(ctx, p)
}

func (s *Store) ListPeriods(ctx context.Context, configID payroll.ConfigID) ([]payroll.Period, error) {
	defer s.rlock()()
	return s.conn().listPeriods(ctx, configID)
}

// =============================================================================
// TRANSACTIONAL STORE (payroll.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store payroll.Store) error) error {
	defer s.lock()()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{c: conn{q: sqlTx, driver: s.driver}}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

type txStore struct {
	c conn
}

func (ts *txStore) CreateConfig(ctx context.Context, cfg payroll.CycleConfig) error {
	return ts.c.createConfig(ctx, cfg)
}

func (ts *txStore) GetConfig(ctx context.Context, id payroll.ConfigID) (*payroll.CycleConfig, error) {
	return ts.c.getConfig(ctx, id)
}

func (ts *txStore) UpdateConfig(ctx context.Context, cfg payroll.CycleConfig, expectedVersion int64) error {
	return ts.c.updateConfig(ctx, cfg, expectedVersion)
}

func (ts *txStore) ListConfigs(ctx context.Context) ([]payroll.CycleConfig, error) {
	return ts.c.listConfigs(ctx, "")
}

func (ts *txStore) ListDueConfigs(ctx context.Context, asOf payroll.Date) ([]payroll.CycleConfig, error) {
	return ts.c.listConfigs(ctx, "WHERE to_date < ?", asOf.String())
}

func (ts *txStore) InsertPeriod(ctx context.Context, p payroll.Period) error {
	return ts.c.insertPeriod(ctx, p)
}

func (ts *txStore) ListPeriods(ctx context.Context, configID payroll.ConfigID) ([]payroll.Period, error) {
	return ts.c.listPeriods(ctx, configID)
}

var (
	_ payroll.TxStore = (*Store)(nil)
	_ payroll.Store   = (*txStore)(nil)
)

// Reset deletes all rows (dev and tests only).
func (s *Store) Reset(ctx context.Context) error {
	defer s.lock()()
	for _, table := range []string{"payroll_periods", "payroll_cycle_configs"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func scanConfig(rows *sql.Rows) (payroll.CycleConfig, error) {
	var (
		cfg                         payroll.CycleConfig
		id, name                    string
		cycle                       int
		from, to, actual, check     string
		sFrom, sTo, sActual, sCheck sql.NullString
		createdAt, updatedAt        string
	)
	err := rows.Scan(
		&id, &name, &cycle, &from, &to, &actual, &check,
		&sFrom, &sTo, &sActual, &sCheck,
		&cfg.Version, &createdAt, &updatedAt,
	)
	if err != nil {
		return cfg, fmt.Errorf("failed to scan config: %w", err)
	}

	cfg.ID = payroll.ConfigID(id)
	cfg.Name = name
	cfg.Cycle = payroll.CycleType(cycle)
	if cfg.Current, err = parseState(from, to, actual, check); err != nil {
		return cfg, fmt.Errorf("config %q current period: %w", id, err)
	}
	if sFrom.Valid && sTo.Valid && sActual.Valid && sCheck.Valid {
		second, err := parseState(sFrom.String, sTo.String, sActual.String, sCheck.String)
		if err != nil {
			return cfg, fmt.Errorf("config %q second half: %w", id, err)
		}
		cfg.SecondHalf = &second
	}
	cfg.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	cfg.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return cfg, nil
}

func parseState(from, to, actual, check string) (payroll.PeriodState, error) {
	var (
		p   payroll.PeriodState
		err error
	)
	if p.From, err = payroll.ParseDate(from); err != nil {
		return p, err
	}
	if p.To, err = payroll.ParseDate(to); err != nil {
		return p, err
	}
	if p.ActualCheck, err = payroll.ParseDate(actual); err != nil {
		return p, err
	}
	if p.Check, err = payroll.ParseDate(check); err != nil {
		return p, err
	}
	return p, nil
}

func secondHalfArgs(p *payroll.PeriodState) [4]sql.NullString {
	if p == nil {
		return [4]sql.NullString{}
	}
	return [4]sql.NullString{
		nullString(p.From.String()),
		nullString(p.To.String()),
		nullString(p.ActualCheck.String()),
		nullString(p.Check.String()),
	}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
