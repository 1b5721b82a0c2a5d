/*
Package sqlstore provides a SQL-backed implementation of rent.Store.

PURPOSE:
  Persists tenants, the payment ledger, the system log and rollover run
  markers. SQLite is the default; PostgreSQL uses the same schema with
  positional placeholders.

INTERFACES IMPLEMENTED:
  rent.TenantStore:  tenants table
  rent.PaymentStore: payments table (append-only)
  rent.AuditLog:     system_logs table (append-only)
  rent.RunStore:     rollover_runs table

APPEND-ONLY ENFORCEMENT:
  - No UPDATE or DELETE statements on payments or system_logs
  - The only UPDATE on tenants touches credit, arrears and balance_period

KEY TABLES:
  tenants:       Lease terms and the cached balance
  payments:      Immutable ledger, idempotency_key unique when set
  system_logs:   Audit entries, newest first on read
  rollover_runs: One row per period, the exactly-once marker

MONEY AND TIME:
  Decimals are stored as TEXT and summed in Go, so no backend float
  arithmetic touches money. Timestamps are fixed-width UTC TEXT, which
  keeps ORDER BY on them chronological.

CONCURRENCY:
  Uses sync.RWMutex around statements. SQLite gets a single connection so
  ":memory:" databases are shared across the pool.

USAGE:
  store, err := sqlstore.Open("sqlite3", "./data/rent.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := rent.NewLedger(store)

MIGRATION:
  Schema is auto-migrated on Open.

SEE ALSO:
  - rent/store.go: Interface definitions
  - rent/store/memory.go: In-memory implementation for testing
*/
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/rent-ledger/rent"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// timeLayout is fixed width so TEXT ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements rent.Store on database/sql.
type Store struct {
	db     *sql.DB
	driver string
	mu     sync.RWMutex
}

var _ rent.Store = (*Store)(nil)

// Open connects to the database and migrates the schema.
// For SQLite use ":memory:" for an in-memory database.
func Open(driver, dsn string) (*Store, error) {
	switch driver {
	case DriverSQLite:
		if dsn != ":memory:" && !strings.Contains(dsn, "?") {
			dsn += "?_foreign_keys=on&_journal_mode=WAL"
		}
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}

	store := NewFromDB(db, driver)
	if err := store.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// NewSQLite opens a SQLite store at path.
func NewSQLite(path string) (*Store, error) {
	return Open(DriverSQLite, path)
}

// NewFromDB wraps an existing handle without migrating.
func NewFromDB(db *sql.DB, driver string) *Store {
	return &Store{db: db, driver: driver}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return storageErr("ping", err)
	}
	return nil
}

// Migrate creates the database schema.
func (s *Store) Migrate(ctx context.Context) error {
	schema := `
	-- Tenants: lease terms plus the cached balance
	CREATE TABLE IF NOT EXISTS tenants (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		property TEXT NOT NULL DEFAULT '',
		room_number TEXT NOT NULL DEFAULT '',
		rent TEXT NOT NULL,
		lease_start TEXT,
		credit TEXT NOT NULL DEFAULT '0',
		arrears TEXT NOT NULL DEFAULT '0',
		balance_period TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tenants_name ON tenants(name);

	-- Payments (append-only ledger)
	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		tenant_name TEXT NOT NULL DEFAULT '',
		property TEXT NOT NULL DEFAULT '',
		room_number TEXT NOT NULL DEFAULT '',
		amount TEXT NOT NULL,
		paid_at TEXT NOT NULL,
		covers_month TEXT NOT NULL,
		method TEXT NOT NULL,
		actor TEXT NOT NULL,
		comment TEXT NOT NULL DEFAULT '',
		idempotency_key TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payments_tenant_paid
		ON payments(tenant_id, paid_at);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_payments_idempotency
		ON payments(idempotency_key) WHERE idempotency_key IS NOT NULL;

	-- System log (append-only)
	CREATE TABLE IF NOT EXISTS system_logs (
		id TEXT PRIMARY KEY,
		event TEXT NOT NULL,
		status TEXT NOT NULL,
		message TEXT NOT NULL,
		tenant_id TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_system_logs_status_created
		ON system_logs(status, created_at);
	CREATE INDEX IF NOT EXISTS idx_system_logs_created
		ON system_logs(created_at);

	-- Rollover runs: at most one row per period
	CREATE TABLE IF NOT EXISTS rollover_runs (
		id TEXT NOT NULL,
		period TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		processed INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		started_at TEXT NOT NULL,
		completed_at TEXT
	);
	`

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// =============================================================================
// HELPERS
// =============================================================================

// builder returns a squirrel builder with the driver's placeholder style.
func (s *Store) builder() squirrel.StatementBuilderType {
	if s.driver == DriverPostgres {
		return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	}
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question)
}

// rebind rewrites ? placeholders for PostgreSQL.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
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

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.rebind(query), args...)
}

func (s *Store) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.rebind(query), args...)
}

func (s *Store) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.rebind(query), args...)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(t), Valid: true}
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(timeLayout, s)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func parseMonth(s string) (rent.Month, error) {
	if s == "" {
		return rent.Month{}, nil
	}
	return rent.ParseMonth(s)
}
