/*
store.go - Persistence interfaces for the rent engine

KEY INTERFACES:
  TenantStore:  tenant records and their cached balance
  PaymentStore: the append-only payment ledger
  AuditLog:     append-only system log
  RunStore:     rollover period markers

APPEND-ONLY CONTRACT:
  PaymentStore and AuditLog have no Update or Delete. The only mutable
  record is the tenant, and only its balance fields change through
  UpdateTenantBalance.

ERRORS:
  Implementations return ErrTenantNotFound for a missing tenant and wrap
  backend failures with ErrStorageUnavailable.

IMPLEMENTATIONS:
  - rent/store/memory.go: in-memory, for tests and dev
  - store/sqlstore: SQLite and PostgreSQL
*/
package rent

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type TenantStore interface {
	// CreateTenant inserts a tenant. Fails with ErrDuplicateTenantCode if
	// the login code is taken.
	CreateTenant(ctx context.Context, t Tenant) error

	FindTenant(ctx context.Context, id TenantID) (*Tenant, error)

	// ListTenants returns all tenants ordered by name.
	ListTenants(ctx context.Context) ([]Tenant, error)

	// UpdateTenantBalance overwrites credit, arrears and balance period.
	UpdateTenantBalance(ctx context.Context, id TenantID, u BalanceUpdate) error
}

type PaymentStore interface {
	// InsertPayment appends a payment. Fails with ErrDuplicateIdempotencyKey
	// if the key was already used.
	InsertPayment(ctx context.Context, p Payment) error

	// ListPaymentsForTenant returns the tenant's full ledger, oldest first.
	ListPaymentsForTenant(ctx context.Context, id TenantID) ([]Payment, error)

	// SumPaymentsForTenant returns the all-time cash total (synthetic
	// carry-forward entries excluded).
	SumPaymentsForTenant(ctx context.Context, id TenantID) (decimal.Decimal, error)
}

type AuditLog interface {
	AppendAudit(ctx context.Context, e AuditEntry) error

	// ListAudit returns matching entries newest first, and the total count
	// of matches ignoring Limit/Offset.
	ListAudit(ctx context.Context, f AuditFilter) ([]AuditEntry, int, error)
}

type RunStore interface {
	// ClaimRolloverPeriod atomically records a running rollover for the
	// period. Returns ErrPeriodAlreadyRolledOver if a run for the period is
	// running or completed. A failed run is claimed again.
	ClaimRolloverPeriod(ctx context.Context, period Month, startedAt time.Time) (RolloverRun, error)

	// FinishRolloverRun stores the final status and counters of a run.
	FinishRolloverRun(ctx context.Context, run RolloverRun) error

	// IsPeriodRolledOver reports whether a completed run exists.
	IsPeriodRolledOver(ctx context.Context, period Month) (bool, error)

	// ListRolloverRuns returns runs newest period first.
	ListRolloverRuns(ctx context.Context) ([]RolloverRun, error)
}

// Store is everything the engine needs.
type Store interface {
	TenantStore
	PaymentStore
	AuditLog
	RunStore
}
