/*
Package rent provides the tenant balance and rent carry-forward engine.

PURPOSE:
  Tracks what each tenant owes or has overpaid. The Payment ledger is the
  single source of truth; the credit/arrears fields on a Tenant are a cached
  view that can always be rebuilt by replaying that ledger.

KEY CONCEPTS IN THIS FILE (types.go):
  - Tenant: a leaseholder with monthly rent and a cached balance
  - Payment: an immutable fact "X was paid for tenant T on date D"
  - AuditEntry: append-only record of a rollover decision or job failure
  - RolloverRun: persisted marker that a month has been rolled over

DESIGN PRINCIPLES:
  1. Immutability: payments are inserted, never updated or deleted
  2. Precision: money uses decimal.Decimal, never float64
  3. Derived cache: credit/arrears are recomputed from the ledger, not
     adjusted by deltas (except by the monthly rollover)

SEE ALSO:
  - calculator.go: pure balance calculation
  - ledger.go: per-payment recompute trigger
  - rollover.go: monthly carry-forward job
*/
package rent

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type TenantID string
type PaymentID string

// =============================================================================
// TENANT
// =============================================================================

// Tenant is one leaseholder. Credit and Arrears are a cache over the payment
// ledger; at most one of them is non-zero after any recompute.
type Tenant struct {
	ID         TenantID
	Code       string // short login code, unique
	Name       string
	Email      string
	Phone      string
	Property   string
	RoomNumber string

	Rent       decimal.Decimal
	LeaseStart time.Time // zero means "use CreatedAt"

	Credit        decimal.Decimal
	Arrears       decimal.Decimal
	BalancePeriod Month // month whose rent the cached balance already includes

	CreatedAt time.Time
	UpdatedAt time.Time
}

// EffectiveLeaseStart returns the lease start, falling back to the record
// creation time when no lease start was captured.
func (t Tenant) EffectiveLeaseStart() time.Time {
	if !t.LeaseStart.IsZero() {
		return t.LeaseStart
	}
	return t.CreatedAt
}

// BalanceUpdate is the only way credit/arrears are written.
type BalanceUpdate struct {
	Credit  decimal.Decimal
	Arrears decimal.Decimal
	Period  Month
}

// =============================================================================
// PAYMENT
// =============================================================================

type PaymentMethod string

const (
	MethodMpesa              PaymentMethod = "Mpesa"
	MethodBankTransfer       PaymentMethod = "Bank Transfer"
	MethodCash               PaymentMethod = "Cash"
	MethodCreditCarryForward PaymentMethod = "Credit Carry Forward"
)

// IsValid reports whether m is a known payment method.
func (m PaymentMethod) IsValid() bool {
	switch m {
	case MethodMpesa, MethodBankTransfer, MethodCash, MethodCreditCarryForward:
		return true
	}
	return false
}

// IsSynthetic reports whether payments with this method are bookkeeping
// entries written by the rollover job rather than cash received.
func (m PaymentMethod) IsSynthetic() bool {
	return m == MethodCreditCarryForward
}

type Actor string

const (
	ActorTenant   Actor = "Tenant"
	ActorLandlord Actor = "Landlord"
	ActorAdmin    Actor = "Admin"
	ActorSystem   Actor = "System"
)

func (a Actor) IsValid() bool {
	switch a {
	case ActorTenant, ActorLandlord, ActorAdmin, ActorSystem:
		return true
	}
	return false
}

// Payment is an immutable ledger fact.
type Payment struct {
	ID         PaymentID
	TenantID   TenantID
	TenantName string
	Property   string
	RoomNumber string

	Amount      decimal.Decimal
	PaidAt      time.Time
	CoversMonth Month // month the payment is for

	Method  PaymentMethod
	Actor   Actor
	Comment string

	IdempotencyKey string
	CreatedAt      time.Time
}

// IsSynthetic reports whether the payment was written by the rollover job.
func (p Payment) IsSynthetic() bool {
	return p.Method.IsSynthetic()
}

// =============================================================================
// AUDIT LOG
// =============================================================================

type AuditStatus string

const (
	StatusSuccess AuditStatus = "Success"
	StatusError   AuditStatus = "Error"
	StatusPending AuditStatus = "Pending"
)

func (s AuditStatus) IsValid() bool {
	return s == StatusSuccess || s == StatusError || s == StatusPending
}

// Audit event names. These are read by the system-log dashboard, so they
// keep their human-readable form.
const (
	EventAutoPayment     = "Auto Payment"
	EventPartialPayment  = "Partial Payment"
	EventUnpaidRent      = "Unpaid Rent"
	EventRolloverSkipped = "Rollover Skipped"
	EventRolloverError   = "Rollover Error"
	EventCronError       = "Cron Error"
	EventBalanceUpdate   = "Tenant Balance Update"
)

// AuditEntry records one significant decision. Append-only.
type AuditEntry struct {
	ID        string
	Event     string
	Status    AuditStatus
	Message   string
	TenantID  TenantID // empty for job-level entries
	Timestamp time.Time
}

// AuditFilter selects audit entries for the reporting endpoint.
type AuditFilter struct {
	Status *AuditStatus
	Limit  int
	Offset int
}

// =============================================================================
// ROLLOVER RUNS
// =============================================================================

type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// RolloverRun is the persisted "this month was rolled over" marker.
// A period has at most one run; only a failed run can be claimed again.
type RolloverRun struct {
	ID          string
	Period      Month
	Status      RunStatus
	Processed   int
	Skipped     int
	Failed      int
	Error       string
	StartedAt   time.Time
	CompletedAt *time.Time
}
