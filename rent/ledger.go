/*
ledger.go - Per-payment recompute trigger

PURPOSE:
  Every payment write goes through Ledger.RecordPayment. Once the payment is
  durable, the tenant's cached credit/arrears are rebuilt from the complete
  payment history. The cache is never adjusted by a delta.

CRITICAL INVARIANTS:
  1. The payment insert is the only thing that can fail RecordPayment.
     A failed recompute is logged and counted, the payment stays.
  2. Recompute sums the full ledger on every call. Two concurrent payments
     for one tenant may finish in either order; the last writer still writes
     a full-ledger value, so nothing drifts.
  3. No locking. Correctness comes from (2), not from mutual exclusion.

EXAMPLE:
  Rent 5000, lease started two months before the current one (3 months due),
  payments so far 12000. RecordPayment(5000) inserts the payment, then
  Recompute sees paid 17000 against 15000 due and stores credit 2000.

SEE ALSO:
  - calculator.go: the balance formula
  - rollover.go: the monthly job, which also writes credit/arrears
*/
package rent

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Ledger owns every write of tenant balances outside the monthly rollover.
type Ledger struct {
	store Store
	runtime
}

func NewLedger(store Store, opts ...Option) *Ledger {
	return &Ledger{store: store, runtime: newRuntime(opts)}
}

// =============================================================================
// TENANTS
// =============================================================================

// OnboardTenant validates and stores a new tenant, then computes its first
// balance. Credit and arrears on the input are ignored.
func (l *Ledger) OnboardTenant(ctx context.Context, t Tenant) (Tenant, error) {
	t.Name = strings.TrimSpace(t.Name)
	t.Code = strings.TrimSpace(t.Code)
	if t.Name == "" {
		return Tenant{}, invalidTenant("name", "required")
	}
	if t.Code == "" {
		return Tenant{}, invalidTenant("code", "required")
	}
	if t.Rent.IsNegative() {
		return Tenant{}, invalidTenant("rent", "must not be negative")
	}

	now := l.Now()
	if t.ID == "" {
		t.ID = TenantID(uuid.NewString())
	}
	t.Credit = decimal.Zero
	t.Arrears = decimal.Zero
	t.BalancePeriod = Month{}
	t.CreatedAt = now
	t.UpdatedAt = now

	if err := l.store.CreateTenant(ctx, t); err != nil {
		return Tenant{}, fmt.Errorf("create tenant: %w", err)
	}

	b, err := l.Recompute(ctx, t.ID)
	if err != nil {
		l.logger.Error("initial balance failed", zap.String("tenant_id", string(t.ID)), zap.Error(err))
		return t, nil
	}
	t.Credit, t.Arrears, t.BalancePeriod = b.Credit, b.Arrears, b.Period
	return t, nil
}

// =============================================================================
// PAYMENTS
// =============================================================================

// RecordPayment validates and inserts a payment, then recomputes the tenant.
//
// Defaults: method Mpesa, actor Tenant, paid now, covering the month it was
// paid in. Synthetic carry-forward payments are reserved for the rollover
// job and rejected here.
func (l *Ledger) RecordPayment(ctx context.Context, p Payment) (Payment, error) {
	p, err := l.preparePayment(ctx, p)
	if err != nil {
		return Payment{}, err
	}

	if err := l.store.InsertPayment(ctx, p); err != nil {
		return Payment{}, fmt.Errorf("insert payment: %w", err)
	}
	l.metrics.PaymentRecorded(p.Method)

	event := PaymentRecordedEvent{
		PaymentID: p.ID,
		TenantID:  p.TenantID,
		Amount:    p.Amount,
		Method:    p.Method,
		Actor:     p.Actor,
		PaidAt:    p.PaidAt,
	}
	if b, err := l.Recompute(ctx, p.TenantID); err != nil {
		l.metrics.RecomputeFailed()
		l.logger.Error("recompute after payment failed",
			zap.String("tenant_id", string(p.TenantID)),
			zap.String("payment_id", string(p.ID)),
			zap.Error(err))
	} else {
		event.Credit, event.Arrears, event.Recomputed = b.Credit, b.Arrears, true
	}

	l.publish(ctx, TopicPaymentRecorded, event)
	return p, nil
}

func (l *Ledger) preparePayment(ctx context.Context, p Payment) (Payment, error) {
	if p.TenantID == "" {
		return p, invalidPayment("tenant_id", "required")
	}
	if p.Amount.IsNegative() {
		return p, invalidPayment("amount", "must not be negative")
	}
	if p.Method == "" {
		p.Method = MethodMpesa
	}
	if !p.Method.IsValid() {
		return p, invalidPayment("method", fmt.Sprintf("unknown method %q", p.Method))
	}
	if p.Method.IsSynthetic() {
		return p, invalidPayment("method", "reserved for automatic carry-forward")
	}
	if p.Actor == "" {
		p.Actor = ActorTenant
	}
	if !p.Actor.IsValid() || p.Actor == ActorSystem {
		return p, invalidPayment("actor", fmt.Sprintf("unknown actor %q", p.Actor))
	}

	now := l.Now()
	if p.PaidAt.IsZero() {
		p.PaidAt = now
	}
	if p.CoversMonth.IsZero() {
		p.CoversMonth = MonthOf(p.PaidAt.In(l.location))
	}
	if p.ID == "" {
		p.ID = PaymentID(uuid.NewString())
	}
	p.CreatedAt = now

	// Denormalized tenant fields are a convenience for listings. A missing
	// tenant must not block the insert.
	if p.TenantName == "" {
		if t, err := l.store.FindTenant(ctx, p.TenantID); err == nil {
			p.TenantName, p.Property, p.RoomNumber = t.Name, t.Property, t.RoomNumber
		}
	}
	return p, nil
}

// =============================================================================
// RECOMPUTE
// =============================================================================

// Recompute rebuilds the tenant's cached balance from the store's all-time
// cash total and persists it. Safe to call at any time, any number of times.
func (l *Ledger) Recompute(ctx context.Context, id TenantID) (Balance, error) {
	t, err := l.store.FindTenant(ctx, id)
	if err != nil {
		return Balance{}, fmt.Errorf("find tenant %s: %w", id, err)
	}
	paid, err := l.store.SumPaymentsForTenant(ctx, id)
	if err != nil {
		return Balance{}, fmt.Errorf("sum payments for %s: %w", id, err)
	}

	b := Calculate(CalculatorInput{
		Rent:       t.Rent,
		LeaseStart: t.LeaseStart,
		CreatedAt:  t.CreatedAt,
		Paid:       paid,
		Now:        l.Now(),
	})
	if b.FutureLease {
		l.logger.Warn("lease starts in the future, rent due understated",
			zap.String("tenant_id", string(id)),
			zap.Time("lease_start", t.EffectiveLeaseStart()),
			zap.Int("months_elapsed", b.MonthsElapsed))
	}

	if err := l.store.UpdateTenantBalance(ctx, id, b.Update()); err != nil {
		return Balance{}, fmt.Errorf("update balance for %s: %w", id, err)
	}
	return b, nil
}

// BalanceFor recomputes and returns the tenant's balance. The tenant balance
// endpoint reads through this so the figure shown is never stale.
func (l *Ledger) BalanceFor(ctx context.Context, id TenantID) (Balance, error) {
	return l.Recompute(ctx, id)
}

// ReconcileSummary reports a ReconcileAll sweep.
type ReconcileSummary struct {
	Updated int
	Failed  int
}

// ReconcileAll recomputes every tenant. It repairs any cache drift, including
// torn state left by an interrupted rollover. Per-tenant failures are logged
// and do not stop the sweep.
func (l *Ledger) ReconcileAll(ctx context.Context) (ReconcileSummary, error) {
	var sum ReconcileSummary

	tenants, err := l.store.ListTenants(ctx)
	if err != nil {
		l.audit(ctx, AuditEntry{Event: EventBalanceUpdate, Status: StatusError, Message: err.Error()})
		return sum, fmt.Errorf("list tenants: %w", err)
	}

	for _, t := range tenants {
		if _, err := l.Recompute(ctx, t.ID); err != nil {
			sum.Failed++
			l.metrics.RecomputeFailed()
			l.logger.Error("reconcile tenant failed", zap.String("tenant_id", string(t.ID)), zap.Error(err))
			continue
		}
		sum.Updated++
	}

	l.audit(ctx, AuditEntry{
		Event:   EventBalanceUpdate,
		Status:  StatusSuccess,
		Message: fmt.Sprintf("Updated %d tenants", sum.Updated),
	})
	l.logger.Info("tenant balances reconciled", zap.Int("updated", sum.Updated), zap.Int("failed", sum.Failed))
	return sum, nil
}

// CompletionRate returns the share of monthly rent not sitting in arrears,
// as a whole percentage. Zero when no rent is configured.
func (l *Ledger) CompletionRate(ctx context.Context) (int, error) {
	tenants, err := l.store.ListTenants(ctx)
	if err != nil {
		return 0, fmt.Errorf("list tenants: %w", err)
	}
	rent, arrears := decimal.Zero, decimal.Zero
	for _, t := range tenants {
		rent = rent.Add(t.Rent)
		arrears = arrears.Add(t.Arrears)
	}
	if !rent.IsPositive() {
		return 0, nil
	}
	pct, _ := rent.Sub(arrears).Div(rent).Mul(decimal.NewFromInt(100)).Float64()
	return int(math.Max(0, math.Round(pct))), nil
}

func (l *Ledger) audit(ctx context.Context, e AuditEntry) {
	writeAudit(ctx, l.store, l.runtime, e)
}

// writeAudit appends an entry, filling ID and timestamp. Audit failures are
// logged only; they never change the outcome of the operation being audited.
func writeAudit(ctx context.Context, log AuditLog, rt runtime, e AuditEntry) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = rt.Now()
	}
	if err := log.AppendAudit(ctx, e); err != nil {
		rt.logger.Error("audit write failed",
			zap.String("event", e.Event),
			zap.String("status", string(e.Status)),
			zap.Error(err))
	}
}
