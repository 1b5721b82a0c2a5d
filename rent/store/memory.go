// Package store provides in-process rent.Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/rent-ledger/rent"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	tenants     map[rent.TenantID]rent.Tenant
	codes       map[string]rent.TenantID
	payments    map[rent.TenantID][]rent.Payment
	paymentIDs  map[rent.PaymentID]bool
	idempotency map[string]bool
	audit       []rent.AuditEntry
	runs        map[rent.Month]rent.RolloverRun
}

func NewMemory() *Memory {
	return &Memory{
		tenants:     make(map[rent.TenantID]rent.Tenant),
		codes:       make(map[string]rent.TenantID),
		payments:    make(map[rent.TenantID][]rent.Payment),
		paymentIDs:  make(map[rent.PaymentID]bool),
		idempotency: make(map[string]bool),
		runs:        make(map[rent.Month]rent.RolloverRun),
	}
}

var _ rent.Store = (*Memory)(nil)

// =============================================================================
// TENANTS
// =============================================================================

func (m *Memory) CreateTenant(_ context.Context, t rent.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, taken := m.codes[t.Code]; taken {
		return rent.ErrDuplicateTenantCode
	}
	m.tenants[t.ID] = t
	m.codes[t.Code] = t.ID
	return nil
}

func (m *Memory) FindTenant(_ context.Context, id rent.TenantID) (*rent.Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tenants[id]
	if !ok {
		return nil, rent.ErrTenantNotFound
	}
	return &t, nil
}

func (m *Memory) ListTenants(_ context.Context) ([]rent.Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]rent.Tenant, 0, len(m.tenants))
	for _, t := range m.tenants {
		result = append(result, t)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (m *Memory) UpdateTenantBalance(_ context.Context, id rent.TenantID, u rent.BalanceUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tenants[id]
	if !ok {
		return rent.ErrTenantNotFound
	}
	t.Credit, t.Arrears, t.BalancePeriod = u.Credit, u.Arrears, u.Period
	t.UpdatedAt = time.Now()
	m.tenants[id] = t
	return nil
}

// =============================================================================
// PAYMENTS - append-only
// =============================================================================

func (m *Memory) InsertPayment(_ context.Context, p rent.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.paymentIDs[p.ID] || (p.IdempotencyKey != "" && m.idempotency[p.IdempotencyKey]) {
		return rent.ErrDuplicateIdempotencyKey
	}

	// Keep each tenant's ledger ordered by payment date.
	ps := m.payments[p.TenantID]
	i := sort.Search(len(ps), func(i int) bool {
		return ps[i].PaidAt.After(p.PaidAt)
	})
	ps = append(ps, rent.Payment{})
	copy(ps[i+1:], ps[i:])
	ps[i] = p
	m.payments[p.TenantID] = ps

	m.paymentIDs[p.ID] = true
	if p.IdempotencyKey != "" {
		m.idempotency[p.IdempotencyKey] = true
	}
	return nil
}

func (m *Memory) ListPaymentsForTenant(_ context.Context, id rent.TenantID) ([]rent.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]rent.Payment, len(m.payments[id]))
	copy(result, m.payments[id])
	return result, nil
}

func (m *Memory) SumPaymentsForTenant(_ context.Context, id rent.TenantID) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return rent.TotalPaid(m.payments[id]), nil
}

// =============================================================================
// AUDIT LOG - append-only
// =============================================================================

func (m *Memory) AppendAudit(_ context.Context, e rent.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	m.audit = append(m.audit, e)
	return nil
}

func (m *Memory) ListAudit(_ context.Context, f rent.AuditFilter) ([]rent.AuditEntry, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Newest first; ties keep reverse insertion order.
	var matched []rent.AuditEntry
	for i := len(m.audit) - 1; i >= 0; i-- {
		e := m.audit[i]
		if f.Status != nil && e.Status != *f.Status {
			continue
		}
		matched = append(matched, e)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	total := len(matched)
	if f.Offset >= total {
		return []rent.AuditEntry{}, total, nil
	}
	matched = matched[f.Offset:]
	if f.Limit > 0 && f.Limit < len(matched) {
		matched = matched[:f.Limit]
	}
	return matched, total, nil
}

// =============================================================================
// ROLLOVER RUNS
// =============================================================================

func (m *Memory) ClaimRolloverPeriod(_ context.Context, period rent.Month, startedAt time.Time) (rent.RolloverRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.runs[period]; ok && existing.Status != rent.RunFailed {
		return rent.RolloverRun{}, rent.ErrPeriodAlreadyRolledOver
	}
	run := rent.RolloverRun{
		ID:        uuid.NewString(),
		Period:    period,
		Status:    rent.RunRunning,
		StartedAt: startedAt,
	}
	m.runs[period] = run
	return run, nil
}

func (m *Memory) FinishRolloverRun(_ context.Context, run rent.RolloverRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.Period] = run
	return nil
}

func (m *Memory) IsPeriodRolledOver(_ context.Context, period rent.Month) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[period]
	return ok && run.Status == rent.RunCompleted, nil
}

func (m *Memory) ListRolloverRuns(_ context.Context) ([]rent.RolloverRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]rent.RolloverRun, 0, len(m.runs))
	for _, r := range m.runs {
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Period.After(result[j].Period)
	})
	return result, nil
}
