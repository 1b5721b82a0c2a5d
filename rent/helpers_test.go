package rent_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/warp/rent-ledger/rent"
	"github.com/warp/rent-ledger/rent/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var errBackend = errors.New("connection reset")

func march2024() time.Time {
	return time.Date(2024, time.March, 15, 10, 0, 0, 0, time.UTC)
}

func ksh(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

// fixedClock is a settable clock shared by Ledger and RolloverJob in a test.
type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type env struct {
	store    *faultyStore
	mem      *store.Memory
	clock    *fixedClock
	ledger   *rent.Ledger
	rollover *rent.RolloverJob
}

func newEnv(t *testing.T) *env {
	t.Helper()
	mem := store.NewMemory()
	fs := &faultyStore{Store: mem}
	clock := &fixedClock{now: march2024()}
	return &env{
		store:    fs,
		mem:      mem,
		clock:    clock,
		ledger:   rent.NewLedger(fs, rent.WithClock(clock.Now)),
		rollover: rent.NewRolloverJob(fs, rent.WithClock(clock.Now), rent.WithCurrency("Ksh")),
	}
}

// seedTenant stores a tenant directly, bypassing the initial recompute, so
// tests can start from an arbitrary cached balance.
func (e *env) seedTenant(t *testing.T, tn rent.Tenant) rent.Tenant {
	t.Helper()
	if tn.Code == "" {
		tn.Code = string(tn.ID)
	}
	if tn.CreatedAt.IsZero() {
		tn.CreatedAt = e.clock.Now()
	}
	require.NoError(t, e.mem.CreateTenant(context.Background(), tn))
	return tn
}

func (e *env) tenant(t *testing.T, id rent.TenantID) rent.Tenant {
	t.Helper()
	tn, err := e.mem.FindTenant(context.Background(), id)
	require.NoError(t, err)
	return *tn
}

func (e *env) payments(t *testing.T, id rent.TenantID) []rent.Payment {
	t.Helper()
	ps, err := e.mem.ListPaymentsForTenant(context.Background(), id)
	require.NoError(t, err)
	return ps
}

func (e *env) auditEntries(t *testing.T) []rent.AuditEntry {
	t.Helper()
	entries, _, err := e.mem.ListAudit(context.Background(), rent.AuditFilter{})
	require.NoError(t, err)
	return entries
}

func (e *env) auditFor(t *testing.T, id rent.TenantID) []rent.AuditEntry {
	t.Helper()
	var out []rent.AuditEntry
	for _, a := range e.auditEntries(t) {
		if a.TenantID == id {
			out = append(out, a)
		}
	}
	return out
}

// faultyStore wraps a real store and fails selected calls.
type faultyStore struct {
	rent.Store

	mu               sync.Mutex
	failListTenants  bool
	failUpdateFor    map[rent.TenantID]bool
	failFindFor      map[rent.TenantID]bool
	failSumPayments  bool
}

func (s *faultyStore) ListTenants(ctx context.Context) ([]rent.Tenant, error) {
	s.mu.Lock()
	fail := s.failListTenants
	s.mu.Unlock()
	if fail {
		return nil, errBackend
	}
	return s.Store.ListTenants(ctx)
}

func (s *faultyStore) FindTenant(ctx context.Context, id rent.TenantID) (*rent.Tenant, error) {
	s.mu.Lock()
	fail := s.failFindFor[id]
	s.mu.Unlock()
	if fail {
		return nil, errBackend
	}
	return s.Store.FindTenant(ctx, id)
}

func (s *faultyStore) UpdateTenantBalance(ctx context.Context, id rent.TenantID, u rent.BalanceUpdate) error {
	s.mu.Lock()
	fail := s.failUpdateFor[id]
	s.mu.Unlock()
	if fail {
		return errBackend
	}
	return s.Store.UpdateTenantBalance(ctx, id, u)
}

func (s *faultyStore) SumPaymentsForTenant(ctx context.Context, id rent.TenantID) (decimal.Decimal, error) {
	s.mu.Lock()
	fail := s.failSumPayments
	s.mu.Unlock()
	if fail {
		return decimal.Zero, errBackend
	}
	return s.Store.SumPaymentsForTenant(ctx, id)
}

func (s *faultyStore) failUpdate(id rent.TenantID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpdateFor == nil {
		s.failUpdateFor = make(map[rent.TenantID]bool)
	}
	s.failUpdateFor[id] = true
}

func (s *faultyStore) failFind(id rent.TenantID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFindFor == nil {
		s.failFindFor = make(map[rent.TenantID]bool)
	}
	s.failFindFor[id] = true
}

// recordingPublisher captures published events.
type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	events []any
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.events = append(p.events, event)
	return p.err
}

// countingMetrics records metric calls.
type countingMetrics struct {
	mu              sync.Mutex
	payments        int
	recomputeFailed int
	outcomes        map[rent.RolloverOutcome]int
}

func (m *countingMetrics) PaymentRecorded(rent.PaymentMethod) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments++
}

func (m *countingMetrics) RecomputeFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recomputeFailed++
}

func (m *countingMetrics) RolloverOutcome(o rent.RolloverOutcome) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outcomes == nil {
		m.outcomes = make(map[rent.RolloverOutcome]int)
	}
	m.outcomes[o]++
}
