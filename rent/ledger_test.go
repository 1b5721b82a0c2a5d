package rent_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/rent-ledger/rent"
	"github.com/warp/rent-ledger/rent/store"
)

func january2024() time.Time {
	return time.Date(2024, time.January, 10, 0, 0, 0, 0, time.UTC)
}

// =============================================================================
// ONBOARDING
// =============================================================================

func TestOnboardTenant_ComputesInitialBalance(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	tn, err := e.ledger.OnboardTenant(ctx, rent.Tenant{
		Code:       "T-001",
		Name:       "Amina Otieno",
		Rent:       ksh(5000),
		LeaseStart: january2024(),
		Credit:     ksh(99999), // ignored
	})
	require.NoError(t, err)

	assert.NotEmpty(t, tn.ID)
	assert.True(t, tn.Arrears.Equal(ksh(15000)))
	assert.True(t, tn.Credit.IsZero())
	assert.Equal(t, rent.NewMonth(2024, time.March), tn.BalancePeriod)

	stored := e.tenant(t, tn.ID)
	assert.True(t, stored.Arrears.Equal(ksh(15000)))
}

func TestOnboardTenant_Validation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.ledger.OnboardTenant(ctx, rent.Tenant{Code: "T-1", Rent: ksh(100)})
	assert.ErrorIs(t, err, rent.ErrInvalidTenant)

	_, err = e.ledger.OnboardTenant(ctx, rent.Tenant{Name: "No Code", Rent: ksh(100)})
	assert.ErrorIs(t, err, rent.ErrInvalidTenant)

	_, err = e.ledger.OnboardTenant(ctx, rent.Tenant{Code: "T-1", Name: "Neg", Rent: ksh(-1)})
	var verr *rent.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "rent", verr.Field)
	assert.True(t, rent.IsClientError(err))
}

func TestOnboardTenant_DuplicateCodeRejected(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.ledger.OnboardTenant(ctx, rent.Tenant{Code: "T-1", Name: "First", Rent: ksh(100)})
	require.NoError(t, err)
	_, err = e.ledger.OnboardTenant(ctx, rent.Tenant{Code: "T-1", Name: "Second", Rent: ksh(100)})

	assert.ErrorIs(t, err, rent.ErrDuplicateTenantCode)
	assert.True(t, rent.IsConflict(err))
}

// =============================================================================
// PER-PAYMENT RECOMPUTE
// =============================================================================

func TestRecordPayment_RecomputesFromFullLedger(t *testing.T) {
	// GIVEN: Rent 5000, lease started in January (3 months due in March),
	//        prior payments totalling 12000
	// WHEN: A new payment of 5000 is recorded
	// THEN: Paid 17000 vs due 15000, credit 2000, arrears 0

	e := newEnv(t)
	ctx := context.Background()
	tn := e.seedTenant(t, rent.Tenant{ID: "t-1", Name: "Amina", Rent: ksh(5000), LeaseStart: january2024()})

	_, err := e.ledger.RecordPayment(ctx, rent.Payment{TenantID: tn.ID, Amount: ksh(7000)})
	require.NoError(t, err)
	_, err = e.ledger.RecordPayment(ctx, rent.Payment{TenantID: tn.ID, Amount: ksh(5000)})
	require.NoError(t, err)
	require.True(t, e.tenant(t, tn.ID).Arrears.Equal(ksh(3000)))

	p, err := e.ledger.RecordPayment(ctx, rent.Payment{TenantID: tn.ID, Amount: ksh(5000)})
	require.NoError(t, err)

	got := e.tenant(t, tn.ID)
	assert.True(t, got.Credit.Equal(ksh(2000)), "credit %s", got.Credit)
	assert.True(t, got.Arrears.IsZero())
	assert.Equal(t, rent.NewMonth(2024, time.March), got.BalancePeriod)

	assert.Equal(t, rent.MethodMpesa, p.Method, "method defaults to Mpesa")
	assert.Equal(t, rent.ActorTenant, p.Actor, "actor defaults to Tenant")
	assert.Equal(t, "Amina", p.TenantName)
	assert.Equal(t, rent.NewMonth(2024, time.March), p.CoversMonth)
	assert.Len(t, e.payments(t, tn.ID), 3)
}

func TestRecordPayment_RecomputeIgnoresStaleCache(t *testing.T) {
	// GIVEN: A cached balance that has drifted from the ledger
	// WHEN: Any payment is recorded
	// THEN: The cache is rebuilt, not adjusted

	e := newEnv(t)
	ctx := context.Background()
	tn := e.seedTenant(t, rent.Tenant{
		ID: "t-1", Name: "Drift", Rent: ksh(1000),
		LeaseStart: time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC),
		Credit:     ksh(50000),
	})

	_, err := e.ledger.RecordPayment(ctx, rent.Payment{TenantID: tn.ID, Amount: ksh(400)})
	require.NoError(t, err)

	got := e.tenant(t, tn.ID)
	assert.True(t, got.Credit.IsZero())
	assert.True(t, got.Arrears.Equal(ksh(600)))
}

func TestRecordPayment_RecomputeFailure_PaymentStillDurable(t *testing.T) {
	// GIVEN: The tenant lookup fails after the insert
	// WHEN: A payment is recorded
	// THEN: No error to the caller, payment is stored, failure is counted

	e := newEnv(t)
	metrics := &countingMetrics{}
	ledger := rent.NewLedger(e.store, rent.WithClock(e.clock.Now), rent.WithMetrics(metrics))
	tn := e.seedTenant(t, rent.Tenant{ID: "t-1", Name: "Flaky", Rent: ksh(1000), Arrears: ksh(1000)})
	e.store.failFind(tn.ID)

	_, err := ledger.RecordPayment(context.Background(), rent.Payment{TenantID: tn.ID, Amount: ksh(1000)})
	require.NoError(t, err)

	assert.Len(t, e.payments(t, tn.ID), 1)
	assert.True(t, e.tenant(t, tn.ID).Arrears.Equal(ksh(1000)), "cache untouched")
	assert.Equal(t, 1, metrics.payments)
	assert.Equal(t, 1, metrics.recomputeFailed)
}

func TestRecordPayment_UnknownTenant_StillInserted(t *testing.T) {
	e := newEnv(t)

	p, err := e.ledger.RecordPayment(context.Background(), rent.Payment{TenantID: "ghost", Amount: ksh(300)})
	require.NoError(t, err)

	assert.Equal(t, rent.TenantID("ghost"), p.TenantID)
	assert.Len(t, e.payments(t, "ghost"), 1)
}

func TestRecordPayment_InsertFailure_Returned(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	tn := e.seedTenant(t, rent.Tenant{ID: "t-1", Name: "Dup", Rent: ksh(1000)})

	_, err := e.ledger.RecordPayment(ctx, rent.Payment{TenantID: tn.ID, Amount: ksh(1000), IdempotencyKey: "mpesa-QWE123"})
	require.NoError(t, err)
	_, err = e.ledger.RecordPayment(ctx, rent.Payment{TenantID: tn.ID, Amount: ksh(1000), IdempotencyKey: "mpesa-QWE123"})

	assert.ErrorIs(t, err, rent.ErrDuplicateIdempotencyKey)
	assert.Len(t, e.payments(t, tn.ID), 1)
	assert.True(t, e.tenant(t, tn.ID).Arrears.IsZero())
}

func TestRecordPayment_Validation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		p     rent.Payment
		field string
	}{
		{"missing tenant", rent.Payment{Amount: ksh(1)}, "tenant_id"},
		{"negative amount", rent.Payment{TenantID: "t", Amount: ksh(-1)}, "amount"},
		{"unknown method", rent.Payment{TenantID: "t", Amount: ksh(1), Method: "Cheque"}, "method"},
		{"synthetic method", rent.Payment{TenantID: "t", Amount: ksh(1), Method: rent.MethodCreditCarryForward}, "method"},
		{"system actor", rent.Payment{TenantID: "t", Amount: ksh(1), Actor: rent.ActorSystem}, "actor"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.ledger.RecordPayment(ctx, tt.p)
			var verr *rent.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.ErrorIs(t, err, rent.ErrInvalidPayment)
		})
	}
}

func TestRecordPayment_ZeroAmountAccepted(t *testing.T) {
	e := newEnv(t)

	_, err := e.ledger.RecordPayment(context.Background(), rent.Payment{TenantID: "t", Amount: ksh(0)})
	assert.NoError(t, err)
}

func TestRecordPayment_PublishesEvent(t *testing.T) {
	e := newEnv(t)
	pub := &recordingPublisher{err: errors.New("broker down")}
	ledger := rent.NewLedger(e.store, rent.WithClock(e.clock.Now), rent.WithPublisher(pub))
	tn := e.seedTenant(t, rent.Tenant{ID: "t-1", Name: "Evented", Rent: ksh(1000),
		LeaseStart: time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)})

	_, err := ledger.RecordPayment(context.Background(), rent.Payment{TenantID: tn.ID, Amount: ksh(1500)})
	require.NoError(t, err, "publish failures never fail the payment")

	require.Len(t, pub.events, 1)
	assert.Equal(t, rent.TopicPaymentRecorded, pub.topics[0])
	ev := pub.events[0].(rent.PaymentRecordedEvent)
	assert.True(t, ev.Recomputed)
	assert.True(t, ev.Credit.Equal(ksh(500)))
	assert.Equal(t, "t-1", ev.EventKey())
}

func TestRecompute_Idempotent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	tn := e.seedTenant(t, rent.Tenant{ID: "t-1", Name: "Twice", Rent: ksh(5000), LeaseStart: january2024()})
	_, err := e.ledger.RecordPayment(ctx, rent.Payment{TenantID: tn.ID, Amount: ksh(8000)})
	require.NoError(t, err)

	first, err := e.ledger.Recompute(ctx, tn.ID)
	require.NoError(t, err)
	second, err := e.ledger.Recompute(ctx, tn.ID)
	require.NoError(t, err)

	assert.Equal(t, first.Credit.String(), second.Credit.String())
	assert.Equal(t, first.Arrears.String(), second.Arrears.String())
	assert.True(t, second.Arrears.Equal(ksh(7000)))
}

func TestRecompute_SumFailure_LeavesCacheUntouched(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	tn := e.seedTenant(t, rent.Tenant{ID: "t-1", Name: "Stale", Rent: ksh(5000), LeaseStart: january2024(), Credit: ksh(300)})
	e.store.failSumPayments = true

	_, err := e.ledger.Recompute(ctx, tn.ID)

	assert.ErrorIs(t, err, errBackend)
	assert.True(t, e.tenant(t, tn.ID).Credit.Equal(ksh(300)))
}

func TestRecompute_TenantNotFound(t *testing.T) {
	e := newEnv(t)

	_, err := e.ledger.Recompute(context.Background(), "missing")

	assert.ErrorIs(t, err, rent.ErrTenantNotFound)
	assert.True(t, rent.IsNotFound(err))
}

func TestRecordPayment_ConcurrentPayments_NoPermanentDrift(t *testing.T) {
	// GIVEN: Ten payments for one tenant recorded concurrently
	// THEN: Every payment is in the ledger and a recompute lands on the
	//       full-ledger value

	e := newEnv(t)
	ctx := context.Background()
	tn := e.seedTenant(t, rent.Tenant{ID: "t-1", Name: "Busy", Rent: ksh(5000), LeaseStart: january2024()})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.ledger.RecordPayment(ctx, rent.Payment{TenantID: tn.ID, Amount: ksh(2000)})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Len(t, e.payments(t, tn.ID), 10)
	b, err := e.ledger.Recompute(ctx, tn.ID)
	require.NoError(t, err)
	assert.True(t, b.Credit.Equal(ksh(5000)))
	assert.True(t, e.tenant(t, tn.ID).Credit.Equal(ksh(5000)))
}

// =============================================================================
// RECONCILE
// =============================================================================

func TestReconcileAll_RepairsDriftAndAudits(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.seedTenant(t, rent.Tenant{ID: "a", Name: "A", Rent: ksh(1000), LeaseStart: january2024(), Credit: ksh(123)})
	b := e.seedTenant(t, rent.Tenant{ID: "b", Name: "B", Rent: ksh(1000), LeaseStart: january2024(), Arrears: ksh(9)})
	require.NoError(t, e.mem.InsertPayment(ctx, rent.Payment{ID: "p1", TenantID: b.ID, Amount: ksh(4000), PaidAt: march2024()}))

	sum, err := e.ledger.ReconcileAll(ctx)
	require.NoError(t, err)

	assert.Equal(t, rent.ReconcileSummary{Updated: 2}, sum)
	assert.True(t, e.tenant(t, a.ID).Arrears.Equal(ksh(3000)))
	assert.True(t, e.tenant(t, a.ID).Credit.IsZero())
	assert.True(t, e.tenant(t, b.ID).Credit.Equal(ksh(1000)))

	entries := e.auditEntries(t)
	require.Len(t, entries, 1)
	assert.Equal(t, rent.EventBalanceUpdate, entries[0].Event)
	assert.Equal(t, rent.StatusSuccess, entries[0].Status)
	assert.Equal(t, "Updated 2 tenants", entries[0].Message)
}

func TestReconcileAll_TenantFailureDoesNotStopSweep(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.seedTenant(t, rent.Tenant{ID: "a", Name: "A", Rent: ksh(1000)})
	bad := e.seedTenant(t, rent.Tenant{ID: "b", Name: "B", Rent: ksh(1000)})
	e.seedTenant(t, rent.Tenant{ID: "c", Name: "C", Rent: ksh(1000)})
	e.store.failUpdate(bad.ID)

	sum, err := e.ledger.ReconcileAll(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, sum.Updated)
	assert.Equal(t, 1, sum.Failed)
}

func TestReconcileAll_ListFailure_AuditsError(t *testing.T) {
	e := newEnv(t)
	e.store.failListTenants = true

	_, err := e.ledger.ReconcileAll(context.Background())
	require.ErrorIs(t, err, errBackend)

	entries := e.auditEntries(t)
	require.Len(t, entries, 1)
	assert.Equal(t, rent.StatusError, entries[0].Status)
	assert.Equal(t, errBackend.Error(), entries[0].Message)
}

// =============================================================================
// COMPLETION RATE
// =============================================================================

func TestCompletionRate(t *testing.T) {
	ctx := context.Background()

	t.Run("no tenants", func(t *testing.T) {
		rate, err := rent.NewLedger(store.NewMemory()).CompletionRate(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, rate)
	})

	t.Run("rounded share of rent not in arrears", func(t *testing.T) {
		e := newEnv(t)
		e.seedTenant(t, rent.Tenant{ID: "a", Name: "A", Rent: ksh(10000), Arrears: ksh(2500)})
		e.seedTenant(t, rent.Tenant{ID: "b", Name: "B", Rent: ksh(10000)})

		rate, err := e.ledger.CompletionRate(ctx)
		require.NoError(t, err)
		assert.Equal(t, 88, rate)
	})

	t.Run("clamped at zero", func(t *testing.T) {
		e := newEnv(t)
		e.seedTenant(t, rent.Tenant{ID: "a", Name: "A", Rent: ksh(1000), Arrears: ksh(5000)})

		rate, err := e.ledger.CompletionRate(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, rate)
	})
}
