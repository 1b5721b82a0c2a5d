package api

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/rent-ledger/rent"
	"github.com/warp/rent-ledger/rent/store"
)

type schedulerEnv struct {
	mem       *store.Memory
	clock     *testClock
	ledger    *rent.Ledger
	scheduler *RolloverScheduler
}

func newSchedulerEnv(t *testing.T, cfg ScheduleConfig, now time.Time) *schedulerEnv {
	t.Helper()
	mem := store.NewMemory()
	clock := &testClock{now: now}
	ledger := rent.NewLedger(mem, rent.WithClock(clock.Now))
	job := rent.NewRolloverJob(mem, rent.WithClock(clock.Now))

	_, err := ledger.OnboardTenant(context.Background(), rent.Tenant{
		ID:         "t-1",
		Code:       "101",
		Name:       "Amina",
		Rent:       decimal.NewFromInt(10000),
		LeaseStart: time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	return &schedulerEnv{
		mem:       mem,
		clock:     clock,
		ledger:    ledger,
		scheduler: NewRolloverScheduler(job, ledger, mem, cfg, nil),
	}
}

func defaultSchedule() ScheduleConfig {
	return ScheduleConfig{Enabled: true, Day: 2, Hour: 2, ReconcileHour: 0, CheckInterval: time.Hour}
}

func (e *schedulerEnv) runs(t *testing.T) []rent.RolloverRun {
	t.Helper()
	runs, err := e.mem.ListRolloverRuns(context.Background())
	require.NoError(t, err)
	return runs
}

func (e *schedulerEnv) reconcileCount(t *testing.T) int {
	t.Helper()
	entries, _, err := e.mem.ListAudit(context.Background(), rent.AuditFilter{})
	require.NoError(t, err)
	n := 0
	for _, entry := range entries {
		if entry.Event == rent.EventBalanceUpdate {
			n++
		}
	}
	return n
}

func at(month time.Month, day, hour int) time.Time {
	return time.Date(2024, month, day, hour, 0, 0, 0, time.UTC)
}

// =============================================================================
// SLOT DETECTION
// =============================================================================

func TestScheduler_BeforeRolloverSlot_DoesNothing(t *testing.T) {
	// GIVEN: April 2nd at 01:00, one hour before the rollover slot
	e := newSchedulerEnv(t, defaultSchedule(), at(time.March, 15, 10))
	e.clock.Set(at(time.April, 2, 1))

	// WHEN: The scheduler ticks
	e.scheduler.RunNow(context.Background())

	// THEN: No rollover, and the reconcile waits for it
	assert.Empty(t, e.runs(t))
	assert.Equal(t, 0, e.reconcileCount(t))
}

func TestScheduler_AtSlot_RollsOverThenReconciles(t *testing.T) {
	// GIVEN: A tenant cached for March, now 02:00 on April 2nd
	e := newSchedulerEnv(t, defaultSchedule(), at(time.March, 15, 10))
	e.clock.Set(at(time.April, 2, 2))

	// WHEN: The scheduler ticks
	e.scheduler.RunNow(context.Background())

	// THEN: April is rolled over exactly once and the daily sweep ran after it
	runs := e.runs(t)
	require.Len(t, runs, 1)
	assert.Equal(t, rent.NewMonth(2024, time.April), runs[0].Period)
	assert.Equal(t, rent.RunCompleted, runs[0].Status)
	assert.Equal(t, 1, e.reconcileCount(t))

	entries, _, err := e.mem.ListAudit(context.Background(), rent.AuditFilter{Status: ptr(rent.StatusPending)})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, rent.EventUnpaidRent, entries[0].Event)

	tn, err := e.mem.FindTenant(context.Background(), "t-1")
	require.NoError(t, err)
	assert.True(t, tn.Arrears.Equal(decimal.NewFromInt(20000)), "arrears: %s", tn.Arrears)
}

func TestScheduler_RepeatedTicks_RunEachJobOnce(t *testing.T) {
	e := newSchedulerEnv(t, defaultSchedule(), at(time.April, 2, 3))

	e.scheduler.RunNow(context.Background())
	e.clock.Set(at(time.April, 2, 4))
	e.scheduler.RunNow(context.Background())

	assert.Len(t, e.runs(t), 1)
	assert.Equal(t, 1, e.reconcileCount(t))

	// Next day: the rollover stays done, the sweep runs again.
	e.clock.Set(at(time.April, 3, 0))
	e.scheduler.RunNow(context.Background())

	assert.Len(t, e.runs(t), 1)
	assert.Equal(t, 2, e.reconcileCount(t))
}

func TestScheduler_CatchesUpMissedSlot(t *testing.T) {
	// GIVEN: The server was down on the 2nd and comes back on the 20th
	e := newSchedulerEnv(t, defaultSchedule(), at(time.March, 15, 10))
	e.clock.Set(at(time.April, 20, 9))

	e.scheduler.RunNow(context.Background())

	require.Len(t, e.runs(t), 1)
	assert.Equal(t, rent.NewMonth(2024, time.April), e.runs(t)[0].Period)
}

func TestScheduler_RolloverDisabled_ReconcileStillRuns(t *testing.T) {
	cfg := defaultSchedule()
	cfg.Enabled = false
	e := newSchedulerEnv(t, cfg, at(time.April, 5, 1))

	e.scheduler.RunNow(context.Background())

	assert.Empty(t, e.runs(t))
	assert.Equal(t, 1, e.reconcileCount(t))
}

func TestScheduler_ReconcileHour(t *testing.T) {
	cfg := defaultSchedule()
	cfg.Enabled = false
	cfg.ReconcileHour = 6
	e := newSchedulerEnv(t, cfg, at(time.April, 5, 5))

	e.scheduler.RunNow(context.Background())
	assert.Equal(t, 0, e.reconcileCount(t))

	e.clock.Set(at(time.April, 5, 6))
	e.scheduler.RunNow(context.Background())
	assert.Equal(t, 1, e.reconcileCount(t))
}

func TestScheduler_PeriodClaimedElsewhere_SkipsReconcile(t *testing.T) {
	// GIVEN: Another instance holds a running claim on April
	e := newSchedulerEnv(t, defaultSchedule(), at(time.April, 2, 3))
	_, err := e.mem.ClaimRolloverPeriod(context.Background(), rent.NewMonth(2024, time.April), at(time.April, 2, 2))
	require.NoError(t, err)

	// WHEN: This instance ticks
	e.scheduler.RunNow(context.Background())

	// THEN: It neither runs the rollover nor reconciles ahead of it
	runs := e.runs(t)
	require.Len(t, runs, 1)
	assert.Equal(t, rent.RunRunning, runs[0].Status)
	assert.Equal(t, 0, e.reconcileCount(t))
}

// =============================================================================
// LIFECYCLE
// =============================================================================

func TestScheduler_StartStop(t *testing.T) {
	e := newSchedulerEnv(t, defaultSchedule(), at(time.April, 2, 3))

	e.scheduler.Start(context.Background())
	e.scheduler.Start(context.Background()) // second start is a no-op

	require.Eventually(t, func() bool {
		return e.reconcileCount(t) == 1
	}, 2*time.Second, 10*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, e.scheduler.Stop(stopCtx))
	assert.NoError(t, e.scheduler.Stop(stopCtx))
	assert.Len(t, e.runs(t), 1)
}

func ptr[T any](v T) *T {
	return &v
}
