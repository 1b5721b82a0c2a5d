/*
scheduler.go - Monthly rollover and daily reconcile scheduler

PURPOSE:
  Runs the monthly rollover once per calendar month on a configured day and
  hour, and a ReconcileAll sweep once per day after a configured hour.

DESIGN:
  - A background goroutine wakes every CheckInterval and asks "is anything
    due?". Missed slots (server down at 02:00 on the 2nd) are caught up on
    the next tick, because due-ness is "at or after the slot", not "at".
  - The rollover is guarded by the persisted run marker, so several
    instances ticking at once still process a period once. The loser sees
    rent.ErrPeriodAlreadyRolledOver and moves on.
  - The daily reconcile waits until the current month is rolled over.
    Recomputing first would stamp the new month into every tenant's
    balance period and the rollover would then skip them all.

CONFIGURATION:
  - Enabled:       monthly rollover on/off (reconcile always runs)
  - Day, Hour:     rollover slot, default 02:00 on the 2nd
  - ReconcileHour: daily reconcile slot, default midnight
  - CheckInterval: tick period, default one minute

USAGE:
  s := NewRolloverScheduler(job, ledger, store, cfg, logger)
  s.Start(ctx)
  // ... later
  s.Stop(ctx)

SEE ALSO:
  - handlers.go: TriggerRollover / TriggerReconcile (manual runs)
  - rent/rollover.go: RolloverJob
*/
package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/warp/rent-ledger/rent"
	"go.uber.org/zap"
)

// ScheduleConfig holds the scheduler slots.
type ScheduleConfig struct {
	Enabled       bool
	Day           int
	Hour          int
	ReconcileHour int
	CheckInterval time.Duration
}

// RolloverScheduler drives the periodic jobs.
type RolloverScheduler struct {
	Rollover *rent.RolloverJob
	Ledger   *rent.Ledger
	Runs     rent.RunStore
	Config   ScheduleConfig
	Logger   *zap.Logger

	// Now defaults to the ledger clock.
	Now func() time.Time

	mu            sync.Mutex
	cancel        context.CancelFunc
	done          chan struct{}
	lastReconcile string // YYYY-MM-DD of the last successful sweep
}

// NewRolloverScheduler creates a new scheduler.
func NewRolloverScheduler(job *rent.RolloverJob, ledger *rent.Ledger, runs rent.RunStore, cfg ScheduleConfig, logger *zap.Logger) *RolloverScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = time.Minute
	}
	return &RolloverScheduler{
		Rollover: job,
		Ledger:   ledger,
		Runs:     runs,
		Config:   cfg,
		Logger:   logger.Named("scheduler"),
		Now:      ledger.Now,
	}
}

// Start begins the scheduler. It checks once immediately, then every
// CheckInterval until Stop is called or ctx is cancelled.
func (s *RolloverScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx, s.done)

	s.Logger.Info("scheduler started",
		zap.Duration("check_interval", s.Config.CheckInterval),
		zap.Bool("rollover_enabled", s.Config.Enabled),
		zap.Int("rollover_day", s.Config.Day),
		zap.Int("rollover_hour", s.Config.Hour),
		zap.Int("reconcile_hour", s.Config.ReconcileHour))
}

// Stop cancels the loop and waits for an in-flight check to return, or for
// ctx to expire.
func (s *RolloverScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		s.Logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *RolloverScheduler) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.Config.CheckInterval)
	defer ticker.Stop()

	s.checkAndProcess(ctx)
	for {
		select {
		case <-ticker.C:
			s.checkAndProcess(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// RunNow performs one check synchronously.
func (s *RolloverScheduler) RunNow(ctx context.Context) {
	s.checkAndProcess(ctx)
}

func (s *RolloverScheduler) checkAndProcess(ctx context.Context) {
	now := s.Now()
	period := rent.MonthOf(now)

	rolledOver := !s.Config.Enabled
	if s.Config.Enabled && s.rolloverDue(now) {
		rolledOver = s.ensureRolledOver(ctx, period)
	}

	if rolledOver && s.reconcileDue(now) {
		if _, err := s.Ledger.ReconcileAll(ctx); err != nil {
			s.Logger.Error("daily reconcile failed", zap.Error(err))
			return
		}
		s.mu.Lock()
		s.lastReconcile = now.Format(time.DateOnly)
		s.mu.Unlock()
	}
}

// rolloverDue reports whether the rollover slot of now's month has passed.
func (s *RolloverScheduler) rolloverDue(now time.Time) bool {
	day := now.Day()
	return day > s.Config.Day || (day == s.Config.Day && now.Hour() >= s.Config.Hour)
}

func (s *RolloverScheduler) reconcileDue(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Hour() >= s.Config.ReconcileHour && s.lastReconcile != now.Format(time.DateOnly)
}

// ensureRolledOver runs the rollover for period unless it already completed.
// It reports whether the period is rolled over afterwards.
func (s *RolloverScheduler) ensureRolledOver(ctx context.Context, period rent.Month) bool {
	log := s.Logger.With(zap.String("period", period.String()))

	done, err := s.Runs.IsPeriodRolledOver(ctx, period)
	if err != nil {
		log.Error("checking rollover status failed", zap.Error(err))
		return false
	}
	if done {
		return true
	}

	summary, err := s.Rollover.Run(ctx, period)
	switch {
	case errors.Is(err, rent.ErrPeriodAlreadyRolledOver):
		log.Info("rollover claimed elsewhere")
		return false
	case err != nil:
		log.Error("scheduled rollover failed", zap.Error(err))
		return false
	}

	log.Info("scheduled rollover completed",
		zap.Int("processed", summary.Processed()),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed))
	return true
}
