/*
rollover.go - Monthly rent carry-forward job

PURPOSE:
  Once per calendar month, charge every tenant the new month's rent against
  whatever credit they already hold.

DECISION TABLE (DecideRollover):
  credit >= rent      full:    credit -= rent, arrears = 0,
                               synthetic payment of rent
  0 < credit < rent   partial: credit = 0, arrears += rent - credit,
                               synthetic payment of credit
  credit <= 0         none:    credit = 0, arrears += rent, no payment

PER-TENANT ORDER:
  synthetic payment insert -> tenant balance update -> audit entry
  Not transactional. A crash between steps is healed by the next recompute.

EXACTLY ONCE:
  The job is not idempotent, so two guards keep a month from being charged
  twice:
    1. Run claims the period in the RunStore first. A running or completed
       period is refused with ErrPeriodAlreadyRolledOver.
    2. A tenant whose BalancePeriod already covers the period is skipped.
       This covers a payment recompute that ran after the month boundary,
       and a failed run being claimed again.

FAILURES:
  - Cannot list tenants: "Cron Error" audit, run marked failed, error returned.
  - One tenant fails: "Rollover Error" audit, batch continues.
*/
package rent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type RolloverOutcome string

const (
	OutcomeFull    RolloverOutcome = "full"
	OutcomePartial RolloverOutcome = "partial"
	OutcomeNone    RolloverOutcome = "none"
	OutcomeSkipped RolloverOutcome = "skipped"
	OutcomeFailed  RolloverOutcome = "failed"
)

// RolloverDecision is the result of applying one month's rent to a cached
// balance.
type RolloverDecision struct {
	Outcome RolloverOutcome
	Credit  decimal.Decimal
	Arrears decimal.Decimal
	Applied decimal.Decimal // credit consumed, zero for OutcomeNone
}

// DecideRollover applies one month of rent to the given credit and arrears.
func DecideRollover(rent, credit, arrears decimal.Decimal) RolloverDecision {
	switch {
	case credit.GreaterThanOrEqual(rent):
		return RolloverDecision{
			Outcome: OutcomeFull,
			Credit:  credit.Sub(rent),
			Arrears: decimal.Zero,
			Applied: rent,
		}
	case credit.IsPositive():
		return RolloverDecision{
			Outcome: OutcomePartial,
			Credit:  decimal.Zero,
			Arrears: arrears.Add(rent.Sub(credit)),
			Applied: credit,
		}
	default:
		return RolloverDecision{
			Outcome: OutcomeNone,
			Credit:  decimal.Zero,
			Arrears: arrears.Add(rent),
			Applied: decimal.Zero,
		}
	}
}

// RolloverSummary counts outcomes for one run.
type RolloverSummary struct {
	Period  Month
	Full    int
	Partial int
	Unpaid  int
	Skipped int
	Failed  int
}

// Processed is the number of tenants whose balance was changed.
func (s RolloverSummary) Processed() int {
	return s.Full + s.Partial + s.Unpaid
}

func (s *RolloverSummary) count(o RolloverOutcome) {
	switch o {
	case OutcomeFull:
		s.Full++
	case OutcomePartial:
		s.Partial++
	case OutcomeNone:
		s.Unpaid++
	case OutcomeSkipped:
		s.Skipped++
	case OutcomeFailed:
		s.Failed++
	}
}

// =============================================================================
// JOB
// =============================================================================

type RolloverJob struct {
	store Store
	runtime
}

func NewRolloverJob(store Store, opts ...Option) *RolloverJob {
	return &RolloverJob{store: store, runtime: newRuntime(opts)}
}

// Run rolls every tenant over into period. It returns
// ErrPeriodAlreadyRolledOver if the period was claimed before, and
// ErrInvalidPeriod for a period later than the current month.
func (j *RolloverJob) Run(ctx context.Context, period Month) (RolloverSummary, error) {
	sum := RolloverSummary{Period: period}
	if period.IsZero() {
		return sum, fmt.Errorf("rollover: %w: empty period", ErrInvalidPeriod)
	}
	if current := MonthOf(j.Now()); period.After(current) {
		return sum, fmt.Errorf("rollover: %w: %s is after the current month %s", ErrInvalidPeriod, period, current)
	}

	run, err := j.store.ClaimRolloverPeriod(ctx, period, j.Now())
	if err != nil {
		return sum, fmt.Errorf("claim %s: %w", period, err)
	}
	log := j.logger.With(zap.String("period", period.String()), zap.String("run_id", run.ID))
	log.Info("rollover started")

	tenants, err := j.store.ListTenants(ctx)
	if err != nil {
		log.Error("rollover cannot list tenants", zap.Error(err))
		writeAudit(ctx, j.store, j.runtime, AuditEntry{Event: EventCronError, Status: StatusError, Message: err.Error()})
		j.finish(ctx, log, run, sum, err)
		return sum, fmt.Errorf("rollover %s: list tenants: %w", period, err)
	}

	for _, t := range tenants {
		if err := ctx.Err(); err != nil {
			j.finish(ctx, log, run, sum, err)
			return sum, fmt.Errorf("rollover %s interrupted: %w", period, err)
		}

		outcome, err := j.rollTenant(ctx, t, period)
		if err != nil {
			outcome = OutcomeFailed
			log.Error("rollover tenant failed", zap.String("tenant_id", string(t.ID)), zap.Error(err))
			writeAudit(ctx, j.store, j.runtime, AuditEntry{
				Event:    EventRolloverError,
				Status:   StatusError,
				Message:  fmt.Sprintf("%s: %v", t.Name, err),
				TenantID: t.ID,
			})
		}
		sum.count(outcome)
		j.metrics.RolloverOutcome(outcome)
	}

	if err := j.finish(ctx, log, run, sum, nil); err != nil {
		return sum, fmt.Errorf("rollover %s: %w", period, err)
	}
	log.Info("rollover completed",
		zap.Int("full", sum.Full),
		zap.Int("partial", sum.Partial),
		zap.Int("unpaid", sum.Unpaid),
		zap.Int("skipped", sum.Skipped),
		zap.Int("failed", sum.Failed))
	return sum, nil
}

// rollTenant applies one tenant's outcome. Errors abort this tenant only.
func (j *RolloverJob) rollTenant(ctx context.Context, t Tenant, period Month) (RolloverOutcome, error) {
	if !t.BalancePeriod.IsZero() && !t.BalancePeriod.Before(period) {
		writeAudit(ctx, j.store, j.runtime, AuditEntry{
			Event:    EventRolloverSkipped,
			Status:   StatusSuccess,
			Message:  fmt.Sprintf("%s balance already includes %s rent", t.Name, period),
			TenantID: t.ID,
		})
		return OutcomeSkipped, nil
	}

	d := DecideRollover(t.Rent, t.Credit, t.Arrears)
	now := j.Now()

	if d.Applied.IsPositive() {
		comment := "Auto-applied using available credit and/or previous payments"
		if d.Outcome == OutcomePartial {
			comment = "Partial auto-payment applied from credit"
		}
		p := Payment{
			ID:             PaymentID(fmt.Sprintf("rollover-%s-%s", period, t.ID)),
			TenantID:       t.ID,
			TenantName:     t.Name,
			Property:       t.Property,
			RoomNumber:     t.RoomNumber,
			Amount:         d.Applied,
			PaidAt:         now,
			CoversMonth:    period,
			Method:         MethodCreditCarryForward,
			Actor:          ActorSystem,
			Comment:        comment,
			IdempotencyKey: fmt.Sprintf("rollover:%s:%s", period, t.ID),
			CreatedAt:      now,
		}
		// A duplicate key means an earlier interrupted run already wrote it.
		if err := j.store.InsertPayment(ctx, p); err != nil && !errors.Is(err, ErrDuplicateIdempotencyKey) {
			return OutcomeFailed, fmt.Errorf("insert carry-forward payment: %w", err)
		}
	}

	if err := j.store.UpdateTenantBalance(ctx, t.ID, BalanceUpdate{Credit: d.Credit, Arrears: d.Arrears, Period: period}); err != nil {
		return OutcomeFailed, fmt.Errorf("update balance: %w", err)
	}

	writeAudit(ctx, j.store, j.runtime, j.outcomeEntry(t, d, now))
	j.publish(ctx, TopicRolloverOutcome, RolloverOutcomeEvent{
		Period:   period.String(),
		TenantID: t.ID,
		Outcome:  d.Outcome,
		Applied:  d.Applied,
		Credit:   d.Credit,
		Arrears:  d.Arrears,
	})
	return d.Outcome, nil
}

func (j *RolloverJob) outcomeEntry(t Tenant, d RolloverDecision, at time.Time) AuditEntry {
	e := AuditEntry{TenantID: t.ID, Timestamp: at}
	switch d.Outcome {
	case OutcomeFull:
		e.Event, e.Status = EventAutoPayment, StatusSuccess
		e.Message = fmt.Sprintf("%s rent cleared automatically. Remaining credit: %s %s", t.Name, j.currency, FormatAmount(d.Credit))
	case OutcomePartial:
		e.Event, e.Status = EventPartialPayment, StatusSuccess
		e.Message = fmt.Sprintf("%s rent partially paid with credit. Arrears carried: %s %s", t.Name, j.currency, FormatAmount(d.Arrears))
	default:
		e.Event, e.Status = EventUnpaidRent, StatusPending
		e.Message = fmt.Sprintf("%s has no payment or credit. New arrears: %s %s", t.Name, j.currency, FormatAmount(d.Arrears))
	}
	return e
}

// finish persists the run result. cause marks the run failed.
func (j *RolloverJob) finish(ctx context.Context, log *zap.Logger, run RolloverRun, sum RolloverSummary, cause error) error {
	done := j.Now()
	run.CompletedAt = &done
	run.Processed = sum.Processed()
	run.Skipped = sum.Skipped
	run.Failed = sum.Failed
	run.Status = RunCompleted
	if cause != nil {
		run.Status = RunFailed
		run.Error = cause.Error()
	}

	// The outer context may already be cancelled; the marker still has to land.
	if err := j.store.FinishRolloverRun(context.WithoutCancel(ctx), run); err != nil {
		log.Error("rollover run not finalized", zap.Error(err))
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}
