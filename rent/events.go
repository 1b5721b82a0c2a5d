package rent

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Topics published by the engine.
const (
	TopicPaymentRecorded = "rent.payment.recorded"
	TopicRolloverOutcome = "rent.rollover.outcome"
)

// Publisher delivers domain events to downstream consumers. Publishing is
// best effort: a failure is logged and never undoes a ledger write.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
}

// PaymentRecordedEvent is published after a payment insert and recompute.
type PaymentRecordedEvent struct {
	PaymentID  PaymentID       `json:"payment_id"`
	TenantID   TenantID        `json:"tenant_id"`
	Amount     decimal.Decimal `json:"amount"`
	Method     PaymentMethod   `json:"method"`
	Actor      Actor           `json:"actor"`
	PaidAt     time.Time       `json:"paid_at"`
	Credit     decimal.Decimal `json:"credit"`
	Arrears    decimal.Decimal `json:"arrears"`
	Recomputed bool            `json:"recomputed"`
}

func (e PaymentRecordedEvent) EventKey() string { return string(e.TenantID) }

// RolloverOutcomeEvent is published once per tenant per rollover.
type RolloverOutcomeEvent struct {
	Period   string          `json:"period"`
	TenantID TenantID        `json:"tenant_id"`
	Outcome  RolloverOutcome `json:"outcome"`
	Applied  decimal.Decimal `json:"applied"`
	Credit   decimal.Decimal `json:"credit"`
	Arrears  decimal.Decimal `json:"arrears"`
}

func (e RolloverOutcomeEvent) EventKey() string { return string(e.TenantID) }

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, string, any) error { return nil }

// Metrics receives engine counters.
type Metrics interface {
	PaymentRecorded(method PaymentMethod)
	RecomputeFailed()
	RolloverOutcome(outcome RolloverOutcome)
}

type noopMetrics struct{}

func (noopMetrics) PaymentRecorded(PaymentMethod)   {}
func (noopMetrics) RecomputeFailed()                {}
func (noopMetrics) RolloverOutcome(RolloverOutcome) {}
