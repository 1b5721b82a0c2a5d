package rent

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// runtime holds the collaborators shared by Ledger and RolloverJob.
type runtime struct {
	logger    *zap.Logger
	publisher Publisher
	metrics   Metrics
	clock     func() time.Time
	location  *time.Location
	currency  string
}

func newRuntime(opts []Option) runtime {
	rt := runtime{
		logger:    zap.NewNop(),
		publisher: noopPublisher{},
		metrics:   noopMetrics{},
		clock:     time.Now,
		location:  time.UTC,
		currency:  "Ksh",
	}
	for _, opt := range opts {
		opt(&rt)
	}
	return rt
}

// Option configures a Ledger or RolloverJob.
type Option func(*runtime)

func WithLogger(l *zap.Logger) Option {
	return func(rt *runtime) {
		if l != nil {
			rt.logger = l
		}
	}
}

func WithPublisher(p Publisher) Option {
	return func(rt *runtime) {
		if p != nil {
			rt.publisher = p
		}
	}
}

func WithMetrics(m Metrics) Option {
	return func(rt *runtime) {
		if m != nil {
			rt.metrics = m
		}
	}
}

// WithClock replaces time.Now. Tests pin the calendar month with it.
func WithClock(clock func() time.Time) Option {
	return func(rt *runtime) {
		if clock != nil {
			rt.clock = clock
		}
	}
}

// WithLocation sets the timezone in which calendar months are evaluated.
func WithLocation(loc *time.Location) Option {
	return func(rt *runtime) {
		if loc != nil {
			rt.location = loc
		}
	}
}

// WithCurrency sets the currency label used in audit messages.
func WithCurrency(c string) Option {
	return func(rt *runtime) {
		if c != "" {
			rt.currency = c
		}
	}
}

// Now returns the current time in the configured location.
func (rt runtime) Now() time.Time {
	return rt.clock().In(rt.location)
}

func (rt runtime) publish(ctx context.Context, topic string, event any) {
	if err := rt.publisher.Publish(ctx, topic, event); err != nil {
		rt.logger.Warn("event publish failed", zap.String("topic", topic), zap.Error(err))
	}
}
