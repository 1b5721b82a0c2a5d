// Package metrics exposes rent engine and HTTP counters to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/warp/rent-ledger/rent"
)

const namespace = "rent"

// Collector implements rent.Metrics on its own registry.
//
// Thread Safety: Safe for concurrent use by multiple goroutines.
type Collector struct {
	registry *prometheus.Registry

	paymentsTotal    *prometheus.CounterVec
	recomputeFailed  prometheus.Counter
	rolloverOutcomes *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

var _ rent.Metrics = (*Collector)(nil)

func New() *Collector {
	c := &Collector{registry: prometheus.NewRegistry()}

	c.paymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_recorded_total",
			Help:      "Payments inserted into the ledger, by method.",
		},
		[]string{"method"},
	)
	c.recomputeFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recompute_failures_total",
			Help:      "Balance recomputes that failed after a payment or during a sweep.",
		},
	)
	c.rolloverOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rollover_outcomes_total",
			Help:      "Per-tenant monthly rollover outcomes.",
		},
		[]string{"outcome"},
	)
	c.httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests served, by route and status code.",
		},
		[]string{"method", "route", "status"},
	)
	c.httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	c.registry.MustRegister(
		c.paymentsTotal,
		c.recomputeFailed,
		c.rolloverOutcomes,
		c.httpRequests,
		c.httpDuration,
		collectors.NewGoCollector(),
	)
	return c
}

func (c *Collector) PaymentRecorded(method rent.PaymentMethod) {
	c.paymentsTotal.WithLabelValues(string(method)).Inc()
}

func (c *Collector) RecomputeFailed() {
	c.recomputeFailed.Inc()
}

func (c *Collector) RolloverOutcome(outcome rent.RolloverOutcome) {
	c.rolloverOutcomes.WithLabelValues(string(outcome)).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Middleware records request counts and latency per chi route pattern, so
// /api/tenants/{id} is one series regardless of the id.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		c.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		c.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
