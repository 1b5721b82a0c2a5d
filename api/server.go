/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     zap request logging (level follows status)
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. Metrics:    Prometheus request counters, when a collector is given
  5. CORS:       Cross-origin requests for the dashboard

ROUTE GROUPS:
  /api/tenants/*        Tenant records and balances
  /api/payments/*       Manual payments and portfolio stats
  /api/system/*         System log
  /api/admin/*          Rollover and reconcile triggers
  /health               Liveness with a store ping
  /metrics              Prometheus exposition

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/warp/rent-ledger/logging"
	"github.com/warp/rent-ledger/metrics"
)

// RouterOptions configures cross-cutting middleware.
type RouterOptions struct {
	AllowedOrigins []string
	Metrics        *metrics.Collector // nil disables /metrics
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(logging.Middleware(h.Logger))
	r.Use(middleware.Recoverer)
	if opts.Metrics != nil {
		r.Use(opts.Metrics.Middleware)
	}

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", h.Health)
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/tenants", func(r chi.Router) {
			r.Get("/", h.ListTenants)
			r.Post("/", h.CreateTenant)
			r.Get("/{id}", h.GetTenant)
			r.Get("/{id}/balance", h.GetBalance)
			r.Get("/{id}/payments", h.GetPayments)
		})

		r.Route("/payments", func(r chi.Router) {
			r.Post("/", h.RecordPayment)
			r.Get("/completion-rate", h.GetCompletionRate)
		})

		r.Get("/system/system-logs", h.ListSystemLogs)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/rollover", h.TriggerRollover)
			r.Get("/rollover/runs", h.ListRolloverRuns)
			r.Post("/reconcile", h.TriggerReconcile)
		})
	})

	return r
}
