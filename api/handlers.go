/*
handlers.go - HTTP API handlers for the rent ledger

PURPOSE:
  Exposes the rent engine via REST API. Handles HTTP request/response and
  JSON serialization, and delegates every balance decision to package rent.

ENDPOINTS:
  Tenants:
    GET    /api/tenants                  List tenants (cached balance)
    POST   /api/tenants                  Onboard tenant
    GET    /api/tenants/{id}             Get tenant
    GET    /api/tenants/{id}/balance     Recompute and return balance
    GET    /api/tenants/{id}/payments    Payment history, oldest first

  Payments:
    POST   /api/payments                 Record a manual payment
    GET    /api/payments/completion-rate Share of rent not in arrears

  System:
    GET    /api/system/system-logs       Audit log, paged, newest first

  Admin:
    POST   /api/admin/rollover           Run the monthly rollover now
    POST   /api/admin/reconcile          Recompute every tenant
    GET    /api/admin/rollover/runs      Rollover history

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Tenant not found
  - 409: Duplicate idempotency key or tenant code, period already rolled over
  - 500: Internal errors

SECURITY NOTE:
  No authentication or authorization. Admin routes must sit behind a
  gateway in production.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/warp/rent-ledger/rent"
	"go.uber.org/zap"
)

const (
	defaultLogLimit = 20
	maxLogLimit     = 100
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    rent.Store
	Ledger   *rent.Ledger
	Rollover *rent.RolloverJob
	Logger   *zap.Logger
}

// NewHandler creates a handler. A nil logger discards output.
func NewHandler(store rent.Store, ledger *rent.Ledger, rollover *rent.RolloverJob, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{Store: store, Ledger: ledger, Rollover: rollover, Logger: logger}
}

// =============================================================================
// TENANT HANDLERS
// =============================================================================

// ListTenants returns all tenants with their cached balance.
func (h *Handler) ListTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.Store.ListTenants(r.Context())
	if err != nil {
		h.writeDomainError(w, "Failed to list tenants", err)
		return
	}

	dtos := make([]TenantDTO, len(tenants))
	for i, t := range tenants {
		dtos[i] = toTenantDTO(t)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetTenant returns a single tenant.
func (h *Handler) GetTenant(w http.ResponseWriter, r *http.Request) {
	t, err := h.Store.FindTenant(r.Context(), rent.TenantID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, "Failed to get tenant", err)
		return
	}
	writeJSON(w, http.StatusOK, toTenantDTO(*t))
}

// CreateTenant onboards a tenant and computes its first balance.
func (h *Handler) CreateTenant(w http.ResponseWriter, r *http.Request) {
	var req CreateTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if !validateRequest(w, req) {
		return
	}

	t := rent.Tenant{
		ID:         rent.TenantID(req.ID),
		Code:       req.Code,
		Name:       req.Name,
		Email:      req.Email,
		Phone:      req.Phone,
		Property:   req.Property,
		RoomNumber: req.RoomNumber,
		Rent:       req.Rent,
	}
	if req.LeaseStart != "" {
		start, err := time.ParseInLocation(dateLayout, req.LeaseStart, h.Ledger.Now().Location())
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid lease_start format (use YYYY-MM-DD)", err)
			return
		}
		t.LeaseStart = start
	}

	created, err := h.Ledger.OnboardTenant(r.Context(), t)
	if err != nil {
		h.writeDomainError(w, "Failed to create tenant", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTenantDTO(created))
}

// GetBalance recomputes the tenant's balance from the payment ledger, so
// the figure returned is never stale.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	id := rent.TenantID(chi.URLParam(r, "id"))

	b, err := h.Ledger.BalanceFor(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to compute balance", err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(id, b))
}

// GetPayments returns the tenant's payment history.
func (h *Handler) GetPayments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := rent.TenantID(chi.URLParam(r, "id"))

	if _, err := h.Store.FindTenant(ctx, id); err != nil {
		h.writeDomainError(w, "Failed to get tenant", err)
		return
	}
	payments, err := h.Store.ListPaymentsForTenant(ctx, id)
	if err != nil {
		h.writeDomainError(w, "Failed to list payments", err)
		return
	}

	dtos := make([]PaymentDTO, len(payments))
	for i, p := range payments {
		dtos[i] = toPaymentDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

// RecordPayment inserts a manual payment. The balance recompute that
// follows never fails the request; see rent.Ledger.RecordPayment.
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var req RecordPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if !validateRequest(w, req) {
		return
	}

	p := rent.Payment{
		TenantID:       rent.TenantID(req.TenantID),
		Amount:         req.Amount,
		Method:         rent.PaymentMethod(req.Method),
		Actor:          rent.Actor(req.Actor),
		Comment:        req.Comment,
		IdempotencyKey: req.IdempotencyKey,
	}
	if key := strings.TrimSpace(r.Header.Get("Idempotency-Key")); key != "" {
		p.IdempotencyKey = key
	}
	if req.PaidAt != "" {
		paidAt, err := h.parsePaidAt(req.PaidAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid paid_at format (use RFC 3339 or YYYY-MM-DD)", err)
			return
		}
		p.PaidAt = paidAt
	}
	if req.CoversMonth != "" {
		m, err := rent.ParseMonth(req.CoversMonth)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid covers_month format (use YYYY-MM)", err)
			return
		}
		p.CoversMonth = m
	}

	recorded, err := h.Ledger.RecordPayment(r.Context(), p)
	if err != nil {
		h.writeDomainError(w, "Failed to record payment", err)
		return
	}
	writeJSON(w, http.StatusCreated, toPaymentDTO(recorded))
}

func (h *Handler) parsePaidAt(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation(dateLayout, s, h.Ledger.Now().Location())
}

// GetCompletionRate returns the portfolio rent completion percentage.
func (h *Handler) GetCompletionRate(w http.ResponseWriter, r *http.Request) {
	rate, err := h.Ledger.CompletionRate(r.Context())
	if err != nil {
		h.writeDomainError(w, "Failed to compute completion rate", err)
		return
	}
	writeJSON(w, http.StatusOK, CompletionRateDTO{CompletionRate: rate})
}

// =============================================================================
// SYSTEM LOG
// =============================================================================

// ListSystemLogs pages through the audit log.
// Query: page (1-based), limit (max 100), status (All, Success, Error, Pending).
func (h *Handler) ListSystemLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	page, err := positiveInt(q.Get("page"), 1)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid page", err)
		return
	}
	limit, err := positiveInt(q.Get("limit"), defaultLogLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid limit", err)
		return
	}
	limit = min(limit, maxLogLimit)

	filter := rent.AuditFilter{Limit: limit, Offset: (page - 1) * limit}
	if status := q.Get("status"); status != "" && !strings.EqualFold(status, "All") {
		s := rent.AuditStatus(status)
		if !s.IsValid() {
			writeError(w, http.StatusBadRequest, "Invalid status (use All, Success, Error or Pending)", nil)
			return
		}
		filter.Status = &s
	}

	entries, total, err := h.Store.ListAudit(r.Context(), filter)
	if err != nil {
		h.writeDomainError(w, "Failed to list system logs", err)
		return
	}

	logs := make([]AuditEntryDTO, len(entries))
	for i, e := range entries {
		logs[i] = toAuditEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, SystemLogsResponse{
		Logs:       logs,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: (total + limit - 1) / limit,
	})
}

func positiveInt(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, fmt.Errorf("must be at least 1 (got %d)", n)
	}
	return n, nil
}

// =============================================================================
// ADMIN
// =============================================================================

// TriggerRollover runs the monthly rollover for the requested period, or the
// current month when none is given. A second call for the same period is
// refused with 409.
func (h *Handler) TriggerRollover(w http.ResponseWriter, r *http.Request) {
	var req RolloverRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}
	if !validateRequest(w, req) {
		return
	}

	period := rent.MonthOf(h.Ledger.Now())
	if req.Period != "" {
		m, err := rent.ParseMonth(req.Period)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid period format (use YYYY-MM)", err)
			return
		}
		period = m
	}

	// The batch runs to completion even if the client goes away.
	summary, err := h.Rollover.Run(context.WithoutCancel(r.Context()), period)
	if err != nil {
		h.writeDomainError(w, "Rollover failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toRolloverResultDTO(summary))
}

// TriggerReconcile recomputes every tenant balance.
func (h *Handler) TriggerReconcile(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Ledger.ReconcileAll(context.WithoutCancel(r.Context()))
	if err != nil {
		h.writeDomainError(w, "Reconcile failed", err)
		return
	}
	writeJSON(w, http.StatusOK, ReconcileResultDTO{Updated: summary.Updated, Failed: summary.Failed})
}

// ListRolloverRuns returns the rollover history, newest period first.
func (h *Handler) ListRolloverRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.Store.ListRolloverRuns(r.Context())
	if err != nil {
		h.writeDomainError(w, "Failed to list rollover runs", err)
		return
	}

	dtos := make([]RolloverRunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toRolloverRunDTO(run)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HEALTH
// =============================================================================

type pinger interface {
	Ping(ctx context.Context) error
}

// Health reports whether the store is reachable.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.Store.(pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "Database unavailable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps engine errors to HTTP status codes.
func (h *Handler) writeDomainError(w http.ResponseWriter, message string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.Logger.Error(message, zap.Error(err))
	}
	writeError(w, status, message, err)
}

func statusFor(err error) int {
	switch {
	case rent.IsClientError(err):
		return http.StatusBadRequest
	case rent.IsNotFound(err):
		return http.StatusNotFound
	case rent.IsConflict(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
