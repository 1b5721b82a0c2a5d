/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication, decoupled from the
  rent package types so fields can be renamed without touching the engine.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Envelope types (paging, results)

MONEY:
  Amounts are decimal.Decimal and serialize as JSON strings ("5000.50").
  Requests accept either a string or a bare number.

DATES:
  Timestamps are RFC 3339. Lease start accepts YYYY-MM-DD. Months are YYYY-MM.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/rent-ledger/rent"
)

const dateLayout = "2006-01-02"

// =============================================================================
// TENANTS
// =============================================================================

// TenantDTO represents a tenant in API responses.
type TenantDTO struct {
	ID            string          `json:"id"`
	Code          string          `json:"code"`
	Name          string          `json:"name"`
	Email         string          `json:"email,omitempty"`
	Phone         string          `json:"phone,omitempty"`
	Property      string          `json:"property,omitempty"`
	RoomNumber    string          `json:"room_number,omitempty"`
	Rent          decimal.Decimal `json:"rent"`
	LeaseStart    string          `json:"lease_start,omitempty"`
	Credit        decimal.Decimal `json:"credit"`
	Arrears       decimal.Decimal `json:"arrears"`
	BalancePeriod string          `json:"balance_period,omitempty"`
	CreatedAt     string          `json:"created_at"`
}

// CreateTenantRequest is the request to onboard a tenant.
type CreateTenantRequest struct {
	ID         string          `json:"id,omitempty"          validate:"max=64"`
	Code       string          `json:"code"                  validate:"required,max=32"`
	Name       string          `json:"name"                  validate:"required,max=120"`
	Email      string          `json:"email"                 validate:"omitempty,email"`
	Phone      string          `json:"phone"                 validate:"max=32"`
	Property   string          `json:"property"              validate:"max=120"`
	RoomNumber string          `json:"room_number"           validate:"max=32"`
	Rent       decimal.Decimal `json:"rent"`
	LeaseStart string          `json:"lease_start,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// BalanceDTO is the recomputed balance shown to a tenant.
type BalanceDTO struct {
	TenantID      string          `json:"tenant_id"`
	Rent          decimal.Decimal `json:"rent"`
	MonthsElapsed int             `json:"months_elapsed"`
	Paid          decimal.Decimal `json:"paid"`
	TotalRentDue  decimal.Decimal `json:"total_rent_due"`
	Balance       decimal.Decimal `json:"balance"`
	Credit        decimal.Decimal `json:"credit"`
	Arrears       decimal.Decimal `json:"arrears"`
	Status        string          `json:"status"`
	Period        string          `json:"period"`
	FutureLease   bool            `json:"future_lease,omitempty"`
}

// =============================================================================
// PAYMENTS
// =============================================================================

// PaymentDTO represents a ledger entry.
type PaymentDTO struct {
	ID          string          `json:"id"`
	TenantID    string          `json:"tenant_id"`
	TenantName  string          `json:"tenant_name,omitempty"`
	Property    string          `json:"property,omitempty"`
	RoomNumber  string          `json:"room_number,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	PaidAt      string          `json:"paid_at"`
	CoversMonth string          `json:"covers_month"`
	Method      string          `json:"method"`
	Actor       string          `json:"actor"`
	Comment     string          `json:"comment,omitempty"`
	CreatedAt   string          `json:"created_at"`
}

// RecordPaymentRequest is a manual payment entry. The Idempotency-Key
// header, when present, takes precedence over IdempotencyKey.
type RecordPaymentRequest struct {
	TenantID       string          `json:"tenant_id"                 validate:"required,max=64"`
	Amount         decimal.Decimal `json:"amount"`
	PaidAt         string          `json:"paid_at,omitempty"` // RFC 3339 or YYYY-MM-DD
	CoversMonth    string          `json:"covers_month,omitempty"    validate:"omitempty,datetime=2006-01"`
	Method         string          `json:"method,omitempty"`
	Actor          string          `json:"actor,omitempty"`
	Comment        string          `json:"comment,omitempty"         validate:"max=500"`
	IdempotencyKey string          `json:"idempotency_key,omitempty" validate:"max=128"`
}

// CompletionRateDTO is the share of monthly rent not in arrears.
type CompletionRateDTO struct {
	CompletionRate int `json:"completion_rate"`
}

// =============================================================================
// SYSTEM LOG
// =============================================================================

// AuditEntryDTO is one system log line.
type AuditEntryDTO struct {
	ID        string `json:"id"`
	Event     string `json:"event"`
	Status    string `json:"status"`
	Message   string `json:"message"`
	TenantID  string `json:"tenant_id,omitempty"`
	Timestamp string `json:"timestamp"`
}

// SystemLogsResponse is a page of the system log.
type SystemLogsResponse struct {
	Logs       []AuditEntryDTO `json:"logs"`
	Total      int             `json:"total"`
	Page       int             `json:"page"`
	Limit      int             `json:"limit"`
	TotalPages int             `json:"total_pages"`
}

// =============================================================================
// ADMIN
// =============================================================================

// RolloverRequest triggers a rollover. An empty period means the current
// month.
type RolloverRequest struct {
	Period string `json:"period" validate:"omitempty,datetime=2006-01"`
}

// RolloverResultDTO reports a completed rollover.
type RolloverResultDTO struct {
	Period    string `json:"period"`
	Processed int    `json:"processed"`
	Full      int    `json:"full"`
	Partial   int    `json:"partial"`
	Unpaid    int    `json:"unpaid"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
}

// ReconcileResultDTO reports a ReconcileAll sweep.
type ReconcileResultDTO struct {
	Updated int `json:"updated"`
	Failed  int `json:"failed"`
}

// RolloverRunDTO is a persisted rollover marker.
type RolloverRunDTO struct {
	ID          string  `json:"id"`
	Period      string  `json:"period"`
	Status      string  `json:"status"`
	Processed   int     `json:"processed"`
	Skipped     int     `json:"skipped"`
	Failed      int     `json:"failed"`
	Error       string  `json:"error,omitempty"`
	StartedAt   string  `json:"started_at"`
	CompletedAt *string `json:"completed_at,omitempty"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toTenantDTO(t rent.Tenant) TenantDTO {
	dto := TenantDTO{
		ID:            string(t.ID),
		Code:          t.Code,
		Name:          t.Name,
		Email:         t.Email,
		Phone:         t.Phone,
		Property:      t.Property,
		RoomNumber:    t.RoomNumber,
		Rent:          t.Rent,
		Credit:        t.Credit,
		Arrears:       t.Arrears,
		BalancePeriod: t.BalancePeriod.String(),
		CreatedAt:     t.CreatedAt.Format(time.RFC3339),
	}
	if !t.LeaseStart.IsZero() {
		dto.LeaseStart = t.LeaseStart.Format(dateLayout)
	}
	return dto
}

func toBalanceDTO(id rent.TenantID, b rent.Balance) BalanceDTO {
	return BalanceDTO{
		TenantID:      string(id),
		Rent:          b.Rent,
		MonthsElapsed: b.MonthsElapsed,
		Paid:          b.TotalPaid,
		TotalRentDue:  b.TotalRentDue,
		Balance:       b.Balance,
		Credit:        b.Credit,
		Arrears:       b.Arrears,
		Status:        string(b.Status()),
		Period:        b.Period.String(),
		FutureLease:   b.FutureLease,
	}
}

func toPaymentDTO(p rent.Payment) PaymentDTO {
	return PaymentDTO{
		ID:          string(p.ID),
		TenantID:    string(p.TenantID),
		TenantName:  p.TenantName,
		Property:    p.Property,
		RoomNumber:  p.RoomNumber,
		Amount:      p.Amount,
		PaidAt:      p.PaidAt.Format(time.RFC3339),
		CoversMonth: p.CoversMonth.String(),
		Method:      string(p.Method),
		Actor:       string(p.Actor),
		Comment:     p.Comment,
		CreatedAt:   p.CreatedAt.Format(time.RFC3339),
	}
}

func toAuditEntryDTO(e rent.AuditEntry) AuditEntryDTO {
	return AuditEntryDTO{
		ID:        e.ID,
		Event:     e.Event,
		Status:    string(e.Status),
		Message:   e.Message,
		TenantID:  string(e.TenantID),
		Timestamp: e.Timestamp.Format(time.RFC3339),
	}
}

func toRolloverResultDTO(s rent.RolloverSummary) RolloverResultDTO {
	return RolloverResultDTO{
		Period:    s.Period.String(),
		Processed: s.Processed(),
		Full:      s.Full,
		Partial:   s.Partial,
		Unpaid:    s.Unpaid,
		Skipped:   s.Skipped,
		Failed:    s.Failed,
	}
}

func toRolloverRunDTO(r rent.RolloverRun) RolloverRunDTO {
	dto := RolloverRunDTO{
		ID:        r.ID,
		Period:    r.Period.String(),
		Status:    string(r.Status),
		Processed: r.Processed,
		Skipped:   r.Skipped,
		Failed:    r.Failed,
		Error:     r.Error,
		StartedAt: r.StartedAt.Format(time.RFC3339),
	}
	if r.CompletedAt != nil {
		s := r.CompletedAt.Format(time.RFC3339)
		dto.CompletedAt = &s
	}
	return dto
}
