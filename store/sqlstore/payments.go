package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/rent-ledger/rent"
)

// =============================================================================
// PAYMENT STORE (rent.PaymentStore interface) - append-only
// =============================================================================

const paymentColumns = `id, tenant_id, tenant_name, property, room_number, amount, paid_at,
	covers_month, method, actor, comment, idempotency_key, created_at`

// InsertPayment appends a payment. A reused ID or idempotency key maps to
// rent.ErrDuplicateIdempotencyKey.
func (s *Store) InsertPayment(ctx context.Context, p rent.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO payments (` + paymentColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.exec(ctx, query,
		string(p.ID),
		string(p.TenantID),
		p.TenantName,
		p.Property,
		p.RoomNumber,
		p.Amount.String(),
		formatTime(p.PaidAt),
		p.CoversMonth.String(),
		string(p.Method),
		string(p.Actor),
		p.Comment,
		nullString(p.IdempotencyKey),
		formatTime(p.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return rent.ErrDuplicateIdempotencyKey
		}
		return storageErr("insert payment", err)
	}
	return nil
}

// ListPaymentsForTenant returns the full ledger, oldest payment first.
func (s *Store) ListPaymentsForTenant(ctx context.Context, id rent.TenantID) ([]rent.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.query(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE tenant_id = ?
		ORDER BY paid_at ASC, created_at ASC
	`, string(id))
	if err != nil {
		return nil, storageErr("list payments", err)
	}
	defer rows.Close()

	var payments []rent.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, storageErr("scan payment", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list payments", err)
	}
	return payments, nil
}

// SumPaymentsForTenant totals cash payments. Amounts are TEXT, so the sum
// runs here rather than in SQL.
func (s *Store) SumPaymentsForTenant(ctx context.Context, id rent.TenantID) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.query(ctx, `SELECT amount FROM payments WHERE tenant_id = ? AND method <> ?`,
		string(id), string(rent.MethodCreditCarryForward))
	if err != nil {
		return decimal.Zero, storageErr("sum payments", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var amount string
		if err := rows.Scan(&amount); err != nil {
			return decimal.Zero, storageErr("sum payments", err)
		}
		d, err := decimal.NewFromString(amount)
		if err != nil {
			return decimal.Zero, fmt.Errorf("payment amount %q: %w", amount, err)
		}
		total = total.Add(d)
	}
	if err := rows.Err(); err != nil {
		return decimal.Zero, storageErr("sum payments", err)
	}
	return total, nil
}

func scanPayment(row scanner) (rent.Payment, error) {
	var (
		p                            rent.Payment
		id, tenantID, amount, month  string
		method, actor, paid, created string
		idempotencyKey               sql.NullString
	)
	if err := row.Scan(&id, &tenantID, &p.TenantName, &p.Property, &p.RoomNumber, &amount, &paid,
		&month, &method, &actor, &p.Comment, &idempotencyKey, &created); err != nil {
		return p, err
	}
	p.ID = rent.PaymentID(id)
	p.TenantID = rent.TenantID(tenantID)
	p.Method = rent.PaymentMethod(method)
	p.Actor = rent.Actor(actor)
	p.IdempotencyKey = idempotencyKey.String

	var err error
	if p.Amount, err = decimal.NewFromString(amount); err != nil {
		return p, fmt.Errorf("payment %s amount: %w", id, err)
	}
	if p.PaidAt, err = parseTime(paid); err != nil {
		return p, err
	}
	if p.CoversMonth, err = parseMonth(month); err != nil {
		return p, err
	}
	if p.CreatedAt, err = parseTime(created); err != nil {
		return p, err
	}
	return p, nil
}
