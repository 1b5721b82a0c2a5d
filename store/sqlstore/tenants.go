package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/rent-ledger/rent"
)

// =============================================================================
// TENANT STORE (rent.TenantStore interface)
// =============================================================================

const tenantColumns = `id, code, name, email, phone, property, room_number, rent, lease_start,
	credit, arrears, balance_period, created_at, updated_at`

func (s *Store) CreateTenant(ctx context.Context, t rent.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO tenants (` + tenantColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.exec(ctx, query,
		string(t.ID),
		t.Code,
		t.Name,
		t.Email,
		t.Phone,
		t.Property,
		t.RoomNumber,
		t.Rent.String(),
		nullTime(t.LeaseStart),
		t.Credit.String(),
		t.Arrears.String(),
		t.BalancePeriod.String(),
		formatTime(t.CreatedAt),
		formatTime(t.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return rent.ErrDuplicateTenantCode
		}
		return storageErr("create tenant", err)
	}
	return nil
}

func (s *Store) FindTenant(ctx context.Context, id rent.TenantID) (*rent.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.queryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = ?`, string(id))
	t, err := scanTenant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, rent.ErrTenantNotFound
	}
	if err != nil {
		return nil, storageErr("find tenant", err)
	}
	return &t, nil
}

func (s *Store) ListTenants(ctx context.Context) ([]rent.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.query(ctx, `SELECT `+tenantColumns+` FROM tenants ORDER BY name ASC, id ASC`)
	if err != nil {
		return nil, storageErr("list tenants", err)
	}
	defer rows.Close()

	var tenants []rent.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, storageErr("scan tenant", err)
		}
		tenants = append(tenants, t)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list tenants", err)
	}
	return tenants, nil
}

func (s *Store) UpdateTenantBalance(ctx context.Context, id rent.TenantID, u rent.BalanceUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.exec(ctx, `
		UPDATE tenants SET credit = ?, arrears = ?, balance_period = ?, updated_at = ?
		WHERE id = ?
	`, u.Credit.String(), u.Arrears.String(), u.Period.String(), formatTime(time.Now()), string(id))
	if err != nil {
		return storageErr("update tenant balance", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("update tenant balance", err)
	}
	if n == 0 {
		return rent.ErrTenantNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTenant(row scanner) (rent.Tenant, error) {
	var (
		t                           rent.Tenant
		id, rentStr, credit, arrear string
		leaseStart                  sql.NullString
		period, created, updated    string
	)
	if err := row.Scan(&id, &t.Code, &t.Name, &t.Email, &t.Phone, &t.Property, &t.RoomNumber,
		&rentStr, &leaseStart, &credit, &arrear, &period, &created, &updated); err != nil {
		return t, err
	}
	t.ID = rent.TenantID(id)

	var err error
	if t.Rent, err = decimal.NewFromString(rentStr); err != nil {
		return t, fmt.Errorf("tenant %s rent: %w", id, err)
	}
	if t.Credit, err = decimal.NewFromString(credit); err != nil {
		return t, fmt.Errorf("tenant %s credit: %w", id, err)
	}
	if t.Arrears, err = decimal.NewFromString(arrear); err != nil {
		return t, fmt.Errorf("tenant %s arrears: %w", id, err)
	}
	if leaseStart.Valid {
		if t.LeaseStart, err = parseTime(leaseStart.String); err != nil {
			return t, err
		}
	}
	if t.BalancePeriod, err = parseMonth(period); err != nil {
		return t, err
	}
	if t.CreatedAt, err = parseTime(created); err != nil {
		return t, err
	}
	if t.UpdatedAt, err = parseTime(updated); err != nil {
		return t, err
	}
	return t, nil
}
