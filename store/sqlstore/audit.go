package sqlstore

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/warp/rent-ledger/rent"
)

// =============================================================================
// AUDIT LOG (rent.AuditLog interface) - append-only
// =============================================================================

func (s *Store) AppendAudit(ctx context.Context, e rent.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := s.exec(ctx, `
		INSERT INTO system_logs (id, event, status, message, tenant_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.ID, e.Event, string(e.Status), e.Message, string(e.TenantID), formatTime(e.Timestamp))
	if err != nil {
		return storageErr("append audit", err)
	}
	return nil
}

// ListAudit returns entries newest first plus the unpaged match count.
// Limit <= 0 means no limit.
func (s *Store) ListAudit(ctx context.Context, f rent.AuditFilter) ([]rent.AuditEntry, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := s.builder().Select("COUNT(*)").From("system_logs")
	q := s.builder().
		Select("id", "event", "status", "message", "tenant_id", "created_at").
		From("system_logs")
	if f.Status != nil {
		cond := squirrel.Eq{"status": string(*f.Status)}
		count, q = count.Where(cond), q.Where(cond)
	}

	countSQL, countArgs, err := count.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build audit count: %w", err)
	}
	var total int
	if err := s.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, storageErr("count audit", err)
	}

	q = q.OrderBy("created_at DESC", "id DESC")
	switch {
	case f.Limit > 0:
		q = q.Limit(uint64(f.Limit)).Offset(uint64(max(f.Offset, 0)))
	case f.Offset > 0 && s.driver == DriverPostgres:
		q = q.Suffix("OFFSET ?", f.Offset)
	case f.Offset > 0:
		// SQLite only accepts OFFSET after a LIMIT; -1 is unbounded.
		q = q.Suffix("LIMIT -1 OFFSET ?", f.Offset)
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build audit list: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, storageErr("list audit", err)
	}
	defer rows.Close()

	entries := []rent.AuditEntry{}
	for rows.Next() {
		var (
			e                rent.AuditEntry
			status, tenantID string
			created          string
		)
		if err := rows.Scan(&e.ID, &e.Event, &status, &e.Message, &tenantID, &created); err != nil {
			return nil, 0, storageErr("scan audit", err)
		}
		e.Status = rent.AuditStatus(status)
		e.TenantID = rent.TenantID(tenantID)
		if e.Timestamp, err = parseTime(created); err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, storageErr("list audit", err)
	}
	return entries, total, nil
}
