package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/warp/rent-ledger/rent"
)

// =============================================================================
// ROLLOVER RUNS (rent.RunStore interface)
// =============================================================================

// ClaimRolloverPeriod inserts a running row for the period, or takes over a
// failed one. The conditional upsert makes the claim atomic in the database,
// so two processes racing for one period cannot both win.
func (s *Store) ClaimRolloverPeriod(ctx context.Context, period rent.Month, startedAt time.Time) (rent.RolloverRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run := rent.RolloverRun{
		ID:        uuid.NewString(),
		Period:    period,
		Status:    rent.RunRunning,
		StartedAt: startedAt,
	}
	res, err := s.exec(ctx, `
		INSERT INTO rollover_runs (id, period, status, processed, skipped, failed, error, started_at, completed_at)
		VALUES (?, ?, ?, 0, 0, 0, '', ?, NULL)
		ON CONFLICT (period) DO UPDATE SET
			id = excluded.id,
			status = excluded.status,
			processed = 0,
			skipped = 0,
			failed = 0,
			error = '',
			started_at = excluded.started_at,
			completed_at = NULL
		WHERE rollover_runs.status = ?
	`, run.ID, period.String(), string(rent.RunRunning), formatTime(startedAt), string(rent.RunFailed))
	if err != nil {
		return rent.RolloverRun{}, storageErr("claim rollover period", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return rent.RolloverRun{}, storageErr("claim rollover period", err)
	}
	if n == 0 {
		return rent.RolloverRun{}, rent.ErrPeriodAlreadyRolledOver
	}
	return run, nil
}

func (s *Store) FinishRolloverRun(ctx context.Context, run rent.RolloverRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var completed sql.NullString
	if run.CompletedAt != nil {
		completed = nullTime(*run.CompletedAt)
	}
	_, err := s.exec(ctx, `
		UPDATE rollover_runs
		SET status = ?, processed = ?, skipped = ?, failed = ?, error = ?, completed_at = ?
		WHERE period = ? AND id = ?
	`, string(run.Status), run.Processed, run.Skipped, run.Failed, run.Error, completed,
		run.Period.String(), run.ID)
	if err != nil {
		return storageErr("finish rollover run", err)
	}
	return nil
}

func (s *Store) IsPeriodRolledOver(ctx context.Context, period rent.Month) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.queryRow(ctx,
		`SELECT COUNT(*) FROM rollover_runs WHERE period = ? AND status = ?`,
		period.String(), string(rent.RunCompleted),
	).Scan(&count)
	if err != nil {
		return false, storageErr("check rollover period", err)
	}
	return count > 0, nil
}

func (s *Store) ListRolloverRuns(ctx context.Context) ([]rent.RolloverRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.query(ctx, `
		SELECT id, period, status, processed, skipped, failed, error, started_at, completed_at
		FROM rollover_runs
		ORDER BY period DESC
	`)
	if err != nil {
		return nil, storageErr("list rollover runs", err)
	}
	defer rows.Close()

	var runs []rent.RolloverRun
	for rows.Next() {
		var (
			r              rent.RolloverRun
			period, status string
			started        string
			completed      sql.NullString
		)
		if err := rows.Scan(&r.ID, &period, &status, &r.Processed, &r.Skipped, &r.Failed, &r.Error,
			&started, &completed); err != nil {
			return nil, storageErr("scan rollover run", err)
		}
		r.Status = rent.RunStatus(status)
		if r.Period, err = parseMonth(period); err != nil {
			return nil, err
		}
		if r.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		if completed.Valid {
			t, err := parseTime(completed.String)
			if err != nil {
				return nil, err
			}
			r.CompletedAt = &t
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list rollover runs", err)
	}
	return runs, nil
}
