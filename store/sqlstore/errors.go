package sqlstore

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/warp/rent-ledger/rent"
)

// pgUniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

func isUniqueConstraintError(err error) bool {
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pgErr *pq.Error
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return false
}

// storageErr tags a driver failure so callers can match
// rent.ErrStorageUnavailable without knowing the backend.
func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, rent.ErrStorageUnavailable, err)
}
