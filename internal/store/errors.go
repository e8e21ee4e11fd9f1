package store

import (
	"errors"

	"github.com/lib/pq"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when a write would violate a uniqueness
// invariant: a catalog name collision, an existing assignment, or an
// existing tracking cell.
var ErrDuplicate = errors.New("already exists")

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

// translate maps constraint violations onto the store sentinels so that
// callers see the same error whether a conflict is caught by a pre-check or
// by the database. Check-then-insert is not atomic; the unique constraint
// closes the race and this keeps both paths equivalent.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqUniqueViolation:
			return ErrDuplicate
		case pqForeignKeyViolation:
			return ErrNotFound
		}
	}
	return err
}
