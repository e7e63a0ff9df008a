package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrDuplicate is returned when a write violates a uniqueness constraint.
	ErrDuplicate = errors.New("persistence: duplicate record")
	// ErrForeignKeyViolation is returned when a write references a missing parent record.
	ErrForeignKeyViolation = errors.New("persistence: foreign key violation")
	// ErrConstraintViolation is returned for CHECK/NOT NULL failures and malformed records.
	ErrConstraintViolation = errors.New("persistence: constraint violation")
	// ErrPoolClosed is returned when an operation runs against a closed connection pool.
	ErrPoolClosed = errors.New("persistence: connection pool closed")
)
