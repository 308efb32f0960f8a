package db

import "github.com/cockroachdb/errors"

// Errors reported by engine implementations. Implementations wrap them with
// context, use errors.Is to test for them.
var (
	ErrDatabaseNotFound = errors.New("database not found")
	ErrStoreNotFound    = errors.New("store not found")
	ErrIndexNotFound    = errors.New("index not found")
	ErrConstraint       = errors.New("constraint violation")
	ErrDataError        = errors.New("invalid key or record")
	ErrReadOnly         = errors.New("transaction is read-only")
	ErrTransactionDone  = errors.New("transaction already finished")
	ErrCursorDone       = errors.New("cursor exhausted")
	ErrInvalidSeek      = errors.New("seek target is not ahead of the cursor")
	ErrVersion          = errors.New("invalid schema version")
	ErrClosed           = errors.New("engine closed")
)
