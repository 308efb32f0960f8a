package query

import (
	"fmt"

	"github.com/ValentinKolb/iKV/lib/db"
	"github.com/cockroachdb/errors"
)

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

// RetCode classifies the errors returned by the query layer.
type RetCode int

const (
	// RetCNotFound indicates that a referenced store or index does not exist.
	// It is always raised before any cursor is opened.
	RetCNotFound RetCode = iota + 1
	// RetCUnsupported indicates a verb the dispatcher does not know.
	RetCUnsupported
	// RetCStorageFailure indicates that the engine failed during the call.
	// All changes of the call have been rolled back.
	RetCStorageFailure
	// RetCInvalidArgument indicates malformed input (empty predicate list, odd pair count, ...).
	RetCInvalidArgument
)

func (c RetCode) String() string {
	switch c {
	case RetCNotFound:
		return "NotFound"
	case RetCUnsupported:
		return "Unsupported"
	case RetCStorageFailure:
		return "StorageFailure"
	case RetCInvalidArgument:
		return "InvalidArgument"
	default:
		return "Unknown"
	}
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error wraps a return code, a message and the underlying engine error (if any).
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message
	Err  error   // The cause, may be nil
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("QueryError (code %s): %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("QueryError (code %s): %s", e.Code, e.Msg)
}

// Unwrap gives errors.Is/As access to the engine error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same code, so that
// errors.Is(err, query.ErrNotFound) works for every NotFound error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Sentinels for errors.Is.
var (
	ErrNotFound        = &Error{Code: RetCNotFound, Msg: "not found"}
	ErrUnsupported     = &Error{Code: RetCUnsupported, Msg: "unsupported"}
	ErrStorageFailure  = &Error{Code: RetCStorageFailure, Msg: "storage failure"}
	ErrInvalidArgument = &Error{Code: RetCInvalidArgument, Msg: "invalid argument"}
)

// NewError creates a new *Error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

func newErrorf(code RetCode, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...), Err: cause}
}

// classify converts an engine error into a query error.
// Missing stores and indexes are NotFound, everything else is a StorageFailure.
func classify(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	var qe *Error
	if errors.As(err, &qe) {
		return err
	}
	if errors.Is(err, db.ErrStoreNotFound) || errors.Is(err, db.ErrIndexNotFound) || errors.Is(err, db.ErrDatabaseNotFound) {
		return newErrorf(RetCNotFound, err, format, args...)
	}
	return newErrorf(RetCStorageFailure, err, format, args...)
}

// CodeOf returns the return code of err, or 0 if err is not a query error.
func CodeOf(err error) RetCode {
	var qe *Error
	if errors.As(err, &qe) {
		return qe.Code
	}
	return 0
}
