// Package query composes multi-predicate queries on top of a db.Engine.
// It never stores data itself: every call opens one transaction, walks one or
// more index cursors and commits or aborts before returning.
//
// Key Components:
//
//   - DB and Store: New wraps an engine, DB.Store returns the handle of an
//     existing store (NotFound otherwise). All verbs hang off the Store handle.
//
//   - Predicates: A Predicate names an index ("" for the primary key) and a
//     *db.KeyRange. Eq, Lt, Le, Gt, Ge and Between build ranges, Pairs converts
//     a flat (index, range, ...) list.
//
//   - AND: QueryAnd, UpdateAnd and DeleteAnd walk the index of the first
//     predicate once and test the remaining predicates on every visited record.
//     Put the most selective predicate first.
//
//   - OR: QueryOr, UpdateOr and DeleteOr walk one cursor per predicate in the
//     same transaction. QueryOr returns structurally distinct records. A record
//     matched by several predicates is updated or deleted (and counted) once.
//
//   - Case-insensitive search: IgnoreCase walks the index once. For every key
//     that is not a match it computes the smallest case variant of the text
//     above the key and seeks there, so neither the entries in between nor
//     the full variant set (ExpandCase) are ever materialized.
//
//   - Where and StartsWith: range walks with limit and direction.
//
// Errors:
//
// All errors are *Error values with one of the codes RetCNotFound,
// RetCUnsupported, RetCStorageFailure or RetCInvalidArgument. They match the
// sentinels ErrNotFound, ErrUnsupported, ErrStorageFailure and
// ErrInvalidArgument with errors.Is and unwrap to the engine error. Unknown
// stores and indexes are reported before any cursor is opened. Any other
// engine failure aborts the transaction, so a failed update or delete leaves
// the store unchanged.
//
// Metrics:
//
// Calls, errors, durations, cursor steps and seeks are recorded with
// VictoriaMetrics/metrics. WriteMetrics prints them in Prometheus format.
package query
