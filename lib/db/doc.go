// Package db provides the storage contract for ordered, indexed key-value engines.
// It defines the Engine interface and the value types (keys, key ranges, records)
// shared by engine implementations and the query layer built on top of them.
//
// The package focuses on:
//   - A unified transactional interface for object stores and secondary indexes
//   - Ordered, resumable cursors with seek support
//   - Feature discovery through capability flags
//   - Standardized persistence operations and metadata reporting
//
// Key Components:
//
//   - Engine Interface: The core interface that all storage engines must satisfy.
//     An engine holds named object stores. Schema changes run through Upgrade,
//     record access runs through transactions opened with Begin.
//
//   - Transaction, ObjectStore, Index, Cursor: The view of the data inside one
//     transaction. Read-only transactions share stores, read-write transactions
//     on the same store are serialized. Abort rolls back every change.
//
//   - Keys: A Key is a float64, time.Time, string, []byte or []any of keys.
//     NormalizeKey converts Go values into this form and CompareKeys defines the
//     total order (numbers < dates < strings < binary < arrays).
//
//   - KeyRange: A nil *KeyRange selects every key. Only, LowerBound, UpperBound
//     and Bound construct validated ranges.
//
//   - Records and KeyPaths: A Record is a map[string]any. A KeyPath selects one
//     value (dotted paths reach into nested records) or, if compound, an array
//     of values.
//
//   - Feature Flags and DatabaseInfo: Engines advertise their capabilities with
//     SupportsFeature and report their state with GetInfo. Most size statistics
//     are estimates since a precise calculation can be expensive.
//
// Errors:
//
// Engines report failures by wrapping the sentinel errors of this package
// (ErrStoreNotFound, ErrConstraint, ...). Use errors.Is to test for them.
//
// Related Packages:
//
// The engines/maple package (github.com/ValentinKolb/iKV/lib/db/engines/maple) provides
// an in-memory implementation of the Engine interface based on copy-on-write btrees.
//
// The codec package (github.com/ValentinKolb/iKV/lib/db/codec) provides the
// serializers used to persist snapshots.
//
// The testing package (github.com/ValentinKolb/iKV/lib/db/testing) provides
// standardized tests and benchmarks for engine implementations.
//   - RunEngineTests: Runs a conformance suite to validate implementations
//   - RunEngineBenchmarks: Provides performance benchmarks for comparing implementations
package db
