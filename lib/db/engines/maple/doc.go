// Package maple implements an in-memory, ordered and indexed storage engine
// satisfying the db.Engine interface.
//
// Key Components:
//
//   - mapleImpl: The engine. It keeps a catalog of object stores in an
//     xsync.MapOf, runs schema upgrades and handles persistence.
//
//   - storeData: One object store. Records live in a btree ordered by primary
//     key, every secondary index is a second btree of (index key, primary key)
//     entries. Multi-entry indexes hold one entry per distinct array element.
//
//   - txImpl: A transaction over a fixed set of stores. Read-only transactions
//     take the read lock of each store, read-write transactions the write lock.
//     Locks are always taken in store name order. Every write is recorded in an
//     undo log which Abort replays backwards.
//
//   - cursorImpl: A cursor only remembers its (key, primary key) position and
//     searches the tree again on every step. Records written or deleted through
//     the same transaction therefore never invalidate a running cursor.
//
// Schema Upgrades:
//
// Upgrade waits until no transaction holds a store, then applies the changes
// to copy-on-write clones of the affected stores. The clones replace the
// originals only if the upgrade function succeeds, so a failed upgrade leaves
// the engine untouched. Transactions that were waiting for a replaced store
// look it up again.
//
// Persistence Format:
//  1. Magic number "MAPLEIDX" to identify the file format
//  2. Format version (currently 1)
//  3. Name of the codec used for the payload ("gob" or "json")
//  4. Payload length and the encoded snapshot (schema version, store schemas,
//     key generator state and all records in primary key order)
//
// Save takes a consistent cut: it waits for running read-write transactions.
// Indexes are not persisted, Load rebuilds them from the records.
// The json codec does not preserve time.Time and []byte values, use gob when
// records or keys contain them.
package maple
