package db

import "io"

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplMaple Implementation = "maple"
)

// Feature represents engine features as bit flags
type Feature uint64

const (
	FeatureCursor       Feature = 1 << iota // Support for ordered cursors
	FeatureSeek                             // Support for Cursor.ContinueTo
	FeatureUniqueCursor                     // Support for NextUnique / PrevUnique
	FeatureMultiEntry                       // Support for multi-entry indexes
	FeatureCompoundKey                      // Support for compound key paths
	FeatureAutoIncrement                    // Support for generated primary keys
	FeatureRollback                         // Support for Transaction.Abort rollback
	FeatureSave                             // Support for Save operations
	FeatureLoad                             // Support for Load operations
)

func (f Feature) String() string {
	switch f {
	case FeatureCursor:
		return "Cursor"
	case FeatureSeek:
		return "Seek"
	case FeatureUniqueCursor:
		return "UniqueCursor"
	case FeatureMultiEntry:
		return "MultiEntry"
	case FeatureCompoundKey:
		return "CompoundKey"
	case FeatureAutoIncrement:
		return "AutoIncrement"
	case FeatureRollback:
		return "Rollback"
	case FeatureSave:
		return "Save"
	case FeatureLoad:
		return "Load"
	default:
		return "Unknown"
	}
}

// Mode is the access mode of a transaction.
type Mode int

const (
	ReadOnly Mode = iota
	ReadWrite
)

func (m Mode) String() string {
	if m == ReadWrite {
		return "readwrite"
	}
	return "readonly"
}

// Direction is the traversal order of a cursor.
type Direction int

const (
	Next       Direction = iota // ascending
	NextUnique                  // ascending, one entry per key
	Prev                        // descending
	PrevUnique                  // descending, one entry per key
)

func (d Direction) String() string {
	switch d {
	case Next:
		return "next"
	case NextUnique:
		return "nextunique"
	case Prev:
		return "prev"
	case PrevUnique:
		return "prevunique"
	default:
		return "unknown"
	}
}

// Descending reports whether the direction walks from high to low keys.
func (d Direction) Descending() bool { return d == Prev || d == PrevUnique }

// Unique reports whether the direction skips duplicate keys.
func (d Direction) Unique() bool { return d == NextUnique || d == PrevUnique }

// StoreSchema describes an object store.
type StoreSchema struct {
	Name          string        `json:"name"`
	KeyPath       KeyPath       `json:"key_path"`
	AutoIncrement bool          `json:"auto_increment"`
	Indexes       []IndexSchema `json:"indexes"`
}

// IndexSchema describes a secondary index of a store.
type IndexSchema struct {
	Name       string  `json:"name"`
	KeyPath    KeyPath `json:"key_path"`
	Unique     bool    `json:"unique"`
	MultiEntry bool    `json:"multi_entry"`
}

type DatabaseInfo struct {
	SizeBytes         int            `json:"size_bytes"`
	DbType            Implementation `json:"db_type"`
	Version           uint64         `json:"version"`
	SupportedFeatures []Feature      `json:"supported_features"`
	Stores            []StoreInfo    `json:"stores"`
	Metadata          any            `json:"metadata,omitempty"` // implementation specific
}

type StoreInfo struct {
	Schema  StoreSchema `json:"schema"`
	Records int         `json:"records"`
}

// --------------------------------------------------------------------------
// Engine Interface
// --------------------------------------------------------------------------

// Engine defines the contract of an ordered, indexed key-value storage engine.
// An engine holds named object stores; each store orders its records by
// primary key and keeps zero or more secondary indexes.
// All access to records happens inside a Transaction.
type Engine interface {

	// Begin opens a transaction over the named stores.
	// It fails with ErrStoreNotFound if one of the stores does not exist.
	// Read-write transactions on the same store are serialized, read-only
	// transactions share access.
	Begin(stores []string, mode Mode) (tx Transaction, err error)

	// StoreNames returns the names of all stores in ascending order.
	StoreNames() []string

	// Upgrade runs fn as a schema change that moves the engine to version.
	// version must be greater than the current version (ErrVersion otherwise).
	// If fn returns an error, all schema changes of the upgrade are discarded.
	Upgrade(version uint64, fn func(u Upgrader) error) (err error)

	// Version returns the current schema version (0 for a fresh engine).
	Version() uint64

	// Save persists the current state of the engine to the provided io.Writer.
	Save(w io.Writer) (err error)

	// Load replaces the engine state with data provided by an io.Reader.
	Load(r io.Reader) (err error)

	// SupportsFeature checks if the engine supports the specified feature.
	// Multiple features can be checked at once using bitwise OR (|) operator.
	SupportsFeature(feature Feature) (ok bool)

	// GetInfo returns information about the engine.
	GetInfo() (info DatabaseInfo)

	// Close releases the engine. Further calls fail with ErrClosed.
	Close() (err error)
}

// Upgrader is handed to the function passed to Engine.Upgrade.
type Upgrader interface {
	CreateStore(name string, keyPath KeyPath, autoIncrement bool) error
	DeleteStore(name string) error
	CreateIndex(store string, schema IndexSchema) error
	DeleteIndex(store, index string) error
	StoreNames() []string
}

// Transaction is a unit of work over one or more stores.
// Exactly one of Commit or Abort must be called; a second call returns
// ErrTransactionDone.
type Transaction interface {
	// ID identifies the transaction in logs.
	ID() string
	// Mode returns the access mode.
	Mode() Mode
	// ObjectStore returns the named store, which must be in the scope.
	ObjectStore(name string) (ObjectStore, error)
	// Commit makes all changes visible and releases the stores.
	Commit() error
	// Abort rolls back every change made in the transaction and releases the stores.
	Abort() error
}

// ObjectStore is a store as seen from inside one transaction.
// A nil *KeyRange selects every key.
type ObjectStore interface {
	Schema() StoreSchema
	IndexNames() []string
	Index(name string) (Index, error)

	// Add inserts a record; fails with ErrConstraint if the key exists.
	Add(rec Record, key Key) (Key, error)
	// Put inserts or replaces a record.
	Put(rec Record, key Key) (Key, error)
	// Delete removes all records whose primary key is in r and returns how many were removed.
	Delete(r *KeyRange) (int, error)

	Get(r *KeyRange) (Record, bool, error)
	GetKey(r *KeyRange) (Key, bool, error)
	Count(r *KeyRange) (int, error)
	GetAll(r *KeyRange, limit int) ([]Record, error)
	GetAllKeys(r *KeyRange, limit int) ([]Key, error)

	// OpenCursor walks the store in primary key order.
	OpenCursor(r *KeyRange, dir Direction) (Cursor, error)
}

// Index is a secondary index as seen from inside one transaction.
type Index interface {
	Schema() IndexSchema

	Get(r *KeyRange) (Record, bool, error)
	GetKey(r *KeyRange) (Key, bool, error)
	Count(r *KeyRange) (int, error)
	GetAll(r *KeyRange, limit int) ([]Record, error)
	GetAllKeys(r *KeyRange, limit int) ([]Key, error)

	// OpenCursor walks the index entries inside r in the given direction.
	// The cursor is positioned on the first entry (or exhausted).
	OpenCursor(r *KeyRange, dir Direction) (Cursor, error)
}

// Cursor is a resumable, ordered traversal. It is not safe for concurrent use.
type Cursor interface {
	// Valid reports whether the cursor is positioned on an entry.
	Valid() bool
	// Key returns the index key (the primary key for store cursors).
	Key() Key
	// PrimaryKey returns the primary key of the current record.
	PrimaryKey() Key
	// Value returns a copy of the current record, or nil if the record was
	// removed after the cursor was positioned on it.
	Value() Record

	// Continue moves to the next entry in cursor direction.
	Continue() error
	// ContinueTo moves to the first entry whose key is >= key (ascending)
	// or <= key (descending). The key must be ahead of the current position,
	// otherwise ErrInvalidSeek is returned.
	ContinueTo(key Key) error

	// Update replaces the current record; the primary key must not change.
	Update(rec Record) error
	// Delete removes the current record. The cursor stays on its position
	// until the next Continue. Deleting a record that is already gone is a no-op.
	Delete() error
}
