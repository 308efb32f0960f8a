package query

import (
	"slices"

	"github.com/ValentinKolb/iKV/lib/db"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("query")

// Options configures the query layer.
type Options struct {
	// MaxCaseFoldLetters rejects IgnoreCase texts with more case-bearing
	// letters. 0 means no limit.
	MaxCaseFoldLetters int
}

// DefaultOptions returns the default query options.
func DefaultOptions() *Options {
	return &Options{}
}

// --------------------------------------------------------------------------
// Handles
// --------------------------------------------------------------------------

// DB is the query handle of one engine. It is safe for concurrent use.
type DB struct {
	engine db.Engine
	opts   Options
}

// Store is the query handle of one object store. It is safe for
// concurrent use; every call runs in its own transaction.
type Store struct {
	db   *DB
	name string
}

// New creates a query handle for engine (options are optional).
func New(engine db.Engine, opts *Options) *DB {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &DB{engine: engine, opts: *opts}
}

// Engine returns the underlying engine.
func (d *DB) Engine() db.Engine { return d.engine }

// StoreNames returns the names of all stores in ascending order.
func (d *DB) StoreNames() []string { return d.engine.StoreNames() }

// Store returns the handle of the named store, or a NotFound error if the
// store does not exist.
func (d *DB) Store(name string) (*Store, error) {
	if !slices.Contains(d.engine.StoreNames(), name) {
		return nil, newErrorf(RetCNotFound, db.ErrStoreNotFound, "store %q", name)
	}
	return &Store{db: d, name: name}, nil
}

// Name returns the store name.
func (s *Store) Name() string { return s.name }

// --------------------------------------------------------------------------
// Passthrough verbs
// --------------------------------------------------------------------------

// Schema returns the current schema of the store.
func (s *Store) Schema() (schema db.StoreSchema, err error) {
	err = s.run("schema", verbGet, nil, func(st db.ObjectStore) error {
		schema = st.Schema()
		return nil
	})
	return schema, err
}

// Add inserts rec and returns its primary key. It fails if the key exists.
func (s *Store) Add(rec db.Record, key db.Key) (pk db.Key, err error) {
	err = s.run("add", verbAdd, nil, func(st db.ObjectStore) error {
		pk, err = st.Add(rec, key)
		return err
	})
	return pk, err
}

// Put inserts or replaces rec and returns its primary key.
func (s *Store) Put(rec db.Record, key db.Key) (pk db.Key, err error) {
	err = s.run("put", verbPut, nil, func(st db.ObjectStore) error {
		pk, err = st.Put(rec, key)
		return err
	})
	return pk, err
}

// Get returns the first record in r for index ("" is the primary key).
func (s *Store) Get(index string, r *db.KeyRange) (rec db.Record, ok bool, err error) {
	err = s.run("get", verbGet, []string{index}, func(st db.ObjectStore) error {
		if index == "" {
			rec, ok, err = st.Get(r)
			return err
		}
		idx, err := st.Index(index)
		if err != nil {
			return err
		}
		rec, ok, err = idx.Get(r)
		return err
	})
	return rec, ok, err
}

// GetKey returns the primary key of the first record in r for index.
func (s *Store) GetKey(index string, r *db.KeyRange) (key db.Key, ok bool, err error) {
	err = s.run("get_key", verbGet, []string{index}, func(st db.ObjectStore) error {
		if index == "" {
			key, ok, err = st.GetKey(r)
			return err
		}
		idx, err := st.Index(index)
		if err != nil {
			return err
		}
		key, ok, err = idx.GetKey(r)
		return err
	})
	return key, ok, err
}

// Count returns the number of entries in r for index.
func (s *Store) Count(index string, r *db.KeyRange) (n int, err error) {
	err = s.run("count", verbCount, []string{index}, func(st db.ObjectStore) error {
		if index == "" {
			n, err = st.Count(r)
			return err
		}
		idx, err := st.Index(index)
		if err != nil {
			return err
		}
		n, err = idx.Count(r)
		return err
	})
	return n, err
}

// GetAll returns up to limit records in r for index (limit <= 0: all).
func (s *Store) GetAll(index string, r *db.KeyRange, limit int) (recs []db.Record, err error) {
	err = s.run("get_all", verbGet, []string{index}, func(st db.ObjectStore) error {
		if index == "" {
			recs, err = st.GetAll(r, limit)
			return err
		}
		idx, err := st.Index(index)
		if err != nil {
			return err
		}
		recs, err = idx.GetAll(r, limit)
		return err
	})
	return recs, err
}

// GetAllKeys returns up to limit primary keys in r for index (limit <= 0: all).
func (s *Store) GetAllKeys(index string, r *db.KeyRange, limit int) (keys []db.Key, err error) {
	err = s.run("get_all_keys", verbGet, []string{index}, func(st db.ObjectStore) error {
		if index == "" {
			keys, err = st.GetAllKeys(r, limit)
			return err
		}
		idx, err := st.Index(index)
		if err != nil {
			return err
		}
		keys, err = idx.GetAllKeys(r, limit)
		return err
	})
	return keys, err
}

// Delete removes every record whose primary key lies in r and returns how
// many were removed. Deleting keys that do not exist is not an error.
func (s *Store) Delete(r *db.KeyRange) (n int, err error) {
	err = s.run("delete", verbDelete, nil, func(st db.ObjectStore) error {
		n, err = st.Delete(r)
		return err
	})
	return n, err
}
