package maple

import (
	"math"
	"sort"
	"sync"

	"github.com/ValentinKolb/iKV/lib/db"
	"github.com/ValentinKolb/iKV/lib/db/engines/maple/internal"
	"github.com/cockroachdb/errors"
)

// --------------------------------------------------------------------------
// Store data (one object store with its indexes)
// --------------------------------------------------------------------------

// storeData holds the records of one object store.
// All methods expect the caller to hold mu (read or write as appropriate).
type storeData struct {
	mu      sync.RWMutex
	dropped bool // set by Upgrade/Load when this instance was replaced

	schema  db.StoreSchema
	primary *internal.Tree
	indexes map[string]*indexData
	nextID  float64 // next generated primary key
}

type indexData struct {
	schema db.IndexSchema
	tree   *internal.Tree
}

func newStoreData(name string, keyPath db.KeyPath, autoIncrement bool) *storeData {
	return &storeData{
		schema: db.StoreSchema{
			Name:          name,
			KeyPath:       keyPath,
			AutoIncrement: autoIncrement,
		},
		primary: internal.NewTree(),
		indexes: make(map[string]*indexData),
		nextID:  1,
	}
}

// clone creates a copy-on-write copy of the store. The trees share nodes
// until one side is modified.
func (s *storeData) clone() *storeData {
	c := &storeData{
		schema:  s.currentSchema(),
		primary: s.primary.Clone(),
		indexes: make(map[string]*indexData, len(s.indexes)),
		nextID:  s.nextID,
	}
	for name, idx := range s.indexes {
		c.indexes[name] = &indexData{schema: idx.schema, tree: idx.tree.Clone()}
	}
	return c
}

// currentSchema returns the store schema including its indexes sorted by name.
func (s *storeData) currentSchema() db.StoreSchema {
	schema := s.schema
	schema.Indexes = make([]db.IndexSchema, 0, len(s.indexes))
	for _, name := range s.indexNames() {
		schema.Indexes = append(schema.Indexes, s.indexes[name].schema)
	}
	return schema
}

func (s *storeData) indexNames() []string {
	names := make([]string, 0, len(s.indexes))
	for name := range s.indexes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// --------------------------------------------------------------------------
// Record access
// --------------------------------------------------------------------------

func (s *storeData) get(pk db.Key) (db.Record, bool) {
	it, ok := s.primary.Get(internal.Item{Key: pk, PK: pk})
	if !ok {
		return nil, false
	}
	return it.Rec, true
}

// resolveKey determines the primary key of a record that is about to be
// written. rec may be modified to receive a generated key.
// It returns the key and the updated next id.
func (s *storeData) resolveKey(rec db.Record, key db.Key) (db.Key, float64, error) {
	nextID := s.nextID

	if len(s.schema.KeyPath) > 0 {
		// in-line keys
		if key != nil {
			return nil, nextID, errors.Wrapf(db.ErrDataError, "store %q uses in-line keys, explicit key not allowed", s.schema.Name)
		}
		if _, present := db.Value(rec, s.schema.KeyPath[0]); !present && s.schema.AutoIncrement && !s.schema.KeyPath.IsCompound() {
			db.SetValue(rec, s.schema.KeyPath[0], nextID)
			return nextID, nextID + 1, nil
		}
		pk, ok := db.ExtractKey(rec, s.schema.KeyPath)
		if !ok {
			return nil, nextID, errors.Wrapf(db.ErrDataError, "record has no valid key at %q", s.schema.KeyPath)
		}
		return pk, bumpID(nextID, pk), nil
	}

	// out-of-line keys
	if key == nil {
		if !s.schema.AutoIncrement {
			return nil, nextID, errors.Wrapf(db.ErrDataError, "store %q requires an explicit key", s.schema.Name)
		}
		return nextID, nextID + 1, nil
	}
	pk, err := db.NormalizeKey(key)
	if err != nil {
		return nil, nextID, err
	}
	return pk, bumpID(nextID, pk), nil
}

// bumpID moves the key generator past explicitly written numeric keys.
func bumpID(nextID float64, pk db.Key) float64 {
	if f, isNum := pk.(float64); isNum && f >= nextID {
		return math.Floor(f) + 1
	}
	return nextID
}

// checkUnique verifies that writing rec under pk violates no unique index.
func (s *storeData) checkUnique(rec db.Record, pk db.Key) error {
	for _, idx := range s.indexes {
		if !idx.schema.Unique {
			continue
		}
		for _, k := range db.IndexKeys(rec, idx.schema.KeyPath, idx.schema.MultiEntry) {
			it, ok := internal.First(idx.tree, &internal.Item{Key: k, Bound: internal.BoundFirst}, false)
			if ok && db.CompareKeys(it.Key, k) == 0 && db.CompareKeys(it.PK, pk) != 0 {
				return errors.Wrapf(db.ErrConstraint, "unique index %q already contains key %v", idx.schema.Name, k)
			}
		}
	}
	return nil
}

// write stores rec under pk and maintains all indexes. The record is stored
// as given, callers pass a private copy.
func (s *storeData) write(rec db.Record, pk db.Key) {
	if old, ok := s.get(pk); ok {
		s.unindex(old, pk)
	}
	s.primary.ReplaceOrInsert(internal.Item{Key: pk, PK: pk, Rec: rec})
	for _, idx := range s.indexes {
		idx.insert(rec, pk)
	}
}

// remove deletes the record stored under pk. It reports whether a record existed.
func (s *storeData) remove(pk db.Key) bool {
	old, ok := s.get(pk)
	if !ok {
		return false
	}
	s.unindex(old, pk)
	s.primary.Delete(internal.Item{Key: pk, PK: pk})
	return true
}

func (s *storeData) unindex(rec db.Record, pk db.Key) {
	for _, idx := range s.indexes {
		for _, k := range db.IndexKeys(rec, idx.schema.KeyPath, idx.schema.MultiEntry) {
			idx.tree.Delete(internal.Item{Key: k, PK: pk})
		}
	}
}

func (idx *indexData) insert(rec db.Record, pk db.Key) {
	for _, k := range db.IndexKeys(rec, idx.schema.KeyPath, idx.schema.MultiEntry) {
		idx.tree.ReplaceOrInsert(internal.Item{Key: k, PK: pk})
	}
}

// addIndex creates an index and fills it from the existing records.
func (s *storeData) addIndex(schema db.IndexSchema) error {
	idx := &indexData{schema: schema, tree: internal.NewTree()}
	var err error
	s.primary.Ascend(func(it internal.Item) bool {
		if schema.Unique {
			for _, k := range db.IndexKeys(it.Rec, schema.KeyPath, schema.MultiEntry) {
				if other, ok := internal.First(idx.tree, &internal.Item{Key: k, Bound: internal.BoundFirst}, false); ok && db.CompareKeys(other.Key, k) == 0 {
					err = errors.Wrapf(db.ErrConstraint, "cannot create unique index %q: duplicate key %v", schema.Name, k)
					return false
				}
			}
		}
		idx.insert(it.Rec, it.PK)
		return true
	})
	if err != nil {
		return err
	}
	s.indexes[schema.Name] = idx
	return nil
}
