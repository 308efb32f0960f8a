package maple

import (
	"sort"

	"github.com/ValentinKolb/iKV/lib/db"
	"github.com/ValentinKolb/iKV/lib/db/engines/maple/internal"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// --------------------------------------------------------------------------
// Transactions
// --------------------------------------------------------------------------

// undoEntry remembers the state of one record before the transaction touched it.
type undoEntry struct {
	store *storeData
	pk    db.Key
	prev  db.Record // nil if the record did not exist
}

// txImpl implements db.Transaction. A transaction is owned by one goroutine.
type txImpl struct {
	id     string
	mode   db.Mode
	stores map[string]*storeData
	order  []*storeData // lock order

	done    bool
	undo    []undoEntry
	nextIDs map[*storeData]float64 // key generator state before the first write
}

// Begin opens a transaction over the named stores (docu see db.Engine).
// Stores are locked in name order so that concurrent transactions over
// overlapping scopes cannot deadlock.
func (maple *mapleImpl) Begin(names []string, mode db.Mode) (db.Transaction, error) {
	if maple.closed.Load() {
		return nil, db.ErrClosed
	}

	scope := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			scope = append(scope, n)
		}
	}
	if len(scope) == 0 {
		return nil, errors.Wrap(db.ErrStoreNotFound, "empty transaction scope")
	}
	sort.Strings(scope)

	for {
		order := make([]*storeData, 0, len(scope))
		stores := make(map[string]*storeData, len(scope))
		for _, n := range scope {
			sd, ok := maple.stores.Load(n)
			if !ok {
				return nil, errors.Wrapf(db.ErrStoreNotFound, "store %q", n)
			}
			order = append(order, sd)
			stores[n] = sd
		}

		stale := false
		for i, sd := range order {
			if mode == db.ReadWrite {
				sd.mu.Lock()
			} else {
				sd.mu.RLock()
			}
			if sd.dropped {
				// replaced by a concurrent upgrade, release and look up again
				unlockAll(order[:i+1], mode)
				stale = true
				break
			}
		}
		if stale {
			continue
		}

		tx := &txImpl{
			id:      uuid.NewString(),
			mode:    mode,
			stores:  stores,
			order:   order,
			nextIDs: make(map[*storeData]float64),
		}
		Logger.Debugf("tx %s begin (%s) %v", tx.id, mode, scope)
		return tx, nil
	}
}

func unlockAll(order []*storeData, mode db.Mode) {
	for i := len(order) - 1; i >= 0; i-- {
		if mode == db.ReadWrite {
			order[i].mu.Unlock()
		} else {
			order[i].mu.RUnlock()
		}
	}
}

func (tx *txImpl) ID() string { return tx.id }

func (tx *txImpl) Mode() db.Mode { return tx.mode }

func (tx *txImpl) ObjectStore(name string) (db.ObjectStore, error) {
	if tx.done {
		return nil, db.ErrTransactionDone
	}
	sd, ok := tx.stores[name]
	if !ok {
		return nil, errors.Wrapf(db.ErrStoreNotFound, "store %q is not in the transaction scope", name)
	}
	return &txStore{tx: tx, sd: sd}, nil
}

func (tx *txImpl) Commit() error {
	if tx.done {
		return db.ErrTransactionDone
	}
	tx.done = true
	Logger.Debugf("tx %s commit (%d writes)", tx.id, len(tx.undo))
	tx.undo = nil
	unlockAll(tx.order, tx.mode)
	return nil
}

func (tx *txImpl) Abort() error {
	if tx.done {
		return db.ErrTransactionDone
	}
	tx.done = true
	for i := len(tx.undo) - 1; i >= 0; i-- {
		u := tx.undo[i]
		if u.prev == nil {
			u.store.remove(u.pk)
		} else {
			u.store.write(u.prev, u.pk)
		}
	}
	for sd, id := range tx.nextIDs {
		sd.nextID = id
	}
	Logger.Debugf("tx %s abort (%d writes rolled back)", tx.id, len(tx.undo))
	tx.undo = nil
	unlockAll(tx.order, tx.mode)
	return nil
}

// --------------------------------------------------------------------------
// Write helpers
// --------------------------------------------------------------------------

func (tx *txImpl) checkWritable() error {
	if tx.done {
		return db.ErrTransactionDone
	}
	if tx.mode != db.ReadWrite {
		return db.ErrReadOnly
	}
	return nil
}

// remember records the current state of pk for rollback.
func (tx *txImpl) remember(sd *storeData, pk db.Key) {
	if _, ok := tx.nextIDs[sd]; !ok {
		tx.nextIDs[sd] = sd.nextID
	}
	prev, _ := sd.get(pk)
	tx.undo = append(tx.undo, undoEntry{store: sd, pk: pk, prev: prev})
}

// put writes a copy of rec. With noOverwrite an existing key is a constraint error.
func (tx *txImpl) put(sd *storeData, rec db.Record, key db.Key, noOverwrite bool) (db.Key, error) {
	if rec == nil {
		return nil, errors.Wrap(db.ErrDataError, "nil record")
	}
	rec = rec.Clone()
	pk, nextID, err := sd.resolveKey(rec, key)
	if err != nil {
		return nil, err
	}
	if _, exists := sd.get(pk); exists && noOverwrite {
		return nil, errors.Wrapf(db.ErrConstraint, "key %v already exists in store %q", pk, sd.schema.Name)
	}
	if err := sd.checkUnique(rec, pk); err != nil {
		return nil, err
	}
	tx.remember(sd, pk)
	sd.write(rec, pk)
	sd.nextID = nextID
	return pk, nil
}

// deleteKey removes the record under pk and reports whether it existed.
func (tx *txImpl) deleteKey(sd *storeData, pk db.Key) bool {
	if _, ok := sd.get(pk); !ok {
		return false
	}
	tx.remember(sd, pk)
	return sd.remove(pk)
}

// --------------------------------------------------------------------------
// Object store view (docu see db.ObjectStore)
// --------------------------------------------------------------------------

type txStore struct {
	tx *txImpl
	sd *storeData
}

func (s *txStore) Schema() db.StoreSchema { return s.sd.currentSchema() }

func (s *txStore) IndexNames() []string { return s.sd.indexNames() }

func (s *txStore) Index(name string) (db.Index, error) {
	if s.tx.done {
		return nil, db.ErrTransactionDone
	}
	idx, ok := s.sd.indexes[name]
	if !ok {
		return nil, errors.Wrapf(db.ErrIndexNotFound, "index %q on store %q", name, s.sd.schema.Name)
	}
	return &txIndex{tx: s.tx, sd: s.sd, idx: idx}, nil
}

func (s *txStore) Add(rec db.Record, key db.Key) (db.Key, error) {
	if err := s.tx.checkWritable(); err != nil {
		return nil, err
	}
	return s.tx.put(s.sd, rec, key, true)
}

func (s *txStore) Put(rec db.Record, key db.Key) (db.Key, error) {
	if err := s.tx.checkWritable(); err != nil {
		return nil, err
	}
	return s.tx.put(s.sd, rec, key, false)
}

func (s *txStore) Delete(r *db.KeyRange) (int, error) {
	if err := s.tx.checkWritable(); err != nil {
		return 0, err
	}
	keys, err := collectKeys(s.tx, s.sd, s.sd.primary, r, 0)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, pk := range keys {
		if s.tx.deleteKey(s.sd, pk) {
			removed++
		}
	}
	return removed, nil
}

func (s *txStore) Get(r *db.KeyRange) (db.Record, bool, error) {
	return first(s.tx, s.sd, s.sd.primary, r)
}

func (s *txStore) GetKey(r *db.KeyRange) (db.Key, bool, error) {
	keys, err := collectKeys(s.tx, s.sd, s.sd.primary, r, 1)
	if err != nil || len(keys) == 0 {
		return nil, false, err
	}
	return keys[0], true, nil
}

func (s *txStore) Count(r *db.KeyRange) (int, error) {
	keys, err := collectKeys(s.tx, s.sd, s.sd.primary, r, 0)
	return len(keys), err
}

func (s *txStore) GetAll(r *db.KeyRange, limit int) ([]db.Record, error) {
	return collectRecords(s.tx, s.sd, s.sd.primary, r, limit)
}

func (s *txStore) GetAllKeys(r *db.KeyRange, limit int) ([]db.Key, error) {
	return collectKeys(s.tx, s.sd, s.sd.primary, r, limit)
}

func (s *txStore) OpenCursor(r *db.KeyRange, dir db.Direction) (db.Cursor, error) {
	if s.tx.done {
		return nil, db.ErrTransactionDone
	}
	return newCursor(s.tx, s.sd, s.sd.primary, r, dir), nil
}

// --------------------------------------------------------------------------
// Index view (docu see db.Index)
// --------------------------------------------------------------------------

type txIndex struct {
	tx  *txImpl
	sd  *storeData
	idx *indexData
}

func (i *txIndex) Schema() db.IndexSchema { return i.idx.schema }

func (i *txIndex) Get(r *db.KeyRange) (db.Record, bool, error) {
	return first(i.tx, i.sd, i.idx.tree, r)
}

func (i *txIndex) GetKey(r *db.KeyRange) (db.Key, bool, error) {
	keys, err := collectKeys(i.tx, i.sd, i.idx.tree, r, 1)
	if err != nil || len(keys) == 0 {
		return nil, false, err
	}
	return keys[0], true, nil
}

func (i *txIndex) Count(r *db.KeyRange) (int, error) {
	keys, err := collectKeys(i.tx, i.sd, i.idx.tree, r, 0)
	return len(keys), err
}

func (i *txIndex) GetAll(r *db.KeyRange, limit int) ([]db.Record, error) {
	return collectRecords(i.tx, i.sd, i.idx.tree, r, limit)
}

func (i *txIndex) GetAllKeys(r *db.KeyRange, limit int) ([]db.Key, error) {
	return collectKeys(i.tx, i.sd, i.idx.tree, r, limit)
}

func (i *txIndex) OpenCursor(r *db.KeyRange, dir db.Direction) (db.Cursor, error) {
	if i.tx.done {
		return nil, db.ErrTransactionDone
	}
	return newCursor(i.tx, i.sd, i.idx.tree, r, dir), nil
}

// --------------------------------------------------------------------------
// Scan helpers
// --------------------------------------------------------------------------

func first(tx *txImpl, sd *storeData, tree *internal.Tree, r *db.KeyRange) (db.Record, bool, error) {
	if tx.done {
		return nil, false, db.ErrTransactionDone
	}
	c := newCursor(tx, sd, tree, r, db.Next)
	if !c.Valid() {
		return nil, false, nil
	}
	return c.Value(), true, nil
}

// collectKeys returns the primary keys of the entries in r (limit <= 0 = all).
func collectKeys(tx *txImpl, sd *storeData, tree *internal.Tree, r *db.KeyRange, limit int) ([]db.Key, error) {
	if tx.done {
		return nil, db.ErrTransactionDone
	}
	var keys []db.Key
	for c := newCursor(tx, sd, tree, r, db.Next); c.Valid(); {
		keys = append(keys, c.PrimaryKey())
		if limit > 0 && len(keys) >= limit {
			break
		}
		if err := c.Continue(); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

func collectRecords(tx *txImpl, sd *storeData, tree *internal.Tree, r *db.KeyRange, limit int) ([]db.Record, error) {
	if tx.done {
		return nil, db.ErrTransactionDone
	}
	var records []db.Record
	for c := newCursor(tx, sd, tree, r, db.Next); c.Valid(); {
		records = append(records, c.Value())
		if limit > 0 && len(records) >= limit {
			break
		}
		if err := c.Continue(); err != nil {
			return nil, err
		}
	}
	return records, nil
}
