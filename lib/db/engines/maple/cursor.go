package maple

import (
	"github.com/ValentinKolb/iKV/lib/db"
	"github.com/ValentinKolb/iKV/lib/db/engines/maple/internal"
	"github.com/cockroachdb/errors"
)

// cursorImpl walks one tree of a store inside a transaction.
//
// The cursor only remembers the (key, primary key) pair it is positioned on.
// Every step searches the tree for the next pair strictly after (or before)
// that position, so records written or removed through the same transaction
// never invalidate the walk.
type cursorImpl struct {
	tx    *txImpl
	store *storeData
	tree  *internal.Tree
	r     *db.KeyRange
	dir   db.Direction

	cur   internal.Item
	valid bool
}

func newCursor(tx *txImpl, store *storeData, tree *internal.Tree, r *db.KeyRange, dir db.Direction) *cursorImpl {
	c := &cursorImpl{tx: tx, store: store, tree: tree, r: r, dir: dir}
	if r.IsEmpty() {
		return c
	}

	var pivot *internal.Item
	if !dir.Descending() {
		if r != nil && r.Lower != nil {
			pivot = &internal.Item{Key: r.Lower, Bound: internal.BoundFirst}
			if r.LowerOpen {
				pivot.Bound = internal.BoundLast
			}
		}
		c.settle(internal.First(tree, pivot, false))
	} else {
		if r != nil && r.Upper != nil {
			pivot = &internal.Item{Key: r.Upper, Bound: internal.BoundLast}
			if r.UpperOpen {
				pivot.Bound = internal.BoundFirst
			}
		}
		c.settle(c.lowestOfKey(internal.Last(tree, pivot, false)))
	}
	return c
}

// lowestOfKey repositions a descending unique cursor on the entry with the
// lowest primary key of the found key.
func (c *cursorImpl) lowestOfKey(it internal.Item, ok bool) (internal.Item, bool) {
	if !ok || c.dir != db.PrevUnique {
		return it, ok
	}
	return internal.First(c.tree, &internal.Item{Key: it.Key, Bound: internal.BoundFirst}, false)
}

// settle positions the cursor on it, or exhausts it if it is missing or out of range.
func (c *cursorImpl) settle(it internal.Item, ok bool) {
	if ok {
		if c.dir.Descending() {
			ok = !c.r.BelowLower(it.Key)
		} else {
			ok = !c.r.AboveUpper(it.Key)
		}
	}
	if !ok {
		c.cur, c.valid = internal.Item{}, false
		return
	}
	c.cur, c.valid = it, true
}

func (c *cursorImpl) check() error {
	if c.tx.done {
		return db.ErrTransactionDone
	}
	if !c.valid {
		return db.ErrCursorDone
	}
	return nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see db.Cursor)
// --------------------------------------------------------------------------

func (c *cursorImpl) Valid() bool { return c.valid }

func (c *cursorImpl) Key() db.Key { return c.cur.Key }

func (c *cursorImpl) PrimaryKey() db.Key { return c.cur.PK }

func (c *cursorImpl) Value() db.Record {
	if !c.valid {
		return nil
	}
	rec, ok := c.store.get(c.cur.PK)
	if !ok {
		// removed through the transaction after the cursor settled here
		return nil
	}
	return rec.Clone()
}

func (c *cursorImpl) Continue() error {
	if err := c.check(); err != nil {
		return err
	}
	switch c.dir {
	case db.Next:
		c.settle(internal.First(c.tree, &c.cur, true))
	case db.NextUnique:
		c.settle(internal.First(c.tree, &internal.Item{Key: c.cur.Key, Bound: internal.BoundLast}, false))
	case db.Prev:
		c.settle(internal.Last(c.tree, &c.cur, true))
	case db.PrevUnique:
		c.settle(c.lowestOfKey(internal.Last(c.tree, &internal.Item{Key: c.cur.Key, Bound: internal.BoundFirst}, false)))
	}
	return nil
}

func (c *cursorImpl) ContinueTo(key db.Key) error {
	if err := c.check(); err != nil {
		return err
	}
	k, err := db.NormalizeKey(key)
	if err != nil {
		return err
	}
	cmp := db.CompareKeys(k, c.cur.Key)
	if !c.dir.Descending() {
		if cmp <= 0 {
			return errors.Wrapf(db.ErrInvalidSeek, "seek to %v from %v", k, c.cur.Key)
		}
		c.settle(internal.First(c.tree, &internal.Item{Key: k, Bound: internal.BoundFirst}, false))
		return nil
	}
	if cmp >= 0 {
		return errors.Wrapf(db.ErrInvalidSeek, "seek to %v from %v", k, c.cur.Key)
	}
	c.settle(c.lowestOfKey(internal.Last(c.tree, &internal.Item{Key: k, Bound: internal.BoundLast}, false)))
	return nil
}

func (c *cursorImpl) Update(rec db.Record) error {
	if err := c.check(); err != nil {
		return err
	}
	if err := c.tx.checkWritable(); err != nil {
		return err
	}
	var key db.Key
	if len(c.store.schema.KeyPath) == 0 {
		key = c.cur.PK
	} else if pk, ok := db.ExtractKey(rec, c.store.schema.KeyPath); !ok || db.CompareKeys(pk, c.cur.PK) != 0 {
		return errors.Wrapf(db.ErrDataError, "update must not change the primary key %v", c.cur.PK)
	}
	_, err := c.tx.put(c.store, rec, key, false)
	return err
}

func (c *cursorImpl) Delete() error {
	if err := c.check(); err != nil {
		return err
	}
	if err := c.tx.checkWritable(); err != nil {
		return err
	}
	c.tx.deleteKey(c.store, c.cur.PK)
	return nil
}
