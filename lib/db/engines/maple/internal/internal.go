package internal

import (
	"fmt"

	"github.com/ValentinKolb/iKV/lib/db"
	"github.com/google/btree"
)

// --------------------------------------------------------------------------
// Item Type (one entry of a primary or index tree)
// --------------------------------------------------------------------------

// Bound positions a pivot item before or after every primary key of its key.
type Bound int8

const (
	BoundNone  Bound = 0
	BoundFirst Bound = -1 // before all entries with the same key
	BoundLast  Bound = 1  // after all entries with the same key
)

// Item is ordered by (Key, PK). In primary trees Key == PK and Rec holds the
// record, in index trees Rec is nil.
type Item struct {
	Key   db.Key
	PK    db.Key
	Rec   db.Record
	Bound Bound // only used for pivots, never stored
}

func (i Item) String() string {
	return fmt.Sprintf("Item{Key: %v, PK: %v}", i.Key, i.PK)
}

// Compare orders two items by key, then by primary key.
func Compare(a, b Item) int {
	if c := db.CompareKeys(a.Key, b.Key); c != 0 {
		return c
	}
	switch {
	case a.Bound == b.Bound && a.Bound != BoundNone:
		return 0
	case a.Bound == BoundFirst || b.Bound == BoundLast:
		return -1
	case a.Bound == BoundLast || b.Bound == BoundFirst:
		return 1
	}
	return db.CompareKeys(a.PK, b.PK)
}

// Less is the ordering used by the trees.
func Less(a, b Item) bool {
	return Compare(a, b) < 0
}

// --------------------------------------------------------------------------
// Tree helpers
// --------------------------------------------------------------------------

const degree = 32

// Tree is an ordered set of items.
type Tree = btree.BTreeG[Item]

// NewTree creates an empty tree.
func NewTree() *Tree {
	return btree.NewG[Item](degree, Less)
}

// First returns the smallest item >= pivot (> pivot if strict).
// A nil pivot returns the smallest item of the tree.
func First(t *Tree, pivot *Item, strict bool) (Item, bool) {
	if pivot == nil {
		return t.Min()
	}
	var (
		found Item
		ok    bool
	)
	t.AscendGreaterOrEqual(*pivot, func(it Item) bool {
		if strict && Compare(it, *pivot) == 0 {
			return true
		}
		found, ok = it, true
		return false
	})
	return found, ok
}

// Last returns the largest item <= pivot (< pivot if strict).
// A nil pivot returns the largest item of the tree.
func Last(t *Tree, pivot *Item, strict bool) (Item, bool) {
	if pivot == nil {
		return t.Max()
	}
	var (
		found Item
		ok    bool
	)
	t.DescendLessOrEqual(*pivot, func(it Item) bool {
		if strict && Compare(it, *pivot) == 0 {
			return true
		}
		found, ok = it, true
		return false
	})
	return found, ok
}
