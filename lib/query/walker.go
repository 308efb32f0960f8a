package query

import (
	"github.com/ValentinKolb/iKV/lib/db"
)

// walker is a synchronous step API over one cursor. Every step is exactly
// one engine call and is counted in the cursor metrics.
type walker struct {
	c    db.Cursor
	name string // index name, used in error messages
}

func newWalker(c db.Cursor, name string) *walker {
	return &walker{c: c, name: name}
}

// done reports whether the walker is exhausted.
func (w *walker) done() bool {
	return !w.c.Valid()
}

// current returns the record under the cursor. It returns false when the
// walker is exhausted or the record was removed after the cursor reached it.
func (w *walker) current() (db.Record, bool) {
	if !w.c.Valid() {
		return nil, false
	}
	rec := w.c.Value()
	return rec, rec != nil
}

func (w *walker) key() db.Key { return w.c.Key() }

func (w *walker) primaryKey() db.Key { return w.c.PrimaryKey() }

// advance moves to the next entry in walk order.
func (w *walker) advance() error {
	cursorSteps.Inc()
	return w.c.Continue()
}

// seek moves to the first entry whose key is >= key (ascending walks).
func (w *walker) seek(key db.Key) error {
	cursorSeeks.Inc()
	return w.c.ContinueTo(key)
}

func (w *walker) update(rec db.Record) error { return w.c.Update(rec) }

func (w *walker) remove() error { return w.c.Delete() }
