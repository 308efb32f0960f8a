package query

import (
	"time"

	"github.com/ValentinKolb/iKV/lib/db"
)

// --------------------------------------------------------------------------
// Verbs
// --------------------------------------------------------------------------

const (
	verbQuery  = "query"
	verbCount  = "count"
	verbGet    = "get"
	verbUpdate = "update"
	verbDelete = "delete"
	verbAdd    = "add"
	verbPut    = "put"
)

// verbModes maps every verb to the transaction mode it needs.
var verbModes = map[string]db.Mode{
	verbQuery:  db.ReadOnly,
	verbCount:  db.ReadOnly,
	verbGet:    db.ReadOnly,
	verbUpdate: db.ReadWrite,
	verbDelete: db.ReadWrite,
	verbAdd:    db.ReadWrite,
	verbPut:    db.ReadWrite,
}

// --------------------------------------------------------------------------
// Transaction coordination
// --------------------------------------------------------------------------

// run executes fn inside one transaction over the store.
//
// The store and all named indexes ("" is the primary key) are resolved before
// fn runs, so NotFound is reported before any cursor is opened. The
// transaction is committed if fn succeeds and aborted otherwise; it is
// released exactly once on every path, including panics in fn.
func (s *Store) run(op, verb string, indexes []string, fn func(st db.ObjectStore) error) (err error) {
	start := time.Now()
	defer func() { observe(op, start, err) }()

	mode, ok := verbModes[verb]
	if !ok {
		return newErrorf(RetCUnsupported, nil, "unsupported verb %q", verb)
	}

	tx, err := s.db.engine.Begin([]string{s.name}, mode)
	if err != nil {
		return classify(err, "%s: open store %q", op, s.name)
	}
	finished := false
	defer func() {
		if !finished {
			_ = tx.Abort()
		}
	}()

	st, err := tx.ObjectStore(s.name)
	if err != nil {
		return classify(err, "%s: open store %q", op, s.name)
	}
	for _, name := range indexes {
		if name == "" {
			continue
		}
		if _, err := st.Index(name); err != nil {
			return classify(err, "%s: index %q on store %q", op, name, s.name)
		}
	}

	if err := fn(st); err != nil {
		finished = true
		if abortErr := tx.Abort(); abortErr != nil {
			Logger.Errorf("%s on %q: abort of tx %s failed: %v", op, s.name, tx.ID(), abortErr)
		}
		Logger.Debugf("%s on %q: tx %s rolled back: %v", op, s.name, tx.ID(), err)
		return classify(err, "%s on store %q", op, s.name)
	}

	finished = true
	if err := tx.Commit(); err != nil {
		return classify(err, "%s: commit on store %q", op, s.name)
	}
	Logger.Debugf("%s on %q: tx %s committed", op, s.name, tx.ID())
	return nil
}

// openWalker opens a cursor for the predicate. Index "" walks the primary key.
func openWalker(st db.ObjectStore, p Predicate, dir db.Direction) (*walker, error) {
	if p.Index == "" {
		c, err := st.OpenCursor(p.Range, dir)
		if err != nil {
			return nil, err
		}
		return newWalker(c, ""), nil
	}
	idx, err := st.Index(p.Index)
	if err != nil {
		return nil, err
	}
	c, err := idx.OpenCursor(p.Range, dir)
	if err != nil {
		return nil, err
	}
	return newWalker(c, p.Index), nil
}

// check is a predicate bound to the key path of its index.
type check struct {
	r          *db.KeyRange
	keyPath    db.KeyPath
	multiEntry bool
	primary    bool
}

func newCheck(st db.ObjectStore, p Predicate) (check, error) {
	if p.Index == "" {
		return check{r: p.Range, primary: true}, nil
	}
	idx, err := st.Index(p.Index)
	if err != nil {
		return check{}, err
	}
	schema := idx.Schema()
	return check{r: p.Range, keyPath: schema.KeyPath, multiEntry: schema.MultiEntry}, nil
}

// holds reports whether the record satisfies the predicate. For multi-entry
// indexes any element in range is enough.
func (c check) holds(rec db.Record, pk db.Key) bool {
	if c.primary {
		return c.r.Includes(pk)
	}
	for _, k := range db.IndexKeys(rec, c.keyPath, c.multiEntry) {
		if c.r.Includes(k) {
			return true
		}
	}
	return false
}

func indexNames(preds []Predicate) []string {
	names := make([]string, len(preds))
	for i, p := range preds {
		names[i] = p.Index
	}
	return names
}
