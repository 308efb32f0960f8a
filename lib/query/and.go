package query

import (
	"github.com/ValentinKolb/iKV/lib/db"
)

// --------------------------------------------------------------------------
// Conjunction (AND)
// --------------------------------------------------------------------------

// walkAnd walks the index of the first predicate once and calls visit for
// every record that satisfies all other predicates. The remaining
// predicates are tested in order and the first failing one ends the test.
//
// A record is visited at most once, even if it appears under several keys
// of a multi-entry index or is moved forward in the index by visit.
func walkAnd(st db.ObjectStore, preds []Predicate, rewrites bool, visit func(w *walker, rec db.Record) error) error {
	w, err := openWalker(st, preds[0], db.Next)
	if err != nil {
		return err
	}
	rest := make([]check, 0, len(preds)-1)
	for _, p := range preds[1:] {
		c, err := newCheck(st, p)
		if err != nil {
			return err
		}
		rest = append(rest, c)
	}

	first, err := newCheck(st, preds[0])
	if err != nil {
		return err
	}
	var seen *keySet
	if rewrites || first.multiEntry {
		seen = newKeySet()
	}

	for !w.done() {
		if rec, ok := w.current(); ok && (seen == nil || seen.add(w.primaryKey())) && holdsAll(rest, rec, w.primaryKey()) {
			if err := visit(w, rec); err != nil {
				return err
			}
		}
		if err := w.advance(); err != nil {
			return err
		}
	}
	return nil
}

func holdsAll(checks []check, rec db.Record, pk db.Key) bool {
	for _, c := range checks {
		if !c.holds(rec, pk) {
			return false
		}
	}
	return true
}

// QueryAnd returns all records matching every predicate, in the order of the
// first predicate's index.
func (s *Store) QueryAnd(preds ...Predicate) ([]db.Record, error) {
	if len(preds) == 0 {
		return nil, newErrorf(RetCInvalidArgument, nil, "query and: empty predicate list")
	}
	acc := &orderedAccumulator{}
	err := s.run("query_and", verbQuery, indexNames(preds), func(st db.ObjectStore) error {
		return walkAnd(st, preds, false, func(_ *walker, rec db.Record) error {
			acc.add(rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return acc.result(), nil
}

// UpdateAnd merges payload into every record matching all predicates and
// returns the primary keys of the updated records.
func (s *Store) UpdateAnd(payload db.Record, preds ...Predicate) ([]db.Key, error) {
	if len(preds) == 0 {
		return nil, newErrorf(RetCInvalidArgument, nil, "update and: empty predicate list")
	}
	if payload == nil {
		return nil, newErrorf(RetCInvalidArgument, nil, "update and: nil payload")
	}
	keys := []db.Key{}
	err := s.run("update_and", verbUpdate, indexNames(preds), func(st db.ObjectStore) error {
		return walkAnd(st, preds, true, func(w *walker, rec db.Record) error {
			if err := w.update(rec.Merge(payload)); err != nil {
				return err
			}
			keys = append(keys, w.primaryKey())
			recordsMatched.Inc()
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// DeleteAnd removes every record matching all predicates and returns how
// many were removed.
func (s *Store) DeleteAnd(preds ...Predicate) (int, error) {
	if len(preds) == 0 {
		return 0, newErrorf(RetCInvalidArgument, nil, "delete and: empty predicate list")
	}
	count := 0
	err := s.run("delete_and", verbDelete, indexNames(preds), func(st db.ObjectStore) error {
		return walkAnd(st, preds, false, func(w *walker, _ db.Record) error {
			if err := w.remove(); err != nil {
				return err
			}
			count++
			recordsMatched.Inc()
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}
