package query

import (
	"github.com/ValentinKolb/iKV/lib/db"
)

// --------------------------------------------------------------------------
// Disjunction (OR)
// --------------------------------------------------------------------------

// walkOr opens one walker per predicate and steps them round-robin, one
// entry each, until every walker is exhausted. Entries whose record was
// removed by an earlier visit are skipped.
func walkOr(st db.ObjectStore, preds []Predicate, visit func(w *walker, rec db.Record) error) error {
	walkers := make([]*walker, len(preds))
	for i, p := range preds {
		w, err := openWalker(st, p, db.Next)
		if err != nil {
			return err
		}
		walkers[i] = w
	}

	for {
		active := 0
		for _, w := range walkers {
			if w.done() {
				continue
			}
			active++
			if rec, ok := w.current(); ok {
				if err := visit(w, rec); err != nil {
					return err
				}
			}
			if err := w.advance(); err != nil {
				return err
			}
		}
		if active == 0 {
			return nil
		}
	}
}

// QueryOr returns every record matching at least one predicate. Structurally
// equal records are returned once; the order is unspecified.
func (s *Store) QueryOr(preds ...Predicate) ([]db.Record, error) {
	if len(preds) == 0 {
		return nil, newErrorf(RetCInvalidArgument, nil, "query or: empty predicate list")
	}
	acc := newDedupAccumulator()
	err := s.run("query_or", verbQuery, indexNames(preds), func(st db.ObjectStore) error {
		return walkOr(st, preds, func(_ *walker, rec db.Record) error {
			acc.add(rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return acc.result(), nil
}

// UpdateOr merges payload into every record matching at least one predicate
// and returns each updated primary key once.
func (s *Store) UpdateOr(payload db.Record, preds ...Predicate) ([]db.Key, error) {
	if len(preds) == 0 {
		return nil, newErrorf(RetCInvalidArgument, nil, "update or: empty predicate list")
	}
	if payload == nil {
		return nil, newErrorf(RetCInvalidArgument, nil, "update or: nil payload")
	}
	updated := newKeySet()
	keys := []db.Key{}
	err := s.run("update_or", verbUpdate, indexNames(preds), func(st db.ObjectStore) error {
		return walkOr(st, preds, func(w *walker, rec db.Record) error {
			if err := w.update(rec.Merge(payload)); err != nil {
				return err
			}
			if pk := w.primaryKey(); updated.add(pk) {
				keys = append(keys, pk)
				recordsMatched.Inc()
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// DeleteOr removes every record matching at least one predicate and returns
// the number of records removed. A record matched by several predicates is
// removed and counted once.
func (s *Store) DeleteOr(preds ...Predicate) (int, error) {
	if len(preds) == 0 {
		return 0, newErrorf(RetCInvalidArgument, nil, "delete or: empty predicate list")
	}
	count := 0
	err := s.run("delete_or", verbDelete, indexNames(preds), func(st db.ObjectStore) error {
		return walkOr(st, preds, func(w *walker, _ db.Record) error {
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
