package query

import (
	"github.com/ValentinKolb/iKV/lib/db"
)

// Where returns up to limit records whose value for index lies in r, walked
// in direction dir. Index "" walks the primary key. A limit <= 0 returns
// every match.
func (s *Store) Where(index string, r *db.KeyRange, limit int, dir db.Direction) ([]db.Record, error) {
	acc := &orderedAccumulator{}
	err := s.run("where", verbQuery, []string{index}, func(st db.ObjectStore) error {
		w, err := openWalker(st, Predicate{Index: index, Range: r}, dir)
		if err != nil {
			return err
		}
		for !w.done() && (limit <= 0 || len(acc.records) < limit) {
			if rec, ok := w.current(); ok {
				acc.add(rec)
			}
			if err := w.advance(); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return acc.result(), nil
}

// StartsWith returns all records whose string value for index starts with
// prefix, case sensitive.
func (s *Store) StartsWith(index, prefix string, dir db.Direction) ([]db.Record, error) {
	return s.Where(index, prefixRange(prefix), 0, dir)
}
