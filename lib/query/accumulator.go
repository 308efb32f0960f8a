package query

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"time"

	"github.com/ValentinKolb/iKV/lib/db"
	"github.com/ValentinKolb/iKV/lib/db/util"
	"github.com/google/btree"
)

// --------------------------------------------------------------------------
// Accumulators
// --------------------------------------------------------------------------
//
// Accumulators are owned by exactly one call and are never shared.

// orderedAccumulator keeps records in the order they were added.
type orderedAccumulator struct {
	records []db.Record
}

func (a *orderedAccumulator) add(rec db.Record) {
	a.records = append(a.records, rec)
	recordsMatched.Inc()
}

func (a *orderedAccumulator) result() []db.Record {
	if a.records == nil {
		return []db.Record{}
	}
	return a.records
}

// dedupAccumulator keeps one copy of every structurally distinct record.
// Records are bucketed by a fingerprint that does not depend on map
// iteration order and compared with reflect.DeepEqual inside a bucket.
type dedupAccumulator struct {
	records []db.Record
	buckets map[uint64][]int
}

func newDedupAccumulator() *dedupAccumulator {
	return &dedupAccumulator{buckets: make(map[uint64][]int)}
}

// add stores rec unless an equal record is already present and reports
// whether it was added.
func (a *dedupAccumulator) add(rec db.Record) bool {
	fp := fingerprint(map[string]any(rec), 0)
	for _, i := range a.buckets[fp] {
		if reflect.DeepEqual(a.records[i], rec) {
			return false
		}
	}
	a.buckets[fp] = append(a.buckets[fp], len(a.records))
	a.records = append(a.records, rec)
	recordsMatched.Inc()
	return true
}

func (a *dedupAccumulator) result() []db.Record {
	if a.records == nil {
		return []db.Record{}
	}
	return a.records
}

// fingerprint hashes v canonically: map entries are hashed in key order.
func fingerprint(v any, seed uint64) uint64 {
	switch t := v.(type) {
	case nil:
		return util.HashString("nil", seed)
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		h := util.HashString("map", seed)
		for _, k := range keys {
			h = util.Mix(h, util.HashString(k, 0))
			h = util.Mix(h, fingerprint(t[k], 0))
		}
		return h
	case db.Record:
		return fingerprint(map[string]any(t), seed)
	case []any:
		h := util.HashString("list", seed)
		for _, e := range t {
			h = util.Mix(h, fingerprint(e, 0))
		}
		return h
	case string:
		return util.HashString(t, util.HashString("str", seed))
	case []byte:
		return util.HashBytes(t, util.HashString("bin", seed))
	case float64:
		return util.Mix(util.HashString("num", seed), math.Float64bits(t))
	case time.Time:
		return util.Mix(util.HashString("date", seed), uint64(t.UnixNano()))
	default:
		return util.HashString(fmt.Sprintf("%T|%v", t, t), seed)
	}
}

// keySet is a set of primary keys ordered by db.CompareKeys.
type keySet struct {
	tree *btree.BTreeG[db.Key]
}

func lessKey(a, b db.Key) bool { return db.CompareKeys(a, b) < 0 }

func newKeySet() *keySet {
	return &keySet{tree: btree.NewG[db.Key](16, lessKey)}
}

func (s *keySet) has(k db.Key) bool { return s.tree.Has(k) }

// add inserts k and reports whether it was not present yet.
func (s *keySet) add(k db.Key) bool {
	_, replaced := s.tree.ReplaceOrInsert(k)
	return !replaced
}

func (s *keySet) len() int { return s.tree.Len() }
