package query

import (
	"github.com/ValentinKolb/iKV/lib/db"
)

// Predicate selects the records whose value for Index lies inside Range.
// Index "" refers to the primary key of the store. A nil Range matches
// every record that has a value for the index.
type Predicate struct {
	Index string
	Range *db.KeyRange
}

// P is shorthand for Predicate{Index: index, Range: r}.
func P(index string, r *db.KeyRange) Predicate {
	return Predicate{Index: index, Range: r}
}

// Pairs converts a flat (index, range, index, range, ...) argument list into
// predicates. Ranges may be given as *db.KeyRange or db.KeyRange.
func Pairs(args ...any) ([]Predicate, error) {
	if len(args) == 0 {
		return nil, newErrorf(RetCInvalidArgument, nil, "empty predicate list")
	}
	if len(args)%2 != 0 {
		return nil, newErrorf(RetCInvalidArgument, nil, "odd number of predicate arguments (%d)", len(args))
	}
	preds := make([]Predicate, 0, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		name, ok := args[i].(string)
		if !ok {
			return nil, newErrorf(RetCInvalidArgument, nil, "argument %d: index name must be a string, got %T", i, args[i])
		}
		var r *db.KeyRange
		switch v := args[i+1].(type) {
		case *db.KeyRange:
			r = v
		case db.KeyRange:
			r = &v
		case nil:
		default:
			return nil, newErrorf(RetCInvalidArgument, nil, "argument %d: expected a key range, got %T", i+1, args[i+1])
		}
		preds = append(preds, Predicate{Index: name, Range: r})
	}
	return preds, nil
}

// --------------------------------------------------------------------------
// Range sugar
// --------------------------------------------------------------------------
//
// The helpers below panic on values that are not valid keys, like
// db.MustKey. Use the db constructors to handle such errors.

func must(r *db.KeyRange, err error) *db.KeyRange {
	if err != nil {
		panic(err)
	}
	return r
}

// Eq matches exactly v.
func Eq(v any) *db.KeyRange { return must(db.Only(v)) }

// Lt matches keys < v.
func Lt(v any) *db.KeyRange { return must(db.UpperBound(v, true)) }

// Le matches keys <= v.
func Le(v any) *db.KeyRange { return must(db.UpperBound(v, false)) }

// Gt matches keys > v.
func Gt(v any) *db.KeyRange { return must(db.LowerBound(v, true)) }

// Ge matches keys >= v.
func Ge(v any) *db.KeyRange { return must(db.LowerBound(v, false)) }

// Between matches lo <= key <= hi, with either side optionally open.
func Between(lo, hi any, loOpen, hiOpen bool) *db.KeyRange {
	return must(db.Bound(lo, hi, loOpen, hiOpen))
}

// All matches every key.
func All() *db.KeyRange { return nil }

// prefixRange returns the range of all strings starting with prefix.
func prefixRange(prefix string) *db.KeyRange {
	if prefix == "" {
		// every string sorts before the empty byte slice
		return &db.KeyRange{Lower: "", Upper: []byte{}, UpperOpen: true}
	}
	return &db.KeyRange{Lower: prefix, Upper: successor(prefix), UpperOpen: true}
}

// successor returns the smallest string greater than every string with prefix p,
// or a []byte upper bound if no such string exists.
func successor(p string) db.Key {
	b := []byte(p)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			b[i]++
			return string(b[:i+1])
		}
	}
	return []byte{}
}
