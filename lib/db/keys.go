package db

import (
	"bytes"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// --------------------------------------------------------------------------
// Keys
// --------------------------------------------------------------------------

// Key is a value that can be ordered by the store. Valid keys are numbers
// (normalized to float64), time.Time, string, []byte and arrays ([]any)
// of valid keys.
type Key = any

// keyType orders the key categories relative to each other.
type keyType int

const (
	keyTInvalid keyType = iota
	keyTNumber
	keyTDate
	keyTString
	keyTBinary
	keyTArray
)

// NormalizeKey converts k into its canonical representation.
// All integer and float kinds become float64, []string and other slices
// become []any. An error wrapping ErrDataError is returned for values that
// are not valid keys (nil, NaN, maps, structs, booleans, ...).
func NormalizeKey(k any) (Key, error) {
	switch v := k.(type) {
	case nil:
		return nil, errors.Wrap(ErrDataError, "nil is not a valid key")
	case float64:
		if math.IsNaN(v) {
			return nil, errors.Wrap(ErrDataError, "NaN is not a valid key")
		}
		return v, nil
	case string, time.Time:
		return v, nil
	case []byte:
		c := make([]byte, len(v))
		copy(c, v)
		return c, nil
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			n, err := NormalizeKey(e)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	}

	rv := reflect.ValueOf(k)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint()), nil
	case reflect.Float32:
		f := rv.Float()
		if math.IsNaN(f) {
			return nil, errors.Wrap(ErrDataError, "NaN is not a valid key")
		}
		return f, nil
	case reflect.String:
		return rv.String(), nil
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			n, err := NormalizeKey(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	}
	return nil, errors.Wrapf(ErrDataError, "%T is not a valid key", k)
}

// MustKey normalizes k and panics if it is not a valid key.
// Intended for literals in tests and examples.
func MustKey(k any) Key {
	n, err := NormalizeKey(k)
	if err != nil {
		panic(err)
	}
	return n
}

func typeOf(k Key) keyType {
	switch k.(type) {
	case float64:
		return keyTNumber
	case time.Time:
		return keyTDate
	case string:
		return keyTString
	case []byte:
		return keyTBinary
	case []any:
		return keyTArray
	default:
		return keyTInvalid
	}
}

// CompareKeys compares two normalized keys and returns -1, 0 or +1.
// Keys of different categories are ordered
// number < date < string < binary < array.
// Strings compare by their UTF-8 bytes, which equals code point order.
func CompareKeys(a, b Key) int {
	ta, tb := typeOf(a), typeOf(b)
	if ta != tb {
		if ta < tb {
			return -1
		}
		return 1
	}

	switch ta {
	case keyTNumber:
		x, y := a.(float64), b.(float64)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case keyTDate:
		return a.(time.Time).Compare(b.(time.Time))
	case keyTString:
		return strings.Compare(a.(string), b.(string))
	case keyTBinary:
		return bytes.Compare(a.([]byte), b.([]byte))
	case keyTArray:
		x, y := a.([]any), b.([]any)
		for i := 0; i < len(x) && i < len(y); i++ {
			if c := CompareKeys(x[i], y[i]); c != 0 {
				return c
			}
		}
		switch {
		case len(x) < len(y):
			return -1
		case len(x) > len(y):
			return 1
		}
		return 0
	}
	return 0
}

// --------------------------------------------------------------------------
// Key Ranges
// --------------------------------------------------------------------------

// KeyRange describes a scan bound. A nil *KeyRange means "all keys".
// Lower and Upper are nil for unbounded sides.
// KeyRange values are immutable after construction.
type KeyRange struct {
	Lower     Key
	Upper     Key
	LowerOpen bool
	UpperOpen bool
}

// Only returns a range containing exactly k.
func Only(k any) (*KeyRange, error) {
	n, err := NormalizeKey(k)
	if err != nil {
		return nil, err
	}
	return &KeyRange{Lower: n, Upper: n}, nil
}

// LowerBound returns a range of all keys >= k (or > k if open).
func LowerBound(k any, open bool) (*KeyRange, error) {
	n, err := NormalizeKey(k)
	if err != nil {
		return nil, err
	}
	return &KeyRange{Lower: n, LowerOpen: open}, nil
}

// UpperBound returns a range of all keys <= k (or < k if open).
func UpperBound(k any, open bool) (*KeyRange, error) {
	n, err := NormalizeKey(k)
	if err != nil {
		return nil, err
	}
	return &KeyRange{Upper: n, UpperOpen: open}, nil
}

// Bound returns a range between lo and hi. A range with lo > hi is valid and
// empty.
func Bound(lo, hi any, loOpen, hiOpen bool) (*KeyRange, error) {
	l, err := NormalizeKey(lo)
	if err != nil {
		return nil, err
	}
	h, err := NormalizeKey(hi)
	if err != nil {
		return nil, err
	}
	return &KeyRange{Lower: l, Upper: h, LowerOpen: loOpen, UpperOpen: hiOpen}, nil
}

// Includes reports whether the normalized key k lies inside the range.
// A nil range includes every key.
func (r *KeyRange) Includes(k Key) bool {
	if r == nil {
		return true
	}
	return !r.BelowLower(k) && !r.AboveUpper(k)
}

// IsEmpty reports whether no key can satisfy the range.
func (r *KeyRange) IsEmpty() bool {
	if r == nil || r.Lower == nil || r.Upper == nil {
		return false
	}
	c := CompareKeys(r.Lower, r.Upper)
	return c > 0 || (c == 0 && (r.LowerOpen || r.UpperOpen))
}

// BelowLower reports whether k is before the start of the range.
func (r *KeyRange) BelowLower(k Key) bool {
	if r == nil || r.Lower == nil {
		return false
	}
	c := CompareKeys(k, r.Lower)
	return c < 0 || (c == 0 && r.LowerOpen)
}

// AboveUpper reports whether k is past the end of the range.
func (r *KeyRange) AboveUpper(k Key) bool {
	if r == nil || r.Upper == nil {
		return false
	}
	c := CompareKeys(k, r.Upper)
	return c > 0 || (c == 0 && r.UpperOpen)
}
