package db

import (
	"strings"
)

// --------------------------------------------------------------------------
// Records
// --------------------------------------------------------------------------

// Record is a structured value stored in an object store.
// Records handed out by an engine are deep copies and may be modified freely.
type Record map[string]any

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	return cloneValue(map[string]any(r)).(map[string]any)
}

// Merge returns a copy of r with every field of patch written over it.
// The merge is shallow: nested maps in patch replace nested maps in r.
func (r Record) Merge(patch Record) Record {
	out := r.Clone()
	if out == nil {
		out = Record{}
	}
	for k, v := range patch {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Record:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = cloneValue(e)
		}
		return m
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = cloneValue(e)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = cloneValue(e)
		}
		return s
	case []byte:
		b := make([]byte, len(t))
		copy(b, t)
		return b
	default:
		return v
	}
}

// --------------------------------------------------------------------------
// Key Paths
// --------------------------------------------------------------------------

// KeyPath addresses the key of a record. A path with one element yields a
// single key, a path with several elements yields an array key (compound
// key). Elements may be dotted to reach into nested maps ("address.city").
type KeyPath []string

// String renders the key path the way the schema language writes it.
func (kp KeyPath) String() string {
	return strings.Join(kp, "+")
}

// IsCompound reports whether the key path yields array keys.
func (kp KeyPath) IsCompound() bool {
	return len(kp) > 1
}

// Value returns the raw value at a single (possibly dotted) path.
func Value(r Record, path string) (any, bool) {
	var cur any = map[string]any(r)
	for _, part := range strings.Split(path, ".") {
		var (
			v  any
			ok bool
		)
		switch m := cur.(type) {
		case map[string]any:
			v, ok = m[part]
		case Record:
			v, ok = m[part]
		}
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

// SetValue writes v at a single (possibly dotted) path, creating nested maps
// when necessary.
func SetValue(r Record, path string, v any) {
	parts := strings.Split(path, ".")
	cur := map[string]any(r)
	for _, part := range parts[:len(parts)-1] {
		next, ok := cur[part].(map[string]any)
		if !ok {
			if rec, isRec := cur[part].(Record); isRec {
				next = rec
			} else {
				next = map[string]any{}
				cur[part] = next
			}
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = v
}

// ExtractKey evaluates the key path against the record. The boolean is false
// if a path element is missing or does not hold a valid key.
func ExtractKey(r Record, kp KeyPath) (Key, bool) {
	if len(kp) == 0 {
		return nil, false
	}
	if !kp.IsCompound() {
		v, ok := Value(r, kp[0])
		if !ok {
			return nil, false
		}
		k, err := NormalizeKey(v)
		return k, err == nil
	}
	out := make([]any, len(kp))
	for i, p := range kp {
		v, ok := Value(r, p)
		if !ok {
			return nil, false
		}
		k, err := NormalizeKey(v)
		if err != nil {
			return nil, false
		}
		out[i] = k
	}
	return out, true
}

// IndexKeys returns the index keys a record contributes to an index.
// For multi-entry indexes over an array value every distinct valid element
// is a key of its own, otherwise the record contributes at most one key.
func IndexKeys(r Record, kp KeyPath, multiEntry bool) []Key {
	if multiEntry && len(kp) == 1 {
		if v, ok := Value(r, kp[0]); ok {
			arr, isArr := v.([]any)
			if !isArr {
				if n, err := NormalizeKey(v); err == nil {
					arr, isArr = n.([]any)
				}
			}
			if isArr {
				keys := make([]Key, 0, len(arr))
			elements:
				for _, e := range arr {
					k, err := NormalizeKey(e)
					if err != nil {
						continue
					}
					for _, seen := range keys {
						if CompareKeys(seen, k) == 0 {
							continue elements
						}
					}
					keys = append(keys, k)
				}
				return keys
			}
		}
	}
	k, ok := ExtractKey(r, kp)
	if !ok {
		return nil
	}
	return []Key{k}
}
