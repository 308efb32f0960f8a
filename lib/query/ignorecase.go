package query

import (
	"slices"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ValentinKolb/iKV/lib/db"
)

// MatchMode selects how IgnoreCase compares index values with the text.
type MatchMode int

const (
	// Exact matches values equal to the text, ignoring case.
	Exact MatchMode = iota
	// Prefix matches values starting with the text, ignoring case.
	Prefix
)

func (m MatchMode) String() string {
	if m == Prefix {
		return "prefix"
	}
	return "exact"
}

// ParseMatchMode parses "exact" or "prefix".
func ParseMatchMode(s string) (MatchMode, error) {
	switch strings.ToLower(s) {
	case "exact", "":
		return Exact, nil
	case "prefix":
		return Prefix, nil
	}
	return Exact, newErrorf(RetCInvalidArgument, nil, "unknown match mode %q", s)
}

// --------------------------------------------------------------------------
// Case variants
// --------------------------------------------------------------------------

// caseVariants returns the case fold orbit of r in ascending order, r itself
// included. Runes without case return [r]. Titlecase digraphs have three
// variants (ǅ, ǆ, Ǆ), and so have k and s (Kelvin sign, long s).
func caseVariants(r rune) []rune {
	variants := []rune{r}
	for f := unicode.SimpleFold(r); f != r; f = unicode.SimpleFold(f) {
		variants = append(variants, f)
	}
	slices.Sort(variants)
	return variants
}

// foldTable holds the encoded case variants of every rune of a text.
type foldTable [][]string

func newFoldTable(s string) foldTable {
	t := make(foldTable, 0, utf8.RuneCountInString(s))
	for _, r := range s {
		variants := caseVariants(r)
		enc := make([]string, len(variants))
		for i, v := range variants {
			enc[i] = string(v)
		}
		t = append(t, enc)
	}
	return t
}

// lowest returns the smallest variant of the runes from position i on.
func (t foldTable) lowest(i int) string {
	var sb strings.Builder
	for _, variants := range t[i:] {
		sb.WriteString(variants[0])
	}
	return sb.String()
}

// next returns the smallest case variant of the text that is >= p in byte
// order, or false if every variant is smaller than p. UTF-8 encodings are
// prefix free, so at most one variant per position continues p exactly.
func (t foldTable) next(p string) (string, bool) {
	var (
		off     int
		dev     = -1 // deepest position where a larger variant can branch off
		devRune string
		devOff  int
	)
	for i, variants := range t {
		if off == len(p) {
			return p + t.lowest(i), true
		}
		rest := p[off:]
		matched := ""
		for _, v := range variants {
			if strings.HasPrefix(rest, v) {
				matched = v
				continue
			}
			if v > rest {
				dev, devRune, devOff = i, v, off
				break
			}
		}
		if matched == "" {
			break
		}
		off += len(matched)
		if i == len(t)-1 && off == len(p) {
			return p, true
		}
	}
	if len(t) == 0 && p == "" {
		return "", true
	}
	if dev < 0 {
		return "", false
	}
	return p[:devOff] + devRune + t.lowest(dev+1), true
}

// ExpandCase returns every case variant of s in ascending order. Each rune
// branches into its case fold orbit, runes without case are kept as they
// are, so the result holds the product of the orbit sizes as distinct
// strings. ExpandCase("") returns [""]. The scanner does not materialize
// this list, it is meant for short texts.
func ExpandCase(s string) []string {
	perms := []string{""}
	for _, variants := range newFoldTable(s) {
		next := make([]string, 0, len(perms)*len(variants))
		for _, p := range perms {
			for _, v := range variants {
				next = append(next, p+v)
			}
		}
		perms = next
	}
	sort.Strings(perms)
	return perms
}

// caseLetters counts the runes of s that have more than one case variant.
func caseLetters(s string) int {
	n := 0
	for _, r := range s {
		if unicode.SimpleFold(r) != r {
			n++
		}
	}
	return n
}

// runePrefix returns the first n runes of s (or s if it is shorter).
func runePrefix(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// --------------------------------------------------------------------------
// Case-insensitive scan
// --------------------------------------------------------------------------

// scanCaseFold walks the index in ascending order and calls visit for every
// entry whose key is a case variant of the text (Exact) or starts with one
// (Prefix). Instead of visiting every entry, the walker seeks to the next
// variant that can still match. Variants are computed one at a time.
func scanCaseFold(st db.ObjectStore, index string, fold foldTable, mode MatchMode, visit func(rec db.Record)) error {
	w, err := openWalker(st, Predicate{Index: index}, db.Next)
	if err != nil {
		return err
	}
	target := fold.lowest(0)
	for !w.done() {
		v, isString := w.key().(string)
		if !isString {
			if db.CompareKeys(w.key(), target) > 0 {
				// binary and array keys sort after all strings
				return nil
			}
			if err := w.seek(target); err != nil {
				return err
			}
			continue
		}

		probe := v
		if mode == Prefix {
			probe = runePrefix(v, len(fold))
		}
		var ok bool
		if target, ok = fold.next(probe); !ok {
			return nil
		}

		if probe == target {
			if rec, ok := w.current(); ok {
				visit(rec)
			}
			if err := w.advance(); err != nil {
				return err
			}
			continue
		}
		if err := w.seek(target); err != nil {
			return err
		}
	}
	return nil
}

// IgnoreCase returns all records whose value for index equals (Exact) or
// starts with (Prefix) text, ignoring case. Records are returned in index
// order. A record that matches under several keys of a multi-entry index is
// returned once per key.
func (s *Store) IgnoreCase(index, text string, mode MatchMode) ([]db.Record, error) {
	if limit := s.db.opts.MaxCaseFoldLetters; limit > 0 {
		if l := caseLetters(text); l > limit {
			return nil, newErrorf(RetCInvalidArgument, nil, "ignore case: %d letters exceed the limit of %d", l, limit)
		}
	}
	fold := newFoldTable(text)
	acc := &orderedAccumulator{}
	err := s.run("ignore_case", verbQuery, []string{index}, func(st db.ObjectStore) error {
		return scanCaseFold(st, index, fold, mode, acc.add)
	})
	if err != nil {
		return nil, err
	}
	return acc.result(), nil
}

// StartsWithIgnoreCase is IgnoreCase in Prefix mode.
func (s *Store) StartsWithIgnoreCase(index, prefix string) ([]db.Record, error) {
	return s.IgnoreCase(index, prefix, Prefix)
}
