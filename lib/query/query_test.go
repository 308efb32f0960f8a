package query

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/ValentinKolb/iKV/lib/db"
	"github.com/ValentinKolb/iKV/lib/db/engines/maple"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newFriends creates a "friends" store with the records
//
//	1 Alice  25 [dev go]  alice@example.com
//	2 alice  31 [ops]     alice2@example.com
//	3 ALICE  40
//	4 Alicia 25 [dev]
//	5 Bob    30 [go ops]
//	6 bob    19
func newFriends(t *testing.T, opts *Options) *Store {
	t.Helper()
	engine := maple.NewMapleDB(nil)
	t.Cleanup(func() { _ = engine.Close() })

	require.NoError(t, engine.Upgrade(1, func(u db.Upgrader) error {
		if err := u.CreateStore("friends", db.KeyPath{"id"}, true); err != nil {
			return err
		}
		for _, idx := range []db.IndexSchema{
			{Name: "name", KeyPath: db.KeyPath{"name"}},
			{Name: "age", KeyPath: db.KeyPath{"age"}},
			{Name: "tags", KeyPath: db.KeyPath{"tags"}, MultiEntry: true},
			{Name: "email", KeyPath: db.KeyPath{"email"}, Unique: true},
		} {
			if err := u.CreateIndex("friends", idx); err != nil {
				return err
			}
		}
		return nil
	}))

	s, err := New(engine, opts).Store("friends")
	require.NoError(t, err)
	for _, rec := range []db.Record{
		{"name": "Alice", "age": 25, "tags": []any{"dev", "go"}, "email": "alice@example.com"},
		{"name": "alice", "age": 31, "tags": []any{"ops"}, "email": "alice2@example.com"},
		{"name": "ALICE", "age": 40},
		{"name": "Alicia", "age": 25, "tags": []any{"dev"}},
		{"name": "Bob", "age": 30, "tags": []any{"go", "ops"}},
		{"name": "bob", "age": 19},
	} {
		_, err := s.Add(rec, nil)
		require.NoError(t, err)
	}
	return s
}

func ids(recs []db.Record) []float64 {
	out := make([]float64, len(recs))
	for i, r := range recs {
		out[i] = r["id"].(float64)
	}
	return out
}

func names(recs []db.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = fmt.Sprint(r["name"])
	}
	return out
}

// --------------------------------------------------------------------------
// Case permutations
// --------------------------------------------------------------------------

func TestExpandCase(t *testing.T) {
	assert.Equal(t, []string{""}, ExpandCase(""))
	assert.Equal(t, []string{"AB1", "Ab1", "aB1", "ab1"}, ExpandCase("ab1"))
	assert.Equal(t, []string{"42 -"}, ExpandCase("42 -"))

	// titlecase digraphs, the Kelvin sign and sharp s belong to larger fold orbits
	assert.Equal(t, []string{"\u01c4", "\u01c5", "\u01c6"}, ExpandCase("\u01c5"))
	assert.Equal(t, []string{"K", "k", "\u212a"}, ExpandCase("k"))
	assert.Equal(t, []string{"\u00df", "\u1e9e"}, ExpandCase("\u00df"))

	for _, s := range []string{"alice", "Ñandú 42", "日本x", "ΣΑΣ", "\u01c5emal"} {
		perms := ExpandCase(s)
		want := 1
		for _, r := range s {
			want *= len(caseVariants(r))
		}
		assert.Len(t, perms, want, s)
		assert.Contains(t, perms, s)
		assert.True(t, sort.StringsAreSorted(perms), s)
		seen := map[string]bool{}
		for _, p := range perms {
			assert.False(t, seen[p], "duplicate permutation %q", p)
			seen[p] = true
			assert.Equal(t, len([]rune(s)), len([]rune(p)))
		}
	}
}

// --------------------------------------------------------------------------
// Case-insensitive scan
// --------------------------------------------------------------------------

func TestIgnoreCase(t *testing.T) {
	s := newFriends(t, nil)

	recs, err := s.IgnoreCase("name", "alice", Exact)
	require.NoError(t, err)
	assert.Equal(t, []string{"ALICE", "Alice", "alice"}, names(recs))

	recs, err = s.IgnoreCase("name", "alice", Prefix)
	require.NoError(t, err)
	assert.Len(t, recs, 3)

	recs, err = s.StartsWithIgnoreCase("name", "ali")
	require.NoError(t, err)
	assert.Equal(t, []string{"ALICE", "Alice", "Alicia", "alice"}, names(recs))

	recs, err = s.IgnoreCase("name", "BOB", Exact)
	require.NoError(t, err)
	assert.Equal(t, []string{"Bob", "bob"}, names(recs))

	recs, err = s.IgnoreCase("name", "carol", Prefix)
	require.NoError(t, err)
	assert.Empty(t, recs)

	_, err = s.IgnoreCase("nope", "alice", Exact)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIgnoreCaseMatchesFullScan(t *testing.T) {
	s := newFriends(t, nil)
	words := []string{"alpha", "ALPHA", "Alpine", "alp", "beta", "Beta", "BETAMAX", "al", "ALPHABET", "gamma"}
	for i := 0; i < 300; i++ {
		w := words[i%len(words)]
		if i%3 == 0 {
			w = strings.ToUpper(w[:1]) + w[1:]
		}
		_, err := s.Add(db.Record{"name": fmt.Sprintf("%s%d", w, i%7), "age": i}, nil)
		require.NoError(t, err)
	}
	// keys of other types around the strings
	_, err := s.Add(db.Record{"name": 42}, nil)
	require.NoError(t, err)
	_, err = s.Add(db.Record{"name": []byte("alpha")}, nil)
	require.NoError(t, err)

	all, err := s.GetAll("", nil, 0)
	require.NoError(t, err)

	for _, tc := range []struct {
		text string
		mode MatchMode
	}{
		{"alpha", Prefix}, {"ALP", Prefix}, {"beta3", Exact}, {"al", Prefix}, {"Gamma1", Exact}, {"x", Prefix}, {"", Prefix},
	} {
		var want []float64
		for _, r := range all {
			v, ok := r["name"].(string)
			if !ok {
				continue
			}
			lv, lt := strings.ToLower(v), strings.ToLower(tc.text)
			if (tc.mode == Exact && lv == lt) || (tc.mode == Prefix && strings.HasPrefix(lv, lt)) {
				want = append(want, r["id"].(float64))
			}
		}

		steps := cursorSteps.Get()
		got, err := s.IgnoreCase("name", tc.text, tc.mode)
		require.NoError(t, err)
		gotIDs := ids(got)
		sort.Float64s(gotIDs)
		sort.Float64s(want)
		assert.Equal(t, want, gotIDs, "%s %q", tc.mode, tc.text)

		if tc.text != "" {
			// matches are stepped over, everything else is skipped by seeking
			assert.LessOrEqual(t, cursorSteps.Get()-steps, uint64(len(want)), "%s %q", tc.mode, tc.text)
		}
	}
}

func TestFoldTableNext(t *testing.T) {
	for _, text := range []string{"ak", "\u01c5s", "b1", ""} {
		fold := newFoldTable(text)
		perms := ExpandCase(text)

		probes := []string{"", "0", "a", "A", "b", "zzz", "\u212a", "\uffff"}
		for _, p := range perms {
			r := []rune(p)
			probes = append(probes, p, p+"x", p+" ", string(r[:max(len(r)-1, 0)]))
		}
		for _, p := range probes {
			want, wantOK := "", false
			for _, v := range perms {
				if v >= p {
					want, wantOK = v, true
					break
				}
			}
			got, ok := fold.next(p)
			assert.Equal(t, wantOK, ok, "%q after %q", text, p)
			assert.Equal(t, want, got, "%q after %q", text, p)
		}
	}
}

func TestIgnoreCaseLongText(t *testing.T) {
	s := newFriends(t, nil)
	for _, name := range []string{"Christopher Robinson", "CHRISTOPHER ROBINSON", "Christopher Robinsons", "christopher robinso"} {
		_, err := s.Add(db.Record{"name": name}, nil)
		require.NoError(t, err)
	}

	steps := cursorSteps.Get()
	recs, err := s.IgnoreCase("name", "christopher robinson", Exact)
	require.NoError(t, err)
	assert.Equal(t, []string{"CHRISTOPHER ROBINSON", "Christopher Robinson"}, names(recs))
	assert.LessOrEqual(t, cursorSteps.Get()-steps, uint64(2))

	recs, err = s.StartsWithIgnoreCase("name", "CHRISTOPHER robinson")
	require.NoError(t, err)
	assert.Len(t, recs, 3)
}

func TestIgnoreCaseFoldOrbits(t *testing.T) {
	s := newFriends(t, nil)
	for _, name := range []string{"\u01c4EMAL", "\u01c5emal", "\u01c6emal", "kelvin", "\u212aelvin", "Kevin"} {
		_, err := s.Add(db.Record{"name": name}, nil)
		require.NoError(t, err)
	}

	recs, err := s.IgnoreCase("name", "\u01c5emal", Exact)
	require.NoError(t, err)
	assert.Equal(t, []string{"\u01c4EMAL", "\u01c5emal", "\u01c6emal"}, names(recs))

	recs, err = s.IgnoreCase("name", "KELVIN", Exact)
	require.NoError(t, err)
	assert.Equal(t, []string{"kelvin", "\u212aelvin"}, names(recs))
}

func TestIgnoreCaseLetterLimit(t *testing.T) {
	s := newFriends(t, &Options{MaxCaseFoldLetters: 3})
	_, err := s.IgnoreCase("name", "alice", Exact)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	recs, err := s.IgnoreCase("name", "bob", Exact)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

// --------------------------------------------------------------------------
// AND
// --------------------------------------------------------------------------

func TestQueryAnd(t *testing.T) {
	s := newFriends(t, nil)

	recs, err := s.QueryAnd(P("age", Between(20, 35, false, false)), P("name", Lt("a")))
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 4, 5}, ids(recs))

	recs, err = s.QueryAnd(P("age", Between(20, 35, false, false)), P("tags", Eq("go")))
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 5}, ids(recs))

	// every result satisfies every predicate
	recs, err = s.QueryAnd(P("name", Ge("B")), P("age", Lt(31)), P("", Gt(4)))
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 6}, ids(recs))

	recs, err = s.QueryAnd(P("name", Eq("Alice")), P("age", Gt(100)))
	require.NoError(t, err)
	assert.NotNil(t, recs)
	assert.Empty(t, recs)
}

func TestQueryAndVisitsMultiEntryRecordsOnce(t *testing.T) {
	s := newFriends(t, nil)

	recs, err := s.QueryAnd(P("tags", Between("a", "z", false, false)))
	require.NoError(t, err)
	// dev(1) dev(4) go(5) ops(2); the second entries of 1 and 5 are skipped
	assert.Equal(t, []float64{1, 4, 5, 2}, ids(recs))
}

func TestUpdateAnd(t *testing.T) {
	s := newFriends(t, nil)

	keys, err := s.UpdateAnd(db.Record{"age": 100}, P("age", Ge(20)))
	require.NoError(t, err)
	// records moved forward in the walked index are not visited again
	assert.Equal(t, []db.Key{float64(1), float64(4), float64(5), float64(2), float64(3)}, keys)

	n, err := s.Count("age", Eq(100))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	rec, ok, err := s.Get("", Eq(1))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Alice", rec["name"])

	_, err = s.UpdateAnd(nil, P("age", Ge(20)))
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestDeleteAnd(t *testing.T) {
	s := newFriends(t, nil)

	n, err := s.DeleteAnd(P("age", Eq(25)), P("tags", Eq("dev")))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.DeleteAnd(P("age", Eq(25)), P("tags", Eq("dev")))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = s.Count("", nil)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestRollbackOnEngineFailure(t *testing.T) {
	s := newFriends(t, nil)

	// the second rewrite violates the unique email index
	_, err := s.UpdateAnd(db.Record{"email": "same@example.com"}, P("age", Ge(20)))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStorageFailure)
	assert.ErrorIs(t, err, db.ErrConstraint)
	assert.Equal(t, RetCStorageFailure, CodeOf(err))

	rec, ok, err := s.Get("", Eq(1))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "alice@example.com", rec["email"])

	n, err := s.Count("email", Eq("same@example.com"))
	require.NoError(t, err)
	assert.Zero(t, n)
}

// --------------------------------------------------------------------------
// OR
// --------------------------------------------------------------------------

func TestQueryOr(t *testing.T) {
	s := newFriends(t, nil)

	recs, err := s.QueryOr(P("name", Eq("Bob")), P("age", Eq(30)))
	require.NoError(t, err)
	assert.Equal(t, []float64{5}, ids(recs))

	recs, err = s.QueryOr(P("name", Eq("bob")), P("tags", Eq("dev")), P("tags", Eq("go")))
	require.NoError(t, err)
	got := ids(recs)
	sort.Float64s(got)
	assert.Equal(t, []float64{1, 4, 5, 6}, got)

	recs, err = s.QueryOr(P("name", Eq("nobody")))
	require.NoError(t, err)
	assert.NotNil(t, recs)
	assert.Empty(t, recs)
}

func TestDeleteOrCountsEachRecordOnce(t *testing.T) {
	s := newFriends(t, nil)

	n, err := s.DeleteOr(P("name", Eq("Bob")), P("age", Eq(30)))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.DeleteOr(P("tags", Eq("dev")), P("age", Eq(25)), P("name", Eq("Alicia")))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.Count("", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestUpdateOr(t *testing.T) {
	s := newFriends(t, nil)

	keys, err := s.UpdateOr(db.Record{"vip": true}, P("name", Eq("Bob")), P("age", Eq(30)), P("tags", Eq("ops")))
	require.NoError(t, err)
	sort.Slice(keys, func(i, j int) bool { return db.CompareKeys(keys[i], keys[j]) < 0 })
	assert.Equal(t, []db.Key{float64(2), float64(5)}, keys)

	recs, err := s.GetAll("", nil, 0)
	require.NoError(t, err)
	for _, r := range recs {
		id := r["id"].(float64)
		assert.Equal(t, id == 2 || id == 5, r["vip"] == true, "record %v", id)
	}
}

// --------------------------------------------------------------------------
// Where and passthroughs
// --------------------------------------------------------------------------

func TestWhere(t *testing.T) {
	s := newFriends(t, nil)

	recs, err := s.Where("age", Ge(30), 2, db.Next)
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 2}, ids(recs))

	recs, err = s.Where("age", nil, 0, db.Prev)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 2, 5, 4, 1, 6}, ids(recs))

	recs, err = s.Where("age", nil, 0, db.NextUnique)
	require.NoError(t, err)
	assert.Equal(t, []float64{6, 1, 5, 2, 3}, ids(recs))

	recs, err = s.Where("", Le(2), 0, db.Next)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, ids(recs))

	recs, err = s.StartsWith("name", "Ali", db.Next)
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice", "Alicia"}, names(recs))

	recs, err = s.StartsWith("name", "", db.Next)
	require.NoError(t, err)
	assert.Len(t, recs, 6)

	_, err = s.Where("nope", nil, 0, db.Next)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPassthroughs(t *testing.T) {
	s := newFriends(t, nil)

	key, ok, err := s.GetKey("name", Eq("Bob"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, float64(5), key)

	keys, err := s.GetAllKeys("tags", Eq("ops"), 0)
	require.NoError(t, err)
	assert.Equal(t, []db.Key{float64(2), float64(5)}, keys)

	_, err = s.Add(db.Record{"id": 1, "name": "dup"}, nil)
	assert.ErrorIs(t, err, ErrStorageFailure)
	assert.ErrorIs(t, err, db.ErrConstraint)

	_, err = s.Put(db.Record{"id": 1, "name": "Alice II", "age": 26}, nil)
	require.NoError(t, err)
	rec, _, err := s.Get("age", Eq(26))
	require.NoError(t, err)
	assert.Equal(t, "Alice II", rec["name"])

	schema, err := s.Schema()
	require.NoError(t, err)
	assert.Equal(t, "friends", schema.Name)
	assert.Len(t, schema.Indexes, 4)
}

func TestDeleteIsIdempotent(t *testing.T) {
	s := newFriends(t, nil)

	n, err := s.Delete(Eq(6))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	for i := 0; i < 2; i++ {
		n, err = s.Delete(Eq(6))
		require.NoError(t, err)
		assert.Zero(t, n)
	}
}

// --------------------------------------------------------------------------
// Errors and coordination
// --------------------------------------------------------------------------

func TestUnknownNames(t *testing.T) {
	s := newFriends(t, nil)

	_, err := s.db.Store("missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, db.ErrStoreNotFound)

	_, err = s.QueryAnd(P("name", Eq("Bob")), P("nope", nil))
	assert.ErrorIs(t, err, ErrNotFound)

	// nothing is deleted if a later predicate names an unknown index
	_, err = s.DeleteOr(P("name", Eq("Bob")), P("nope", nil))
	assert.ErrorIs(t, err, ErrNotFound)
	n, err := s.Count("", nil)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
}

func TestInvalidArguments(t *testing.T) {
	s := newFriends(t, nil)

	_, err := s.QueryAnd()
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = s.QueryOr()
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = s.DeleteAnd()
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = Pairs()
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = Pairs("name", Eq("x"), "age")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = Pairs(1, Eq("x"))
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = Pairs("name", "x")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	preds, err := Pairs("name", Eq("Bob"), "age", *Eq(30), "", nil)
	require.NoError(t, err)
	require.Len(t, preds, 3)
	recs, err := s.QueryAnd(preds...)
	require.NoError(t, err)
	assert.Equal(t, []float64{5}, ids(recs))

	assert.Panics(t, func() { Eq(map[string]any{}) })
}

func TestUnsupportedVerb(t *testing.T) {
	s := newFriends(t, nil)
	called := false
	err := s.run("test", "frobnicate", nil, func(db.ObjectStore) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrUnsupported)
	assert.False(t, called)
}

func TestErrorFormat(t *testing.T) {
	err := NewError(RetCNotFound, "store \"x\"")
	assert.Equal(t, `QueryError (code NotFound): store "x"`, err.Error())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrUnsupported)
	assert.Equal(t, RetCode(0), CodeOf(fmt.Errorf("plain")))
}

func TestKeySet(t *testing.T) {
	set := newKeySet()
	keys := []db.Key{"b", float64(3), []byte{1}, float64(-1), "a", float64(3), "b"}
	added := 0
	for _, k := range keys {
		if set.add(k) {
			added++
		}
	}
	assert.Equal(t, 5, added)
	assert.Equal(t, 5, set.len())
	assert.True(t, set.has(float64(-1)))
	assert.True(t, set.has([]byte{1}))
	assert.False(t, set.has("c"))

	// keys arrive in index order, not primary key order
	set = newKeySet()
	for i := 0; i < 5000; i++ {
		assert.True(t, set.add(float64((i*7919)%5000)))
	}
	assert.Equal(t, 5000, set.len())
	assert.False(t, set.add(float64(4999)))
}

func TestDedupAccumulator(t *testing.T) {
	acc := newDedupAccumulator()
	a := db.Record{"a": 1, "b": map[string]any{"x": []any{"1", 2.0}}}
	b := db.Record{"b": map[string]any{"x": []any{"1", 2.0}}, "a": 1}
	c := db.Record{"a": 1, "b": map[string]any{"x": []any{2.0, "1"}}}

	assert.True(t, acc.add(a))
	assert.False(t, acc.add(b))
	assert.True(t, acc.add(c))
	assert.Len(t, acc.result(), 2)
	assert.Equal(t, fingerprint(map[string]any(a), 0), fingerprint(map[string]any(b), 0))
}

func TestConcurrentCalls(t *testing.T) {
	s := newFriends(t, nil)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				if _, err := s.Add(db.Record{"name": fmt.Sprintf("w%d", g), "age": i}, nil); err != nil {
					t.Errorf("Add failed: %v", err)
					return
				}
				if _, err := s.UpdateAnd(db.Record{"seen": true}, P("name", Eq(fmt.Sprintf("w%d", g)))); err != nil {
					t.Errorf("UpdateAnd failed: %v", err)
					return
				}
			}
		}(g)
	}
	wg.Wait()

	n, err := s.Count("", nil)
	require.NoError(t, err)
	assert.Equal(t, 206, n)
	recs, err := s.StartsWith("name", "w", db.Next)
	require.NoError(t, err)
	require.Len(t, recs, 200)
	for _, r := range recs {
		assert.Equal(t, true, r["seen"])
	}
}

func TestWriteMetrics(t *testing.T) {
	s := newFriends(t, nil)
	_, err := s.QueryOr(P("name", Eq("Bob")))
	require.NoError(t, err)
	_, _ = s.QueryAnd(P("nope", nil))

	var buf bytes.Buffer
	WriteMetrics(&buf)
	out := buf.String()
	assert.Contains(t, out, `ikv_query_calls_total{verb="query_or"}`)
	assert.Contains(t, out, `ikv_query_errors_total{verb="query_and",code="NotFound"}`)
	assert.Contains(t, out, "ikv_cursor_steps_total")
}
