package testing

import (
	"bytes"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/iKV/lib/db"
	"github.com/cockroachdb/errors"
)

// DBFactory is a function that creates a new, empty instance of an Engine implementation
type DBFactory func() db.Engine

// RunEngineTests runs a comprehensive test suite for an Engine implementation.
func RunEngineTests(t *testing.T, name string, factory DBFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Upgrade", func(t *testing.T) {
			testUpgrade(t, factory())
		})

		t.Run("AddPutGet", func(t *testing.T) {
			testAddPutGet(t, factory())
		})

		t.Run("OutOfLineKeys", func(t *testing.T) {
			testOutOfLineKeys(t, factory())
		})

		t.Run("UniqueIndex", func(t *testing.T) {
			testUniqueIndex(t, factory())
		})

		t.Run("CursorDirections", func(t *testing.T) {
			testCursorDirections(t, factory())
		})

		t.Run("CursorSeek", func(t *testing.T) {
			testCursorSeek(t, factory())
		})

		t.Run("CursorMutation", func(t *testing.T) {
			testCursorMutation(t, factory())
		})

		t.Run("MultiEntryAndCompound", func(t *testing.T) {
			testMultiEntryAndCompound(t, factory())
		})

		t.Run("Rollback", func(t *testing.T) {
			testRollback(t, factory())
		})

		t.Run("TransactionLifecycle", func(t *testing.T) {
			testTransactionLifecycle(t, factory())
		})

		t.Run("SaveLoad", func(t *testing.T) {
			testSaveLoad(t, factory)
		})

		t.Run("ConcurrentWriters", func(t *testing.T) {
			testConcurrentWriters(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// Checks if the database supports the specified feature
// Skip the test if it is not supported
func requireFeature(t testing.TB, database db.Engine, feature db.Feature) {
	if !database.SupportsFeature(feature) {
		t.Skip()
	}
}

// setupPeople creates the "people" store used by most tests:
// auto-increment key "id", indexes name, !email, *tags and name+age.
func setupPeople(t testing.TB, database db.Engine) {
	err := database.Upgrade(1, func(u db.Upgrader) error {
		if err := u.CreateStore("people", db.KeyPath{"id"}, true); err != nil {
			return err
		}
		for _, idx := range []db.IndexSchema{
			{Name: "name", KeyPath: db.KeyPath{"name"}},
			{Name: "email", KeyPath: db.KeyPath{"email"}, Unique: true},
			{Name: "tags", KeyPath: db.KeyPath{"tags"}, MultiEntry: true},
			{Name: "name+age", KeyPath: db.KeyPath{"name", "age"}},
		} {
			if err := u.CreateIndex("people", idx); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}
}

// write runs fn in a read-write transaction on store and commits.
func write(t testing.TB, database db.Engine, store string, fn func(s db.ObjectStore)) {
	tx, err := database.Begin([]string{store}, db.ReadWrite)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	s, err := tx.ObjectStore(store)
	if err != nil {
		t.Fatalf("ObjectStore failed: %v", err)
	}
	fn(s)
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
}

// read runs fn in a read-only transaction on store.
func read(t testing.TB, database db.Engine, store string, fn func(s db.ObjectStore)) {
	tx, err := database.Begin([]string{store}, db.ReadOnly)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	s, err := tx.ObjectStore(store)
	if err != nil {
		t.Fatalf("ObjectStore failed: %v", err)
	}
	fn(s)
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
}

func addPeople(t testing.TB, database db.Engine) {
	write(t, database, "people", func(s db.ObjectStore) {
		for _, rec := range []db.Record{
			{"name": "Alice", "email": "alice@example.com", "age": 30, "tags": []any{"admin", "dev"}},
			{"name": "Bob", "email": "bob@example.com", "age": 25, "tags": []any{"dev"}},
			{"name": "Carol", "email": "carol@example.com", "age": 35, "tags": []any{"ops", "dev", "ops"}},
			{"name": "Alice", "email": "alice2@example.com", "age": 22},
		} {
			if _, err := s.Add(rec, nil); err != nil {
				t.Fatalf("Add failed: %v", err)
			}
		}
	})
}

func mustRange(t testing.TB) func(r *db.KeyRange, err error) *db.KeyRange {
	return func(r *db.KeyRange, err error) *db.KeyRange {
		if err != nil {
			t.Fatalf("Invalid range: %v", err)
		}
		return r
	}
}

// walk collects the primary keys visited by a cursor.
func walk(t testing.TB, c db.Cursor) []db.Key {
	var keys []db.Key
	for c.Valid() {
		keys = append(keys, c.PrimaryKey())
		if err := c.Continue(); err != nil {
			t.Fatalf("Continue failed: %v", err)
		}
	}
	return keys
}

func keysEqual(a, b []db.Key) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if db.CompareKeys(a[i], b[i]) != 0 {
			return false
		}
	}
	return true
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testUpgrade(t *testing.T, database db.Engine) {
	defer database.Close()

	if database.Version() != 0 {
		t.Errorf("Expected fresh engine at version 0, got %d", database.Version())
	}

	setupPeople(t, database)

	if database.Version() != 1 {
		t.Errorf("Expected version 1, got %d", database.Version())
	}
	if names := database.StoreNames(); len(names) != 1 || names[0] != "people" {
		t.Errorf("Expected stores [people], got %v", names)
	}

	// version must increase
	err := database.Upgrade(1, func(u db.Upgrader) error { return nil })
	if !errors.Is(err, db.ErrVersion) {
		t.Errorf("Expected ErrVersion for same version, got %v", err)
	}

	// failed upgrades leave no trace
	boom := errors.New("boom")
	err = database.Upgrade(2, func(u db.Upgrader) error {
		if err := u.CreateStore("other", nil, true); err != nil {
			return err
		}
		if err := u.DeleteIndex("people", "name"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("Expected upgrade error to be returned, got %v", err)
	}
	if database.Version() != 1 {
		t.Errorf("Expected version to stay 1 after failed upgrade, got %d", database.Version())
	}
	if len(database.StoreNames()) != 1 {
		t.Errorf("Expected failed upgrade to create no store, got %v", database.StoreNames())
	}
	read(t, database, "people", func(s db.ObjectStore) {
		if _, err := s.Index("name"); err != nil {
			t.Errorf("Expected index name to survive failed upgrade: %v", err)
		}
	})

	// duplicate definitions are rejected
	err = database.Upgrade(2, func(u db.Upgrader) error {
		return u.CreateStore("people", db.KeyPath{"id"}, false)
	})
	if !errors.Is(err, db.ErrConstraint) {
		t.Errorf("Expected ErrConstraint for duplicate store, got %v", err)
	}

	// unknown store
	if _, err := database.Begin([]string{"missing"}, db.ReadOnly); !errors.Is(err, db.ErrStoreNotFound) {
		t.Errorf("Expected ErrStoreNotFound, got %v", err)
	}

	// delete index and store
	err = database.Upgrade(2, func(u db.Upgrader) error {
		if err := u.CreateStore("tmp", nil, false); err != nil {
			return err
		}
		return u.DeleteIndex("people", "tags")
	})
	if err != nil {
		t.Fatalf("Upgrade failed: %v", err)
	}
	read(t, database, "people", func(s db.ObjectStore) {
		if _, err := s.Index("tags"); !errors.Is(err, db.ErrIndexNotFound) {
			t.Errorf("Expected ErrIndexNotFound after DeleteIndex, got %v", err)
		}
		if len(s.IndexNames()) != 3 {
			t.Errorf("Expected 3 indexes, got %v", s.IndexNames())
		}
	})
	err = database.Upgrade(3, func(u db.Upgrader) error {
		return u.DeleteStore("tmp")
	})
	if err != nil {
		t.Fatalf("Upgrade failed: %v", err)
	}
	if len(database.StoreNames()) != 1 {
		t.Errorf("Expected tmp to be deleted, got %v", database.StoreNames())
	}
}

func testAddPutGet(t *testing.T, database db.Engine) {
	defer database.Close()
	requireFeature(t, database, db.FeatureAutoIncrement)
	setupPeople(t, database)
	addPeople(t, database)

	read(t, database, "people", func(s db.ObjectStore) {
		rec, ok, err := s.Get(mustRange(t)(db.Only(1)))
		if err != nil || !ok {
			t.Fatalf("Expected record 1, got ok=%v err=%v", ok, err)
		}
		if rec["name"] != "Alice" {
			t.Errorf("Expected Alice, got %v", rec["name"])
		}
		if rec["id"] != float64(1) {
			t.Errorf("Expected generated key 1 to be written to the record, got %v", rec["id"])
		}

		// returned records are copies
		rec["name"] = "Mallory"
		again, _, _ := s.Get(mustRange(t)(db.Only(1)))
		if again["name"] != "Alice" {
			t.Errorf("Get should return a copy, not a reference to the stored record")
		}

		if n, _ := s.Count(nil); n != 4 {
			t.Errorf("Expected 4 records, got %d", n)
		}
		if _, ok, _ := s.Get(mustRange(t)(db.Only(99))); ok {
			t.Errorf("Expected no record for key 99")
		}

		idx, err := s.Index("name")
		if err != nil {
			t.Fatalf("Index failed: %v", err)
		}
		if n, _ := idx.Count(mustRange(t)(db.Only("Alice"))); n != 2 {
			t.Errorf("Expected 2 Alices, got %d", n)
		}
		pk, ok, _ := idx.GetKey(mustRange(t)(db.Only("Bob")))
		if !ok || db.CompareKeys(pk, float64(2)) != 0 {
			t.Errorf("Expected primary key 2 for Bob, got %v", pk)
		}
		all, _ := idx.GetAll(nil, 0)
		if len(all) != 4 || all[0]["name"] != "Alice" || all[3]["name"] != "Carol" {
			t.Errorf("Expected records in name order, got %v", all)
		}
		keys, _ := s.GetAllKeys(nil, 2)
		if !keysEqual(keys, []db.Key{float64(1), float64(2)}) {
			t.Errorf("Expected keys [1 2], got %v", keys)
		}
	})

	write(t, database, "people", func(s db.ObjectStore) {
		// Add does not overwrite
		if _, err := s.Add(db.Record{"id": 2, "name": "Bobby", "email": "bobby@example.com"}, nil); !errors.Is(err, db.ErrConstraint) {
			t.Errorf("Expected ErrConstraint for Add on existing key, got %v", err)
		}
		// Put does
		if _, err := s.Put(db.Record{"id": 2, "name": "Bobby", "email": "bobby@example.com"}, nil); err != nil {
			t.Errorf("Put failed: %v", err)
		}
		// in-line keys reject explicit keys
		if _, err := s.Put(db.Record{"name": "X"}, "x"); !errors.Is(err, db.ErrDataError) {
			t.Errorf("Expected ErrDataError for explicit key on in-line store, got %v", err)
		}
		// explicit numeric keys move the generator
		if _, err := s.Put(db.Record{"id": 10, "name": "Dave", "email": "dave@example.com"}, nil); err != nil {
			t.Errorf("Put failed: %v", err)
		}
		pk, err := s.Add(db.Record{"name": "Eve", "email": "eve@example.com"}, nil)
		if err != nil || db.CompareKeys(pk, float64(11)) != 0 {
			t.Errorf("Expected generated key 11, got %v (%v)", pk, err)
		}
	})

	read(t, database, "people", func(s db.ObjectStore) {
		idx, _ := s.Index("name")
		if n, _ := idx.Count(mustRange(t)(db.Only("Bob"))); n != 0 {
			t.Errorf("Expected old index entry of Bob to be removed, got %d", n)
		}
		if n, _ := idx.Count(mustRange(t)(db.Only("Bobby"))); n != 1 {
			t.Errorf("Expected index entry for Bobby, got %d", n)
		}
	})

	write(t, database, "people", func(s db.ObjectStore) {
		n, err := s.Delete(mustRange(t)(db.Bound(2, 10, false, true)))
		if err != nil || n != 3 {
			t.Errorf("Expected 3 deleted records, got %d (%v)", n, err)
		}
		n, _ = s.Delete(mustRange(t)(db.Bound(2, 10, false, true)))
		if n != 0 {
			t.Errorf("Expected second delete to remove nothing, got %d", n)
		}
	})
}

func testOutOfLineKeys(t *testing.T, database db.Engine) {
	defer database.Close()

	err := database.Upgrade(1, func(u db.Upgrader) error {
		if err := u.CreateStore("kv", nil, false); err != nil {
			return err
		}
		return u.CreateStore("log", nil, true)
	})
	if err != nil {
		t.Fatalf("Upgrade failed: %v", err)
	}

	write(t, database, "kv", func(s db.ObjectStore) {
		if _, err := s.Put(db.Record{"v": 1}, nil); !errors.Is(err, db.ErrDataError) {
			t.Errorf("Expected ErrDataError without key, got %v", err)
		}
		for _, k := range []any{"b", 3, []byte{1}, "a", []any{1, "x"}} {
			if _, err := s.Put(db.Record{"k": fmt.Sprint(k)}, k); err != nil {
				t.Errorf("Put(%v) failed: %v", k, err)
			}
		}
		if _, err := s.Put(db.Record{}, map[string]any{}); !errors.Is(err, db.ErrDataError) {
			t.Errorf("Expected ErrDataError for invalid key, got %v", err)
		}
	})

	read(t, database, "kv", func(s db.ObjectStore) {
		keys, err := s.GetAllKeys(nil, 0)
		if err != nil {
			t.Fatalf("GetAllKeys failed: %v", err)
		}
		if len(keys) != 5 {
			t.Fatalf("Expected 5 keys, got %v", keys)
		}
		if keys[0] != float64(3) || keys[1] != "a" || keys[2] != "b" {
			t.Errorf("Expected numbers before strings, got %v", keys)
		}
		if b, ok := keys[3].([]byte); !ok || !bytes.Equal(b, []byte{1}) {
			t.Errorf("Expected binary key after strings, got %v", keys[3])
		}
		if _, ok := keys[4].([]any); !ok {
			t.Errorf("Expected array key last, got %v", keys[4])
		}
	})

	write(t, database, "log", func(s db.ObjectStore) {
		for i := 1; i <= 3; i++ {
			pk, err := s.Add(db.Record{"i": i}, nil)
			if err != nil || db.CompareKeys(pk, float64(i)) != 0 {
				t.Errorf("Expected generated key %d, got %v (%v)", i, pk, err)
			}
		}
		rec, _, _ := s.Get(mustRange(t)(db.Only(1)))
		if _, hasID := rec["id"]; hasID {
			t.Errorf("Out-of-line keys must not be written to the record")
		}
	})
}

func testUniqueIndex(t *testing.T, database db.Engine) {
	defer database.Close()
	setupPeople(t, database)
	addPeople(t, database)

	write(t, database, "people", func(s db.ObjectStore) {
		_, err := s.Add(db.Record{"name": "Mallory", "email": "bob@example.com"}, nil)
		if !errors.Is(err, db.ErrConstraint) {
			t.Errorf("Expected ErrConstraint for duplicate email, got %v", err)
		}
		// rewriting a record with its own unique value is fine
		if _, err := s.Put(db.Record{"id": 2, "name": "Bob", "email": "bob@example.com", "age": 26}, nil); err != nil {
			t.Errorf("Put of own unique value failed: %v", err)
		}
	})

	// creating a unique index over duplicate values fails
	err := database.Upgrade(2, func(u db.Upgrader) error {
		return u.CreateIndex("people", db.IndexSchema{Name: "uname", KeyPath: db.KeyPath{"name"}, Unique: true})
	})
	if !errors.Is(err, db.ErrConstraint) {
		t.Errorf("Expected ErrConstraint for unique index over duplicates, got %v", err)
	}
}

func testCursorDirections(t *testing.T, database db.Engine) {
	defer database.Close()
	requireFeature(t, database, db.FeatureCursor|db.FeatureUniqueCursor)
	setupPeople(t, database)
	addPeople(t, database)

	tx, _ := database.Begin([]string{"people"}, db.ReadOnly)
	defer tx.Abort()
	s, _ := tx.ObjectStore("people")
	idx, _ := s.Index("name")

	expected := map[db.Direction][]db.Key{
		db.Next:       {float64(1), float64(4), float64(2), float64(3)},
		db.NextUnique: {float64(1), float64(2), float64(3)},
		db.Prev:       {float64(3), float64(2), float64(4), float64(1)},
		db.PrevUnique: {float64(3), float64(2), float64(1)},
	}
	for dir, want := range expected {
		c, err := idx.OpenCursor(nil, dir)
		if err != nil {
			t.Fatalf("OpenCursor(%s) failed: %v", dir, err)
		}
		if got := walk(t, c); !keysEqual(got, want) {
			t.Errorf("Direction %s: expected %v, got %v", dir, want, got)
		}
	}

	// ranges are honored in both directions
	r := mustRange(t)(db.Bound("Alice", "Bob", true, false))
	c, _ := idx.OpenCursor(r, db.Next)
	if got := walk(t, c); !keysEqual(got, []db.Key{float64(2)}) {
		t.Errorf("Expected only Bob in (Alice, Bob], got %v", got)
	}
	c, _ = idx.OpenCursor(mustRange(t)(db.UpperBound("Bob", true)), db.Prev)
	if got := walk(t, c); !keysEqual(got, []db.Key{float64(4), float64(1)}) {
		t.Errorf("Expected Alices in descending order, got %v", got)
	}

	// empty ranges
	c, _ = idx.OpenCursor(mustRange(t)(db.Bound("Z", "A", false, false)), db.Next)
	if c.Valid() {
		t.Errorf("Expected inverted range to be empty")
	}
	if err := c.Continue(); !errors.Is(err, db.ErrCursorDone) {
		t.Errorf("Expected ErrCursorDone on exhausted cursor, got %v", err)
	}
}

func testCursorSeek(t *testing.T, database db.Engine) {
	defer database.Close()
	requireFeature(t, database, db.FeatureSeek)

	err := database.Upgrade(1, func(u db.Upgrader) error {
		if err := u.CreateStore("words", nil, true); err != nil {
			return err
		}
		return u.CreateIndex("words", db.IndexSchema{Name: "w", KeyPath: db.KeyPath{"w"}})
	})
	if err != nil {
		t.Fatalf("Upgrade failed: %v", err)
	}
	words := []string{"apple", "Banana", "cherry", "date", "Elder", "fig"}
	write(t, database, "words", func(s db.ObjectStore) {
		for _, w := range words {
			if _, err := s.Add(db.Record{"w": w}, nil); err != nil {
				t.Fatalf("Add failed: %v", err)
			}
		}
	})

	read(t, database, "words", func(s db.ObjectStore) {
		idx, _ := s.Index("w")

		c, _ := idx.OpenCursor(nil, db.Next)
		if c.Key() != "Banana" {
			t.Errorf("Expected first key Banana, got %v", c.Key())
		}
		if err := c.ContinueTo("c"); err != nil {
			t.Fatalf("ContinueTo failed: %v", err)
		}
		if c.Key() != "cherry" {
			t.Errorf("Expected cherry after seek to c, got %v", c.Key())
		}
		if err := c.ContinueTo("cherry"); !errors.Is(err, db.ErrInvalidSeek) {
			t.Errorf("Expected ErrInvalidSeek for seek to current key, got %v", err)
		}
		if err := c.ContinueTo("zzz"); err != nil {
			t.Fatalf("ContinueTo failed: %v", err)
		}
		if c.Valid() {
			t.Errorf("Expected cursor to be exhausted after seeking past the end")
		}
		if err := c.ContinueTo("zzzz"); !errors.Is(err, db.ErrCursorDone) {
			t.Errorf("Expected ErrCursorDone, got %v", err)
		}

		c, _ = idx.OpenCursor(nil, db.Prev)
		if c.Key() != "fig" {
			t.Errorf("Expected last key fig, got %v", c.Key())
		}
		if err := c.ContinueTo("d"); err != nil {
			t.Fatalf("ContinueTo failed: %v", err)
		}
		if c.Key() != "cherry" {
			t.Errorf("Expected cherry after descending seek to d, got %v", c.Key())
		}
		if err := c.ContinueTo("e"); !errors.Is(err, db.ErrInvalidSeek) {
			t.Errorf("Expected ErrInvalidSeek for backward seek, got %v", err)
		}
	})
}

func testCursorMutation(t *testing.T, database db.Engine) {
	defer database.Close()
	setupPeople(t, database)
	addPeople(t, database)

	write(t, database, "people", func(s db.ObjectStore) {
		idx, _ := s.Index("name")

		// rename every Alice to Zoe while walking: moved entries must not reappear
		c, _ := idx.OpenCursor(nil, db.Next)
		visited := 0
		for c.Valid() {
			visited++
			rec := c.Value()
			if rec["name"] == "Alice" {
				rec["name"] = "Zoe"
				if err := c.Update(rec); err != nil {
					t.Fatalf("Update failed: %v", err)
				}
			}
			if err := c.Continue(); err != nil {
				t.Fatalf("Continue failed: %v", err)
			}
		}
		if visited != 6 {
			// Alice, Alice, Bob, Carol, Zoe, Zoe
			t.Errorf("Expected moved records to be visited again at their new position, visited %d", visited)
		}

		// changing the primary key through a cursor is rejected
		c, _ = s.OpenCursor(nil, db.Next)
		rec := c.Value()
		rec["id"] = 100
		if err := c.Update(rec); !errors.Is(err, db.ErrDataError) {
			t.Errorf("Expected ErrDataError for key change, got %v", err)
		}

		// delete while walking
		c, _ = idx.OpenCursor(nil, db.Next)
		deleted := 0
		for c.Valid() {
			if err := c.Delete(); err != nil {
				t.Fatalf("Delete failed: %v", err)
			}
			deleted++
			if err := c.Continue(); err != nil {
				t.Fatalf("Continue failed: %v", err)
			}
		}
		if deleted != 4 {
			t.Errorf("Expected 4 deletes, got %d", deleted)
		}
		if n, _ := s.Count(nil); n != 0 {
			t.Errorf("Expected empty store, got %d records", n)
		}
	})
}

func testMultiEntryAndCompound(t *testing.T, database db.Engine) {
	defer database.Close()
	requireFeature(t, database, db.FeatureMultiEntry|db.FeatureCompoundKey)
	setupPeople(t, database)
	addPeople(t, database)

	read(t, database, "people", func(s db.ObjectStore) {
		tags, _ := s.Index("tags")
		if n, _ := tags.Count(mustRange(t)(db.Only("dev"))); n != 3 {
			t.Errorf("Expected 3 devs, got %d", n)
		}
		// duplicates inside one array are indexed once
		if n, _ := tags.Count(mustRange(t)(db.Only("ops"))); n != 1 {
			t.Errorf("Expected 1 ops entry, got %d", n)
		}
		if n, _ := tags.Count(nil); n != 5 {
			t.Errorf("Expected 5 tag entries, got %d", n)
		}

		compound, _ := s.Index("name+age")
		r := mustRange(t)(db.Bound([]any{"Alice", 0}, []any{"Alice", 25}, false, false))
		recs, _ := compound.GetAll(r, 0)
		if len(recs) != 1 || recs[0]["email"] != "alice2@example.com" {
			t.Errorf("Expected the younger Alice, got %v", recs)
		}
	})
}

func testRollback(t *testing.T, database db.Engine) {
	defer database.Close()
	requireFeature(t, database, db.FeatureRollback)
	setupPeople(t, database)
	addPeople(t, database)

	tx, _ := database.Begin([]string{"people"}, db.ReadWrite)
	s, _ := tx.ObjectStore("people")
	if _, err := s.Add(db.Record{"name": "Temp", "email": "temp@example.com"}, nil); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if _, err := s.Put(db.Record{"id": 1, "name": "Changed", "email": "alice@example.com"}, nil); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, err := s.Delete(mustRange(t)(db.Only(2))); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := tx.Abort(); err != nil {
		t.Fatalf("Abort failed: %v", err)
	}

	write(t, database, "people", func(s db.ObjectStore) {
		if n, _ := s.Count(nil); n != 4 {
			t.Errorf("Expected 4 records after rollback, got %d", n)
		}
		rec, _, _ := s.Get(mustRange(t)(db.Only(1)))
		if rec["name"] != "Alice" {
			t.Errorf("Expected Alice after rollback, got %v", rec["name"])
		}
		idx, _ := s.Index("name")
		if n, _ := idx.Count(mustRange(t)(db.Only("Changed"))); n != 0 {
			t.Errorf("Expected index to be rolled back, got %d entries", n)
		}
		// the key generator is rolled back too
		pk, _ := s.Add(db.Record{"name": "Frank", "email": "frank@example.com"}, nil)
		if db.CompareKeys(pk, float64(5)) != 0 {
			t.Errorf("Expected generated key 5 after rollback, got %v", pk)
		}
	})
}

func testTransactionLifecycle(t *testing.T, database db.Engine) {
	defer database.Close()
	setupPeople(t, database)
	addPeople(t, database)

	tx, _ := database.Begin([]string{"people", "people"}, db.ReadOnly)
	if tx.ID() == "" {
		t.Errorf("Expected transaction id")
	}
	s, _ := tx.ObjectStore("people")
	if _, err := s.Add(db.Record{"name": "X"}, nil); !errors.Is(err, db.ErrReadOnly) {
		t.Errorf("Expected ErrReadOnly, got %v", err)
	}
	if _, err := tx.ObjectStore("other"); !errors.Is(err, db.ErrStoreNotFound) {
		t.Errorf("Expected ErrStoreNotFound for store outside scope, got %v", err)
	}
	c, _ := s.OpenCursor(nil, db.Next)
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if err := tx.Commit(); !errors.Is(err, db.ErrTransactionDone) {
		t.Errorf("Expected ErrTransactionDone on second commit, got %v", err)
	}
	if err := tx.Abort(); !errors.Is(err, db.ErrTransactionDone) {
		t.Errorf("Expected ErrTransactionDone on abort after commit, got %v", err)
	}
	if err := c.Continue(); !errors.Is(err, db.ErrTransactionDone) {
		t.Errorf("Expected ErrTransactionDone for cursor of finished transaction, got %v", err)
	}
	if _, err := s.Count(nil); !errors.Is(err, db.ErrTransactionDone) {
		t.Errorf("Expected ErrTransactionDone for store of finished transaction, got %v", err)
	}
	if _, err := database.Begin(nil, db.ReadOnly); err == nil {
		t.Errorf("Expected error for empty scope")
	}
}

func testSaveLoad(t *testing.T, factory DBFactory) {
	database := factory()
	defer database.Close()
	requireFeature(t, database, db.FeatureSave|db.FeatureLoad)
	setupPeople(t, database)
	addPeople(t, database)

	var buf bytes.Buffer
	if err := database.Save(&buf); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	restored := factory()
	defer restored.Close()
	if err := restored.Load(&buf); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if restored.Version() != 1 {
		t.Errorf("Expected version 1 after load, got %d", restored.Version())
	}

	read(t, restored, "people", func(s db.ObjectStore) {
		if n, _ := s.Count(nil); n != 4 {
			t.Errorf("Expected 4 records after load, got %d", n)
		}
		if len(s.IndexNames()) != 4 {
			t.Errorf("Expected 4 indexes after load, got %v", s.IndexNames())
		}
		tags, _ := s.Index("tags")
		if n, _ := tags.Count(mustRange(t)(db.Only("dev"))); n != 3 {
			t.Errorf("Expected rebuilt multi-entry index, got %d devs", n)
		}
	})
	write(t, restored, "people", func(s db.ObjectStore) {
		pk, _ := s.Add(db.Record{"name": "Gina", "email": "gina@example.com"}, nil)
		if db.CompareKeys(pk, float64(5)) != 0 {
			t.Errorf("Expected key generator to survive save/load, got %v", pk)
		}
	})

	if err := restored.Load(bytes.NewReader([]byte("garbage!"))); err == nil {
		t.Errorf("Expected error when loading invalid data")
	}
}

func testConcurrentWriters(t *testing.T, database db.Engine) {
	defer database.Close()

	err := database.Upgrade(1, func(u db.Upgrader) error {
		return u.CreateStore("counter", nil, false)
	})
	if err != nil {
		t.Fatalf("Upgrade failed: %v", err)
	}
	write(t, database, "counter", func(s db.ObjectStore) {
		_, _ = s.Put(db.Record{"n": float64(0)}, "c")
	})

	const workers, increments = 8, 50
	var (
		wg       sync.WaitGroup
		failures atomic.Int32
	)
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := 0; i < increments; i++ {
				tx, err := database.Begin([]string{"counter"}, db.ReadWrite)
				if err != nil {
					failures.Add(1)
					return
				}
				s, _ := tx.ObjectStore("counter")
				rec, _, _ := s.Get(mustRange(t)(db.Only("c")))
				rec["n"] = rec["n"].(float64) + 1
				if _, err := s.Put(rec, "c"); err != nil {
					failures.Add(1)
				}
				_ = tx.Commit()
			}
		}()
	}
	wg.Wait()

	if failures.Load() != 0 {
		t.Fatalf("Expected no failures, got %d", failures.Load())
	}
	read(t, database, "counter", func(s db.ObjectStore) {
		rec, _, _ := s.Get(mustRange(t)(db.Only("c")))
		if rec["n"] != float64(workers*increments) {
			t.Errorf("Expected %d increments, got %v (lost updates)", workers*increments, rec["n"])
		}
	})
}
