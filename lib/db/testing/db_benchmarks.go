package testing

import (
	"bytes"
	"fmt"
	"math/rand"
	"testing"

	"github.com/ValentinKolb/iKV/lib/db"
)

// RunEngineBenchmarks runs all benchmarks for an Engine implementation
func RunEngineBenchmarks(b *testing.B, name string, factory DBFactory) {

	b.Run("Add", func(b *testing.B) {
		benchmarkAdd(b, factory())
	})

	b.Run("PutExisting", func(b *testing.B) {
		benchmarkPutExisting(b, factory())
	})

	b.Run("Get", func(b *testing.B) {
		benchmarkGet(b, factory())
	})

	b.Run("IndexCursorWalk", func(b *testing.B) {
		benchmarkIndexWalk(b, factory())
	})

	b.Run("IndexCursorSeek", func(b *testing.B) {
		benchmarkIndexSeek(b, factory())
	})

	b.Run("SaveLoad", func(b *testing.B) {
		benchmarkSaveLoad(b, factory)
	})

	b.Run("MixedUsage", func(b *testing.B) {
		benchmarkMixedUsage(b, factory())
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// prepareItems creates the "items" store with an index on "group" and fills it with n records.
func prepareItems(b *testing.B, database db.Engine, n int) {
	err := database.Upgrade(1, func(u db.Upgrader) error {
		if err := u.CreateStore("items", db.KeyPath{"id"}, true); err != nil {
			return err
		}
		return u.CreateIndex("items", db.IndexSchema{Name: "group", KeyPath: db.KeyPath{"group"}})
	})
	if err != nil {
		b.Fatalf("Upgrade failed: %v", err)
	}
	if n == 0 {
		return
	}
	write(b, database, "items", func(s db.ObjectStore) {
		for i := 0; i < n; i++ {
			if _, err := s.Add(db.Record{"group": fmt.Sprintf("group-%03d", i%100), "value": i}, nil); err != nil {
				b.Fatalf("Add failed: %v", err)
			}
		}
	})
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

// Benchmark for Add in one transaction per operation
func benchmarkAdd(b *testing.B, database db.Engine) {

	b.Cleanup(func() {
		database.Close()
	})

	prepareItems(b, database, 0)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			tx, _ := database.Begin([]string{"items"}, db.ReadWrite)
			s, _ := tx.ObjectStore("items")
			_, _ = s.Add(db.Record{"group": fmt.Sprintf("group-%03d", counter%100), "value": counter}, nil)
			_ = tx.Commit()
			counter++
		}
	})
}

// Benchmark for Put on existing keys (index maintenance on every write)
func benchmarkPutExisting(b *testing.B, database db.Engine) {

	b.Cleanup(func() {
		database.Close()
	})

	numKeys := 10000
	prepareItems(b, database, numKeys)

	b.ResetTimer()
	counter := 0
	for i := 0; i < b.N; i++ {
		tx, _ := database.Begin([]string{"items"}, db.ReadWrite)
		s, _ := tx.ObjectStore("items")
		_, _ = s.Put(db.Record{"id": counter%numKeys + 1, "group": fmt.Sprintf("group-%03d", counter%7), "value": counter}, nil)
		_ = tx.Commit()
		counter++
	}
}

// Parallel benchmarking for Get by primary key
func benchmarkGet(b *testing.B, database db.Engine) {

	b.Cleanup(func() {
		database.Close()
	})

	numKeys := 10000
	prepareItems(b, database, numKeys)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			tx, _ := database.Begin([]string{"items"}, db.ReadOnly)
			s, _ := tx.ObjectStore("items")
			r, _ := db.Only(counter%numKeys + 1)
			_, _, _ = s.Get(r)
			_ = tx.Commit()
			counter++
		}
	})
}

// Benchmark for walking all entries of one index key
func benchmarkIndexWalk(b *testing.B, database db.Engine) {

	b.Cleanup(func() {
		database.Close()
	})

	prepareItems(b, database, 10000)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tx, _ := database.Begin([]string{"items"}, db.ReadOnly)
		s, _ := tx.ObjectStore("items")
		idx, _ := s.Index("group")
		r, _ := db.Only(fmt.Sprintf("group-%03d", i%100))
		c, _ := idx.OpenCursor(r, db.Next)
		for c.Valid() {
			_ = c.Value()
			_ = c.Continue()
		}
		_ = tx.Commit()
	}
}

// Benchmark for skipping through an index with ContinueTo
func benchmarkIndexSeek(b *testing.B, database db.Engine) {

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureSeek)
	prepareItems(b, database, 10000)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tx, _ := database.Begin([]string{"items"}, db.ReadOnly)
		s, _ := tx.ObjectStore("items")
		idx, _ := s.Index("group")
		c, _ := idx.OpenCursor(nil, db.NextUnique)
		for g := 1; c.Valid() && g < 100; g += 10 {
			_ = c.ContinueTo(fmt.Sprintf("group-%03d", g))
		}
		_ = tx.Commit()
	}
}

// Benchmark for Save followed by Load
func benchmarkSaveLoad(b *testing.B, factory DBFactory) {
	database := factory()

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureSave|db.FeatureLoad)
	prepareItems(b, database, 10000)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var buf bytes.Buffer
		if err := database.Save(&buf); err != nil {
			b.Fatalf("Save failed: %v", err)
		}
		restored := factory()
		if err := restored.Load(&buf); err != nil {
			b.Fatalf("Load failed: %v", err)
		}
		_ = restored.Close()
	}
}

// Benchmark for a mix of reads (80%) and writes (20%)
func benchmarkMixedUsage(b *testing.B, database db.Engine) {

	b.Cleanup(func() {
		database.Close()
	})

	numKeys := 10000
	prepareItems(b, database, numKeys)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		rnd := rand.New(rand.NewSource(rand.Int63()))
		for pb.Next() {
			key := rnd.Intn(numKeys) + 1
			if rnd.Intn(100) < 80 {
				tx, _ := database.Begin([]string{"items"}, db.ReadOnly)
				s, _ := tx.ObjectStore("items")
				r, _ := db.Only(key)
				_, _, _ = s.Get(r)
				_ = tx.Commit()
			} else {
				tx, _ := database.Begin([]string{"items"}, db.ReadWrite)
				s, _ := tx.ObjectStore("items")
				_, _ = s.Put(db.Record{"id": key, "group": fmt.Sprintf("group-%03d", key%100), "value": key}, nil)
				_ = tx.Commit()
			}
		}
	})
}
