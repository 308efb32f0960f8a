package maple

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/iKV/lib/db"
	"github.com/ValentinKolb/iKV/lib/db/engines/maple/internal"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) db.Engine {
	e := NewMapleDB(nil)
	t.Cleanup(func() { _ = e.Close() })
	require.NoError(t, e.Upgrade(1, func(u db.Upgrader) error {
		if err := u.CreateStore("notes", db.KeyPath{"id"}, true); err != nil {
			return err
		}
		return u.CreateIndex("notes", db.IndexSchema{Name: "title", KeyPath: db.KeyPath{"meta.title"}})
	}))
	return e
}

func TestItemOrdering(t *testing.T) {
	a1 := internal.Item{Key: "a", PK: float64(1)}
	a2 := internal.Item{Key: "a", PK: float64(2)}
	b1 := internal.Item{Key: "b", PK: float64(1)}
	first := internal.Item{Key: "a", Bound: internal.BoundFirst}
	last := internal.Item{Key: "a", Bound: internal.BoundLast}

	assert.Negative(t, internal.Compare(a1, a2))
	assert.Negative(t, internal.Compare(a2, b1))
	assert.Negative(t, internal.Compare(first, a1))
	assert.Positive(t, internal.Compare(last, a2))
	assert.Negative(t, internal.Compare(last, b1))
	assert.Zero(t, internal.Compare(first, first))

	tree := internal.NewTree()
	for _, it := range []internal.Item{b1, a2, a1} {
		tree.ReplaceOrInsert(it)
	}
	got, ok := internal.First(tree, &last, false)
	require.True(t, ok)
	assert.Equal(t, "b", got.Key)
	got, ok = internal.Last(tree, &a2, true)
	require.True(t, ok)
	assert.Equal(t, float64(1), got.PK)
	_, ok = internal.Last(tree, &first, false)
	assert.False(t, ok)
}

func TestNestedKeyPath(t *testing.T) {
	e := newTestEngine(t)

	tx, err := e.Begin([]string{"notes"}, db.ReadWrite)
	require.NoError(t, err)
	s, _ := tx.ObjectStore("notes")
	_, err = s.Add(db.Record{"meta": map[string]any{"title": "b"}}, nil)
	require.NoError(t, err)
	_, err = s.Add(db.Record{"meta": map[string]any{"title": "a"}}, nil)
	require.NoError(t, err)
	_, err = s.Add(db.Record{"body": "no title"}, nil)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	tx, _ = e.Begin([]string{"notes"}, db.ReadOnly)
	defer tx.Abort()
	s, _ = tx.ObjectStore("notes")
	idx, err := s.Index("title")
	require.NoError(t, err)
	keys, err := idx.GetAllKeys(nil, 0)
	require.NoError(t, err)
	// records without a title are not indexed
	assert.Equal(t, []db.Key{float64(2), float64(1)}, keys)
	assert.Equal(t, db.KeyPath{"meta.title"}, idx.Schema().KeyPath)
}

func TestGetInfo(t *testing.T) {
	e := newTestEngine(t)

	tx, _ := e.Begin([]string{"notes"}, db.ReadWrite)
	s, _ := tx.ObjectStore("notes")
	for i := 0; i < 10; i++ {
		_, err := s.Add(db.Record{"meta": map[string]any{"title": "t"}, "i": i}, nil)
		require.NoError(t, err)
	}
	require.NoError(t, tx.Commit())

	info := e.GetInfo()
	assert.Equal(t, db.ImplMaple, info.DbType)
	assert.Equal(t, uint64(1), info.Version)
	require.Len(t, info.Stores, 1)
	assert.Equal(t, 10, info.Stores[0].Records)
	assert.Equal(t, "notes", info.Stores[0].Schema.Name)
	assert.Len(t, info.Stores[0].Schema.Indexes, 1)
	assert.Positive(t, info.SizeBytes)
	assert.NotNil(t, info.Metadata)
}

func TestSupportsFeature(t *testing.T) {
	e := NewMapleDB(nil)
	assert.True(t, e.SupportsFeature(db.FeatureCursor|db.FeatureSeek|db.FeatureRollback))
	assert.True(t, e.SupportsFeature(db.FeatureSave|db.FeatureLoad))
	assert.False(t, e.SupportsFeature(db.Feature(1<<40)))
}

func TestClosedEngine(t *testing.T) {
	e := NewMapleDB(nil)
	require.NoError(t, e.Close())
	assert.ErrorIs(t, e.Close(), db.ErrClosed)

	_, err := e.Begin([]string{"x"}, db.ReadOnly)
	assert.ErrorIs(t, err, db.ErrClosed)
	assert.ErrorIs(t, e.Upgrade(1, func(db.Upgrader) error { return nil }), db.ErrClosed)
	assert.ErrorIs(t, e.Save(&bytes.Buffer{}), db.ErrClosed)
}

func TestUnknownCodecFallsBack(t *testing.T) {
	e := NewMapleDB(&DBOptions{Codec: "xml"})
	var buf bytes.Buffer
	require.NoError(t, e.Save(&buf))
	// header: magic, format version, codec name length, codec name
	assert.Equal(t, magicNum, buf.String()[:len(magicNum)])
	assert.Equal(t, defaultCodec, buf.String()[len(magicNum)+2:len(magicNum)+2+len(defaultCodec)])
}

func TestSaveLoadPreservesTypes(t *testing.T) {
	e := NewMapleDB(nil)
	require.NoError(t, e.Upgrade(1, func(u db.Upgrader) error {
		return u.CreateStore("events", nil, false)
	}))

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tx, _ := e.Begin([]string{"events"}, db.ReadWrite)
	s, _ := tx.ObjectStore("events")
	_, err := s.Put(db.Record{"payload": []byte{1, 2, 3}, "nested": db.Record{"at": at}}, at)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	var buf bytes.Buffer
	require.NoError(t, e.Save(&buf))

	restored := NewMapleDB(nil)
	require.NoError(t, restored.Load(&buf))

	tx, _ = restored.Begin([]string{"events"}, db.ReadOnly)
	defer tx.Abort()
	s, _ = tx.ObjectStore("events")
	r, _ := db.Only(at)
	rec, ok, err := s.Get(r)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, rec["payload"])
	nested, isMap := rec["nested"].(map[string]any)
	require.True(t, isMap)
	assert.True(t, at.Equal(nested["at"].(time.Time)))
}

func TestUpgradeWaitsForTransactions(t *testing.T) {
	e := newTestEngine(t)

	tx, err := e.Begin([]string{"notes"}, db.ReadWrite)
	require.NoError(t, err)
	s, _ := tx.ObjectStore("notes")
	_, err = s.Add(db.Record{"meta": map[string]any{"title": "x"}}, nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- e.Upgrade(2, func(u db.Upgrader) error {
			return u.CreateIndex("notes", db.IndexSchema{Name: "body", KeyPath: db.KeyPath{"body"}})
		})
	}()

	select {
	case <-done:
		t.Fatal("upgrade must wait for the running transaction")
	case <-time.After(50 * time.Millisecond):
	}
	require.NoError(t, tx.Commit())
	require.NoError(t, <-done)

	// transactions opened after the upgrade see the new store instance and the committed record
	tx, err = e.Begin([]string{"notes"}, db.ReadOnly)
	require.NoError(t, err)
	defer tx.Abort()
	s, _ = tx.ObjectStore("notes")
	n, err := s.Count(nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"body", "title"}, s.IndexNames())
}

func TestBeginRetriesAfterUpgrade(t *testing.T) {
	e := newTestEngine(t)

	// hold the store so that the readers below block on the old instance
	tx, err := e.Begin([]string{"notes"}, db.ReadWrite)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rtx, err := e.Begin([]string{"notes"}, db.ReadOnly)
			if err != nil {
				errs <- err
				return
			}
			rs, _ := rtx.ObjectStore("notes")
			if _, err := rs.Index("body"); err != nil {
				errs <- err
			}
			_ = rtx.Commit()
		}()
	}

	upgraded := make(chan error, 1)
	go func() {
		upgraded <- e.Upgrade(2, func(u db.Upgrader) error {
			return u.CreateIndex("notes", db.IndexSchema{Name: "body", KeyPath: db.KeyPath{"body"}})
		})
	}()

	// give readers and the upgrade time to queue up behind the writer
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, tx.Commit())
	require.NoError(t, <-upgraded)
	wg.Wait()
	close(errs)
	for err := range errs {
		// a reader may win the race against the upgrade and not see the new index yet
		assert.True(t, errors.Is(err, db.ErrIndexNotFound), "unexpected error: %v", err)
	}
}
