package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ValentinKolb/iKV/lib/db"
	"github.com/ValentinKolb/iKV/lib/db/engines/maple"
	"github.com/ValentinKolb/iKV/lib/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRegistry(t *testing.T, dir string) *Registry {
	t.Helper()
	r, err := NewRegistry(dir, func() db.Engine { return maple.NewMapleDB(nil) }, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.CloseAll() })
	return r
}

func TestRegistryLifecycle(t *testing.T) {
	dir := t.TempDir()
	r := newRegistry(t, dir)

	assert.False(t, r.Exists("contacts"))
	_, err := r.Open("contacts")
	assert.ErrorIs(t, err, db.ErrDatabaseNotFound)

	_, err = r.Build("contacts", 1, map[string]string{"friends": "++id, name, !email"})
	require.NoError(t, err)
	assert.True(t, r.Exists("contacts"))
	assert.FileExists(t, filepath.Join(dir, "contacts.ikv"))

	qdb, err := r.Query("contacts")
	require.NoError(t, err)
	friends, err := qdb.Store("friends")
	require.NoError(t, err)
	_, err = friends.Add(db.Record{"name": "Alice", "email": "alice@example.com"}, nil)
	require.NoError(t, err)
	require.NoError(t, r.Close("contacts"))
	require.NoError(t, r.Close("contacts"))

	// a second registry on the same directory sees the saved state
	r2 := newRegistry(t, dir)
	names, err := r2.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"contacts"}, names)

	e, err := r2.Open("contacts")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), e.Version())
	same, err := r2.Open("contacts")
	require.NoError(t, err)
	assert.Same(t, e, same)

	qdb, err = r2.Query("contacts")
	require.NoError(t, err)
	friends, err = qdb.Store("friends")
	require.NoError(t, err)
	recs, err := friends.Where("email", query.Eq("alice@example.com"), 0, db.Next)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Alice", recs[0]["name"])
}

func TestRegistryBuildUpgradesExisting(t *testing.T) {
	r := newRegistry(t, t.TempDir())

	_, err := r.Build("app", 1, map[string]string{"users": "++id, name"})
	require.NoError(t, err)
	e, err := r.Build("app", 2, map[string]string{"events": "@id, at"})
	require.NoError(t, err)
	assert.Equal(t, []string{"events", "users"}, e.StoreNames())
	assert.Equal(t, uint64(2), e.Version())

	_, err = r.Build("app", 2, map[string]string{"x": "id"})
	assert.ErrorIs(t, err, db.ErrVersion)
}

func TestRegistryDelete(t *testing.T) {
	dir := t.TempDir()
	r := newRegistry(t, dir)

	assert.ErrorIs(t, r.Delete("missing"), db.ErrDatabaseNotFound)

	_, err := r.Build("tmp", 1, map[string]string{"s": "id"})
	require.NoError(t, err)
	require.NoError(t, r.Delete("tmp"))
	assert.False(t, r.Exists("tmp"))
	_, err = os.Stat(filepath.Join(dir, "tmp.ikv"))
	assert.True(t, os.IsNotExist(err))

	names, err := r.List()
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestRegistryInvalidNames(t *testing.T) {
	r := newRegistry(t, t.TempDir())
	for _, name := range []string{"", "..", "../x", "a/b", ".hidden"} {
		_, err := r.Open(name)
		assert.ErrorIs(t, err, ErrInvalidName, name)
		assert.False(t, r.Exists(name))
	}
}

func TestRegistryCorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.ikv"), []byte("not a snapshot"), 0o644))
	r := newRegistry(t, dir)

	assert.True(t, r.Exists("broken"))
	_, err := r.Open("broken")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, db.ErrDatabaseNotFound)
}
