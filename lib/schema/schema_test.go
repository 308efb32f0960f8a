package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ValentinKolb/iKV/lib/db"
	"github.com/ValentinKolb/iKV/lib/db/engines/maple"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	s, err := Parse("friends", "++id, name, !email, *tags, last+first, address.city")
	require.NoError(t, err)
	assert.Equal(t, "friends", s.Name)
	assert.Equal(t, db.KeyPath{"id"}, s.KeyPath)
	assert.True(t, s.AutoIncrement)
	assert.Equal(t, []db.IndexSchema{
		{Name: "name", KeyPath: db.KeyPath{"name"}},
		{Name: "email", KeyPath: db.KeyPath{"email"}, Unique: true},
		{Name: "tags", KeyPath: db.KeyPath{"tags"}, MultiEntry: true},
		{Name: "last+first", KeyPath: db.KeyPath{"last", "first"}},
		{Name: "address.city", KeyPath: db.KeyPath{"address.city"}},
	}, s.Indexes)

	s, err = Parse("events", "@id")
	require.NoError(t, err)
	assert.True(t, s.AutoIncrement)
	assert.Empty(t, s.Indexes)

	s, err = Parse("kv", "")
	require.NoError(t, err)
	assert.Empty(t, s.KeyPath)
	assert.False(t, s.AutoIncrement)

	s, err = Parse("pairs", "a+b, c")
	require.NoError(t, err)
	assert.Equal(t, db.KeyPath{"a", "b"}, s.KeyPath)
}

func TestParseErrors(t *testing.T) {
	for _, def := range []string{
		"++a+b",
		"id, name, name",
		"id, *a+b",
		"id, !",
		"id, a+",
		"id, .a",
		"id, a b",
	} {
		_, err := Parse("s", def)
		assert.ErrorIs(t, err, ErrSyntax, def)
	}
	_, err := Parse("", "id")
	assert.ErrorIs(t, err, ErrSyntax)
}

func TestDescribeRoundTrip(t *testing.T) {
	for _, def := range []string{"++id, name, !email, *tags, last+first", "", "++", "key", "a+b, c.d"} {
		s, err := Parse("s", def)
		require.NoError(t, err)
		assert.Equal(t, def, Describe(s))
	}
}

func TestBuild(t *testing.T) {
	engine := maple.NewMapleDB(nil)
	defer engine.Close()

	require.NoError(t, Build(engine, 1, map[string]string{
		"friends": "++id, name, !email",
		"notes":   "id",
	}))
	assert.Equal(t, []string{"friends", "notes"}, engine.StoreNames())
	assert.Equal(t, uint64(1), engine.Version())

	tx, err := engine.Begin([]string{"friends"}, db.ReadWrite)
	require.NoError(t, err)
	s, _ := tx.ObjectStore("friends")
	_, err = s.Add(db.Record{"name": "Alice"}, nil)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	// rebuilding a store drops its records, other stores are kept
	require.NoError(t, Build(engine, 2, map[string]string{"friends": "++id, name, *tags"}))
	assert.Equal(t, []string{"friends", "notes"}, engine.StoreNames())

	tx, err = engine.Begin([]string{"friends"}, db.ReadOnly)
	require.NoError(t, err)
	defer tx.Abort()
	s, _ = tx.ObjectStore("friends")
	n, err := s.Count(nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, []string{"name", "tags"}, s.IndexNames())

	assert.ErrorIs(t, Build(engine, 2, map[string]string{"x": "id"}), db.ErrVersion)
	assert.ErrorIs(t, Build(engine, 3, map[string]string{"x": "id, a, a"}), ErrSyntax)
	assert.Equal(t, uint64(2), engine.Version())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: 3\nstores:\n  friends: \"++id, name, !email\"\n  tags: \"name\"\n"), 0o644))

	f, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), f.Version)
	assert.Len(t, f.Stores, 2)

	engine := maple.NewMapleDB(nil)
	defer engine.Close()
	require.NoError(t, f.Apply(engine))
	assert.Equal(t, uint64(3), engine.Version())
	assert.Equal(t, []string{"friends", "tags"}, engine.StoreNames())

	_, err = ParseFile([]byte("stores:\n  a: id\n"))
	assert.ErrorIs(t, err, ErrSyntax)
	_, err = ParseFile([]byte("version: 1\n"))
	assert.ErrorIs(t, err, ErrSyntax)
	_, err = ParseFile([]byte("version: [\n"))
	assert.Error(t, err)
	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
