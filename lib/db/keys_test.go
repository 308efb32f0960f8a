package db

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeKey(t *testing.T) {
	for in, want := range map[any]Key{
		int(3):     float64(3),
		int8(-1):   float64(-1),
		uint64(7):  float64(7),
		float32(1): float64(1),
		"s":        "s",
	} {
		got, err := NormalizeKey(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	got, err := NormalizeKey([]string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, got)

	got, err = NormalizeKey([]any{1, []int{2}})
	require.NoError(t, err)
	assert.Equal(t, []any{float64(1), []any{float64(2)}}, got)

	b := []byte{1}
	got, err = NormalizeKey(b)
	require.NoError(t, err)
	b[0] = 9
	assert.Equal(t, []byte{1}, got)

	for _, bad := range []any{nil, math.NaN(), true, map[string]any{}, struct{}{}, []any{1, nil}} {
		_, err := NormalizeKey(bad)
		assert.ErrorIs(t, err, ErrDataError, "%#v", bad)
	}
	assert.Panics(t, func() { MustKey(nil) })
}

func TestCompareKeys(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ordered := []Key{
		math.Inf(-1), float64(-1), float64(0), float64(2), math.Inf(1),
		at, at.Add(time.Second),
		"", "A", "B", "a", "ab", "é",
		[]byte{}, []byte{0}, []byte{1},
		[]any{}, []any{float64(1)}, []any{float64(1), "a"}, []any{"a"},
	}
	for i := range ordered {
		for j := range ordered {
			want := 0
			switch {
			case i < j:
				want = -1
			case i > j:
				want = 1
			}
			assert.Equal(t, want, CompareKeys(ordered[i], ordered[j]), "%v vs %v", ordered[i], ordered[j])
		}
	}
}

func TestKeyRange(t *testing.T) {
	var all *KeyRange
	assert.True(t, all.Includes("x"))
	assert.False(t, all.IsEmpty())

	only, err := Only(5)
	require.NoError(t, err)
	assert.True(t, only.Includes(float64(5)))
	assert.False(t, only.Includes(float64(6)))

	lower, _ := LowerBound(5, true)
	assert.False(t, lower.Includes(float64(5)))
	assert.True(t, lower.Includes("strings sort after numbers"))

	upper, _ := UpperBound("m", false)
	assert.True(t, upper.Includes("m"))
	assert.True(t, upper.Includes(float64(1e9)))
	assert.False(t, upper.Includes("n"))

	r, _ := Bound(1, 3, false, true)
	assert.True(t, r.Includes(float64(1)))
	assert.False(t, r.Includes(float64(3)))
	assert.True(t, r.BelowLower(float64(0)))
	assert.True(t, r.AboveUpper(float64(3)))

	// inverted and half-open single point ranges are empty, not errors
	inverted, err := Bound(5, 1, false, false)
	require.NoError(t, err)
	assert.True(t, inverted.IsEmpty())
	point, _ := Bound(2, 2, true, false)
	assert.True(t, point.IsEmpty())
	closed, _ := Bound(2, 2, false, false)
	assert.False(t, closed.IsEmpty())

	_, err = Bound(nil, 1, false, false)
	assert.ErrorIs(t, err, ErrDataError)
}

func TestRecordKeyPaths(t *testing.T) {
	r := Record{"id": 1, "name": "Ann", "address": map[string]any{"city": "Ulm"}, "tags": []any{"a", "b", "a", true}}

	v, ok := Value(r, "address.city")
	require.True(t, ok)
	assert.Equal(t, "Ulm", v)
	_, ok = Value(r, "address.zip")
	assert.False(t, ok)

	k, ok := ExtractKey(r, KeyPath{"name", "id"})
	require.True(t, ok)
	assert.Equal(t, []any{"Ann", float64(1)}, k)
	_, ok = ExtractKey(r, KeyPath{"name", "missing"})
	assert.False(t, ok)

	// multi-entry keys are distinct and skip invalid elements
	assert.Equal(t, []Key{"a", "b"}, IndexKeys(r, KeyPath{"tags"}, true))
	assert.Nil(t, IndexKeys(r, KeyPath{"tags"}, false))
	assert.Equal(t, []Key{"Ann"}, IndexKeys(r, KeyPath{"name"}, true))

	SetValue(r, "meta.created.by", "test")
	v, ok = Value(r, "meta.created.by")
	require.True(t, ok)
	assert.Equal(t, "test", v)

	merged := r.Merge(Record{"name": "Bea"})
	assert.Equal(t, "Bea", merged["name"])
	assert.Equal(t, "Ann", r["name"])

	clone := r.Clone()
	clone["address"].(map[string]any)["city"] = "Bonn"
	v, _ = Value(r, "address.city")
	assert.Equal(t, "Ulm", v)
}
