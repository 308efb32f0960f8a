package codec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByName(t *testing.T) {
	for _, name := range []string{"json", "gob"} {
		c, err := ByName(name)
		require.NoError(t, err)
		assert.Equal(t, name, c.Name())
	}
	_, err := ByName("xml")
	assert.Error(t, err)
}

func TestGobKeepsTypes(t *testing.T) {
	c := NewGOBCodec()
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	in := map[string]any{
		"n":      42,
		"bin":    []byte{1, 2},
		"at":     at,
		"nested": map[string]any{"list": []any{"a", 1.5}},
	}

	b, err := c.Encode(in)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, c.Decode(b, &out))

	assert.Equal(t, 42, out["n"])
	assert.Equal(t, []byte{1, 2}, out["bin"])
	assert.True(t, at.Equal(out["at"].(time.Time)))
	assert.Equal(t, []any{"a", 1.5}, out["nested"].(map[string]any)["list"])
}

func TestJSONLosesTypes(t *testing.T) {
	c := NewJSONCodec()
	b, err := c.Encode(map[string]any{"n": 42, "bin": []byte{1, 2}})
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, c.Decode(b, &out))

	assert.Equal(t, float64(42), out["n"])
	assert.Equal(t, "AQI=", out["bin"])
	assert.Error(t, c.Decode([]byte("{"), &out))
}
