package codec

import (
	"github.com/cockroachdb/errors"
)

// ICodec is the interface for all value codecs.
// A codec turns snapshots and records into bytes and back.
type ICodec interface {
	// Name returns the name the codec is registered under (e.g. "json")
	Name() string
	// Encode serializes v into a byte array
	Encode(v any) ([]byte, error)
	// Decode deserializes b into the value pointed to by v
	Decode(b []byte, v any) error
}

// ByName returns the codec registered under name.
func ByName(name string) (ICodec, error) {
	switch name {
	case "json":
		return NewJSONCodec(), nil
	case "gob":
		return NewGOBCodec(), nil
	default:
		return nil, errors.Newf("invalid codec %s (must be one of json, gob)", name)
	}
}
