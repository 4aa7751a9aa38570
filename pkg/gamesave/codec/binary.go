package codec

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/randalmurphal/gamesave/pkg/gamesave/state"
)

// Version is the current binary envelope format version.
// Increment when making breaking changes to the record layout.
const Version = 1

// ErrVersionMismatch indicates a blob was written by an incompatible format.
var ErrVersionMismatch = errors.New("checkpoint format version mismatch")

// envelope is the binary document stored in a blob.
type envelope struct {
	Version int           `msgpack:"version"`
	Record  *state.Record `msgpack:"record"`
}

// Encode serializes a record into the binary envelope.
// Map keys are sorted so equal records produce equal bytes.
func Encode(r *state.Record) ([]byte, error) {
	if r == nil {
		return nil, errors.New("encode: nil record")
	}
	rec := *r
	if rec.ScreenData == nil {
		rec.ScreenData = []byte{}
	}

	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(&envelope{Version: Version, Record: &rec}); err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode deserializes a binary envelope into a record.
func Decode(data []byte) (*state.Record, error) {
	var env envelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	if env.Version != Version {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrVersionMismatch, env.Version, Version)
	}
	if env.Record == nil {
		return nil, errors.New("decode record: envelope has no record")
	}

	r := env.Record
	if r.ScreenData == nil {
		r.ScreenData = []byte{}
	}
	r.ActionHistory = canonicalValues(r.ActionHistory)
	r.ObservationHistory = canonicalValues(r.ObservationHistory)
	r.Metadata = canonicalMap(r.Metadata)
	return r, nil
}
