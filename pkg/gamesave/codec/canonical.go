// Package codec serializes game-state records.
//
// Two envelopes are provided:
//   - Binary (Encode/Decode): a versioned msgpack document that preserves byte
//     fields exactly, used for the blobs written to the Blob Store.
//   - JSON-safe (ToJSONSafe/FromJSONSafe and friends): plain JSON where every
//     byte string at any depth is wrapped as {"__bytes__": "<base64>"}, used
//     for the catalog index and anywhere a human-readable form is required.
//
// Open values (history entries, metadata) come back in canonical form:
// integers as int64, floats as float64, byte strings as non-nil []byte,
// mappings as map[string]any and sequences as []any. Canonical returns the
// form a value will have after a round trip.
package codec

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/randalmurphal/gamesave/pkg/gamesave/state"
)

// Canonical converts an open value into the form the codecs produce on decode.
func Canonical(v any) any {
	switch val := v.(type) {
	case nil, bool, string, float64:
		return val
	case float32:
		return float64(val)
	case int:
		return int64(val)
	case int8:
		return int64(val)
	case int16:
		return int64(val)
	case int32:
		return int64(val)
	case int64:
		return val
	case uint:
		return canonicalUint(uint64(val))
	case uint8:
		return int64(val)
	case uint16:
		return int64(val)
	case uint32:
		return int64(val)
	case uint64:
		return canonicalUint(val)
	case json.Number:
		if i, err := strconv.ParseInt(string(val), 10, 64); err == nil {
			return i
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return string(val)
	case []byte:
		out := make([]byte, len(val))
		copy(out, val)
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Canonical(item)
		}
		return out
	case []string:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = item
		}
		return out
	case []float64:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = item
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = Canonical(item)
		}
		return out
	case map[string]string:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = item
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			key, ok := k.(string)
			if !ok {
				key = fmt.Sprint(k)
			}
			out[key] = Canonical(item)
		}
		return out
	default:
		return val
	}
}

func canonicalUint(u uint64) any {
	if u <= math.MaxInt64 {
		return int64(u)
	}
	return u
}

func canonicalValues(values []any) []any {
	if values == nil {
		return nil
	}
	return Canonical(values).([]any)
}

func canonicalMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	return Canonical(m).(map[string]any)
}

// CanonicalRecord returns a deep copy of r with every open value in
// canonical form. decode(encode(r)) equals CanonicalRecord(r) for both
// envelopes.
func CanonicalRecord(r *state.Record) *state.Record {
	if r == nil {
		return nil
	}
	c := r.Clone()
	if c.ScreenData == nil {
		c.ScreenData = []byte{}
	}
	c.ActionHistory = canonicalValues(c.ActionHistory)
	c.ObservationHistory = canonicalValues(c.ObservationHistory)
	c.Metadata = canonicalMap(c.Metadata)
	return c
}
