package state

import "github.com/mitchellh/copystructure"

// CloneValues deep-copies a history sequence. Nested maps, slices and byte
// strings are copied; scalars are shared. A nil input yields nil.
//
// Histories handed to a save are captured through CloneValues so the caller
// can keep appending to its own slices while the save is in flight.
func CloneValues(values []any) []any {
	if values == nil {
		return nil
	}
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = CloneValue(v)
	}
	return out
}

// CloneMap deep-copies an open metadata mapping. A nil input yields nil.
func CloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = CloneValue(v)
	}
	return out
}

// CloneValue deep-copies a history entry or metadata value. Containers of
// any type (typed maps and slices, pointers, structs) are copied
// recursively; the common canonical shapes take a fast path. Unexported
// struct fields are not copied, matching what the codec persists.
func CloneValue(v any) any {
	switch val := v.(type) {
	case nil, bool, string, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, float32, float64:
		return v
	case map[string]any:
		return CloneMap(val)
	case []any:
		return CloneValues(val)
	case []byte:
		return cloneBytes(val)
	case []float64:
		return append([]float64(nil), val...)
	case []string:
		return append([]string(nil), val...)
	}
	c, err := copystructure.Copy(v)
	if err != nil {
		// Only values reflection cannot walk fail here; share them.
		return v
	}
	return c
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
