package codec_test

import (
	"encoding/json"
	"testing"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/randalmurphal/gamesave/pkg/gamesave/codec"
	"github.com/randalmurphal/gamesave/pkg/gamesave/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sampleRecords covers empty byte fields, unicode text and binary values
// nested inside metadata.
func sampleRecords() map[string]*state.Record {
	return map[string]*state.Record{
		"full": {
			GameType:           state.GameBoy,
			GameName:           "pokemon_red",
			EpisodeID:          "e1",
			StepNumber:         100,
			Timestamp:          1718000000.125,
			ScreenData:         []byte{0x89, 'P', 'N', 'G'},
			GameMemory:         []byte{0, 1, 2, 255},
			SaveState:          []byte("native-state"),
			ActionHistory:      []any{map[string]any{"A": true}, "down"},
			ObservationHistory: []any{map[string]any{"screen": "f1", "step": int64(3)}},
			RewardHistory:      []float64{1.0, -0.5},
			Metadata: map[string]any{
				"level":  int64(1),
				"ratio":  0.75,
				"thumb":  []byte{9, 8, 7},
				"nested": map[string]any{"raw": []byte{}, "list": []any{[]byte("x"), "y"}},
			},
		},
		"empty bytes": {
			GameType:   state.DOS,
			EpisodeID:  "e2",
			ScreenData: []byte{},
			SaveState:  []byte{},
			GameMemory: []byte{},
		},
		"absent optional blobs": {
			GameType:   state.Unknown,
			EpisodeID:  "e3",
			StepNumber: 1,
			ScreenData: []byte{},
		},
		"unicode text": {
			GameType:      state.GameBoy,
			GameName:      "ゼルダの伝説 🗡",
			EpisodeID:     "épisode-ü",
			ScreenData:    []byte{},
			ActionHistory: []any{"→", map[string]any{"键": "值"}},
			Metadata:      map[string]any{"note": "naïve café"},
		},
	}
}

func TestBinaryRoundTrip(t *testing.T) {
	for name, r := range sampleRecords() {
		t.Run(name, func(t *testing.T) {
			data, err := codec.Encode(r)
			require.NoError(t, err)

			decoded, err := codec.Decode(data)
			require.NoError(t, err)
			assert.Equal(t, codec.CanonicalRecord(r), decoded)
		})
	}
}

func TestJSONRoundTrip(t *testing.T) {
	for name, r := range sampleRecords() {
		t.Run(name, func(t *testing.T) {
			data, err := codec.EncodeJSON(r)
			require.NoError(t, err)
			require.True(t, json.Valid(data))

			decoded, err := codec.DecodeJSON(data)
			require.NoError(t, err)
			assert.Equal(t, codec.CanonicalRecord(r), decoded)
		})
	}
}

func TestEmptyBytesStayEmpty(t *testing.T) {
	r := &state.Record{EpisodeID: "e", SaveState: []byte{}, Metadata: map[string]any{"b": []byte{}}}

	bin, err := codec.Encode(r)
	require.NoError(t, err)
	fromBin, err := codec.Decode(bin)
	require.NoError(t, err)

	js, err := codec.EncodeJSON(r)
	require.NoError(t, err)
	fromJSON, err := codec.DecodeJSON(js)
	require.NoError(t, err)

	for _, got := range []*state.Record{fromBin, fromJSON} {
		require.NotNil(t, got.SaveState)
		assert.Empty(t, got.SaveState)
		require.IsType(t, []byte{}, got.Metadata["b"])
		assert.NotNil(t, got.Metadata["b"])
		assert.NotNil(t, got.ScreenData)
	}
}

func TestEncodeDeterministic(t *testing.T) {
	r := sampleRecords()["full"]
	a, err := codec.Encode(r)
	require.NoError(t, err)
	b, err := codec.Encode(r)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestDecodeVersionMismatch(t *testing.T) {
	data, err := msgpack.Marshal(map[string]any{
		"version": codec.Version + 1,
		"record":  map[string]any{"episode_id": "e"},
	})
	require.NoError(t, err)

	_, err = codec.Decode(data)
	assert.ErrorIs(t, err, codec.ErrVersionMismatch)
}

func TestDecodeGarbage(t *testing.T) {
	_, err := codec.Decode([]byte{0xc1, 0x00, 0x13})
	assert.Error(t, err)

	_, err = codec.DecodeJSON([]byte("{not json"))
	assert.Error(t, err)
}

func TestEncodeNil(t *testing.T) {
	_, err := codec.Encode(nil)
	assert.Error(t, err)
	_, err = codec.EncodeJSON(nil)
	assert.Error(t, err)
}

func TestToJSONSafe(t *testing.T) {
	in := map[string]any{
		"text":  "hello",
		"bytes": []byte("hi"),
		"list":  []any{[]byte{0}, true, nil},
		"num":   3,
	}

	got := codec.ToJSONSafe(in)
	want := map[string]any{
		"text":  "hello",
		"bytes": map[string]any{codec.BytesTag: "aGk="},
		"list":  []any{map[string]any{codec.BytesTag: "AA=="}, true, nil},
		"num":   int64(3),
	}
	assert.Equal(t, want, got)
}

func TestFromJSONSafe_DistinguishesTextFromBytes(t *testing.T) {
	// "aGk=" as a plain string must stay a string; only the wrapper is bytes.
	data, err := codec.MarshalJSONSafe(map[string]any{
		"as_text":  "aGk=",
		"as_bytes": []byte("hi"),
	})
	require.NoError(t, err)

	v, err := codec.UnmarshalJSONSafe(data)
	require.NoError(t, err)

	m := v.(map[string]any)
	assert.Equal(t, "aGk=", m["as_text"])
	assert.Equal(t, []byte("hi"), m["as_bytes"])
}

func TestFromJSONSafe_WrapperWithExtraKeysIsAMapping(t *testing.T) {
	v, err := codec.FromJSONSafe(map[string]any{codec.BytesTag: "AA==", "other": "x"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{codec.BytesTag: "AA==", "other": "x"}, v)
}

func TestFromJSONSafe_ReservedBytesKey(t *testing.T) {
	meta := map[string]any{"note": map[string]any{codec.BytesTag: "aGk="}}

	restored, err := codec.RestoreMap(codec.SafeMap(meta))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"note": []byte("hi")}, restored)
}

func TestFromJSONSafe_BadBase64(t *testing.T) {
	_, err := codec.FromJSONSafe(map[string]any{codec.BytesTag: "!!!"})
	assert.Error(t, err)
}

func TestUnmarshalJSONSafe_Numbers(t *testing.T) {
	v, err := codec.UnmarshalJSONSafe([]byte(`{"i": 42, "f": 0.5, "big": 9007199254740993}`))
	require.NoError(t, err)

	m := v.(map[string]any)
	assert.Equal(t, int64(42), m["i"])
	assert.Equal(t, 0.5, m["f"])
	assert.Equal(t, int64(9007199254740993), m["big"])
}

func TestRestoreMap(t *testing.T) {
	restored, err := codec.RestoreMap(codec.SafeMap(map[string]any{"k": []byte("v")}))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"k": []byte("v")}, restored)

	nilMap, err := codec.RestoreMap(nil)
	require.NoError(t, err)
	assert.Nil(t, nilMap)

	_, err = codec.RestoreMap(map[string]any{codec.BytesTag: "AA=="})
	assert.Error(t, err)
}

func TestCanonical(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"int", 5, int64(5)},
		{"uint8", uint8(7), int64(7)},
		{"float32", float32(0.5), 0.5},
		{"json number int", json.Number("12"), int64(12)},
		{"json number float", json.Number("1.5"), 1.5},
		{"string slice", []string{"a"}, []any{"a"}},
		{"interface keyed map", map[any]any{"k": 1}, map[string]any{"k": int64(1)}},
		{"nil", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, codec.Canonical(tt.in))
		})
	}
}
