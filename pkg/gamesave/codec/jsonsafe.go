package codec

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/randalmurphal/gamesave/pkg/gamesave/state"
)

// BytesTag is the key of the wrapper object that carries a byte string
// through JSON. The key is reserved: a caller mapping whose only key is
// BytesTag with a base64 string value is indistinguishable from a wrapper
// and comes back from FromJSONSafe as the decoded []byte.
const BytesTag = "__bytes__"

// ToJSONSafe returns a copy of v in which every []byte, at any depth inside
// mappings and sequences, is replaced by {"__bytes__": base64(v)}.
// Strings, numbers, booleans and nil pass through unchanged.
func ToJSONSafe(v any) any {
	switch val := v.(type) {
	case []byte:
		return map[string]any{BytesTag: base64.StdEncoding.EncodeToString(val)}
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = ToJSONSafe(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = ToJSONSafe(item)
		}
		return out
	default:
		return Canonical(val)
	}
}

// FromJSONSafe reverses ToJSONSafe. A mapping whose only key is "__bytes__"
// with a string value is decoded back into a byte string; numbers are
// returned in canonical form.
func FromJSONSafe(v any) (any, error) {
	switch val := v.(type) {
	case map[string]any:
		if raw, ok := bytesWrapper(val); ok {
			b, err := base64.StdEncoding.DecodeString(raw)
			if err != nil {
				return nil, fmt.Errorf("decode %s value: %w", BytesTag, err)
			}
			if b == nil {
				b = []byte{}
			}
			return b, nil
		}
		out := make(map[string]any, len(val))
		for k, item := range val {
			restored, err := FromJSONSafe(item)
			if err != nil {
				return nil, err
			}
			out[k] = restored
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			restored, err := FromJSONSafe(item)
			if err != nil {
				return nil, err
			}
			out[i] = restored
		}
		return out, nil
	default:
		return Canonical(val), nil
	}
}

func bytesWrapper(m map[string]any) (string, bool) {
	if len(m) != 1 {
		return "", false
	}
	raw, ok := m[BytesTag].(string)
	return raw, ok
}

// MarshalJSONSafe encodes v as JSON after wrapping byte strings.
func MarshalJSONSafe(v any) ([]byte, error) {
	return json.Marshal(ToJSONSafe(v))
}

// UnmarshalJSONSafe decodes JSON produced by MarshalJSONSafe.
func UnmarshalJSONSafe(data []byte) (any, error) {
	var v any
	if err := decodeJSON(data, &v); err != nil {
		return nil, err
	}
	return FromJSONSafe(v)
}

// SafeMap converts a metadata mapping into its JSON-safe form.
func SafeMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	return ToJSONSafe(m).(map[string]any)
}

// RestoreMap reverses SafeMap.
func RestoreMap(m map[string]any) (map[string]any, error) {
	if m == nil {
		return nil, nil
	}
	v, err := FromJSONSafe(m)
	if err != nil {
		return nil, err
	}
	restored, ok := v.(map[string]any)
	if !ok {
		// A top-level mapping that is itself a bytes wrapper is not a mapping.
		return nil, errors.New("metadata decodes to a byte string, not a mapping")
	}
	return restored, nil
}

// jsonRecord is the JSON-safe layout of a record.
type jsonRecord struct {
	GameType           string         `json:"game_type"`
	GameName           string         `json:"game_name"`
	EpisodeID          string         `json:"episode_id"`
	StepNumber         int64          `json:"step_number"`
	Timestamp          float64        `json:"timestamp"`
	ScreenData         any            `json:"screen_data"`
	GameMemory         any            `json:"game_memory"`
	SaveState          any            `json:"save_state"`
	ActionHistory      []any          `json:"action_history"`
	ObservationHistory []any          `json:"observation_history"`
	RewardHistory      []float64      `json:"reward_history"`
	Metadata           map[string]any `json:"metadata"`
}

// EncodeJSON serializes a record into the JSON-safe envelope.
func EncodeJSON(r *state.Record) ([]byte, error) {
	if r == nil {
		return nil, errors.New("encode json: nil record")
	}
	screen := r.ScreenData
	if screen == nil {
		screen = []byte{}
	}
	jr := jsonRecord{
		GameType:      string(r.GameType),
		GameName:      r.GameName,
		EpisodeID:     r.EpisodeID,
		StepNumber:    r.StepNumber,
		Timestamp:     r.Timestamp,
		ScreenData:    ToJSONSafe(screen),
		GameMemory:    optionalBytes(r.GameMemory),
		SaveState:     optionalBytes(r.SaveState),
		RewardHistory: r.RewardHistory,
		Metadata:      SafeMap(r.Metadata),
	}
	if r.ActionHistory != nil {
		jr.ActionHistory = ToJSONSafe(r.ActionHistory).([]any)
	}
	if r.ObservationHistory != nil {
		jr.ObservationHistory = ToJSONSafe(r.ObservationHistory).([]any)
	}
	data, err := json.Marshal(&jr)
	if err != nil {
		return nil, fmt.Errorf("encode json record: %w", err)
	}
	return data, nil
}

// DecodeJSON deserializes a record from the JSON-safe envelope.
func DecodeJSON(data []byte) (*state.Record, error) {
	var jr jsonRecord
	if err := decodeJSON(data, &jr); err != nil {
		return nil, fmt.Errorf("decode json record: %w", err)
	}

	r := &state.Record{
		GameType:      state.GameType(jr.GameType),
		GameName:      jr.GameName,
		EpisodeID:     jr.EpisodeID,
		StepNumber:    jr.StepNumber,
		Timestamp:     jr.Timestamp,
		RewardHistory: jr.RewardHistory,
	}

	var err error
	if r.ScreenData, err = restoreBytes("screen_data", jr.ScreenData); err != nil {
		return nil, err
	}
	if r.ScreenData == nil {
		r.ScreenData = []byte{}
	}
	if r.GameMemory, err = restoreBytes("game_memory", jr.GameMemory); err != nil {
		return nil, err
	}
	if r.SaveState, err = restoreBytes("save_state", jr.SaveState); err != nil {
		return nil, err
	}
	if r.ActionHistory, err = restoreValues(jr.ActionHistory); err != nil {
		return nil, fmt.Errorf("decode action_history: %w", err)
	}
	if r.ObservationHistory, err = restoreValues(jr.ObservationHistory); err != nil {
		return nil, fmt.Errorf("decode observation_history: %w", err)
	}
	if r.Metadata, err = RestoreMap(jr.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return r, nil
}

func optionalBytes(b []byte) any {
	if b == nil {
		return nil
	}
	return ToJSONSafe(b)
}

func restoreBytes(field string, v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	restored, err := FromJSONSafe(v)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", field, err)
	}
	b, ok := restored.([]byte)
	if !ok {
		return nil, fmt.Errorf("decode %s: expected %s wrapper, got %T", field, BytesTag, v)
	}
	return b, nil
}

func restoreValues(values []any) ([]any, error) {
	if values == nil {
		return nil, nil
	}
	v, err := FromJSONSafe(values)
	if err != nil {
		return nil, err
	}
	return v.([]any), nil
}

func decodeJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}
