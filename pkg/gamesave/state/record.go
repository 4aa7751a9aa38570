// Package state defines the game-state snapshot that a checkpoint persists.
package state

// GameType tags which saver captures and restores a game's engine state.
type GameType string

const (
	GameBoy GameType = "gameboy"
	DOS     GameType = "dos"
	Unknown GameType = "unknown"
)

// Valid reports whether t is one of the known tags.
func (t GameType) Valid() bool {
	switch t {
	case GameBoy, DOS, Unknown:
		return true
	}
	return false
}

// Record is an immutable snapshot of one game session at one step.
//
// ScreenData is always non-nil (possibly empty). GameMemory and SaveState are
// nil when absent. An empty SaveState means the checkpoint is history-only:
// loading it returns the record but applies nothing to the game.
type Record struct {
	GameType   GameType `msgpack:"game_type" json:"game_type"`
	GameName   string   `msgpack:"game_name" json:"game_name"`
	EpisodeID  string   `msgpack:"episode_id" json:"episode_id"`
	StepNumber int64    `msgpack:"step_number" json:"step_number"`

	// Timestamp is wall-clock creation time in seconds since the epoch.
	Timestamp float64 `msgpack:"timestamp" json:"timestamp"`

	ScreenData []byte `msgpack:"screen_data" json:"screen_data"`
	GameMemory []byte `msgpack:"game_memory" json:"game_memory"`
	SaveState  []byte `msgpack:"save_state" json:"save_state"`

	ActionHistory      []any     `msgpack:"action_history" json:"action_history"`
	ObservationHistory []any     `msgpack:"observation_history" json:"observation_history"`
	RewardHistory      []float64 `msgpack:"reward_history" json:"reward_history"`

	Metadata map[string]any `msgpack:"metadata" json:"metadata"`
}

// HasSaveState reports whether the record carries restorable engine state.
func (r *Record) HasSaveState() bool {
	return len(r.SaveState) > 0
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.ScreenData = cloneBytes(r.ScreenData)
	c.GameMemory = cloneBytes(r.GameMemory)
	c.SaveState = cloneBytes(r.SaveState)
	c.ActionHistory = CloneValues(r.ActionHistory)
	c.ObservationHistory = CloneValues(r.ObservationHistory)
	if r.RewardHistory != nil {
		c.RewardHistory = append([]float64(nil), r.RewardHistory...)
	}
	c.Metadata = CloneMap(r.Metadata)
	return &c
}
