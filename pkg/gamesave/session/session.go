// Package session wraps a game environment so that its progress survives
// crashes: every step is recorded, checkpoints are written on a fixed step
// interval, and a reset can resume from a checkpoint.
//
// Example:
//
//	sess := session.New(env, mgr, session.WithAutoSaveInterval(50))
//	obs, err := sess.Resume(ctx) // latest checkpoint of the episode, or a fresh reset
//	for !done {
//	    res, err := sess.Step(ctx, policy(obs))
//	    ...
//	}
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/randalmurphal/gamesave/pkg/gamesave"
	"github.com/randalmurphal/gamesave/pkg/gamesave/catalog"
	"github.com/randalmurphal/gamesave/pkg/gamesave/config"
	"github.com/randalmurphal/gamesave/pkg/gamesave/state"
)

// InfoCheckpointKey is the step-info key holding the id of a checkpoint
// written by that step.
const InfoCheckpointKey = "checkpoint_saved"

// Env is a steppable game environment.
type Env interface {
	// Reset starts a new episode and returns the first observation.
	Reset(ctx context.Context) (any, error)

	// Step applies an action.
	Step(ctx context.Context, action any) (StepResult, error)

	// Observe returns the current observation without advancing.
	Observe(ctx context.Context) (any, error)

	// Game returns the handle checkpoints are captured from and applied to.
	Game() any
}

// StepResult is the outcome of one Env step.
type StepResult struct {
	Observation any
	Reward      float64
	Done        bool
	Info        map[string]any
}

// Store is the subset of *gamesave.Manager a Session uses.
type Store interface {
	Save(ctx context.Context, game any, req gamesave.SaveRequest) (string, error)
	Load(ctx context.Context, checkpointID string, game any) (*gamesave.LoadResult, error)
	Latest(ctx context.Context, episodeID string) (catalog.Entry, error)
}

var _ Store = (*gamesave.Manager)(nil)

// Session records the history of one episode and checkpoints it.
// A Session is not safe for concurrent use.
type Session struct {
	env    Env
	store  Store
	logger *slog.Logger

	interval  int
	episodeID string

	actions      []any
	observations []any
	rewards      []float64

	stepCount      int64
	lastCheckpoint int64
}

// Option configures a Session.
type Option func(*Session)

// WithEpisodeID sets the episode id.
// Default: "episode_<unix seconds>_<random suffix>"
func WithEpisodeID(id string) Option {
	return func(s *Session) {
		if id != "" {
			s.episodeID = id
		}
	}
}

// WithAutoSaveInterval sets how many steps pass between automatic
// checkpoints. Zero or negative disables auto-save.
// Default: 100
func WithAutoSaveInterval(n int) Option {
	return func(s *Session) {
		s.interval = n
	}
}

// WithLogger sets the logger. A nil logger disables logging.
// Default: slog.Default()
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// New creates a Session over env that checkpoints into store.
func New(env Env, store Store, opts ...Option) *Session {
	s := &Session{
		env:       env,
		store:     store,
		logger:    slog.Default(),
		interval:  config.DefaultAutoSaveInterval,
		episodeID: NewEpisodeID(time.Now()),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewEpisodeID returns a fresh episode id stamped with t.
func NewEpisodeID(t time.Time) string {
	return fmt.Sprintf("episode_%d_%s", t.Unix(), uuid.NewString()[:8])
}

// EpisodeID returns the current episode id. It changes when Reset restores
// a checkpoint of another episode.
func (s *Session) EpisodeID() string {
	return s.episodeID
}

// StepCount returns the number of steps taken in the episode.
func (s *Session) StepCount() int64 {
	return s.stepCount
}

// History returns copies of the recorded histories.
func (s *Session) History() (actions, observations []any, rewards []float64) {
	return state.CloneValues(s.actions), state.CloneValues(s.observations), append([]float64(nil), s.rewards...)
}

// Reset starts the episode over. If restoreFrom names a checkpoint whose
// game state can be applied, the histories, step count and episode id are
// restored from it and the current observation is returned. Otherwise, or
// if the checkpoint cannot be loaded, the environment is reset normally.
func (s *Session) Reset(ctx context.Context, restoreFrom string) (any, error) {
	if restoreFrom != "" {
		obs, ok, err := s.restore(ctx, restoreFrom)
		if err != nil {
			return nil, err
		}
		if ok {
			return obs, nil
		}
	}

	obs, err := s.env.Reset(ctx)
	if err != nil {
		return nil, fmt.Errorf("reset environment: %w", err)
	}
	s.actions = []any{}
	s.observations = []any{obs}
	s.rewards = []float64{}
	s.stepCount = 0
	s.lastCheckpoint = 0
	return obs, nil
}

// restore applies a checkpoint. It reports false when the checkpoint could
// not be loaded or its game state was not applied.
func (s *Session) restore(ctx context.Context, checkpointID string) (any, bool, error) {
	res, err := s.store.Load(ctx, checkpointID, s.env.Game())
	if err != nil {
		s.warn("checkpoint restore failed, resetting", checkpointID, err)
		return nil, false, nil
	}
	if !res.Applied {
		s.warn("checkpoint state not applied, resetting", checkpointID, nil)
		return nil, false, nil
	}

	rec := res.Record
	s.actions = state.CloneValues(rec.ActionHistory)
	s.observations = state.CloneValues(rec.ObservationHistory)
	s.rewards = append([]float64(nil), rec.RewardHistory...)
	s.stepCount = rec.StepNumber
	s.lastCheckpoint = rec.StepNumber
	s.episodeID = rec.EpisodeID

	if s.logger != nil {
		s.logger.Info("restored from checkpoint",
			slog.String("checkpoint_id", checkpointID),
			slog.String("episode_id", s.episodeID),
			slog.Int64("step_number", s.stepCount),
		)
	}

	obs, err := s.env.Observe(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("observe after restore: %w", err)
	}
	return obs, true, nil
}

// Resume restores the latest checkpoint of the session's episode, or resets
// normally when the episode has none.
func (s *Session) Resume(ctx context.Context) (any, error) {
	entry, err := s.store.Latest(ctx, s.episodeID)
	if errors.Is(err, gamesave.ErrNoCheckpoints) {
		return s.Reset(ctx, "")
	}
	if err != nil {
		return nil, fmt.Errorf("find latest checkpoint: %w", err)
	}
	return s.Reset(ctx, entry.CheckpointID)
}

// Step applies action and records it. When the auto-save interval has
// elapsed a checkpoint is written and its id is reported in the result's
// Info under InfoCheckpointKey. A failed auto-save is logged and retried on
// the next step; it does not fail the step.
func (s *Session) Step(ctx context.Context, action any) (StepResult, error) {
	res, err := s.env.Step(ctx, action)
	if err != nil {
		return StepResult{}, fmt.Errorf("step environment: %w", err)
	}
	if res.Info == nil {
		res.Info = map[string]any{}
	}

	s.actions = append(s.actions, action)
	s.observations = append(s.observations, res.Observation)
	s.rewards = append(s.rewards, res.Reward)
	s.stepCount++

	if s.interval > 0 && s.stepCount-s.lastCheckpoint >= int64(s.interval) {
		id, err := s.save(ctx, map[string]any{"done": res.Done, "info": res.Info})
		if err != nil {
			s.warn("auto-save failed", "", err)
		} else {
			s.lastCheckpoint = s.stepCount
			res.Info[InfoCheckpointKey] = id
		}
	}
	return res, nil
}

// SaveNow writes a checkpoint of the current step immediately.
func (s *Session) SaveNow(ctx context.Context) (string, error) {
	id, err := s.save(ctx, nil)
	if err != nil {
		return "", err
	}
	s.lastCheckpoint = s.stepCount
	return id, nil
}

func (s *Session) save(ctx context.Context, metadata map[string]any) (string, error) {
	return s.store.Save(ctx, s.env.Game(), gamesave.SaveRequest{
		EpisodeID:          s.episodeID,
		StepNumber:         s.stepCount,
		ActionHistory:      s.actions,
		ObservationHistory: s.observations,
		RewardHistory:      s.rewards,
		Metadata:           metadata,
	})
}

func (s *Session) warn(msg, checkpointID string, err error) {
	if s.logger == nil {
		return
	}
	attrs := []any{slog.String("episode_id", s.episodeID)}
	if checkpointID != "" {
		attrs = append(attrs, slog.String("checkpoint_id", checkpointID))
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	s.logger.Warn(msg, attrs...)
}
