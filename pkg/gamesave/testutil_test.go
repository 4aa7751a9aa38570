package gamesave

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	gserrors "github.com/randalmurphal/gamesave/pkg/gamesave/errors"
	"github.com/randalmurphal/gamesave/pkg/gamesave/storage"
)

// Test doubles shared by the manager tests.

var errBoom = errors.New("boom")

// fakeEmulator is a GameBoy-like core with injectable failures.
type fakeEmulator struct {
	mu      sync.Mutex
	state   []byte
	memory  []byte
	saveErr error
	loadErr error
	loaded  [][]byte
}

func (e *fakeEmulator) SaveState() ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.saveErr != nil {
		return nil, e.saveErr
	}
	return append([]byte(nil), e.state...), nil
}

func (e *fakeEmulator) LoadState(data []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loadErr != nil {
		return e.loadErr
	}
	e.loaded = append(e.loaded, append([]byte(nil), data...))
	return nil
}

func (e *fakeEmulator) Memory() ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.memory, nil
}

func (e *fakeEmulator) loadCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.loaded)
}

// fakeGame exposes an emulator handle and a raw screen.
type fakeGame struct {
	emu    *fakeEmulator
	screen []byte
}

func (g *fakeGame) Emulator() any { return g.emu }

func (g *fakeGame) GameName() string { return "tetris" }

func (g *fakeGame) Screen(ctx context.Context) ([]byte, error) {
	if g.screen == nil {
		return nil, errBoom
	}
	return g.screen, nil
}

func newFakeGame() *fakeGame {
	return &fakeGame{
		emu: &fakeEmulator{
			state:  []byte("native-state"),
			memory: []byte{0xde, 0xad, 0xbe, 0xef},
		},
		screen: []byte("frame"),
	}
}

// unknownGame carries no capability marker.
type unknownGame struct{}

// tickingClock advances one second on every call so ids and created_at
// values are distinct and ordered.
type tickingClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTickingClock() *tickingClock {
	return &tickingClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

// failingBlobStore fails every Put.
type failingBlobStore struct {
	*storage.MemoryStore
}

func (s failingBlobStore) Put(ctx context.Context, key string, data []byte) (storage.BlobInfo, error) {
	return storage.BlobInfo{}, gserrors.New(gserrors.KindBlobWrite, "put", key, errBoom)
}

// flakyBlobStore fails its first `failures` Puts with a retryable error.
type flakyBlobStore struct {
	*storage.MemoryStore

	mu       sync.Mutex
	failures int
	puts     int
}

func (s *flakyBlobStore) Put(ctx context.Context, key string, data []byte) (storage.BlobInfo, error) {
	s.mu.Lock()
	s.puts++
	fail := s.puts <= s.failures
	s.mu.Unlock()
	if fail {
		return storage.BlobInfo{}, gserrors.New(gserrors.KindBlobWrite, "put", key, errBoom)
	}
	return s.MemoryStore.Put(ctx, key, data)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

// newTestManager creates a manager on a fresh temp root with a ticking clock.
func newTestManager(t *testing.T, opts ...Option) *Manager {
	t.Helper()
	base := []Option{
		WithLogger(discardLogger()),
		WithClock(newTickingClock().Now),
	}
	mgr, err := New(context.Background(), t.TempDir(), append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Close() })
	return mgr
}

func saveStep(t *testing.T, mgr *Manager, game any, episodeID string, step int64) string {
	t.Helper()
	id, err := mgr.Save(context.Background(), game, SaveRequest{
		EpisodeID:     episodeID,
		StepNumber:    step,
		ActionHistory: []any{map[string]any{"A": true}},
		RewardHistory: []float64{1},
	})
	require.NoError(t, err)
	return id
}
