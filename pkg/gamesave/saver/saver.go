package saver

import (
	"context"
	"sort"
	"sync"

	"github.com/randalmurphal/gamesave/pkg/gamesave/state"
)

// Saver snapshots and restores the engine state of one kind of game.
// Implementations must be safe for concurrent use.
type Saver interface {
	// SaveState captures restorable engine state. On failure it returns
	// whatever could be captured (possibly empty, never nil) together with
	// an error matching errors.ErrCapture.
	SaveState(ctx context.Context, game any) ([]byte, error)

	// LoadState applies data to game and reports whether it was applied.
	// Empty data or a game lacking the load capability yields (false, nil).
	LoadState(ctx context.Context, game any, data []byte) (bool, error)

	// MemorySnapshot returns a raw memory dump, or nil when the game does
	// not expose one.
	MemorySnapshot(ctx context.Context, game any) ([]byte, error)
}

// Registry maps game types to savers.
// It uses sync.RWMutex for read-heavy lookups.
type Registry struct {
	mu     sync.RWMutex
	savers map[state.GameType]Saver
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		savers: make(map[state.GameType]Saver),
	}
}

// DefaultRegistry returns a registry with the built-in GameBoy and DOS
// savers registered.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(state.GameBoy, GameBoySaver{})
	r.Register(state.DOS, DOSSaver{})
	return r
}

// Register adds or replaces the saver for a game type.
func (r *Registry) Register(t state.GameType, s Saver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.savers[t] = s
}

// Get returns the saver for a game type and whether it exists.
func (r *Registry) Get(t state.GameType) (Saver, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.savers[t]
	return s, ok
}

// Delete removes the saver for a game type.
func (r *Registry) Delete(t state.GameType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.savers, t)
}

// Types returns the registered game types in sorted order.
func (r *Registry) Types() []state.GameType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]state.GameType, 0, len(r.savers))
	for t := range r.savers {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
