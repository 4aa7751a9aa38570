package gamesave

import (
	"errors"

	"github.com/randalmurphal/gamesave/pkg/gamesave/catalog"
)

// Sentinel errors returned by the Manager. Failure kinds (blob write,
// checksum mismatch, ...) are the sentinels of pkg/gamesave/errors.
var (
	// ErrNotFound indicates no checkpoint exists with the requested id.
	ErrNotFound = catalog.ErrNotFound

	// ErrClosed indicates the manager has been closed.
	ErrClosed = catalog.ErrClosed

	// ErrNoCheckpoints indicates an episode has no checkpoints.
	ErrNoCheckpoints = errors.New("no checkpoints found for episode")
)
