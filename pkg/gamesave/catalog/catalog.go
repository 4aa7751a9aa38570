// Package catalog provides the durable index of checkpoints: which
// checkpoints exist, which episode and step they belong to, and where their
// blobs live.
package catalog

import (
	"context"
	"errors"
	"sort"

	"github.com/randalmurphal/gamesave/pkg/gamesave/state"
)

// Catalog persists checkpoint entries.
// Implementations must be safe for concurrent use.
type Catalog interface {
	// Put inserts an entry, replacing any entry with the same CheckpointID.
	Put(ctx context.Context, entry Entry) error

	// Get retrieves an entry.
	// Returns ErrNotFound if the entry doesn't exist.
	Get(ctx context.Context, checkpointID string) (Entry, error)

	// List returns entries matching the filter, newest first (see SortNewestFirst).
	// Returns an empty slice (not error) if nothing matches.
	List(ctx context.Context, filter Filter) ([]Entry, error)

	// Delete removes an entry. Reports whether an entry was removed;
	// a missing entry is not an error.
	Delete(ctx context.Context, checkpointID string) (bool, error)

	// Close releases any resources (connections, files).
	Close() error
}

// Entry is one catalog row. It is created when a checkpoint's blob has been
// written and is never modified afterwards, only deleted.
type Entry struct {
	CheckpointID string

	EpisodeID  string
	StepNumber int64
	GameType   state.GameType
	GameName   string
	// Timestamp is the record's creation time in seconds since the epoch.
	Timestamp float64

	// Metadata is the caller-supplied metadata of the checkpoint.
	Metadata map[string]any

	BlobKey  string
	FilePath string

	// CreatedAt is the catalog insertion time in seconds since the epoch.
	// It orders entries chronologically and for retention.
	CreatedAt float64

	// FileSize is the compressed blob size in bytes.
	FileSize int64

	// Checksum is the hex sha256 of the compressed blob.
	Checksum string
}

// Filter selects entries in List.
type Filter struct {
	// EpisodeID, if non-empty, keeps only entries of that episode.
	EpisodeID string

	// Limit, if positive, caps the number of returned entries.
	Limit int
}

// Match reports whether e passes the filter's predicates (Limit is ignored).
func (f Filter) Match(e Entry) bool {
	return f.EpisodeID == "" || e.EpisodeID == f.EpisodeID
}

// Sentinel errors for catalog operations.
var (
	// ErrNotFound indicates an entry doesn't exist.
	ErrNotFound = errors.New("checkpoint not found")

	// ErrClosed indicates the catalog has been closed.
	ErrClosed = errors.New("checkpoint catalog closed")
)

// SortNewestFirst orders entries by CreatedAt descending. Ties are broken
// by StepNumber descending, then CheckpointID descending, so the order is
// total for a fixed set of entries.
func SortNewestFirst(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return newer(entries[i], entries[j])
	})
}

// SortOldestFirst is the exact reverse of SortNewestFirst.
func SortOldestFirst(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return newer(entries[j], entries[i])
	})
}

func newer(a, b Entry) bool {
	if a.CreatedAt != b.CreatedAt {
		return a.CreatedAt > b.CreatedAt
	}
	if a.StepNumber != b.StepNumber {
		return a.StepNumber > b.StepNumber
	}
	return a.CheckpointID > b.CheckpointID
}

// applyFilter filters, sorts and limits entries.
func applyFilter(entries []Entry, filter Filter) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if filter.Match(e) {
			out = append(out, e)
		}
	}
	SortNewestFirst(out)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out
}
