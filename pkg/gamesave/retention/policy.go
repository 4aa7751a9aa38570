// Package retention decides which checkpoints an episode no longer keeps.
package retention

import (
	"github.com/randalmurphal/gamesave/pkg/gamesave/catalog"
)

// DefaultMaxCheckpoints is the per-episode cap used when none is configured.
const DefaultMaxCheckpoints = 10

// Policy caps the number of checkpoints kept per episode.
type Policy struct {
	// MaxCheckpoints is the number of newest checkpoints kept per episode.
	// Zero or negative disables eviction.
	MaxCheckpoints int
}

// Enabled reports whether the policy ever evicts anything.
func (p Policy) Enabled() bool {
	return p.MaxCheckpoints > 0
}

// Select returns the entries of episodeID that fall outside the policy,
// oldest first. Entries of other episodes are ignored, and the input slice
// is not modified. The retained set is the MaxCheckpoints newest entries in
// catalog order (created_at, then step_number, then checkpoint_id).
func (p Policy) Select(episodeID string, entries []catalog.Entry) []catalog.Entry {
	if !p.Enabled() {
		return nil
	}

	filter := catalog.Filter{EpisodeID: episodeID}
	candidates := make([]catalog.Entry, 0, len(entries))
	for _, e := range entries {
		if filter.Match(e) {
			candidates = append(candidates, e)
		}
	}
	if len(candidates) <= p.MaxCheckpoints {
		return nil
	}

	catalog.SortOldestFirst(candidates)
	return candidates[:len(candidates)-p.MaxCheckpoints]
}
