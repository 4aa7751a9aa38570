/*
Package gamesave persists checkpoints of running games so an agent can
crash, restart and resume an episode where it left off.

# Overview

A checkpoint is one GameStateRecord (screen, engine save state, memory
dump, action/observation/reward histories, metadata) written as a
compressed blob, plus a catalog entry that says which episode and step it
belongs to. The Manager coordinates the pieces:

  - storage resolves the storage address and keeps the blobs
  - codec encodes records (msgpack) and catalog metadata (JSON-safe)
  - catalog indexes checkpoints (JSON document or SQLite)
  - saver captures and restores engine state per game type
  - retention keeps at most N checkpoints per episode

# Basic Usage

	mgr, err := gamesave.New(ctx, "./checkpoints",
	    gamesave.WithMaxCheckpoints(5),
	    gamesave.WithLogger(slog.Default()),
	)
	if err != nil {
	    log.Fatal(err)
	}
	defer mgr.Close()

	id, err := mgr.Save(ctx, game, gamesave.SaveRequest{
	    EpisodeID:     "episode-1",
	    StepNumber:    300,
	    ActionHistory: actions,
	    RewardHistory: rewards,
	})

	res, err := mgr.Load(ctx, id, game)
	if err == nil && res.Applied {
	    // game is back at step 300
	}

# Storage Addresses

New accepts a local path (absolute, relative or ~-prefixed), a file://
URL, or a cns:// address. cns:// is served from a deterministic directory
under the system temp dir, with a warning. Any other scheme fails with
errors.ErrUnsupportedScheme.

# Failure Model

Capturing the screen, the save state and the memory dump is best-effort:
a failure is logged at warning level and the checkpoint is written with
the field left empty. Writing the blob and the catalog entry is not: if
either fails, Save returns an error and leaves no catalog entry behind.
Load fails closed on a missing entry, a missing blob, a checksum mismatch
or an undecodable blob. Use errors.Categorize to tell these apart.

# Concurrency

A Manager is safe for concurrent use. Saves, deletes and cleanups are
serialized per Manager. With the JSON catalog, every index mutation also
holds an exclusive file lock and reloads the index from disk, so several
Managers (in one or many processes) can share one storage root.

# Configuration

Open builds a Manager from config.Settings, typically loaded from YAML:

	settings, err := config.LoadSettings("gamesave.yaml")
	mgr, err := gamesave.Open(ctx, settings)
*/
package gamesave
