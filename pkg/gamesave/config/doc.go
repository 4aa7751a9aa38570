/*
Package config provides type-safe configuration extraction from map[string]any
and the Settings that configure a checkpoint manager.

# Basic Usage

Create a Config from any map and extract values with defaults:

	cfg := config.New(map[string]any{
	    "storage_path":    "~/saves",
	    "max_checkpoints": 20,
	    "lock_timeout":    "5s",
	})

	path := cfg.String("storage_path", "./checkpoints")  // "~/saves"
	keep := cfg.Int("max_checkpoints", 10)               // 20
	wait := cfg.Duration("lock_timeout", 10*time.Second) // 5s

All accessors return the default value if the key is missing, the value
cannot be converted, or the conversion would lose precision.

# Settings

FromConfig turns a Config into Settings, filling defaults:

	settings := config.FromConfig(cfg)
	if err := settings.Validate(); err != nil {
	    log.Fatal(err)
	}

LoadSettings does the same from a YAML or JSON file. The keys may sit at
the top level or under a "gamesave" mapping:

	gamesave:
	  storage_path: cns://bucket/runs
	  max_checkpoints: 5
	  auto_save_interval: 50
	  catalog: sqlite
	  compression_level: 6
	  lock_timeout: 10s

# Thread Safety

Config is safe for concurrent read access. The underlying map is not
modified after creation.
*/
package config
