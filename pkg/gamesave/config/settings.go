package config

import (
	"compress/gzip"
	"fmt"
	"time"

	gserrors "github.com/randalmurphal/gamesave/pkg/gamesave/errors"
)

// SectionKey is the optional top-level mapping LoadSettings reads from.
const SectionKey = "gamesave"

// Setting keys.
const (
	KeyStoragePath      = "storage_path"
	KeyMaxCheckpoints   = "max_checkpoints"
	KeyAutoSaveInterval = "auto_save_interval"
	KeyCatalog          = "catalog"
	KeyCompressionLevel = "compression_level"
	KeyLockTimeout      = "lock_timeout"
)

// Catalog backends.
const (
	CatalogJSON   = "json"
	CatalogSQLite = "sqlite"
)

// Defaults.
const (
	DefaultStoragePath      = "./checkpoints"
	DefaultMaxCheckpoints   = 10
	DefaultAutoSaveInterval = 100
	DefaultCatalog          = CatalogJSON
	DefaultCompressionLevel = gzip.DefaultCompression
	DefaultLockTimeout      = 10 * time.Second
)

// Settings configures a checkpoint manager and the sessions built on it.
type Settings struct {
	// StoragePath is a local path, a file:// URL or a cns:// address.
	StoragePath string

	// MaxCheckpoints caps checkpoints kept per episode. <= 0 disables retention.
	MaxCheckpoints int

	// AutoSaveInterval is the step interval between automatic session saves.
	// <= 0 disables auto-save.
	AutoSaveInterval int

	// Catalog selects the catalog backend: "json" or "sqlite".
	Catalog string

	// CompressionLevel is the gzip level used for blobs.
	CompressionLevel int

	// LockTimeout bounds how long an operation waits for the index lock.
	LockTimeout time.Duration
}

// Defaults returns the default settings.
func Defaults() Settings {
	return Settings{
		StoragePath:      DefaultStoragePath,
		MaxCheckpoints:   DefaultMaxCheckpoints,
		AutoSaveInterval: DefaultAutoSaveInterval,
		Catalog:          DefaultCatalog,
		CompressionLevel: DefaultCompressionLevel,
		LockTimeout:      DefaultLockTimeout,
	}
}

// FromConfig derives Settings from cfg, using defaults for missing keys.
func FromConfig(cfg Config) Settings {
	d := Defaults()
	return Settings{
		StoragePath:      cfg.String(KeyStoragePath, d.StoragePath),
		MaxCheckpoints:   cfg.Int(KeyMaxCheckpoints, d.MaxCheckpoints),
		AutoSaveInterval: cfg.Int(KeyAutoSaveInterval, d.AutoSaveInterval),
		Catalog:          cfg.String(KeyCatalog, d.Catalog),
		CompressionLevel: cfg.Int(KeyCompressionLevel, d.CompressionLevel),
		LockTimeout:      cfg.Duration(KeyLockTimeout, d.LockTimeout),
	}
}

// Validate reports the first invalid setting.
func (s Settings) Validate() error {
	if s.StoragePath == "" {
		return invalid(KeyStoragePath, "must not be empty")
	}
	switch s.Catalog {
	case CatalogJSON, CatalogSQLite:
	default:
		return invalid(KeyCatalog, fmt.Sprintf("unknown backend %q (want %q or %q)", s.Catalog, CatalogJSON, CatalogSQLite))
	}
	if s.CompressionLevel < gzip.HuffmanOnly || s.CompressionLevel > gzip.BestCompression {
		return invalid(KeyCompressionLevel, fmt.Sprintf("%d out of range [%d, %d]",
			s.CompressionLevel, gzip.HuffmanOnly, gzip.BestCompression))
	}
	if s.LockTimeout <= 0 {
		return invalid(KeyLockTimeout, "must be positive")
	}
	return nil
}

func invalid(key, reason string) error {
	return gserrors.New(gserrors.KindInvalidArgument, "config", key, fmt.Errorf("%s %s", key, reason))
}
