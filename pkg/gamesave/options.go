package gamesave

import (
	"compress/gzip"
	"log/slog"
	"time"

	"github.com/randalmurphal/gamesave/pkg/gamesave/catalog"
	"github.com/randalmurphal/gamesave/pkg/gamesave/config"
	gserrors "github.com/randalmurphal/gamesave/pkg/gamesave/errors"
	"github.com/randalmurphal/gamesave/pkg/gamesave/observability"
	"github.com/randalmurphal/gamesave/pkg/gamesave/retention"
	"github.com/randalmurphal/gamesave/pkg/gamesave/saver"
	"github.com/randalmurphal/gamesave/pkg/gamesave/storage"
)

// managerConfig holds construction-time configuration.
type managerConfig struct {
	logger           *slog.Logger
	metrics          observability.MetricsRecorder
	spans            observability.SpanManager
	maxCheckpoints   int
	catalogKind      string
	catalog          catalog.Catalog
	blobs            storage.BlobStore
	savers           *saver.Registry
	now              func() time.Time
	compressionLevel int
	lockTimeout      time.Duration
	writeRetry       gserrors.RetryConfig
}

// defaultManagerConfig returns the default configuration.
func defaultManagerConfig() managerConfig {
	return managerConfig{
		logger:           slog.Default(),
		metrics:          observability.NoopMetrics{},
		spans:            observability.NoopSpanManager{},
		maxCheckpoints:   retention.DefaultMaxCheckpoints,
		catalogKind:      config.CatalogJSON,
		now:              time.Now,
		compressionLevel: gzip.DefaultCompression,
		lockTimeout:      catalog.DefaultLockTimeout,
		writeRetry:       gserrors.NoRetry,
	}
}

// Option configures a Manager.
type Option func(*managerConfig)

// WithLogger sets the logger. A nil logger disables logging.
// Default: slog.Default()
func WithLogger(logger *slog.Logger) Option {
	return func(c *managerConfig) {
		c.logger = logger
	}
}

// WithMetrics enables or disables OpenTelemetry metrics on the global
// meter provider.
// Default: disabled
func WithMetrics(enabled bool) Option {
	return func(c *managerConfig) {
		if enabled {
			c.metrics = observability.NewMetricsRecorder()
		} else {
			c.metrics = observability.NoopMetrics{}
		}
	}
}

// WithMetricsRecorder sets an explicit metrics recorder.
func WithMetricsRecorder(m observability.MetricsRecorder) Option {
	return func(c *managerConfig) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithTracing enables or disables OpenTelemetry spans on the global
// tracer provider.
// Default: disabled
func WithTracing(enabled bool) Option {
	return func(c *managerConfig) {
		if enabled {
			c.spans = observability.NewSpanManager()
		} else {
			c.spans = observability.NoopSpanManager{}
		}
	}
}

// WithSpanManager sets an explicit span manager.
func WithSpanManager(s observability.SpanManager) Option {
	return func(c *managerConfig) {
		if s != nil {
			c.spans = s
		}
	}
}

// WithMaxCheckpoints caps the checkpoints kept per episode.
// Zero or negative disables retention.
// Default: 10
func WithMaxCheckpoints(n int) Option {
	return func(c *managerConfig) {
		c.maxCheckpoints = n
	}
}

// WithCatalogKind selects the catalog backend created under the storage
// root: config.CatalogJSON or config.CatalogSQLite.
// Default: config.CatalogJSON
func WithCatalogKind(kind string) Option {
	return func(c *managerConfig) {
		if kind != "" {
			c.catalogKind = kind
		}
	}
}

// WithCatalog uses an existing catalog instead of creating one. The
// Manager does not close a catalog it did not create.
func WithCatalog(cat catalog.Catalog) Option {
	return func(c *managerConfig) {
		c.catalog = cat
	}
}

// WithBlobStore uses an existing blob store instead of the file store
// under the storage root.
func WithBlobStore(store storage.BlobStore) Option {
	return func(c *managerConfig) {
		c.blobs = store
	}
}

// WithSaverRegistry sets the savers used per game type.
// Default: saver.DefaultRegistry()
func WithSaverRegistry(r *saver.Registry) Option {
	return func(c *managerConfig) {
		c.savers = r
	}
}

// WithClock sets the time source for record timestamps, checkpoint ids and
// catalog ordering.
// Default: time.Now
func WithClock(now func() time.Time) Option {
	return func(c *managerConfig) {
		if now != nil {
			c.now = now
		}
	}
}

// WithCompressionLevel sets the gzip level of blobs.
// Default: gzip.DefaultCompression
func WithCompressionLevel(level int) Option {
	return func(c *managerConfig) {
		c.compressionLevel = level
	}
}

// WithLockTimeout bounds how long an operation waits for the JSON index lock.
// Default: 10s
func WithLockTimeout(d time.Duration) Option {
	return func(c *managerConfig) {
		if d > 0 {
			c.lockTimeout = d
		}
	}
}

// WithWriteRetry retries blob writes that fail with a retryable error
// before the save is reported as failed.
// Default: gserrors.NoRetry
func WithWriteRetry(cfg gserrors.RetryConfig) Option {
	return func(c *managerConfig) {
		c.writeRetry = cfg
	}
}

// settingsOptions converts Settings into options.
func settingsOptions(s config.Settings) []Option {
	return []Option{
		WithMaxCheckpoints(s.MaxCheckpoints),
		WithCatalogKind(s.Catalog),
		WithCompressionLevel(s.CompressionLevel),
		WithLockTimeout(s.LockTimeout),
	}
}
