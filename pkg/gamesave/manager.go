package gamesave

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/randalmurphal/gamesave/pkg/gamesave/catalog"
	"github.com/randalmurphal/gamesave/pkg/gamesave/codec"
	"github.com/randalmurphal/gamesave/pkg/gamesave/config"
	gserrors "github.com/randalmurphal/gamesave/pkg/gamesave/errors"
	"github.com/randalmurphal/gamesave/pkg/gamesave/observability"
	"github.com/randalmurphal/gamesave/pkg/gamesave/retention"
	"github.com/randalmurphal/gamesave/pkg/gamesave/saver"
	"github.com/randalmurphal/gamesave/pkg/gamesave/state"
	"github.com/randalmurphal/gamesave/pkg/gamesave/storage"
)

// Manager saves and restores checkpoints of running games under one
// storage root.
//
// Manager is safe for concurrent use. Saves, deletes and cleanups are
// serialized within one Manager; the catalog serializes index writes across
// Managers sharing a root.
type Manager struct {
	loc         storage.Location
	blobs       storage.BlobStore
	catalog     catalog.Catalog
	ownsCatalog bool
	savers      *saver.Registry
	policy      retention.Policy
	writeRetry  gserrors.RetryConfig

	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager
	now     func() time.Time

	mu     sync.RWMutex
	closed bool
}

// SaveRequest carries the caller-owned part of a checkpoint.
// Histories and metadata are deep-copied when Save is called; the caller
// may keep mutating its own slices afterwards.
type SaveRequest struct {
	EpisodeID  string
	StepNumber int64

	ActionHistory      []any
	ObservationHistory []any
	RewardHistory      []float64

	Metadata map[string]any
}

// LoadResult is the outcome of a successful Load.
type LoadResult struct {
	// Record is the decoded checkpoint.
	Record *state.Record

	// Applied reports whether the saved engine state was restored onto the
	// game. False for history-only checkpoints, games without a saver, and
	// loaders that failed.
	Applied bool

	// Entry is the catalog entry the record was loaded from.
	Entry catalog.Entry
}

// New creates a Manager for the storage address.
//
// The address may be a local path, a file:// URL, or a cns:// URL (mapped
// to a local temp directory). Any other scheme fails with
// errors.ErrUnsupportedScheme and creates nothing.
//
// Example:
//
//	mgr, err := gamesave.New(ctx, "./checkpoints",
//	    gamesave.WithMaxCheckpoints(5),
//	    gamesave.WithLogger(logger),
//	)
//	if err != nil {
//	    return err
//	}
//	defer mgr.Close()
func New(ctx context.Context, address string, opts ...Option) (*Manager, error) {
	cfg := defaultManagerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.savers == nil {
		cfg.savers = saver.DefaultRegistry()
	}

	loc, err := storage.Resolve(address, cfg.logger)
	if err != nil {
		return nil, fmt.Errorf("resolve storage: %w", err)
	}

	blobs := cfg.blobs
	if blobs == nil {
		fs, err := storage.NewFileStore(loc.CheckpointsPath(), cfg.compressionLevel)
		if err != nil {
			return nil, gserrors.New(gserrors.KindInvalidArgument, "open", "compression_level", err)
		}
		blobs = fs
	}

	cat := cfg.catalog
	owns := false
	if cat == nil {
		cat, err = openCatalog(ctx, cfg, loc)
		if err != nil {
			return nil, err
		}
		owns = true
	}

	return &Manager{
		loc:         loc,
		blobs:       blobs,
		catalog:     cat,
		ownsCatalog: owns,
		savers:      cfg.savers,
		policy:      retention.Policy{MaxCheckpoints: cfg.maxCheckpoints},
		writeRetry:  cfg.writeRetry,
		logger:      cfg.logger,
		metrics:     cfg.metrics,
		spans:       cfg.spans,
		now:         cfg.now,
	}, nil
}

// Open creates a Manager from validated settings. Options are applied after
// the settings, so they take precedence.
func Open(ctx context.Context, s config.Settings, opts ...Option) (*Manager, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	all := append(settingsOptions(s), opts...)
	return New(ctx, s.StoragePath, all...)
}

func openCatalog(ctx context.Context, cfg managerConfig, loc storage.Location) (catalog.Catalog, error) {
	switch cfg.catalogKind {
	case config.CatalogJSON:
		path := filepath.Join(loc.MetadataPath(), catalog.IndexFileName)
		c, err := catalog.NewIndexCatalog(ctx, path, catalog.WithLockTimeout(cfg.lockTimeout))
		if err != nil {
			return nil, fmt.Errorf("open catalog: %w", err)
		}
		return c, nil
	case config.CatalogSQLite:
		path := filepath.Join(loc.MetadataPath(), catalog.SQLiteFileName)
		c, err := catalog.NewSQLiteCatalog(ctx, path)
		if err != nil {
			return nil, gserrors.New(gserrors.KindCatalog, "open", path, err)
		}
		return c, nil
	default:
		return nil, gserrors.New(gserrors.KindInvalidArgument, "open", "catalog",
			fmt.Errorf("unknown catalog kind %q", cfg.catalogKind))
	}
}

// Location returns the resolved storage location.
func (m *Manager) Location() storage.Location {
	return m.loc
}

// Save captures the game and writes a checkpoint, returning its id.
//
// Screen, save-state and memory capture are best effort: a failure is
// logged and the record is written with that field empty. The blob write
// is the only step that makes Save fail; when it does, no catalog entry is
// created. An unrecognised game type fails with errors.ErrNoSaver.
//
// After a successful write, checkpoints of the episode beyond the
// retention limit are evicted. Eviction failures are logged, not returned.
func (m *Manager) Save(ctx context.Context, game any, req SaveRequest) (string, error) {
	if req.EpisodeID == "" {
		return "", gserrors.New(gserrors.KindInvalidArgument, "save", "episode_id", errors.New("empty episode id"))
	}
	if req.StepNumber < 0 {
		return "", gserrors.New(gserrors.KindInvalidArgument, "save", "step_number",
			fmt.Errorf("negative step %d", req.StepNumber))
	}

	// Copy before the first suspension point.
	actions := state.CloneValues(req.ActionHistory)
	observations := state.CloneValues(req.ObservationHistory)
	rewards := append([]float64(nil), req.RewardHistory...)
	metadata := state.CloneMap(req.Metadata)

	ctx, span := m.spans.StartSaveSpan(ctx, req.EpisodeID, req.StepNumber)
	elapsed := observability.TimedOperation()

	m.mu.Lock()
	defer m.mu.Unlock()

	id, size, gameType, err := m.save(ctx, game, req, actions, observations, rewards, metadata)
	duration := time.Duration(elapsed() * float64(time.Millisecond))
	m.metrics.RecordSave(ctx, string(gameType), size, duration, err)
	m.spans.EndSpanWithError(span, err)
	if err != nil {
		return "", err
	}

	observability.LogCheckpointSaved(m.logger, id, req.EpisodeID, req.StepNumber, size, elapsed())
	return id, nil
}

func (m *Manager) save(
	ctx context.Context,
	game any,
	req SaveRequest,
	actions, observations []any,
	rewards []float64,
	metadata map[string]any,
) (string, int64, state.GameType, error) {
	if m.closed {
		return "", 0, "", ErrClosed
	}
	observability.LogSaveStart(m.logger, req.EpisodeID, req.StepNumber)

	gameType := saver.Detect(game)
	sv, ok := m.savers.Get(gameType)
	if !ok {
		err := gserrors.New(gserrors.KindNoSaver, "save", string(gameType), nil)
		observability.LogSaveFailed(m.logger, req.EpisodeID, req.StepNumber, "", err)
		return "", 0, gameType, err
	}

	screen, err := saver.CaptureScreen(ctx, game)
	if err != nil {
		m.degraded(ctx, req.EpisodeID, gameType, "screen", err)
	}

	saveState, err := sv.SaveState(ctx, game)
	if err != nil {
		m.degraded(ctx, req.EpisodeID, gameType, "save_state", err)
	}
	if saveState == nil {
		saveState = []byte{}
	}

	memory, err := sv.MemorySnapshot(ctx, game)
	if err != nil {
		m.degraded(ctx, req.EpisodeID, gameType, "memory_snapshot", err)
		memory = nil
	}

	if metadata == nil {
		metadata = map[string]any{}
	}
	if rewards == nil {
		rewards = []float64{}
	}

	now := m.now()
	record := &state.Record{
		GameType:           gameType,
		GameName:           saver.GameName(game),
		EpisodeID:          req.EpisodeID,
		StepNumber:         req.StepNumber,
		Timestamp:          unixSeconds(now),
		ScreenData:         screen,
		GameMemory:         memory,
		SaveState:          saveState,
		ActionHistory:      nonNilValues(actions),
		ObservationHistory: nonNilValues(observations),
		RewardHistory:      rewards,
		Metadata:           metadata,
	}

	id := checkpointID(req.EpisodeID, req.StepNumber, now)
	key := storage.KeyFor(id)

	payload, err := codec.Encode(record)
	if err != nil {
		err = gserrors.New(gserrors.KindBlobWrite, "encode", key, err)
		observability.LogSaveFailed(m.logger, req.EpisodeID, req.StepNumber, key, err)
		return "", 0, gameType, err
	}

	info, attempts, err := gserrors.Retry(ctx, m.writeRetry, func(ctx context.Context) (storage.BlobInfo, error) {
		return m.blobs.Put(ctx, key, payload)
	})
	if attempts > 1 {
		m.spans.AddSpanEvent(ctx, "blob_write_retried", attribute.Int("attempts", attempts))
	}
	if err != nil {
		observability.LogSaveFailed(m.logger, req.EpisodeID, req.StepNumber, key, err)
		return "", 0, gameType, err
	}
	m.spans.AddSpanEvent(ctx, "blob_written", attribute.Int64("size_bytes", info.Size))

	entry := catalog.Entry{
		CheckpointID: id,
		EpisodeID:    record.EpisodeID,
		StepNumber:   record.StepNumber,
		GameType:     record.GameType,
		GameName:     record.GameName,
		Timestamp:    record.Timestamp,
		Metadata:     metadata,
		BlobKey:      key,
		FilePath:     info.Path,
		CreatedAt:    unixSeconds(now),
		FileSize:     info.Size,
		Checksum:     info.Checksum,
	}
	if err := m.catalog.Put(ctx, entry); err != nil {
		// Leave no orphan blob behind a failed catalog insert.
		if _, derr := m.blobs.Delete(context.WithoutCancel(ctx), key); derr != nil {
			err = errors.Join(err, derr)
		}
		observability.LogSaveFailed(m.logger, req.EpisodeID, req.StepNumber, key, err)
		return "", 0, gameType, err
	}

	if _, err := m.cleanup(ctx, req.EpisodeID); err != nil {
		observability.LogCleanupFailed(m.logger, req.EpisodeID, err)
	}

	return id, info.Size, gameType, nil
}

func (m *Manager) degraded(ctx context.Context, episodeID string, gameType state.GameType, capability string, err error) {
	observability.LogCaptureDegraded(m.logger, episodeID, capability, err)
	m.metrics.RecordDegradedCapture(ctx, string(gameType), capability)
}

// Load reads a checkpoint and, when possible, applies its save state onto
// game. game may be nil to read the record only.
//
// Fails with ErrNotFound for an unknown id, errors.ErrDanglingEntry when the
// catalog entry's blob is missing, and errors.ErrChecksumMismatch when the
// blob does not match its recorded checksum. A loader failure is not an
// error: the record is returned with Applied false.
func (m *Manager) Load(ctx context.Context, checkpointID string, game any) (*LoadResult, error) {
	ctx, span := m.spans.StartLoadSpan(ctx, checkpointID)
	elapsed := observability.TimedOperation()

	m.mu.RLock()
	defer m.mu.RUnlock()

	res, err := m.load(ctx, checkpointID, game)
	duration := time.Duration(elapsed() * float64(time.Millisecond))

	var gameType string
	applied := false
	if res != nil {
		gameType = string(res.Record.GameType)
		applied = res.Applied
	}
	m.metrics.RecordLoad(ctx, gameType, applied, duration, err)
	m.spans.EndSpanWithError(span, err)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			observability.LogLoadFailed(m.logger, checkpointID, err)
		}
		return nil, err
	}

	observability.LogCheckpointLoaded(m.logger, checkpointID, applied, elapsed())
	return res, nil
}

func (m *Manager) load(ctx context.Context, checkpointID string, game any) (*LoadResult, error) {
	if m.closed {
		return nil, ErrClosed
	}

	entry, err := m.catalog.Get(ctx, checkpointID)
	if err != nil {
		return nil, err
	}

	key := entry.BlobKey
	if key == "" {
		key = storage.KeyFor(checkpointID)
	}

	if entry.Checksum == "" {
		return nil, gserrors.New(gserrors.KindCatalog, "load", checkpointID, errors.New("entry has no checksum"))
	}

	payload, err := m.blobs.GetVerified(ctx, key, entry.Checksum)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, gserrors.New(gserrors.KindDanglingEntry, "load", key, err)
	}
	if err != nil {
		return nil, err
	}

	record, err := codec.Decode(payload)
	if err != nil {
		return nil, gserrors.New(gserrors.KindBlobRead, "decode", key, err)
	}

	res := &LoadResult{Record: record, Entry: entry}
	if game == nil || !record.HasSaveState() {
		return res, nil
	}
	sv, ok := m.savers.Get(record.GameType)
	if !ok {
		return res, nil
	}

	applied, err := sv.LoadState(ctx, game, record.SaveState)
	if err != nil {
		m.degraded(ctx, record.EpisodeID, record.GameType, "load_state", err)
		return res, nil
	}
	res.Applied = applied
	return res, nil
}

// List returns the checkpoints of episodeID, newest first. An empty
// episodeID lists every checkpoint under the root.
func (m *Manager) List(ctx context.Context, episodeID string) ([]catalog.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}
	return m.catalog.List(ctx, catalog.Filter{EpisodeID: episodeID})
}

// Latest returns the checkpoint of episodeID with the highest step number.
// Among checkpoints sharing that step the newest wins.
// Fails with ErrNoCheckpoints when the episode has none.
func (m *Manager) Latest(ctx context.Context, episodeID string) (catalog.Entry, error) {
	if episodeID == "" {
		return catalog.Entry{}, gserrors.New(gserrors.KindInvalidArgument, "latest", "episode_id",
			errors.New("empty episode id"))
	}

	entries, err := m.List(ctx, episodeID)
	if err != nil {
		return catalog.Entry{}, err
	}
	if len(entries) == 0 {
		return catalog.Entry{}, fmt.Errorf("%w: %s", ErrNoCheckpoints, episodeID)
	}

	latest := entries[0]
	for _, e := range entries[1:] {
		if e.StepNumber > latest.StepNumber {
			latest = e
		}
	}
	return latest, nil
}

// Delete removes a checkpoint's catalog entry and blob. It reports whether
// the checkpoint existed; deleting an unknown id returns (false, nil).
func (m *Manager) Delete(ctx context.Context, checkpointID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false, ErrClosed
	}

	entry, err := m.catalog.Get(ctx, checkpointID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return m.deleteEntry(ctx, entry)
}

// deleteEntry removes the catalog row first, so a crash in between leaves
// an orphan blob rather than a dangling entry.
func (m *Manager) deleteEntry(ctx context.Context, entry catalog.Entry) (bool, error) {
	removed, err := m.catalog.Delete(ctx, entry.CheckpointID)
	if err != nil {
		return false, err
	}

	key := entry.BlobKey
	if key == "" {
		key = storage.KeyFor(entry.CheckpointID)
	}
	if _, err := m.blobs.Delete(ctx, key); err != nil {
		return removed, fmt.Errorf("delete blob of %s: %w", entry.CheckpointID, err)
	}
	return removed, nil
}

// Cleanup evicts the oldest checkpoints of episodeID beyond the retention
// limit and returns how many were removed. It is a no-op when the episode
// is at or under the limit, and never touches other episodes.
func (m *Manager) Cleanup(ctx context.Context, episodeID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrClosed
	}
	return m.cleanup(ctx, episodeID)
}

func (m *Manager) cleanup(ctx context.Context, episodeID string) (int, error) {
	if !m.policy.Enabled() {
		return 0, nil
	}

	ctx, span := m.spans.StartCleanupSpan(ctx, episodeID)

	entries, err := m.catalog.List(ctx, catalog.Filter{EpisodeID: episodeID})
	if err != nil {
		m.spans.EndSpanWithError(span, err)
		return 0, err
	}

	var (
		evicted int
		errs    []error
	)
	for _, e := range m.policy.Select(episodeID, entries) {
		if _, err := m.deleteEntry(ctx, e); err != nil {
			observability.LogEvictionError(m.logger, e.CheckpointID, err)
			errs = append(errs, err)
			continue
		}
		observability.LogEviction(m.logger, e.CheckpointID, episodeID)
		evicted++
	}

	m.metrics.RecordEvictions(ctx, evicted)
	err = errors.Join(errs...)
	m.spans.EndSpanWithError(span, err)
	return evicted, err
}

// Close releases the catalog if the Manager created it. Close is
// idempotent; other operations fail with ErrClosed afterwards.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	if m.ownsCatalog {
		return m.catalog.Close()
	}
	return nil
}

// checkpointID formats "{episode}_step_{step}_{unix seconds}". Two saves of
// the same step within one second share an id; the later one replaces the
// earlier.
func checkpointID(episodeID string, step int64, now time.Time) string {
	return fmt.Sprintf("%s_step_%d_%d", episodeID, step, now.Unix())
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func nonNilValues(v []any) []any {
	if v == nil {
		return []any{}
	}
	return v
}
