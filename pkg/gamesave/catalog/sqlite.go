package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/randalmurphal/gamesave/pkg/gamesave/codec"
	gserrors "github.com/randalmurphal/gamesave/pkg/gamesave/errors"
	"github.com/randalmurphal/gamesave/pkg/gamesave/state"
)

// SQLiteFileName is the name of the SQLite catalog under the metadata directory.
const SQLiteFileName = "checkpoint_index.db"

// SQLiteCatalog persists the catalog in SQLite.
// SQLite's own locking serializes writers across processes.
type SQLiteCatalog struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteCatalog opens (creating if needed) a SQLite catalog.
// The path should be a file path or ":memory:" for testing.
func NewSQLiteCatalog(ctx context.Context, path string) (*SQLiteCatalog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if path == ":memory:" {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent read performance
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS checkpoints (
			checkpoint_id TEXT PRIMARY KEY,
			episode_id TEXT NOT NULL,
			step_number INTEGER NOT NULL,
			game_type TEXT NOT NULL,
			game_name TEXT NOT NULL,
			timestamp REAL NOT NULL,
			metadata TEXT NOT NULL,
			blob_key TEXT NOT NULL,
			file_path TEXT NOT NULL,
			created_at REAL NOT NULL,
			file_size INTEGER NOT NULL,
			checksum TEXT NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	if _, err := db.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS idx_checkpoints_episode_id
		ON checkpoints(episode_id)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create index: %w", err)
	}

	return &SQLiteCatalog{db: db}, nil
}

// Put implements Catalog.
func (s *SQLiteCatalog) Put(ctx context.Context, e Entry) error {
	meta, err := codec.MarshalJSONSafe(e.Metadata)
	if err != nil {
		return gserrors.New(gserrors.KindCatalog, "put", e.CheckpointID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (
			checkpoint_id, episode_id, step_number, game_type, game_name, timestamp,
			metadata, blob_key, file_path, created_at, file_size, checksum
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(checkpoint_id) DO UPDATE SET
			episode_id = excluded.episode_id,
			step_number = excluded.step_number,
			game_type = excluded.game_type,
			game_name = excluded.game_name,
			timestamp = excluded.timestamp,
			metadata = excluded.metadata,
			blob_key = excluded.blob_key,
			file_path = excluded.file_path,
			created_at = excluded.created_at,
			file_size = excluded.file_size,
			checksum = excluded.checksum
	`, e.CheckpointID, e.EpisodeID, e.StepNumber, string(e.GameType), e.GameName, e.Timestamp,
		string(meta), e.BlobKey, e.FilePath, e.CreatedAt, e.FileSize, e.Checksum)
	if err != nil {
		return gserrors.New(gserrors.KindCatalog, "put", e.CheckpointID, err)
	}
	return nil
}

const selectColumns = `
	checkpoint_id, episode_id, step_number, game_type, game_name, timestamp,
	metadata, blob_key, file_path, created_at, file_size, checksum`

// Get implements Catalog.
func (s *SQLiteCatalog) Get(ctx context.Context, checkpointID string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return Entry{}, ErrClosed
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+`
		FROM checkpoints WHERE checkpoint_id = ?`, checkpointID)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, gserrors.New(gserrors.KindCatalog, "get", checkpointID, err)
	}
	return e, nil
}

// List implements Catalog.
func (s *SQLiteCatalog) List(ctx context.Context, filter Filter) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	limit := -1
	if filter.Limit > 0 {
		limit = filter.Limit
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+selectColumns+`
		FROM checkpoints
		WHERE ? = '' OR episode_id = ?
		ORDER BY created_at DESC, step_number DESC, checkpoint_id DESC
		LIMIT ?
	`, filter.EpisodeID, filter.EpisodeID, limit)
	if err != nil {
		return nil, gserrors.New(gserrors.KindCatalog, "list", filter.EpisodeID, err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, gserrors.New(gserrors.KindCatalog, "list", filter.EpisodeID, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, gserrors.New(gserrors.KindCatalog, "list", filter.EpisodeID, err)
	}
	return entries, nil
}

// Delete implements Catalog.
func (s *SQLiteCatalog) Delete(ctx context.Context, checkpointID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, ErrClosed
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE checkpoint_id = ?`, checkpointID)
	if err != nil {
		return false, gserrors.New(gserrors.KindCatalog, "delete", checkpointID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, gserrors.New(gserrors.KindCatalog, "delete", checkpointID, err)
	}
	return n > 0, nil
}

// Close implements Catalog.
func (s *SQLiteCatalog) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.db.Close()
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (Entry, error) {
	var (
		e        Entry
		gameType string
		meta     string
	)
	if err := row.Scan(&e.CheckpointID, &e.EpisodeID, &e.StepNumber, &gameType, &e.GameName,
		&e.Timestamp, &meta, &e.BlobKey, &e.FilePath, &e.CreatedAt, &e.FileSize, &e.Checksum); err != nil {
		return Entry{}, err
	}
	e.GameType = state.GameType(gameType)

	decoded, err := codec.UnmarshalJSONSafe([]byte(meta))
	if err != nil {
		return Entry{}, fmt.Errorf("decode metadata: %w", err)
	}
	if decoded != nil {
		m, ok := decoded.(map[string]any)
		if !ok {
			return Entry{}, fmt.Errorf("decode metadata: expected object, got %T", decoded)
		}
		if len(m) > 0 {
			e.Metadata = m
		}
	}
	return e, nil
}
