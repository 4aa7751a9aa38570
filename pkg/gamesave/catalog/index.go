package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/randalmurphal/gamesave/pkg/gamesave/codec"
	gserrors "github.com/randalmurphal/gamesave/pkg/gamesave/errors"
	"github.com/randalmurphal/gamesave/pkg/gamesave/state"
	"github.com/randalmurphal/gamesave/pkg/gamesave/storage"
)

// IndexFileName is the name of the JSON index under the metadata directory.
const IndexFileName = "checkpoint_index.json"

// DefaultLockTimeout bounds how long an operation waits for the index lock.
const DefaultLockTimeout = 10 * time.Second

const lockRetryDelay = 5 * time.Millisecond

// indexDocument is the on-disk shape of the JSON index.
type indexDocument struct {
	Checkpoints map[string]indexRow `json:"checkpoints"`
	Metadata    indexMetadata       `json:"metadata"`
}

type indexMetadata struct {
	CreatedAt float64 `json:"created_at"`
}

type indexRow struct {
	Metadata  rowMetadata `json:"metadata"`
	BlobKey   string      `json:"blob_key"`
	FilePath  string      `json:"file_path"`
	CreatedAt float64     `json:"created_at"`
	FileSize  int64       `json:"file_size"`
	Checksum  string      `json:"checksum"`
}

type rowMetadata struct {
	EpisodeID  string  `json:"episode_id"`
	StepNumber int64   `json:"step_number"`
	GameType   string  `json:"game_type"`
	GameName   string  `json:"game_name"`
	Timestamp  float64 `json:"timestamp"`

	// Extra holds caller metadata in JSON-safe form.
	Extra map[string]any `json:"extra,omitempty"`
}

// IndexCatalog keeps the catalog as a single JSON document that is read
// fully and rewritten fully on every mutation.
//
// Every read-modify-write holds an exclusive file lock on a sibling
// ".lock" file and reloads the document from disk first, so several
// IndexCatalog instances (in one or many processes) can share a storage
// root without losing each other's writes. Reads hold a shared lock.
type IndexCatalog struct {
	path        string
	lock        *flock.Flock
	lockTimeout time.Duration
	now         func() time.Time

	mu     sync.Mutex
	doc    *indexDocument
	closed bool
}

// IndexOption configures an IndexCatalog.
type IndexOption func(*IndexCatalog)

// WithLockTimeout bounds how long operations wait for the index lock.
// Default: 10s
func WithLockTimeout(d time.Duration) IndexOption {
	return func(c *IndexCatalog) {
		if d > 0 {
			c.lockTimeout = d
		}
	}
}

// NewIndexCatalog opens the JSON index at path, creating it (and its
// directory) if absent. A corrupt existing index is an error.
func NewIndexCatalog(ctx context.Context, path string, opts ...IndexOption) (*IndexCatalog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create index directory: %w", err)
	}

	c := &IndexCatalog{
		path:        path,
		lock:        flock.New(path + ".lock"),
		lockTimeout: DefaultLockTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	err := c.withFileLock(ctx, true, func() error {
		doc, exists, err := c.read()
		if err != nil {
			return gserrors.New(gserrors.KindCatalog, "open", c.path, err)
		}
		c.doc = doc
		if !exists {
			if err := c.write(doc); err != nil {
				return gserrors.New(gserrors.KindCatalog, "open", c.path, err)
			}
		}
		return nil
	})
	if err != nil {
		c.lock.Close()
		return nil, err
	}
	return c, nil
}

// Path returns the index file path.
func (c *IndexCatalog) Path() string {
	return c.path
}

// Put implements Catalog.
func (c *IndexCatalog) Put(ctx context.Context, entry Entry) error {
	row := rowFromEntry(entry)
	return c.mutate(ctx, "put", func(doc *indexDocument) (bool, error) {
		doc.Checkpoints[entry.CheckpointID] = row
		return true, nil
	})
}

// Get implements Catalog.
func (c *IndexCatalog) Get(ctx context.Context, checkpointID string) (Entry, error) {
	var entry Entry
	err := c.view(ctx, "get", func(doc *indexDocument) error {
		row, ok := doc.Checkpoints[checkpointID]
		if !ok {
			return ErrNotFound
		}
		var err error
		entry, err = entryFromRow(checkpointID, row)
		return err
	})
	return entry, err
}

// List implements Catalog.
func (c *IndexCatalog) List(ctx context.Context, filter Filter) ([]Entry, error) {
	var entries []Entry
	err := c.view(ctx, "list", func(doc *indexDocument) error {
		entries = make([]Entry, 0, len(doc.Checkpoints))
		for id, row := range doc.Checkpoints {
			if filter.EpisodeID != "" && row.Metadata.EpisodeID != filter.EpisodeID {
				continue
			}
			e, err := entryFromRow(id, row)
			if err != nil {
				return err
			}
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return applyFilter(entries, filter), nil
}

// Delete implements Catalog.
func (c *IndexCatalog) Delete(ctx context.Context, checkpointID string) (bool, error) {
	var deleted bool
	err := c.mutate(ctx, "delete", func(doc *indexDocument) (bool, error) {
		if _, ok := doc.Checkpoints[checkpointID]; !ok {
			return false, nil
		}
		delete(doc.Checkpoints, checkpointID)
		deleted = true
		return true, nil
	})
	return deleted, err
}

// Close implements Catalog.
func (c *IndexCatalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.doc = nil
	return c.lock.Close()
}

// Len returns the number of entries in the in-memory copy of the index.
// Useful for testing.
func (c *IndexCatalog) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.doc == nil {
		return 0
	}
	return len(c.doc.Checkpoints)
}

// view runs fn against a freshly loaded document under a shared lock.
func (c *IndexCatalog) view(ctx context.Context, op string, fn func(*indexDocument) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	return c.withFileLock(ctx, false, func() error {
		doc, _, err := c.read()
		if err != nil {
			return gserrors.New(gserrors.KindCatalog, op, c.path, err)
		}
		c.doc = doc
		return fn(doc)
	})
}

// mutate is the index's read-modify-write critical section: exclusive lock,
// reload from disk, apply fn, rewrite the whole document if fn changed it.
func (c *IndexCatalog) mutate(ctx context.Context, op string, fn func(*indexDocument) (bool, error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	return c.withFileLock(ctx, true, func() error {
		doc, _, err := c.read()
		if err != nil {
			return gserrors.New(gserrors.KindCatalog, op, c.path, err)
		}
		changed, err := fn(doc)
		if err != nil {
			return err
		}
		if changed {
			if err := c.write(doc); err != nil {
				return gserrors.New(gserrors.KindCatalog, op, c.path, err)
			}
		}
		c.doc = doc
		return nil
	})
}

// withFileLock runs fn while holding the index file lock. The lock is
// released on every return path.
func (c *IndexCatalog) withFileLock(ctx context.Context, exclusive bool, fn func() error) error {
	lctx, cancel := context.WithTimeout(ctx, c.lockTimeout)
	defer cancel()

	var (
		locked bool
		err    error
	)
	if exclusive {
		locked, err = c.lock.TryLockContext(lctx, lockRetryDelay)
	} else {
		locked, err = c.lock.TryRLockContext(lctx, lockRetryDelay)
	}
	if err != nil {
		return gserrors.New(gserrors.KindCatalog, "lock", c.path, err)
	}
	if !locked {
		return gserrors.New(gserrors.KindCatalog, "lock", c.path, errors.New("index lock not acquired"))
	}
	defer c.lock.Unlock()

	return fn()
}

// read loads the document from disk. A missing file yields a fresh document.
func (c *IndexCatalog) read() (*indexDocument, bool, error) {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return c.freshDocument(), false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read index: %w", err)
	}

	var doc indexDocument
	if err := decodeIndex(data, &doc); err != nil {
		return nil, true, fmt.Errorf("parse index %s: %w", c.path, err)
	}
	if doc.Checkpoints == nil {
		doc.Checkpoints = make(map[string]indexRow)
	}
	return &doc, true, nil
}

func (c *IndexCatalog) write(doc *indexDocument) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	return storage.WriteFileAtomic(c.path, data)
}

func (c *IndexCatalog) freshDocument() *indexDocument {
	return &indexDocument{
		Checkpoints: make(map[string]indexRow),
		Metadata:    indexMetadata{CreatedAt: unixSeconds(c.now())},
	}
}

func decodeIndex(data []byte, doc *indexDocument) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(doc)
}

func rowFromEntry(e Entry) indexRow {
	return indexRow{
		Metadata: rowMetadata{
			EpisodeID:  e.EpisodeID,
			StepNumber: e.StepNumber,
			GameType:   string(e.GameType),
			GameName:   e.GameName,
			Timestamp:  e.Timestamp,
			Extra:      codec.SafeMap(e.Metadata),
		},
		BlobKey:   e.BlobKey,
		FilePath:  e.FilePath,
		CreatedAt: e.CreatedAt,
		FileSize:  e.FileSize,
		Checksum:  e.Checksum,
	}
}

func entryFromRow(id string, row indexRow) (Entry, error) {
	meta, err := codec.RestoreMap(row.Metadata.Extra)
	if err != nil {
		return Entry{}, fmt.Errorf("decode metadata of %s: %w", id, err)
	}
	return Entry{
		CheckpointID: id,
		EpisodeID:    row.Metadata.EpisodeID,
		StepNumber:   row.Metadata.StepNumber,
		GameType:     state.GameType(row.Metadata.GameType),
		GameName:     row.Metadata.GameName,
		Timestamp:    row.Metadata.Timestamp,
		Metadata:     meta,
		BlobKey:      row.BlobKey,
		FilePath:     row.FilePath,
		CreatedAt:    row.CreatedAt,
		FileSize:     row.FileSize,
		Checksum:     row.Checksum,
	}, nil
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
