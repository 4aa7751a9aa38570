package storage

import (
	"compress/gzip"
	"context"
	"sync"

	gserrors "github.com/randalmurphal/gamesave/pkg/gamesave/errors"
)

// MemoryStore is an in-memory blob store for testing.
// Payloads are compressed exactly as FileStore does, so checksums match.
// Data is lost when the process exits.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte // key -> compressed bytes
}

// NewMemoryStore creates a new in-memory blob store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		blobs: make(map[string][]byte),
	}
}

// Path implements BlobStore.
func (m *MemoryStore) Path(key string) string {
	return "mem://" + KeyFor(key) + BlobExt
}

// Put implements BlobStore.
func (m *MemoryStore) Put(ctx context.Context, key string, data []byte) (BlobInfo, error) {
	if err := ctx.Err(); err != nil {
		return BlobInfo{}, gserrors.New(gserrors.KindBlobWrite, "put", key, err)
	}
	compressed, err := Compress(data, gzip.DefaultCompression)
	if err != nil {
		return BlobInfo{}, gserrors.New(gserrors.KindBlobWrite, "put", key, err)
	}

	m.mu.Lock()
	m.blobs[KeyFor(key)] = compressed
	m.mu.Unlock()

	return BlobInfo{
		Key:      key,
		Path:     m.Path(key),
		Size:     int64(len(compressed)),
		Checksum: Checksum(compressed),
	}, nil
}

// Get implements BlobStore.
func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	return m.GetVerified(ctx, key, "")
}

// GetVerified implements BlobStore.
func (m *MemoryStore) GetVerified(ctx context.Context, key, checksum string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, gserrors.New(gserrors.KindBlobRead, "get", key, err)
	}

	m.mu.RLock()
	raw, ok := m.blobs[KeyFor(key)]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return verifyAndDecompress(key, raw, checksum)
}

// Delete implements BlobStore.
func (m *MemoryStore) Delete(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	k := KeyFor(key)
	if _, ok := m.blobs[k]; !ok {
		return false, nil
	}
	delete(m.blobs, k)
	return true, nil
}

// Corrupt flips one bit of the stored bytes under key. Useful for testing
// integrity checks. Reports whether the key existed.
func (m *MemoryStore) Corrupt(key string, offset int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	raw, ok := m.blobs[KeyFor(key)]
	if !ok || len(raw) == 0 {
		return false
	}
	raw[offset%len(raw)] ^= 0x01
	return true
}

// Len returns the number of stored blobs.
// Useful for testing.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}
