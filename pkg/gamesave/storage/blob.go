package storage

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	gserrors "github.com/randalmurphal/gamesave/pkg/gamesave/errors"
)

// BlobExt is the file extension of stored blobs.
const BlobExt = ".blob"

// ErrNotFound indicates no blob exists under a key.
var ErrNotFound = errors.New("blob not found")

// BlobStore keeps compressed byte payloads under string keys.
// Implementations must be safe for concurrent use.
type BlobStore interface {
	// Put compresses data and stores it under key, replacing any previous
	// value. Either the full compressed payload is stored or nothing changes.
	Put(ctx context.Context, key string, data []byte) (BlobInfo, error)

	// Get returns the decompressed payload stored under key.
	// Returns ErrNotFound if the key is absent. Corrupt compressed data
	// is an error, never a truncated result.
	Get(ctx context.Context, key string) ([]byte, error)

	// GetVerified is Get with a checksum check on the stored (compressed)
	// bytes before decompression. Returns an error matching
	// errors.ErrChecksumMismatch on mismatch.
	GetVerified(ctx context.Context, key, checksum string) ([]byte, error)

	// Delete removes the value under key. Reports whether something was
	// removed; a missing key is not an error.
	Delete(ctx context.Context, key string) (bool, error)

	// Path returns the location a key is stored at, for catalog rows.
	Path(key string) string
}

// BlobInfo describes a stored payload.
type BlobInfo struct {
	Key      string
	Path     string
	Size     int64  // compressed size in bytes
	Checksum string // hex sha256 of the compressed bytes
}

// KeyFor derives a filesystem-safe blob key from a checkpoint id.
// Ids made only of [A-Za-z0-9._-] are used as is. Otherwise every other
// character is replaced with '_' and "-" plus the first 16 hex digits of
// the id's sha256 is appended, so "a b" and "a_b" get distinct keys.
// KeyFor(KeyFor(id)) == KeyFor(id).
func KeyFor(checkpointID string) string {
	var b strings.Builder
	b.Grow(len(checkpointID) + 17)
	changed := false
	for _, r := range checkpointID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
			changed = true
		}
	}
	if checkpointID == "" || strings.Trim(checkpointID, ".") == "" {
		changed = true
	}
	if !changed {
		return checkpointID
	}
	sum := sha256.Sum256([]byte(checkpointID))
	b.WriteByte('-')
	b.WriteString(hex.EncodeToString(sum[:8]))
	return b.String()
}

// Checksum returns the hex sha256 of data.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Compress gzips data at the given level.
func Compress(data []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, fmt.Errorf("create gzip writer: %w", err)
	}
	if _, err := zw.Write(data); err != nil {
		return nil, fmt.Errorf("compress: %w", err)
	}
	// Close flushes the footer; without it the stream is truncated.
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close gzip writer: %w", err)
	}
	return buf.Bytes(), nil
}

// Decompress reverses Compress. A truncated or corrupt stream is an error.
func Decompress(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create gzip reader: %w", err)
	}
	defer zr.Close()

	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("decompress: %w", err)
	}
	return out, nil
}

// FileStore stores blobs as files under a checkpoints directory.
type FileStore struct {
	dir   string
	level int
}

// NewFileStore creates a file-backed blob store rooted at dir, creating the
// directory if needed. level is a compress/gzip level.
func NewFileStore(dir string, level int) (*FileStore, error) {
	if level < gzip.HuffmanOnly || level > gzip.BestCompression {
		return nil, fmt.Errorf("invalid gzip level %d", level)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob directory: %w", err)
	}
	return &FileStore{dir: dir, level: level}, nil
}

// Path implements BlobStore.
func (s *FileStore) Path(key string) string {
	return filepath.Join(s.dir, KeyFor(key)+BlobExt)
}

// Put implements BlobStore. The payload is written to a temp file in the
// same directory, synced, then renamed over the final name.
func (s *FileStore) Put(ctx context.Context, key string, data []byte) (BlobInfo, error) {
	if err := ctx.Err(); err != nil {
		return BlobInfo{}, gserrors.New(gserrors.KindBlobWrite, "put", key, err)
	}

	compressed, err := Compress(data, s.level)
	if err != nil {
		return BlobInfo{}, gserrors.New(gserrors.KindBlobWrite, "put", key, err)
	}

	path := s.Path(key)
	if err := WriteFileAtomic(path, compressed); err != nil {
		return BlobInfo{}, gserrors.New(gserrors.KindBlobWrite, "put", key, err)
	}

	return BlobInfo{
		Key:      key,
		Path:     path,
		Size:     int64(len(compressed)),
		Checksum: Checksum(compressed),
	}, nil
}

// Get implements BlobStore.
func (s *FileStore) Get(ctx context.Context, key string) ([]byte, error) {
	return s.GetVerified(ctx, key, "")
}

// GetVerified implements BlobStore. An empty checksum skips verification.
func (s *FileStore) GetVerified(ctx context.Context, key, checksum string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, gserrors.New(gserrors.KindBlobRead, "get", key, err)
	}

	raw, err := os.ReadFile(s.Path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, gserrors.New(gserrors.KindBlobRead, "get", key, err)
	}
	return verifyAndDecompress(key, raw, checksum)
}

// Delete implements BlobStore.
func (s *FileStore) Delete(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	err := os.Remove(s.Path(key))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("delete blob %s: %w", key, err)
	}
	return true, nil
}

func verifyAndDecompress(key string, raw []byte, checksum string) ([]byte, error) {
	if checksum != "" {
		if got := Checksum(raw); got != checksum {
			return nil, gserrors.New(gserrors.KindChecksumMismatch, "get", key,
				fmt.Errorf("stored %s, computed %s", checksum, got))
		}
	}
	data, err := Decompress(raw)
	if err != nil {
		return nil, gserrors.New(gserrors.KindBlobRead, "get", key, err)
	}
	return data, nil
}

// WriteFileAtomic writes data to path via a uniquely named temp file and a
// rename, so readers see either the old file or the complete new one.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp := filepath.Join(dir, "."+filepath.Base(path)+"."+uuid.NewString()+".tmp")

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
