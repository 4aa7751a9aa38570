// Package storage turns a storage address into a local directory and keeps
// compressed checkpoint blobs inside it.
//
// On-disk layout under a resolved root:
//
//	<root>/
//	  checkpoints/<key>.blob          gzip-compressed binary envelope
//	  metadata/checkpoint_index.json  catalog index
package storage

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	gserrors "github.com/randalmurphal/gamesave/pkg/gamesave/errors"
	"github.com/randalmurphal/gamesave/pkg/gamesave/observability"
)

// Subdirectory names under a storage root.
const (
	CheckpointsDir = "checkpoints"
	MetadataDir    = "metadata"
)

// SchemeFile is the only scheme a resolved Location ever carries.
const SchemeFile = "file"

// SchemeCNS is the reserved remote scheme. It is not implemented and falls
// back to a local directory under the system temp dir.
const SchemeCNS = "cns"

// fallbackDirName is the directory under os.TempDir that holds remote-scheme
// fallbacks.
const fallbackDirName = "cns_fallback"

// Location is a resolved storage root.
type Location struct {
	// Address is the address the location was resolved from.
	Address string

	// Scheme is always "file" after resolution.
	Scheme string

	// Root is the local directory holding checkpoints/ and metadata/.
	Root string

	// Fallback reports whether Root is a temp-dir stand-in for a remote scheme.
	Fallback bool
}

// CheckpointsPath returns the directory that holds blobs.
func (l Location) CheckpointsPath() string {
	return filepath.Join(l.Root, CheckpointsDir)
}

// MetadataPath returns the directory that holds the catalog index.
func (l Location) MetadataPath() string {
	return filepath.Join(l.Root, MetadataDir)
}

// Resolve normalizes a storage address into a local Location and creates the
// checkpoints/ and metadata/ subdirectories under it.
//
// Accepted forms:
//   - paths starting with "/", "~" or ".": expanded and made absolute
//   - "file://<path>": the URL path, used as given; an empty path is rejected
//   - a bare relative path with no scheme: made absolute
//   - "cns://<host>/<path>": a deterministic directory under
//     os.TempDir()/cns_fallback, with a warning logged
//
// Any other scheme fails with ErrUnsupportedScheme and creates nothing.
func Resolve(address string, logger *slog.Logger) (Location, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(address) == "" {
		return Location{}, gserrors.New(gserrors.KindInvalidArgument, "resolve", address, fmt.Errorf("storage address cannot be empty"))
	}

	loc, err := parseAddress(address)
	if err != nil {
		return Location{}, err
	}

	if loc.Fallback {
		observability.LogFallbackStorage(logger, address, loc.Root)
	}

	for _, dir := range []string{loc.CheckpointsPath(), loc.MetadataPath()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Location{}, fmt.Errorf("create storage directory %s: %w", dir, err)
		}
	}
	return loc, nil
}

// parseAddress maps an address to a Location without touching the disk.
func parseAddress(address string) (Location, error) {
	loc := Location{Address: address, Scheme: SchemeFile}

	if strings.HasPrefix(address, "/") || strings.HasPrefix(address, "~") || strings.HasPrefix(address, ".") {
		root, err := absPath(address)
		if err != nil {
			return Location{}, err
		}
		loc.Root = root
		return loc, nil
	}

	u, err := url.Parse(address)
	if err != nil {
		return Location{}, gserrors.New(gserrors.KindInvalidArgument, "resolve", address, err)
	}

	switch scheme := strings.ToLower(u.Scheme); scheme {
	case "":
		root, err := absPath(address)
		if err != nil {
			return Location{}, err
		}
		loc.Root = root
	case SchemeFile:
		if u.Path == "" {
			return Location{}, gserrors.New(gserrors.KindInvalidArgument, "resolve", address, fmt.Errorf("file address has no path"))
		}
		loc.Root = filepath.FromSlash(u.Path)
	case SchemeCNS:
		loc.Root = fallbackRoot(u)
		loc.Fallback = true
	default:
		return Location{}, gserrors.New(gserrors.KindUnsupportedScheme, "resolve", address, fmt.Errorf("scheme %q", scheme))
	}
	return loc, nil
}

// fallbackRoot derives the temp directory for a remote address. The host is
// kept so cns://a/x and cns://b/x do not share a directory.
func fallbackRoot(u *url.URL) string {
	rel := strings.TrimLeft(u.Host+"/"+strings.TrimLeft(u.Path, "/"), "/")
	rel = filepath.Clean(filepath.FromSlash(rel))
	// Clean keeps a leading ".." which would escape the fallback dir.
	for strings.HasPrefix(rel, ".."+string(filepath.Separator)) || rel == ".." {
		rel = strings.TrimPrefix(strings.TrimPrefix(rel, ".."), string(filepath.Separator))
	}
	return filepath.Join(os.TempDir(), fallbackDirName, rel)
}

func absPath(p string) (string, error) {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expand home directory: %w", err)
		}
		p = filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("resolve path %s: %w", p, err)
	}
	return abs, nil
}
