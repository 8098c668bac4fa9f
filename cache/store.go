package cache

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	placeholderName = "index.html"
	denyStubName    = ".htaccess"
	denyStubBody    = "Order deny,allow\nDeny from all\n"
)

// Store is the persistence interface for page artifacts.
// Implementations must be safe for concurrent use. Every operation is
// best-effort: failures are reported as booleans (and logged), never as
// request-visible errors.
type Store interface {
	// Root returns the cache root directory.
	Root() string
	// Read returns the artifact bytes and last-modified time for a path.
	Read(path string) ([]byte, time.Time, bool)
	// Write replaces the artifact at path with the given bytes, creating
	// the sharded parent directory (and its placeholder) on first use.
	Write(path string, b []byte) bool
	// Delete removes the artifact at path. A missing artifact is not an
	// error.
	Delete(path string) bool
	// WipeAll removes every artifact under the cache root, sparing the
	// protective placeholder files. It keeps going after individual
	// failures and reports false if any occurred.
	WipeAll() bool
	// Stats walks the tree counting artifacts only (placeholders and
	// unreadable files are skipped).
	Stats() (totalBytes int64, fileCount int)
	// Sweep removes artifacts last modified at or before cutoff. It
	// returns the number removed. The caller supplies the cutoff so the
	// expiry clock stays under its control.
	Sweep(cutoff time.Time) (int, bool)
}

// FileStore is the filesystem-backed Store. One logical entry has up to
// two artifacts, <key>.html and <key>.html.gz, in a two-hex-character
// shard directory under the root.
type FileStore struct {
	root string
	log  zerolog.Logger
}

// NewFileStore creates the cache root (with its protective placeholder
// files) if missing. The global zerolog logger is used if logger is nil.
func NewFileStore(root string, logger *zerolog.Logger) (*FileStore, error) {
	var log zerolog.Logger
	if logger == nil {
		log = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		log = *logger
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}

	s := &FileStore{
		root: abs,
		log:  log.With().Str("cacheRoot", abs).Logger(),
	}
	s.ensurePlaceholder(abs)
	if err := writeIfMissing(filepath.Join(abs, denyStubName), []byte(denyStubBody)); err != nil {
		s.log.Error().Err(err).Msg("Could not write access-denial stub")
	}
	return s, nil
}

func (s *FileStore) Root() string {
	return s.root
}

func (s *FileStore) Read(path string) ([]byte, time.Time, bool) {
	info, err := os.Stat(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.log.Error().Err(err).Str("path", path).Msg("Could not stat cache artifact")
		}
		return nil, time.Time{}, false
	}
	b, err := os.ReadFile(path)
	if err != nil {
		s.log.Error().Err(err).Str("path", path).Msg("Could not read cache artifact")
		return nil, time.Time{}, false
	}
	return b, info.ModTime(), true
}

func (s *FileStore) Write(path string, b []byte) bool {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		s.log.Error().Err(err).Str("path", path).Msg("Could not create shard directory")
		return false
	}
	s.ensurePlaceholder(dir)

	// whole-file replace via temp file + rename, so concurrent writers
	// for the same key cannot produce a torn artifact
	tmp, err := os.CreateTemp(dir, ".write-*")
	if err != nil {
		s.log.Error().Err(err).Str("path", path).Msg("Could not create temp file")
		return false
	}
	tmpName := tmp.Name()
	_, err = tmp.Write(b)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(tmpName, path)
	}
	if err != nil {
		os.Remove(tmpName)
		s.log.Error().Err(err).Str("path", path).Msg("Could not write cache artifact")
		return false
	}
	return true
}

func (s *FileStore) Delete(path string) bool {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.log.Error().Err(err).Str("path", path).Msg("Could not delete cache artifact")
		return false
	}
	return true
}

func (s *FileStore) WipeAll() bool {
	ok := true
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			s.log.Error().Err(err).Str("path", path).Msg("Could not walk cache directory")
			ok = false
			return nil
		}
		if d.IsDir() || !isArtifact(path) {
			return nil
		}
		if err := os.Remove(path); err != nil {
			s.log.Error().Err(err).Str("path", path).Msg("Could not wipe cache artifact")
			ok = false
		}
		return nil
	})
	if err != nil {
		s.log.Error().Err(err).Msg("Could not wipe cache")
		return false
	}
	return ok
}

func (s *FileStore) Stats() (int64, int) {
	var totalBytes int64
	var fileCount int
	filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !isArtifact(path) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			s.log.Error().Err(err).Str("path", path).Msg("Could not stat artifact for stats")
			return nil
		}
		totalBytes += info.Size()
		fileCount++
		return nil
	})
	return totalBytes, fileCount
}

func (s *FileStore) Sweep(cutoff time.Time) (int, bool) {
	removed := 0
	ok := true
	filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !isArtifact(path) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().After(cutoff) {
			return nil
		}
		if err := os.Remove(path); err != nil {
			s.log.Error().Err(err).Str("path", path).Msg("Could not sweep expired artifact")
			ok = false
			return nil
		}
		removed++
		return nil
	})
	return removed, ok
}

// ensurePlaceholder drops an empty index stub into a directory so a
// misconfigured web server cannot list the cached files.
func (s *FileStore) ensurePlaceholder(dir string) {
	if err := writeIfMissing(filepath.Join(dir, placeholderName), nil); err != nil {
		s.log.Error().Err(err).Str("dir", dir).Msg("Could not write index placeholder")
	}
}

func writeIfMissing(path string, b []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil
		}
		return err
	}
	_, err = f.Write(b)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	return err
}

// isArtifact reports whether a file is real cached content as opposed to
// a protective placeholder.
func isArtifact(path string) bool {
	base := filepath.Base(path)
	if base == placeholderName || base == denyStubName {
		return false
	}
	return strings.HasSuffix(base, ".html") || strings.HasSuffix(base, ".html.gz")
}
