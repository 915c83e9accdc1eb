package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/troupe-dev/troupe/core"
	"github.com/troupe-dev/troupe/logging"
)

const snapExt = ".snap"

// FileStoreOptions configure a FileStore.
type FileStoreOptions struct {
	// Logger receives store activity. Defaults to a no-op logger.
	Logger logging.Logger
}

// FileStore persists one framed blob per session as <id>.snap inside a
// directory. Writes stage into a temp file and move into place with an
// atomic rename, so a crash never leaves a half-written snapshot behind.
// Ids double as file names and are validated fail-closed: anything that
// could escape the directory is rejected.
type FileStore struct {
	dir    string
	logger logging.Logger
}

// NewFileStore opens the store rooted at dir, creating the directory if
// needed.
func NewFileStore(dir string, optFns ...func(o *FileStoreOptions)) (*FileStore, error) {
	opts := FileStoreOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve session dir %s: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create session dir %s: %w", abs, err)
	}
	return &FileStore{dir: abs, logger: logging.OrNoOp(opts.Logger)}, nil
}

// Dir returns the absolute store directory.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) path(id string) (string, error) {
	if err := requireID(id); err != nil {
		return "", err
	}
	if id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return "", fmt.Errorf("session id %q is not usable as a file name", id)
	}
	return filepath.Join(s.dir, id+snapExt), nil
}

// Save encodes the snapshot and atomically replaces the session's blob.
func (s *FileStore) Save(_ context.Context, id string, snap *core.Snapshot) error {
	path, err := s.path(id)
	if err != nil {
		return err
	}
	blob, err := Encode(snap)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, ".stage-*")
	if err != nil {
		return fmt.Errorf("stage snapshot %s: %w", id, err)
	}
	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write snapshot %s: %w", id, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write snapshot %s: %w", id, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("commit snapshot %s: %w", id, err)
	}

	s.logger.Debug("session.save", "store", "file", "id", id, "bytes", len(blob))
	return nil
}

// Load reads and decodes the session's blob.
func (s *FileStore) Load(_ context.Context, id string) (*core.Snapshot, error) {
	path, err := s.path(id)
	if err != nil {
		return nil, err
	}
	blob, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, core.ErrSessionNotFound
		}
		return nil, fmt.Errorf("read snapshot %s: %w", id, err)
	}
	snap, err := Decode(blob)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", id, err)
	}
	return snap, nil
}

// Delete removes the session's blob.
func (s *FileStore) Delete(_ context.Context, id string) error {
	path, err := s.path(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return core.ErrSessionNotFound
		}
		return fmt.Errorf("delete snapshot %s: %w", id, err)
	}
	s.logger.Debug("session.delete", "store", "file", "id", id)
	return nil
}

// List returns the ids of all stored snapshots in lexical order.
func (s *FileStore) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, snapExt) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, snapExt))
	}
	sort.Strings(ids)
	return ids, nil
}
