// Package workspace provides a shared scratch directory for agents working
// on a common task, exposed to them as file capabilities.
//
// All access goes through workspace-relative paths that are resolved
// fail-closed: anything that would land outside the root (traversal,
// absolute paths) is rejected before touching the filesystem. The workspace
// performs no locking; concurrent writers follow last-write-wins, matching
// filesystem semantics. A workspace directory is never deleted by Troupe,
// so artifacts survive the runs that produced them.
package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/troupe-dev/troupe/logging"
)

// Options configure a Workspace.
type Options struct {
	// Logger receives structured diagnostics. Defaults to a no-op logger.
	Logger logging.Logger
}

// Workspace is a sandboxed directory shared between agents.
type Workspace struct {
	root   string
	logger logging.Logger
}

// New opens the workspace rooted at dir, creating the directory if needed.
// Existing content is kept untouched.
func New(dir string, optFns ...func(o *Options)) (*Workspace, error) {
	if dir == "" {
		return nil, errors.New("workspace directory must not be empty")
	}

	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}

	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}

	return &Workspace{root: root, logger: logging.OrNoOp(opts.Logger)}, nil
}

// Root returns the absolute workspace root directory.
func (w *Workspace) Root() string { return w.root }

// Resolve maps a workspace-relative path to an absolute one. It fails closed:
// empty paths, absolute paths and any path whose cleaned form escapes the
// root are rejected.
func (w *Workspace) Resolve(rel string) (string, error) {
	if rel == "" {
		return "", errors.New("path must not be empty")
	}
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("path %q must be workspace-relative", rel)
	}

	joined := filepath.Join(w.root, rel)
	if joined != w.root && !strings.HasPrefix(joined, w.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("path %q escapes the workspace", rel)
	}
	return joined, nil
}

// ReadFile returns the content of a workspace-relative file.
func (w *Workspace) ReadFile(rel string) (string, error) {
	path, err := w.Resolve(rel)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %q: %w", rel, err)
	}
	return string(data), nil
}

// WriteFile writes content to a workspace-relative file, creating parent
// directories as needed. Concurrent writes to the same path follow
// last-write-wins.
func (w *Workspace) WriteFile(rel, content string) error {
	path, err := w.Resolve(rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create parent directories for %q: %w", rel, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %q: %w", rel, err)
	}
	w.logger.Debug("workspace.write", "path", rel, "bytes", len(content))
	return nil
}

// ListFiles returns the workspace-relative paths of all regular files under
// the given subdirectory ("" or "." for the whole workspace), sorted
// lexically.
func (w *Workspace) ListFiles(rel string) ([]string, error) {
	if rel == "" {
		rel = "."
	}
	base, err := w.Resolve(rel)
	if err != nil {
		return nil, err
	}

	var files []string
	err = filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		relPath, err := filepath.Rel(w.root, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(relPath))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %q: %w", rel, err)
	}
	sort.Strings(files)
	return files, nil
}
