package server

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideMediaRoot is returned for request paths that resolve outside
// the media root.
var ErrOutsideMediaRoot = errors.New("path is outside the media root")

// MediaRoot confines the file paths clients may name to one directory tree.
type MediaRoot struct {
	dir string
}

// NewMediaRoot resolves dir to an absolute path without symlinks.
func NewMediaRoot(dir string) (*MediaRoot, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve media root %s: %w", dir, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("resolve media root %s: %w", dir, err)
	}
	return &MediaRoot{dir: resolved}, nil
}

// Dir returns the resolved root directory.
func (m *MediaRoot) Dir() string {
	return m.dir
}

// Resolve maps a client path onto the root. Relative paths are relative to
// the root. Symlinks in the existing part of the path are followed before
// the containment check, so a link inside the root cannot lead out of it.
// An empty path stays empty.
func (m *MediaRoot) Resolve(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(m.dir, path)
	}
	path = filepath.Clean(path)

	real, err := evalExisting(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	rel, err := filepath.Rel(m.dir, real)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideMediaRoot, path)
	}
	return path, nil
}

// evalExisting resolves symlinks in the longest existing prefix of path and
// appends the rest unchanged.
func evalExisting(path string) (string, error) {
	real, err := filepath.EvalSymlinks(path)
	if err == nil {
		return real, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}
	parent := filepath.Dir(path)
	if parent == path {
		return path, nil
	}
	realParent, err := evalExisting(parent)
	if err != nil {
		return "", err
	}
	return filepath.Join(realParent, filepath.Base(path)), nil
}
