package fileutil

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// Workspace is a private temp directory owned by one job. Files created in
// it, and files adopted with Track, are removed by Cleanup.
type Workspace struct {
	dir string

	mu      sync.Mutex
	tracked []string
	closed  bool
}

// NewWorkspace creates a fresh directory under parent (system temp dir when empty).
func NewWorkspace(parent, prefix string) (*Workspace, error) {
	dir, err := os.MkdirTemp(parent, prefix+"-*")
	if err != nil {
		return nil, fmt.Errorf("creating workspace: %w", err)
	}
	return &Workspace{dir: dir}, nil
}

// Dir returns the workspace directory.
func (w *Workspace) Dir() string {
	return w.dir
}

// Track adopts files created elsewhere so Cleanup removes them too.
func (w *Workspace) Track(paths ...string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tracked = append(w.tracked, paths...)
}

// WriteFile stores data under name inside the workspace.
func (w *Workspace) WriteFile(name string, data []byte) (string, error) {
	path, err := w.path(name)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("writing %s: %w", name, err)
	}
	return path, nil
}

// CopyFrom streams r into name inside the workspace and returns the written size.
func (w *Workspace) CopyFrom(name string, r io.Reader) (string, int64, error) {
	path, err := w.path(name)
	if err != nil {
		return "", 0, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600) // #nosec G304 -- path inside workspace
	if err != nil {
		return "", 0, fmt.Errorf("creating %s: %w", name, err)
	}
	n, copyErr := io.Copy(f, r)
	closeErr := f.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		return "", 0, fmt.Errorf("writing %s: %w", name, err)
	}
	return path, n, nil
}

func (w *Workspace) path(name string) (string, error) {
	if name == "" || filepath.Base(name) != name {
		return "", fmt.Errorf("%w: %q", ErrExtensionPathTraversal, name)
	}
	return filepath.Join(w.dir, name), nil
}

// Cleanup removes the directory and every tracked file. Safe to call twice.
func (w *Workspace) Cleanup() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	var errs []error
	for _, p := range w.tracked {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	if err := os.RemoveAll(w.dir); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
