package artifact

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// FS implements Folder on the local file system. Locations are
// subdirectories of root and file identifiers are root-relative paths.
type FS struct {
	root string
}

// NewFS creates a folder rooted at root, creating the directory if needed.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("artifact: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("artifact: create root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("artifact: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("artifact: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute root directory.
func (f *FS) Root() string { return f.root }

// safePath resolves rel against the root and rejects anything that escapes it.
func (f *FS) safePath(rel string) (string, error) {
	if rel == "" {
		return f.root, nil
	}
	cleaned := filepath.Clean(rel)
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("artifact: absolute paths not allowed: %s", rel)
	}
	abs, err := filepath.Abs(filepath.Join(f.root, cleaned))
	if err != nil {
		return "", fmt.Errorf("artifact: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) && abs != f.root {
		return "", fmt.Errorf("artifact: path escapes root: %s", rel)
	}
	return abs, nil
}

func (f *FS) ref(abs string) Ref {
	rel, _ := filepath.Rel(f.root, abs)
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return Ref{ID: filepath.ToSlash(rel), Link: u.String()}
}

// FindByName implements Folder.
func (f *FS) FindByName(_ context.Context, locationID, name string) (Ref, bool, error) {
	if strings.ContainsAny(name, `/\`) {
		return Ref{}, false, fmt.Errorf("artifact: invalid file name %q", name)
	}
	abs, err := f.safePath(filepath.Join(locationID, name))
	if err != nil {
		return Ref{}, false, err
	}
	info, err := os.Stat(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return Ref{}, false, nil
	}
	if err != nil {
		return Ref{}, false, fmt.Errorf("artifact: stat %s: %w", name, err)
	}
	if info.IsDir() {
		return Ref{}, false, fmt.Errorf("artifact: %s is a directory", name)
	}
	return f.ref(abs), true, nil
}

// Create implements Folder.
func (f *FS) Create(_ context.Context, locationID, name string, content []byte, _ string) (Ref, error) {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return Ref{}, fmt.Errorf("artifact: invalid file name %q", name)
	}
	abs, err := f.safePath(filepath.Join(locationID, name))
	if err != nil {
		return Ref{}, err
	}
	if err := writeAtomic(abs, content); err != nil {
		return Ref{}, err
	}
	return f.ref(abs), nil
}

// Replace implements Folder.
func (f *FS) Replace(_ context.Context, id string, content []byte, _ string) (Ref, error) {
	abs, err := f.safePath(filepath.FromSlash(id))
	if err != nil {
		return Ref{}, err
	}
	if _, err := os.Stat(abs); err != nil {
		return Ref{}, fmt.Errorf("artifact: replace %s: %w", id, err)
	}
	if err := writeAtomic(abs, content); err != nil {
		return Ref{}, err
	}
	return f.ref(abs), nil
}

// writeAtomic writes content via tmp file, fsync and rename.
func writeAtomic(abs string, content []byte) error {
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("artifact: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".casi-tmp-*")
	if err != nil {
		return fmt.Errorf("artifact: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("artifact: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("artifact: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("artifact: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("artifact: rename: %w", err)
	}
	success = true
	return nil
}
