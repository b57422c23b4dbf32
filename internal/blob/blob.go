// Package blob stores uploaded files under a root directory.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Store keeps opaque blobs addressed by relative paths.
type Store interface {
	Put(ctx context.Context, prefix, ext string, data []byte) (string, error)
	Delete(ctx context.Context, p string) error
}

// FS is a Store on the local filesystem.
type FS struct {
	root string
}

// NewFS creates root if needed and returns a Store rooted there.
func NewFS(root string) (*FS, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("creating blob root: %w", err)
	}
	return &FS{root: root}, nil
}

// Root returns the directory blobs are stored in.
func (s *FS) Root() string { return s.root }

// Put writes data under prefix with a random name and returns the relative
// path, e.g. "avatars/5b0c...e1.jpg".
func (s *FS) Put(_ context.Context, prefix, ext string, data []byte) (string, error) {
	rel := path.Join(prefix, uuid.NewString()+ext)
	full, err := s.resolve(rel)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return "", fmt.Errorf("creating blob directory: %w", err)
	}

	// Write to a temp file first so readers never see a partial blob.
	tmp := full + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return "", fmt.Errorf("writing blob: %w", err)
	}
	if err := os.Rename(tmp, full); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("storing blob: %w", err)
	}
	return rel, nil
}

// Delete removes a blob. Missing blobs are not an error.
func (s *FS) Delete(_ context.Context, p string) error {
	if p == "" {
		return nil
	}
	full, err := s.resolve(p)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("deleting blob: %w", err)
	}
	return nil
}

// resolve maps a relative blob path into the root, refusing escapes.
func (s *FS) resolve(p string) (string, error) {
	clean := path.Clean("/" + p)[1:]
	if clean == "" || clean != strings.TrimPrefix(p, "/") || !fs.ValidPath(clean) {
		return "", fmt.Errorf("invalid blob path %q", p)
	}
	return filepath.Join(s.root, filepath.FromSlash(clean)), nil
}
