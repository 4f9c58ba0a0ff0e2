package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/haru-ai/haru/internal/haru/fault"
)

// BlobStore persists generated media on the filesystem under a single root
// directory. Callers hold only the opaque relative path returned by Put;
// the actual layout underneath the root is this package's business.
type BlobStore struct {
	root string
}

// NewBlobStore creates the root directory if needed.
func NewBlobStore(root string) (*BlobStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob root: %w", err)
	}
	return &BlobStore{root: root}, nil
}

// Put writes data to a fresh file and returns its opaque relative path.
// ext must include the leading dot, e.g. ".png".
func (b *BlobStore) Put(data []byte, ext string) (string, error) {
	name := uuid.NewString() + ext
	if err := os.WriteFile(filepath.Join(b.root, name), data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write blob: %w", err)
	}
	return name, nil
}

// Open returns the blob contents.
func (b *BlobStore) Open(path string) ([]byte, error) {
	full, err := b.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("blob %s: %w", path, fault.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}
	return data, nil
}

// Delete removes the blob. Deleting a blob that is already gone is not an
// error; the caller only cares that the bytes no longer exist.
func (b *BlobStore) Delete(path string) error {
	full, err := b.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}

// resolve rejects paths that would escape the root.
func (b *BlobStore) resolve(path string) (string, error) {
	clean := filepath.Clean(path)
	if clean == ".." || strings.HasPrefix(clean, "../") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("blob path %q escapes storage root: %w", path, fault.ErrInvalidInput)
	}
	return filepath.Join(b.root, clean), nil
}
