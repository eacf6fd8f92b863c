package asset

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// DiskStore writes assets as files under a directory. References are public
// URLs made of BaseURL and the generated file name; the HTTP server serves
// the directory under that base.
type DiskStore struct {
	dir     string
	baseURL string
}

// NewDiskStore creates dir if needed and returns a store rooted there.
func NewDiskStore(dir, baseURL string) (*DiskStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("asset dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create asset dir: %w", err)
	}
	return &DiskStore{dir: filepath.Clean(dir), baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Dir returns the directory assets are written to.
func (s *DiskStore) Dir() string { return s.dir }

// Put writes the blob under a fresh name and returns its public URL.
func (s *DiskStore) Put(ctx context.Context, blob Blob) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	_, ext, err := sniffImage(blob.Data)
	if err != nil {
		return "", err
	}
	key := uuid.NewString() + ext
	tmp := filepath.Join(s.dir, "."+key+".tmp")
	if err := os.WriteFile(tmp, blob.Data, 0o644); err != nil {
		return "", fmt.Errorf("write asset: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(s.dir, key)); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("publish asset: %w", err)
	}
	return s.baseURL + "/" + key, nil
}

// Delete removes the file behind ref.
func (s *DiskStore) Delete(ctx context.Context, ref string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := keyFromRef(ref)
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) {
		return ErrNotFound
	}
	err := os.Remove(filepath.Join(s.dir, key))
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("delete asset: %w", err)
	}
	return nil
}
