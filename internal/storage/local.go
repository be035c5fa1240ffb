package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalStorage stores generated artifacts on the local filesystem, grouped
// by tenant. URL returns the public path the static file server exposes.
type LocalStorage struct {
	basePath string
	baseURL  string
}

func NewLocalStorage(basePath, baseURL string) *LocalStorage {
	return &LocalStorage{basePath: basePath, baseURL: baseURL}
}

// Root is the directory the static file route serves from.
func (s *LocalStorage) Root() string { return s.basePath }

func (s *LocalStorage) Save(_ context.Context, tenant, filename string, reader io.Reader) (string, error) {
	dir := filepath.Join(s.basePath, tenant)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create dir: %w", err)
	}

	storagePath := filepath.Join(dir, filename)
	f, err := os.Create(storagePath)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, reader); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}

	return storagePath, nil
}

// URL maps a stored file to its public path.
func (s *LocalStorage) URL(tenant, filename string) string {
	return fmt.Sprintf("%s/files/%s/%s", s.baseURL, tenant, filename)
}

func (s *LocalStorage) Open(_ context.Context, storagePath string) (io.ReadCloser, error) {
	f, err := os.Open(storagePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}

func (s *LocalStorage) Delete(_ context.Context, storagePath string) error {
	if err := os.Remove(storagePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove file: %w", err)
	}
	_ = os.Remove(filepath.Dir(storagePath))
	return nil
}
