// Package lake archives every envelope crossing the bus into partitioned
// part files on object storage. Archival is at-least-once; downstream
// readers deduplicate by event_id.
package lake

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// ObjectStore is the write surface the sink needs from a storage backend.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte) error
}

// FileStore writes part files under a local directory, for development
// and single-node deployments.
type FileStore struct {
	baseDir string
}

func NewFileStore(baseDir string) (*FileStore, error) {
	//nolint:gosec // G301: 0755 is intentional for a shared lake directory
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to ensure lake dir: %w", err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

func (s *FileStore) Put(_ context.Context, key string, data []byte) error {
	path := filepath.Join(s.baseDir, filepath.FromSlash(key))
	//nolint:gosec // G301: partition directories are shared
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to ensure partition dir: %w", err)
	}

	// Write to temp, then rename
	tmpPath := path + ".tmp"
	//nolint:gosec // G306: 0644 is intentional for readable part files
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write part file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to commit part file: %w", err)
	}
	return nil
}
