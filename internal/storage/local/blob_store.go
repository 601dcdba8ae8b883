// Package local implements a local filesystem content store for filing
// documents.
package local

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config captures the parameters for the local content store.
type Config struct {
	// BaseDir is the root directory where documents are stored.
	BaseDir string `mapstructure:"base_dir"`
}

// Store writes document bytes under keys of the form
// "{cik}/{accession}/{name}". Writes are idempotent: re-writing a key
// with identical bytes is a no-op.
type Store struct {
	baseDir string
}

// New creates a filesystem-backed content store.
func New(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	if err := os.MkdirAll(cfg.BaseDir, 0o750); err != nil {
		return nil, fmt.Errorf("create base directory: %w", err)
	}
	return &Store{baseDir: cfg.BaseDir}, nil
}

// Put writes data under key and returns a file:// URI.
func (s *Store) Put(ctx context.Context, key string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("key is required")
	}

	fullPath := filepath.Join(s.baseDir, filepath.FromSlash(key))

	// Reject keys that resolve outside the base directory.
	cleanBase := filepath.Clean(s.baseDir)
	if !strings.HasPrefix(filepath.Clean(fullPath), cleanBase+string(filepath.Separator)) {
		return "", fmt.Errorf("key escapes base directory")
	}

	uri := "file://" + fullPath
	if existing, err := os.ReadFile(fullPath); err == nil && bytes.Equal(existing, data) {
		return uri, nil
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return "", fmt.Errorf("create parent directories: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0o600); err != nil {
		return "", fmt.Errorf("write document: %w", err)
	}
	return uri, nil
}
