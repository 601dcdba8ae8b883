// Package gcs provides a content store backed by Google Cloud Storage.
package gcs

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"
)

// Config captures the parameters required to reach the bucket.
type Config struct {
	Bucket string `mapstructure:"bucket"`
	// Prefix is prepended to every key, e.g. "edgar/documents".
	Prefix string `mapstructure:"prefix"`
}

// Store uploads documents to a GCS bucket. Object writes are
// last-write-wins, so re-writing a key with the same bytes is
// effectively a no-op.
type Store struct {
	client *storage.Client
	cfg    Config
}

// New creates a GCS-backed content store.
func New(client *storage.Client, cfg Config) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &Store{client: client, cfg: cfg}, nil
}

// Put uploads data under key and returns a gs:// URI.
func (s *Store) Put(ctx context.Context, key string, data []byte) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("key is required")
	}
	object := key
	if s.cfg.Prefix != "" {
		object = strings.Trim(s.cfg.Prefix, "/") + "/" + key
	}

	w := s.client.Bucket(s.cfg.Bucket).Object(object).NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		closeErr := w.Close()
		if closeErr != nil {
			return "", fmt.Errorf("write object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("write object: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", s.cfg.Bucket, object), nil
}
