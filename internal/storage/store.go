// Package storage persists every artifact of a video (transcripts, metadata,
// audio, images, videos, and error records) in an object store. S3Store talks
// to S3 or an S3-compatible server; Dir keeps objects on the local filesystem
// for development and tests.
package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"storyreel/internal/config"
)

// Content types used for stored artifacts.
const (
	ContentTypeJSON = "application/json"
	ContentTypeMP3  = "audio/mpeg"
	ContentTypePNG  = "image/png"
	ContentTypeMP4  = "video/mp4"
)

// Store reads and writes objects in one bucket.
type Store interface {
	Bucket() string
	Put(ctx context.Context, key string, body []byte, contentType string) error
	PutFile(ctx context.Context, key, path, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// Resolver opens stores for named buckets. The worker receives the bucket
// with each job.
type Resolver interface {
	ForBucket(bucket string) Store
}

// PutJSON encodes v and stores it with the JSON content type.
func PutJSON(ctx context.Context, store Store, key string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return store.Put(ctx, key, data, ContentTypeJSON)
}

// GetJSON loads key and decodes it into v.
func GetJSON(ctx context.Context, store Store, key string, v any) error {
	data, err := store.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// Backend is the default bucket's store, able to resolve other buckets and to
// verify connectivity.
type Backend interface {
	Store
	Resolver
	Ping(ctx context.Context) error
}

// Open builds the configured backend.
func Open(ctx context.Context, cfg config.Storage) (Backend, error) {
	switch cfg.Backend {
	case config.StorageLocal:
		return NewDir(cfg.LocalDir, cfg.Bucket), nil
	case config.StorageS3, "":
		store, err := NewS3Store(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}
}
