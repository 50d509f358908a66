package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"storyreel/internal/services"
)

// Dir stores objects as files under root/bucket.
type Dir struct {
	root   string
	bucket string
}

// NewDir returns a filesystem store.
func NewDir(root, bucket string) *Dir {
	return &Dir{root: root, bucket: strings.TrimSpace(bucket)}
}

// Bucket returns the bucket name.
func (d *Dir) Bucket() string { return d.bucket }

// ForBucket returns a store rooted at the same directory for another bucket.
func (d *Dir) ForBucket(bucket string) Store {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" || bucket == d.bucket {
		return d
	}
	return &Dir{root: d.root, bucket: bucket}
}

func (d *Dir) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if key == "" || filepath.IsAbs(clean) || clean == "." || strings.HasPrefix(clean, "..") {
		return "", services.Wrap(services.ErrValidation, "storage", "dir", fmt.Sprintf("invalid key %q", key), nil)
	}
	return filepath.Join(d.root, d.bucket, clean), nil
}

// Put writes body under key, replacing any existing object.
func (d *Dir) Put(_ context.Context, key string, body []byte, _ string) error {
	path, err := d.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create object dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, body, 0o644); err != nil {
		return fmt.Errorf("write object: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("commit object: %w", err)
	}
	return nil
}

// PutFile copies the file at src under key.
func (d *Dir) PutFile(_ context.Context, key, src, _ string) error {
	path, err := d.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create object dir: %w", err)
	}
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()
	tmp := path + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create object: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("copy object: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close object: %w", err)
	}
	return os.Rename(tmp, path)
}

// Get reads the object at key.
func (d *Dir) Get(_ context.Context, key string) ([]byte, error) {
	path, err := d.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, services.Wrap(services.ErrNotFound, "storage", "get", key, err)
		}
		return nil, fmt.Errorf("read object: %w", err)
	}
	return data, nil
}

// Exists reports whether key is present.
func (d *Dir) Exists(_ context.Context, key string) (bool, error) {
	path, err := d.path(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Ping verifies the root directory can be created.
func (d *Dir) Ping(context.Context) error {
	return os.MkdirAll(filepath.Join(d.root, d.bucket), 0o755)
}
