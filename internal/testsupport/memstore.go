package testsupport

import (
	"context"
	"fmt"
	"maps"
	"os"
	"slices"
	"sync"

	"storyreel/internal/services"
	"storyreel/internal/storage"
)

// MemoryStore is an in-memory storage.Store and storage.Backend.
type MemoryStore struct {
	mu      sync.Mutex
	bucket  string
	objects map[string]Object
	// FailPut makes Put return an error for the listed keys.
	FailPut map[string]error
}

// Object is one stored value.
type Object struct {
	Body        []byte
	ContentType string
}

var _ storage.Backend = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store for bucket.
func NewMemoryStore(bucket string) *MemoryStore {
	return &MemoryStore{bucket: bucket, objects: map[string]Object{}, FailPut: map[string]error{}}
}

func (m *MemoryStore) Bucket() string { return m.bucket }

func (m *MemoryStore) ForBucket(bucket string) storage.Store {
	if bucket == "" || bucket == m.bucket {
		return m
	}
	return bucketView{MemoryStore: m, bucket: bucket}
}

// bucketView shares the parent's objects under another bucket name.
type bucketView struct {
	*MemoryStore
	bucket string
}

func (v bucketView) Bucket() string { return v.bucket }

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Put(_ context.Context, key string, body []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.FailPut[key]; err != nil {
		return err
	}
	m.objects[key] = Object{Body: slices.Clone(body), ContentType: contentType}
	return nil
}

func (m *MemoryStore) PutFile(ctx context.Context, key, path, contentType string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return m.Put(ctx, key, data, contentType)
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, "storage", "get", fmt.Sprintf("%s/%s", m.bucket, key), nil)
	}
	return slices.Clone(obj.Body), nil
}

func (m *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok, nil
}

// Object returns the stored value for key.
func (m *MemoryStore) Object(key string) (Object, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	return obj, ok
}

// Keys lists stored keys in sorted order.
func (m *MemoryStore) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Sorted(maps.Keys(m.objects))
}
