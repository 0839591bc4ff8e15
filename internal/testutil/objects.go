package testutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/tasktracker/apiserver/internal/storage"
)

// MemoryObjects is an in-memory object storage backend. It satisfies
// storage.ObjectStorage and services.ObjectStorage.
type MemoryObjects struct {
	mu      sync.Mutex
	bucket  string
	objects map[string][]byte
	types   map[string]string

	// FailPuts, when set, is returned by Put.
	FailPuts error
}

func NewMemoryObjects(bucket string) *MemoryObjects {
	return &MemoryObjects{
		bucket:  bucket,
		objects: make(map[string][]byte),
		types:   make(map[string]string),
	}
}

func (m *MemoryObjects) EnsureBucket(ctx context.Context) error {
	return nil
}

func (m *MemoryObjects) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if m.FailPuts != nil {
		return m.FailPuts
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if size >= 0 && int64(len(data)) != size {
		return fmt.Errorf("put %s: read %d bytes, want %d", key, len(data), size)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	m.types[key] = contentType
	return nil
}

func (m *MemoryObjects) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *MemoryObjects) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	delete(m.types, key)
	return nil
}

func (m *MemoryObjects) Bucket() string {
	return m.bucket
}

// Keys returns the stored object keys in sorted order.
func (m *MemoryObjects) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for key := range m.objects {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// ContentType returns the media type recorded for key.
func (m *MemoryObjects) ContentType(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.types[key]
}
