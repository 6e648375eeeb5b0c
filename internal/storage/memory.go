package storage

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// MemoryStorage keeps objects in process memory. Contents are lost on exit.
type MemoryStorage struct {
	mu      sync.Mutex
	objects map[string]Object
}

// NewMemoryStorage creates an empty in-memory store
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{objects: make(map[string]Object)}
}

func (m *MemoryStorage) Get(ctx context.Context, key string) (*Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	obj, ok := m.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	obj.Body = append([]byte(nil), obj.Body...)
	return &obj, nil
}

func (m *MemoryStorage) Put(ctx context.Context, key string, body []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.store(key, body, contentType)
	return nil
}

func (m *MemoryStorage) PutIfMatch(ctx context.Context, key string, body []byte, contentType, version string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, exists := m.objects[key]
	switch {
	case version == "" && exists:
		return "", ErrVersionMismatch
	case version != "" && (!exists || current.Version != version):
		return "", ErrVersionMismatch
	}
	return m.store(key, body, contentType), nil
}

// store must be called with mu held.
func (m *MemoryStorage) store(key string, body []byte, contentType string) string {
	version := uuid.NewString()
	m.objects[key] = Object{
		Key:         key,
		Body:        append([]byte(nil), body...),
		ContentType: contentType,
		Version:     version,
	}
	return version
}

func (m *MemoryStorage) List(ctx context.Context, prefix string, limit int) ([]string, error) {
	m.mu.Lock()
	keys := make([]string, 0, len(m.objects))
	for key := range m.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	m.mu.Unlock()

	sort.Strings(keys)
	if limit >= 0 && len(keys) > limit {
		keys = keys[:limit]
	}
	return keys, nil
}

func (m *MemoryStorage) Close() error {
	return nil
}
