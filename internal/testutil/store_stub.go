// Package testutil provides shared test doubles and fixtures for backend tests.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// StoredObject is one object held by MemoryStore.
type StoredObject struct {
	ContentType string
	Data        []byte
}

// MemoryStore is an in-memory storage.ObjectStore for tests.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string]StoredObject

	// PutErr and PresignErr, when set, are returned by the matching call.
	PutErr     error
	PresignErr error
	// PresignCalls counts PresignGet invocations.
	PresignCalls int
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]StoredObject)}
}

// Put stores a copy of data under key.
func (s *MemoryStore) Put(_ context.Context, key, contentType string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.PutErr != nil {
		return s.PutErr
	}
	s.objects[key] = StoredObject{ContentType: contentType, Data: append([]byte(nil), data...)}
	return nil
}

// PresignGet returns a fake signed URL embedding key and ttl.
func (s *MemoryStore) PresignGet(_ context.Context, key string, ttl time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PresignCalls++
	if s.PresignErr != nil {
		return "", s.PresignErr
	}
	return fmt.Sprintf("https://storage.test/posts/%s?X-Amz-Expires=%d", key, int(ttl.Seconds())), nil
}

// EnsureBucket always succeeds.
func (s *MemoryStore) EnsureBucket(context.Context) error { return nil }

// Driver identifies the stub in metrics labels.
func (s *MemoryStore) Driver() string { return "memory" }

// Get returns the object stored under key.
func (s *MemoryStore) Get(key string) (StoredObject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[key]
	if !ok {
		return StoredObject{}, errors.New("object not found")
	}
	return obj, nil
}

// Keys lists stored keys in no particular order.
func (s *MemoryStore) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	return keys
}
