// Package inmem provides an in-memory implementation of storage.Store.
package inmem

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/featurebasedb/lakeingest/storage"
)

// Ensure type implements interface.
var _ storage.Store = (*Store)(nil)

type object struct {
	data     []byte
	modified time.Time
}

// Store is a map-backed object store.
type Store struct {
	mu      sync.RWMutex
	objects map[string]object

	// Now is used to stamp LastModified. Defaults to time.Now.
	Now func() time.Time
}

// NewStore returns a new, empty Store.
func NewStore() *Store {
	return &Store{
		objects: make(map[string]object),
		Now:     time.Now,
	}
}

func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	buf := make([]byte, len(data))
	copy(buf, data)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = object{data: buf, modified: s.Now()}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[key]
	if !ok {
		return nil, storage.NewErrObjectNotFound(key)
	}
	buf := make([]byte, len(obj.data))
	copy(buf, obj.data)
	return buf, nil
}

func (s *Store) List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []storage.ObjectInfo
	for k, obj := range s.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, storage.ObjectInfo{
				Key:          k,
				Size:         int64(len(obj.data)),
				LastModified: obj.modified,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Delete removes key. It is not part of storage.Store; tests use it to
// simulate lost objects.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
}
