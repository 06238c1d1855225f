// Package storage defines the durable object store data files are written
// to. Implementations live in the subpackages.
package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/featurebasedb/lakeingest/errors"
)

const ErrObjectNotFound errors.Code = "ObjectNotFound"

func NewErrObjectNotFound(key string) error {
	return errors.New(
		ErrObjectNotFound,
		fmt.Sprintf("object '%s' not found", key),
	)
}

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Store is a flat, slash-separated key space of immutable objects. Objects
// are written whole; a Get after a successful Put returns identical bytes.
// Implementations must be safe for concurrent use.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error

	// Get returns an error coded ErrObjectNotFound if key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// List returns every object whose key begins with prefix, ordered by
	// key.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

// JoinKey joins key segments with a single slash, ignoring empty segments.
func JoinKey(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "/")
}

// Exists reports whether key is present in s.
func Exists(ctx context.Context, s Store, key string) (bool, error) {
	objs, err := s.List(ctx, key)
	if err != nil {
		return false, errors.Wrapf(err, "listing %s", key)
	}
	for _, o := range objs {
		if o.Key == key {
			return true, nil
		}
	}
	return false, nil
}
