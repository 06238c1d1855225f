package local_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/featurebasedb/lakeingest/storage"
	"github.com/featurebasedb/lakeingest/storage/local"
	"github.com/featurebasedb/lakeingest/storage/storagetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	storagetest.TestStore(t, func(t *testing.T) storage.Store {
		s, err := local.NewStore(t.TempDir())
		require.NoError(t, err)
		return s
	})
}

func TestStoreLayout(t *testing.T) {
	ctx := context.Background()
	s, err := local.NewStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, "w/farm/orders/data/part-00000.parquet", []byte("abc")))

	b, err := os.ReadFile(filepath.Join(s.Root(), "w", "farm", "orders", "data", "part-00000.parquet"))
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), b)

	// Leftover temp files from an interrupted write are not listed.
	dir := filepath.Join(s.Root(), "w", "farm", "orders", "data")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".tmp-123"), []byte("partial"), 0o644))
	objs, err := s.List(ctx, "w/")
	require.NoError(t, err)
	assert.Len(t, objs, 1)

	assert.Error(t, s.Put(ctx, "../escape", []byte("x")))
}
