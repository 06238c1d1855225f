// Package storagetest contains tests every storage.Store implementation must
// pass.
package storagetest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/featurebasedb/lakeingest/errors"
	"github.com/featurebasedb/lakeingest/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestStore runs the shared suite against the store returned by newStore,
// which is called once per subtest.
func TestStore(t *testing.T, newStore func(t *testing.T) storage.Store) {
	ctx := context.Background()

	t.Run("PutGet", func(t *testing.T) {
		s := newStore(t)
		data := []byte("PAR1\x00\x01binary\xffPAR1")
		require.NoError(t, s.Put(ctx, "warehouse/farm/orders/data/part-00000.parquet", data))

		got, err := s.Get(ctx, "warehouse/farm/orders/data/part-00000.parquet")
		require.NoError(t, err)
		assert.Equal(t, data, got)

		// Overwrite replaces the whole object.
		require.NoError(t, s.Put(ctx, "warehouse/farm/orders/data/part-00000.parquet", []byte("x")))
		got, err = s.Get(ctx, "warehouse/farm/orders/data/part-00000.parquet")
		require.NoError(t, err)
		assert.Equal(t, []byte("x"), got)
	})

	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, "warehouse/nope")
		require.Error(t, err)
		assert.True(t, errors.Is(err, storage.ErrObjectNotFound), "got %v", err)
	})

	t.Run("List", func(t *testing.T) {
		s := newStore(t)
		keys := []string{
			"w/farm/orders/data/d=1/b.parquet",
			"w/farm/orders/data/d=1/a.parquet",
			"w/farm/orders/quarantine/d=1/q.jsonl",
			"w/farm/ordersx/data/c.parquet",
			"w/farm/batches/data/d=2/e.parquet",
		}
		for _, k := range keys {
			require.NoError(t, s.Put(ctx, k, []byte(k)))
		}

		objs, err := s.List(ctx, "w/farm/orders/data/")
		require.NoError(t, err)
		require.Len(t, objs, 2)
		assert.Equal(t, "w/farm/orders/data/d=1/a.parquet", objs[0].Key)
		assert.Equal(t, "w/farm/orders/data/d=1/b.parquet", objs[1].Key)
		assert.Equal(t, int64(len(objs[0].Key)), objs[0].Size)

		objs, err = s.List(ctx, "w/farm/orders")
		require.NoError(t, err)
		assert.Len(t, objs, 4)

		objs, err = s.List(ctx, "w/none/")
		require.NoError(t, err)
		assert.Len(t, objs, 0)

		ok, err := storage.Exists(ctx, s, "w/farm/batches/data/d=2/e.parquet")
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = storage.Exists(ctx, s, "w/farm/batches/data/d=2/e")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Concurrent", func(t *testing.T) {
		s := newStore(t)
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				assert.NoError(t, s.Put(ctx, fmt.Sprintf("c/%d/obj", i), []byte{byte(i)}))
			}(i)
		}
		wg.Wait()
		objs, err := s.List(ctx, "c/")
		require.NoError(t, err)
		assert.Len(t, objs, 8)
	})
}
