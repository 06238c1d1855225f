// Package catalogtest contains tests every catalog.Catalog implementation
// must pass.
package catalogtest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/featurebasedb/lakeingest/catalog"
	"github.com/featurebasedb/lakeingest/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSchema is a small schema used by the suite.
var TestSchema = catalog.Schema{
	Columns: []catalog.Column{
		{ID: 1, Name: "id", Type: "string", Required: true},
		{ID: 2, Name: "quantity_in_kg", Type: "float64"},
		{ID: 3, Name: "_ingest_ts_ms", Type: "timestamp_ms", Required: true},
	},
}

// DataFile returns a data file for the suite with the given path.
func DataFile(path string, rows int64) catalog.DataFile {
	return catalog.DataFile{
		Path:          path,
		Format:        catalog.FormatParquet,
		RecordCount:   rows,
		FileSizeBytes: rows * 100,
		Partition:     map[string]string{"ingest_date": "2024-05-01", "run_id": path},
	}
}

// TestCatalog runs the shared suite against the catalog returned by
// newCatalog, which is called once per subtest.
func TestCatalog(t *testing.T, newCatalog func(t *testing.T) catalog.Catalog) {
	ctx := context.Background()
	orders := catalog.NewTableIdent("farm", "orders")

	t.Run("Namespaces", func(t *testing.T) {
		c := newCatalog(t)

		nss, err := c.ListNamespaces(ctx)
		require.NoError(t, err)
		assert.Len(t, nss, 0)

		require.NoError(t, c.CreateNamespace(ctx, "farm", map[string]string{"owner": "ops"}))
		require.NoError(t, c.CreateNamespace(ctx, "archive", nil))

		err = c.CreateNamespace(ctx, "farm", nil)
		if assert.Error(t, err) {
			assert.True(t, errors.Is(err, catalog.ErrNamespaceExists), "got %v", err)
		}

		err = c.CreateNamespace(ctx, "bad/ns", nil)
		assert.True(t, errors.Is(err, catalog.ErrInvalidArgument), "got %v", err)

		nss, err = c.ListNamespaces(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"archive", "farm"}, nss)
	})

	t.Run("Tables", func(t *testing.T) {
		c := newCatalog(t)

		_, err := c.LoadTable(ctx, orders)
		assert.True(t, errors.Is(err, catalog.ErrTableNotFound), "got %v", err)

		_, err = c.CreateTable(ctx, orders, TestSchema, "w/farm/orders")
		assert.True(t, errors.Is(err, catalog.ErrNamespaceNotFound), "got %v", err)

		require.NoError(t, c.CreateNamespace(ctx, "farm", nil))
		tbl, err := c.CreateTable(ctx, orders, TestSchema, "w/farm/orders")
		require.NoError(t, err)
		assert.Equal(t, orders, tbl.Ident)
		assert.NotEmpty(t, tbl.UUID)
		assert.Equal(t, catalog.NoSnapshot, tbl.CurrentSnapshotID)
		assert.Nil(t, tbl.CurrentSnapshot())

		_, err = c.CreateTable(ctx, orders, TestSchema, "w/farm/orders")
		assert.True(t, errors.Is(err, catalog.ErrTableExists), "got %v", err)

		_, err = c.CreateTable(ctx, catalog.NewTableIdent("farm", "batches"), TestSchema, "w/farm/batches")
		require.NoError(t, err)

		loaded, err := c.LoadTable(ctx, orders)
		require.NoError(t, err)
		assert.True(t, TestSchema.Equal(loaded.Schema))
		assert.Equal(t, tbl.UUID, loaded.UUID)
		assert.Equal(t, "w/farm/orders", loaded.Location)

		idents, err := c.ListTables(ctx, "farm")
		require.NoError(t, err)
		assert.Equal(t, []catalog.TableIdent{
			catalog.NewTableIdent("farm", "batches"),
			orders,
		}, idents)

		_, err = c.ListTables(ctx, "nope")
		assert.True(t, errors.Is(err, catalog.ErrNamespaceNotFound), "got %v", err)
	})

	t.Run("AppendFiles", func(t *testing.T) {
		c := newCatalog(t)
		require.NoError(t, c.CreateNamespace(ctx, "farm", nil))
		_, err := c.CreateTable(ctx, orders, TestSchema, "w/farm/orders")
		require.NoError(t, err)

		s1, err := c.AppendFiles(ctx, orders, catalog.NoSnapshot, []catalog.DataFile{DataFile("a", 3)})
		require.NoError(t, err)
		assert.Equal(t, catalog.OperationAppend, s1.Operation)
		assert.Len(t, s1.Files, 1)

		s2, err := c.AppendFiles(ctx, orders, s1.SnapshotID, []catalog.DataFile{DataFile("b", 2), DataFile("c", 1)})
		require.NoError(t, err)
		assert.NotEqual(t, s1.SnapshotID, s2.SnapshotID)
		assert.Equal(t, s1.SnapshotID, s2.ParentSnapshotID)
		assert.Equal(t, "2", s2.Summary[catalog.SummaryAddedFiles])
		assert.Equal(t, "3", s2.Summary[catalog.SummaryTotalFiles])
		assert.Equal(t, "6", s2.Summary[catalog.SummaryTotalRecords])

		tbl, err := c.LoadTable(ctx, orders)
		require.NoError(t, err)
		assert.Equal(t, s2.SnapshotID, tbl.CurrentSnapshotID)
		assert.Len(t, tbl.Snapshots, 2)
		var paths []string
		for _, f := range tbl.Files() {
			paths = append(paths, f.Path)
		}
		assert.Equal(t, []string{"a", "b", "c"}, paths)
		assert.Equal(t, map[string]string{"ingest_date": "2024-05-01", "run_id": "b"}, tbl.Files()[1].Partition)

		// Stale base.
		_, err = c.AppendFiles(ctx, orders, s1.SnapshotID, []catalog.DataFile{DataFile("d", 1)})
		assert.True(t, errors.Is(err, catalog.ErrCommitConflict), "got %v", err)

		// Already registered files do not produce a snapshot.
		s3, err := c.AppendFiles(ctx, orders, s2.SnapshotID, []catalog.DataFile{DataFile("b", 2)})
		require.NoError(t, err)
		assert.Equal(t, s2.SnapshotID, s3.SnapshotID)

		tbl, err = c.LoadTable(ctx, orders)
		require.NoError(t, err)
		assert.Len(t, tbl.Snapshots, 2)

		_, err = c.AppendFiles(ctx, catalog.NewTableIdent("farm", "nope"), 0, []catalog.DataFile{DataFile("x", 1)})
		assert.True(t, errors.Is(err, catalog.ErrTableNotFound), "got %v", err)

		_, err = c.AppendFiles(ctx, orders, s2.SnapshotID, nil)
		assert.True(t, errors.Is(err, catalog.ErrInvalidArgument), "got %v", err)
	})

	t.Run("ConcurrentAppends", func(t *testing.T) {
		c := newCatalog(t)
		require.NoError(t, c.CreateNamespace(ctx, "farm", nil))
		_, err := c.CreateTable(ctx, orders, TestSchema, "w/farm/orders")
		require.NoError(t, err)

		// Every writer appends against the empty table; exactly one wins.
		const writers = 8
		var wg sync.WaitGroup
		var mu sync.Mutex
		var wins, conflicts int
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := c.AppendFiles(ctx, orders, catalog.NoSnapshot, []catalog.DataFile{DataFile(fmt.Sprintf("f%d", i), 1)})
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					wins++
				case errors.Is(err, catalog.ErrCommitConflict):
					conflicts++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}(i)
		}
		wg.Wait()
		assert.Equal(t, 1, wins)
		assert.Equal(t, writers-1, conflicts)
	})
}
