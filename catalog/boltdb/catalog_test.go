package boltdb_test

import (
	"context"
	"testing"

	"github.com/featurebasedb/lakeingest/boltdb"
	"github.com/featurebasedb/lakeingest/catalog"
	catalogbolt "github.com/featurebasedb/lakeingest/catalog/boltdb"
	"github.com/featurebasedb/lakeingest/catalog/catalogtest"
	"github.com/featurebasedb/lakeingest/logger"
	testbolt "github.com/featurebasedb/lakeingest/test/boltdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog(t *testing.T) {
	catalogtest.TestCatalog(t, func(t *testing.T) catalog.Catalog {
		db := testbolt.MustOpenDB(t, catalogbolt.CatalogBuckets...)
		return catalogbolt.NewCatalog(db, logger.NewLogfLogger(t))
	})
}

func TestCatalogReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	orders := catalog.NewTableIdent("farm", "orders")

	db, err := boltdb.NewSvcBolt(dir, "catalog", catalogbolt.CatalogBuckets...)
	require.NoError(t, err)
	c := catalogbolt.NewCatalog(db, logger.NopLogger)
	require.NoError(t, c.CreateNamespace(ctx, "farm", nil))
	_, err = c.CreateTable(ctx, orders, catalogtest.TestSchema, "w/farm/orders")
	require.NoError(t, err)
	snap, err := c.AppendFiles(ctx, orders, catalog.NoSnapshot, []catalog.DataFile{catalogtest.DataFile("a", 3)})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = boltdb.NewSvcBolt(dir, "catalog", catalogbolt.CatalogBuckets...)
	require.NoError(t, err)
	defer db.Close()
	c = catalogbolt.NewCatalog(db, logger.NopLogger)

	tbl, err := c.LoadTable(ctx, orders)
	require.NoError(t, err)
	assert.Equal(t, snap.SnapshotID, tbl.CurrentSnapshotID)
	assert.Equal(t, []catalog.DataFile{catalogtest.DataFile("a", 3)}, tbl.Files())
}
