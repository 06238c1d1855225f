package reader_test

import (
	"context"
	"testing"
	"time"

	"github.com/apache/arrow/go/v10/arrow"
	"github.com/apache/arrow/go/v10/arrow/memory"
	"github.com/featurebasedb/lakeingest/batch"
	"github.com/featurebasedb/lakeingest/catalog"
	cataloginmem "github.com/featurebasedb/lakeingest/catalog/inmem"
	"github.com/featurebasedb/lakeingest/coerce"
	"github.com/featurebasedb/lakeingest/columnar"
	"github.com/featurebasedb/lakeingest/commit"
	"github.com/featurebasedb/lakeingest/errors"
	"github.com/featurebasedb/lakeingest/logger"
	"github.com/featurebasedb/lakeingest/reader"
	"github.com/featurebasedb/lakeingest/schema"
	storageinmem "github.com/featurebasedb/lakeingest/storage/inmem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store   *storageinmem.Store
	catalog *cataloginmem.Catalog
	writer  *columnar.Writer
	coord   *commit.Coordinator
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		store:   storageinmem.NewStore(),
		catalog: cataloginmem.NewCatalog(),
	}
	f.writer = columnar.NewWriter(f.store, columnar.Config{Prefix: "w"}, logger.NewLogfLogger(t))
	f.coord = commit.NewCoordinator(f.catalog, commit.Config{Prefix: "w"}, logger.NewLogfLogger(t))
	return f
}

// write coerces recs at ingest time at and writes them, committing them
// unless commit is false.
func (f *fixture) write(t *testing.T, entity string, at time.Time, recs []batch.Record, commitFiles bool) []columnar.File {
	t.Helper()
	desc := schema.MustLookup(entity)
	c := coerce.NewCoercer(coerce.PolicyDefault)
	c.Now = func() time.Time { return at }
	b, err := c.Coerce(desc, recs)
	require.NoError(t, err)
	defer b.Release()

	files, err := f.writer.Write(context.Background(), "farm", desc, b)
	require.NoError(t, err)
	if commitFiles {
		_, err = f.coord.Append(context.Background(), "farm", desc, files)
		require.NoError(t, err)
	}
	return files
}

func TestRead(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	t0 := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	f.write(t, "orders", t0, []batch.Record{
		{"id": "o-1", "variety": "cherry", "quantityInKg": 1.5},
		{"id": "o-2", "variety": "plum"},
	}, true)
	f.write(t, "orders", t0.Add(time.Hour), []batch.Record{
		{"id": "o-3", "variety": "roma", "price_in_euro": 3.0, "delivery_date": "2024-05-02"},
	}, true)

	r := reader.New(f.store, f.catalog, "w", logger.NewLogfLogger(t))
	tbl, err := r.Read(ctx, "farm", "orders")
	require.NoError(t, err)

	var names []string
	for _, c := range tbl.Columns {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"id", "variety", "quantity_in_kg", "delivery_date", "price_in_euro", schema.IngestColumn}, names)
	assert.Equal(t, "timestamp_ms", tbl.Columns[5].Type)
	assert.True(t, tbl.Columns[2].Nullable)
	assert.Len(t, tbl.Files, 2)

	require.Len(t, tbl.Rows, 3)
	id := tbl.ColumnIndex("id")
	ts := tbl.ColumnIndex(schema.IngestColumn)

	// Newest first; ties keep file order.
	assert.Equal(t, "o-3", tbl.Rows[0][id])
	assert.Equal(t, "o-1", tbl.Rows[1][id])
	assert.Equal(t, "o-2", tbl.Rows[2][id])
	assert.Equal(t, t0.Add(time.Hour), tbl.Rows[0][ts])
	assert.Equal(t, 3.0, tbl.Rows[0][tbl.ColumnIndex("price_in_euro")])
	assert.Equal(t, "2024-05-02", tbl.Rows[0][tbl.ColumnIndex("delivery_date")])
	assert.Equal(t, 1.5, tbl.Rows[1][tbl.ColumnIndex("quantity_in_kg")])
	assert.Equal(t, 0.0, tbl.Rows[2][tbl.ColumnIndex("quantity_in_kg")])
	assert.Equal(t, "", tbl.Rows[2][tbl.ColumnIndex("delivery_date")])
}

func TestReadTimestampRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	at := time.Date(2024, 5, 1, 23, 59, 59, 999e6, time.UTC)
	created := time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC)

	files := f.write(t, "materials", at, []batch.Record{
		{"id": "m-1", "name": "straw", "unit": "kg", "quantity_in_stock": 4.0,
			"created_at": created, "updated_at": created.Add(90 * time.Millisecond)},
	}, true)
	require.Len(t, files, 1)

	// The decoded file carries the same column types it was written with.
	data, err := f.store.Get(ctx, files[0].Path)
	require.NoError(t, err)
	decoded, err := columnar.Decode(ctx, data, memory.NewGoAllocator())
	require.NoError(t, err)
	defer decoded.Release()
	want := schema.MustLookup("materials").ArrowSchema()
	require.Equal(t, len(want.Fields()), len(decoded.Schema().Fields()))
	for i, fld := range want.Fields() {
		assert.True(t, arrow.TypeEqual(fld.Type, decoded.Schema().Field(i).Type),
			"%s: %v != %v", fld.Name, fld.Type, decoded.Schema().Field(i).Type)
	}

	tbl, err := reader.New(f.store, f.catalog, "w", logger.NopLogger).Read(ctx, "farm", "materials", reader.FromSnapshot())
	require.NoError(t, err)
	require.Len(t, tbl.Rows, 1)
	row := tbl.Rows[0]
	assert.Equal(t, "m-1", row[tbl.ColumnIndex("id")])
	assert.Equal(t, 4.0, row[tbl.ColumnIndex("quantity_in_stock")])
	assert.Equal(t, created, row[tbl.ColumnIndex("created_at")])
	assert.Equal(t, created.Add(90*time.Millisecond), row[tbl.ColumnIndex("updated_at")])
	assert.Equal(t, at, row[tbl.ColumnIndex(schema.IngestColumn)])
}

func TestReadFromSnapshot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	t0 := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	f.write(t, "materials", t0, []batch.Record{{"id": "m-1", "name": "soil", "quantity_in_stock": 7}}, true)
	orphan := f.write(t, "materials", t0.Add(time.Minute), []batch.Record{{"id": "m-2"}}, false)

	r := reader.New(f.store, f.catalog, "w", logger.NopLogger)

	all, err := r.Read(ctx, "farm", "materials")
	require.NoError(t, err)
	assert.Len(t, all.Rows, 2)
	assert.Contains(t, all.Files, orphan[0].Path)

	committed, err := r.Read(ctx, "farm", "materials", reader.FromSnapshot())
	require.NoError(t, err)
	require.Len(t, committed.Rows, 1)
	assert.Equal(t, "m-1", committed.Rows[0][committed.ColumnIndex("id")])
	assert.Equal(t, 7.0, committed.Rows[0][committed.ColumnIndex("quantity_in_stock")])
	assert.Equal(t, int64(1), committed.SnapshotID)

	_, err = r.Read(ctx, "farm", "batches", reader.FromSnapshot())
	assert.True(t, errors.Is(err, catalog.ErrTableNotFound), "got %v", err)

	_, err = reader.New(f.store, nil, "w", nil).Read(ctx, "farm", "materials", reader.FromSnapshot())
	assert.Error(t, err)
}

func TestReadEmpty(t *testing.T) {
	f := newFixture(t)
	r := reader.New(f.store, f.catalog, "w", nil)

	tbl, err := r.Read(context.Background(), "farm", "batches")
	require.NoError(t, err)
	assert.Len(t, tbl.Rows, 0)
	assert.NotEmpty(t, tbl.Columns)

	_, err = r.Read(context.Background(), "farm", "customers")
	assert.True(t, errors.Is(err, schema.ErrUnknownEntity))
}

func TestReadSkipsOtherObjects(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.write(t, "orders", time.Now(), []batch.Record{{"id": "o-1"}}, true)
	require.NoError(t, f.store.Put(ctx, columnar.DataPrefix("w", "farm", "orders")+"_SUCCESS", []byte("")))

	tbl, err := reader.New(f.store, nil, "w", nil).Read(ctx, "farm", "orders")
	require.NoError(t, err)
	assert.Len(t, tbl.Rows, 1)
}
