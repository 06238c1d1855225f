package columnar_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/apache/arrow/go/v10/arrow"
	"github.com/apache/arrow/go/v10/arrow/array"
	"github.com/apache/arrow/go/v10/arrow/memory"
	"github.com/apache/arrow/go/v10/parquet/compress"
	"github.com/featurebasedb/lakeingest/batch"
	"github.com/featurebasedb/lakeingest/coerce"
	"github.com/featurebasedb/lakeingest/columnar"
	"github.com/featurebasedb/lakeingest/errors"
	"github.com/featurebasedb/lakeingest/logger"
	"github.com/featurebasedb/lakeingest/schema"
	"github.com/featurebasedb/lakeingest/storage"
	"github.com/featurebasedb/lakeingest/storage/inmem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ingestTime = time.Date(2024, 5, 1, 23, 59, 59, 999e6, time.UTC)

func coerceBatch(t *testing.T, p coerce.Policy, desc *schema.Descriptor, recs []batch.Record) *coerce.Batch {
	t.Helper()
	c := coerce.NewCoercer(p)
	c.Now = func() time.Time { return ingestTime }
	b, err := c.Coerce(desc, recs)
	require.NoError(t, err)
	t.Cleanup(b.Release)
	return b
}

func orders(n int) []batch.Record {
	recs := make([]batch.Record, n)
	for i := range recs {
		recs[i] = batch.Record{
			"id":             fmt.Sprintf("o%d", i),
			"variety":        "oyster",
			"quantity_in_kg": float64(i) + 0.5,
			"delivery_date":  "2024-05-02",
			"price_in_euro":  float64(i * 3),
		}
	}
	return recs
}

// assertSchema compares fields, ignoring any metadata the parquet round trip
// attaches.
func assertSchema(t *testing.T, exp, got *arrow.Schema) {
	t.Helper()
	require.Equal(t, len(exp.Fields()), len(got.Fields()), "got %v", got)
	for i, f := range exp.Fields() {
		g := got.Field(i)
		assert.Equal(t, f.Name, g.Name)
		assert.Equal(t, f.Nullable, g.Nullable, f.Name)
		assert.True(t, arrow.TypeEqual(f.Type, g.Type), "%s: %v != %v", f.Name, f.Type, g.Type)
	}
}

// flakyStore fails the first failures calls to Put.
type flakyStore struct {
	storage.Store
	failures int32
	calls    int32
}

func (f *flakyStore) Put(ctx context.Context, key string, data []byte) error {
	if atomic.AddInt32(&f.calls, 1) <= f.failures {
		return fmt.Errorf("503 slow down")
	}
	return f.Store.Put(ctx, key, data)
}

func fastRetries(cfg columnar.Config) columnar.Config {
	cfg.UploadBackoff = time.Millisecond
	cfg.UploadMaxBackoff = time.Millisecond
	return cfg
}

func TestWriterRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := inmem.NewStore()
	w := columnar.NewWriter(store, columnar.Config{Prefix: "warehouse"}, logger.NewLogfLogger(t))
	w.NewRunID = func() string { return "run-1" }

	desc := schema.MustLookup("orders")
	recs := append(orders(2), batch.Record{"id": "empty"})
	b := coerceBatch(t, coerce.PolicyDefault, desc, recs)

	files, err := w.Write(ctx, "farm", desc, b)
	require.NoError(t, err)
	require.Len(t, files, 1)

	f := files[0]
	assert.Equal(t, "warehouse/farm/orders/data/ingest_date=2024-05-01/run_id=run-1/part-00000.parquet", f.Path)
	assert.Equal(t, int64(3), f.Rows)
	assert.Equal(t, map[string]string{"ingest_date": "2024-05-01", "run_id": "run-1"}, f.Partition())

	data, err := store.Get(ctx, f.Path)
	require.NoError(t, err)
	assert.Equal(t, f.Size, int64(len(data)))
	assert.Equal(t, f.Checksum, columnar.Checksum(data))

	tbl, err := columnar.Decode(ctx, data, memory.NewGoAllocator())
	require.NoError(t, err)
	defer tbl.Release()

	assertSchema(t, desc.ArrowSchema(), tbl.Schema())
	assert.Equal(t, int64(3), tbl.NumRows())

	tr := array.NewTableReader(tbl, 10)
	defer tr.Release()
	require.True(t, tr.Next())
	rec := tr.Record()

	assert.Equal(t, "o1", rec.Column(0).(*array.String).Value(1))
	assert.Equal(t, 1.5, rec.Column(2).(*array.Float64).Value(1))
	assert.Equal(t, 3.0, rec.Column(4).(*array.Float64).Value(1))
	assert.Equal(t, "", rec.Column(1).(*array.String).Value(2))
	assert.False(t, rec.Column(2).IsNull(2))
	assert.Equal(t, 0.0, rec.Column(2).(*array.Float64).Value(2))
	assert.False(t, rec.Column(3).IsNull(2))
	assert.Equal(t, "", rec.Column(3).(*array.String).Value(2))
	assert.Equal(t, arrow.Timestamp(ingestTime.UnixMilli()), rec.Column(5).(*array.Timestamp).Value(2))

	info, err := columnar.Inspect(data)
	require.NoError(t, err)
	assert.Equal(t, int64(3), info.Rows)
	assert.Equal(t, 1, info.RowGroups)
	assert.Equal(t, fmt.Sprint(compress.Codecs.Snappy), info.Compression)
	assertSchema(t, desc.ArrowSchema(), info.Schema)
}

func TestWriterParts(t *testing.T) {
	ctx := context.Background()
	store := inmem.NewStore()
	w := columnar.NewWriter(store, columnar.Config{Prefix: "w", MaxRowsPerFile: 4, RowGroupSize: 2}, logger.NopLogger)

	desc := schema.MustLookup("orders")
	files, err := w.Write(ctx, "farm", desc, coerceBatch(t, coerce.PolicyDefault, desc, orders(10)))
	require.NoError(t, err)
	require.Len(t, files, 3)

	var total int64
	for i, f := range files {
		assert.Equal(t, i, f.Part)
		assert.Equal(t, files[0].RunID, f.RunID)
		assert.True(t, strings.HasSuffix(f.Path, fmt.Sprintf("part-%05d.parquet", i)))
		total += f.Rows
	}
	assert.Equal(t, []int64{4, 4, 2}, []int64{files[0].Rows, files[1].Rows, files[2].Rows})
	assert.Equal(t, int64(10), total)

	data, err := store.Get(ctx, files[0].Path)
	require.NoError(t, err)
	info, err := columnar.Inspect(data)
	require.NoError(t, err)
	assert.Equal(t, 2, info.RowGroups)

	objs, err := store.List(ctx, columnar.DataPrefix("w", "farm", "orders"))
	require.NoError(t, err)
	assert.Len(t, objs, 3)
}

func TestWriterUniquePaths(t *testing.T) {
	ctx := context.Background()
	store := inmem.NewStore()
	w := columnar.NewWriter(store, columnar.Config{Prefix: "w"}, logger.NopLogger)
	desc := schema.MustLookup("orders")

	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		// Same ingest millisecond for every batch.
		files, err := w.Write(ctx, "farm", desc, coerceBatch(t, coerce.PolicyDefault, desc, orders(1)))
		require.NoError(t, err)
		require.Len(t, files, 1)
		assert.False(t, seen[files[0].Path])
		seen[files[0].Path] = true
	}
}

func TestWriterEmptyBatch(t *testing.T) {
	w := columnar.NewWriter(inmem.NewStore(), columnar.Config{}, logger.NopLogger)
	desc := schema.MustLookup("orders")
	files, err := w.Write(context.Background(), "farm", desc, coerceBatch(t, coerce.PolicyDefault, desc, nil))
	require.NoError(t, err)
	assert.Len(t, files, 0)
}

func TestWriterSchemaMismatch(t *testing.T) {
	w := columnar.NewWriter(inmem.NewStore(), columnar.Config{}, logger.NopLogger)
	b := coerceBatch(t, coerce.PolicyDefault, schema.MustLookup("orders"), orders(1))
	_, err := w.Write(context.Background(), "farm", schema.MustLookup("materials"), b)
	assert.True(t, errors.Is(err, columnar.ErrSerialization))
}

func TestWriterUploadRetry(t *testing.T) {
	ctx := context.Background()
	desc := schema.MustLookup("orders")

	t.Run("Recovers", func(t *testing.T) {
		store := &flakyStore{Store: inmem.NewStore(), failures: 2}
		log := logger.NewBufferLogger()
		w := columnar.NewWriter(store, fastRetries(columnar.Config{UploadRetries: 3}), log)

		files, err := w.Write(ctx, "farm", desc, coerceBatch(t, coerce.PolicyDefault, desc, orders(1)))
		require.NoError(t, err)
		require.Len(t, files, 1)
		assert.Equal(t, int32(3), atomic.LoadInt32(&store.calls))
		assert.Contains(t, log.String(), "upload attempt 2 of")
	})

	t.Run("GivesUp", func(t *testing.T) {
		store := &flakyStore{Store: inmem.NewStore(), failures: 100}
		w := columnar.NewWriter(store, fastRetries(columnar.Config{UploadRetries: 2}), logger.NopLogger)

		_, err := w.Write(ctx, "farm", desc, coerceBatch(t, coerce.PolicyDefault, desc, orders(1)))
		require.Error(t, err)
		assert.True(t, errors.Is(err, columnar.ErrUpload))
		assert.Equal(t, int32(3), atomic.LoadInt32(&store.calls))
	})

	t.Run("DefaultRetries", func(t *testing.T) {
		store := &flakyStore{Store: inmem.NewStore(), failures: 1}
		w := columnar.NewWriter(store, fastRetries(columnar.Config{}), logger.NopLogger)

		files, err := w.Write(ctx, "farm", desc, coerceBatch(t, coerce.PolicyDefault, desc, orders(1)))
		require.NoError(t, err)
		require.Len(t, files, 1)
		assert.Equal(t, int32(2), atomic.LoadInt32(&store.calls))
	})

	t.Run("DefaultGivesUp", func(t *testing.T) {
		store := &flakyStore{Store: inmem.NewStore(), failures: 100}
		w := columnar.NewWriter(store, fastRetries(columnar.Config{}), logger.NopLogger)

		_, err := w.Write(ctx, "farm", desc, coerceBatch(t, coerce.PolicyDefault, desc, orders(1)))
		assert.True(t, errors.Is(err, columnar.ErrUpload))
		assert.Equal(t, int32(columnar.DefaultUploadRetries+1), atomic.LoadInt32(&store.calls))
	})

	t.Run("Disabled", func(t *testing.T) {
		store := &flakyStore{Store: inmem.NewStore(), failures: 1}
		w := columnar.NewWriter(store, fastRetries(columnar.Config{UploadRetries: -1}), logger.NopLogger)

		_, err := w.Write(ctx, "farm", desc, coerceBatch(t, coerce.PolicyDefault, desc, orders(1)))
		assert.True(t, errors.Is(err, columnar.ErrUpload))
		assert.Equal(t, int32(1), atomic.LoadInt32(&store.calls))
	})
}

func TestWriteQuarantine(t *testing.T) {
	ctx := context.Background()
	store := inmem.NewStore()
	w := columnar.NewWriter(store, columnar.Config{Prefix: "w"}, logger.NopLogger)
	w.NewRunID = func() string { return "q1" }
	desc := schema.MustLookup("materials")

	b := coerceBatch(t, coerce.PolicyQuarantine, desc, []batch.Record{
		{"id": "m1", "quantity_in_stock": "lots"},
		{"id": "m2", "quantity_in_stock": 3.0},
		{"id": 9},
	})
	require.Len(t, b.Quarantined, 2)

	key, err := w.WriteQuarantine(ctx, "farm", desc, b.IngestTime, b.Quarantined)
	require.NoError(t, err)
	assert.Equal(t, "w/farm/materials/quarantine/ingest_date=2024-05-01/run_id=q1/part-00000.jsonl", key)

	data, err := store.Get(ctx, key)
	require.NoError(t, err)
	sc := bufio.NewScanner(bytes.NewReader(data))
	var lines []coerce.Quarantined
	for sc.Scan() {
		var q coerce.Quarantined
		require.NoError(t, json.Unmarshal(sc.Bytes(), &q))
		lines = append(lines, q)
	}
	require.Len(t, lines, 2)
	assert.Equal(t, "m1", lines[0].Record["id"])
	assert.Equal(t, []string{"quantity_in_stock"}, lines[0].Fields)
	assert.Equal(t, []string{"id"}, lines[1].Fields)

	key, err = w.WriteQuarantine(ctx, "farm", desc, b.IngestTime, nil)
	require.NoError(t, err)
	assert.Equal(t, "", key)
}

func TestParsePartition(t *testing.T) {
	p, ok := columnar.ParsePartition("w/farm/orders/data/ingest_date=2024-05-01/run_id=abc/part-00003.parquet")
	require.True(t, ok)
	assert.Equal(t, map[string]string{"ingest_date": "2024-05-01", "run_id": "abc"}, p)

	_, ok = columnar.ParsePartition("w/farm/orders/data/part-00003.parquet")
	assert.False(t, ok)
	_, ok = columnar.ParsePartition("w/farm/orders/quarantine/ingest_date=2024-05-01/run_id=abc/part-00000.jsonl")
	assert.False(t, ok)
}
