// Package reader reconstructs the full contents of a table from its data
// files for inspection. It is not used on the write path.
package reader

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/apache/arrow/go/v10/arrow"
	"github.com/apache/arrow/go/v10/arrow/array"
	"github.com/apache/arrow/go/v10/arrow/memory"
	"github.com/featurebasedb/lakeingest/catalog"
	"github.com/featurebasedb/lakeingest/columnar"
	"github.com/featurebasedb/lakeingest/errors"
	"github.com/featurebasedb/lakeingest/logger"
	"github.com/featurebasedb/lakeingest/schema"
	"github.com/featurebasedb/lakeingest/storage"
)

// Column is a column of a Table as listed by Read.
type Column struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

// Table is a decoded table. Values are string, float64, uint32, time.Time
// (UTC) or nil for null.
type Table struct {
	Columns []Column        `json:"columns"`
	Rows    [][]interface{} `json:"rows"`

	// Files are the keys of the data files read, in read order.
	Files []string `json:"files"`

	// SnapshotID is the snapshot read when reading FromSnapshot.
	SnapshotID int64 `json:"snapshot_id,omitempty"`
}

// ColumnIndex returns the index of the named column, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

type options struct {
	fromSnapshot bool
}

// Option configures Read.
type Option func(*options)

// FromSnapshot restricts the scan to the files of the table's current
// snapshot, hiding files that were written but never committed.
func FromSnapshot() Option {
	return func(o *options) {
		o.fromSnapshot = true
	}
}

type Reader struct {
	store   storage.Store
	catalog catalog.Catalog
	prefix  string
	mem     memory.Allocator
	logger  logger.Logger
}

// New returns a Reader for the warehouse under prefix. cat is only needed
// for FromSnapshot and may be nil.
func New(store storage.Store, cat catalog.Catalog, prefix string, log logger.Logger) *Reader {
	if log == nil {
		log = logger.NopLogger
	}
	return &Reader{
		store:   store,
		catalog: cat,
		prefix:  prefix,
		mem:     memory.NewGoAllocator(),
		logger:  log,
	}
}

// Read decodes every data file of the entity's table in namespace and
// returns the rows ordered by ingest time, newest first. Rows with the same
// ingest time keep their file order.
func (r *Reader) Read(ctx context.Context, namespace, entity string, opts ...Option) (*Table, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	desc, err := schema.Lookup(entity)
	if err != nil {
		return nil, err
	}

	out := &Table{}
	for _, c := range desc.AllColumns() {
		out.Columns = append(out.Columns, Column{Name: c.Name, Type: c.Type.String(), Nullable: c.Nullable})
	}

	keys, snapID, err := r.files(ctx, namespace, desc, o)
	if err != nil {
		return nil, err
	}
	out.SnapshotID = snapID

	want := desc.ArrowSchema()
	for _, key := range keys {
		data, err := r.store.Get(ctx, key)
		if err != nil {
			return nil, errors.Wrapf(err, "getting %s", key)
		}
		rows, err := r.decode(ctx, key, data, want)
		if err != nil {
			return nil, err
		}
		out.Rows = append(out.Rows, rows...)
		out.Files = append(out.Files, key)
	}

	ts := out.ColumnIndex(schema.IngestColumn)
	sort.SliceStable(out.Rows, func(i, j int) bool {
		a, _ := out.Rows[i][ts].(time.Time)
		b, _ := out.Rows[j][ts].(time.Time)
		return a.After(b)
	})

	r.logger.Debugf("read %d rows from %d files of %s.%s", len(out.Rows), len(out.Files), namespace, desc.Table)
	return out, nil
}

// files returns the data file keys to read, sorted.
func (r *Reader) files(ctx context.Context, namespace string, desc *schema.Descriptor, o options) ([]string, int64, error) {
	if o.fromSnapshot {
		if r.catalog == nil {
			return nil, 0, errors.New(errors.ErrUncoded, "reading from a snapshot requires a catalog")
		}
		tbl, err := r.catalog.LoadTable(ctx, catalog.NewTableIdent(namespace, desc.Table))
		if err != nil {
			return nil, 0, err
		}
		var keys []string
		for _, f := range tbl.Files() {
			keys = append(keys, f.Path)
		}
		sort.Strings(keys)
		return keys, tbl.CurrentSnapshotID, nil
	}

	objs, err := r.store.List(ctx, columnar.DataPrefix(r.prefix, namespace, desc.Table))
	if err != nil {
		return nil, 0, errors.Wrap(err, "listing data files")
	}
	var keys []string
	for _, obj := range objs {
		if strings.HasSuffix(obj.Key, columnar.DataExt) {
			keys = append(keys, obj.Key)
		}
	}
	return keys, 0, nil
}

func (r *Reader) decode(ctx context.Context, key string, data []byte, want *arrow.Schema) ([][]interface{}, error) {
	tbl, err := columnar.Decode(ctx, data, r.mem)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding %s", key)
	}
	defer tbl.Release()

	sc := tbl.Schema()
	if len(sc.Fields()) != len(want.Fields()) {
		return nil, errors.Errorf("%s has %d columns, want %d", key, len(sc.Fields()), len(want.Fields()))
	}
	for i, f := range want.Fields() {
		got := sc.Field(i)
		if got.Name != f.Name || !arrow.TypeEqual(got.Type, f.Type) {
			return nil, errors.Errorf("%s column %d is %s %s, want %s %s", key, i, got.Name, got.Type, f.Name, f.Type)
		}
	}

	rows, err := Rows(tbl)
	return rows, errors.Wrap(err, key)
}

// Rows converts a decoded table to rows of Go values. It supports the
// column types entity tables are written with.
func Rows(tbl arrow.Table) ([][]interface{}, error) {
	sc := tbl.Schema()
	rows := make([][]interface{}, tbl.NumRows())
	for i := range rows {
		rows[i] = make([]interface{}, len(sc.Fields()))
	}
	for c := 0; c < int(tbl.NumCols()); c++ {
		row := 0
		for _, chunk := range tbl.Column(c).Data().Chunks() {
			for i := 0; i < chunk.Len(); i++ {
				v, err := value(chunk, i)
				if err != nil {
					return nil, errors.Wrapf(err, "column %s", sc.Field(c).Name)
				}
				rows[row][c] = v
				row++
			}
		}
	}
	return rows, nil
}

func value(arr arrow.Array, i int) (interface{}, error) {
	if arr.IsNull(i) {
		return nil, nil
	}
	switch a := arr.(type) {
	case *array.String:
		return a.Value(i), nil
	case *array.Float64:
		return a.Value(i), nil
	case *array.Uint32:
		return a.Value(i), nil
	case *array.Timestamp:
		return time.UnixMilli(int64(a.Value(i))).UTC(), nil
	}
	return nil, errors.Errorf("unsupported array type %s", arr.DataType())
}
