package columnar

import (
	"bytes"
	"context"
	"fmt"

	"github.com/apache/arrow/go/v10/arrow"
	"github.com/apache/arrow/go/v10/arrow/memory"
	"github.com/apache/arrow/go/v10/parquet/file"
	"github.com/apache/arrow/go/v10/parquet/pqarrow"
	"github.com/featurebasedb/lakeingest/errors"
)

// FileInfo is the metadata of a Parquet file.
type FileInfo struct {
	Rows        int64
	RowGroups   int
	Compression string
	Schema      *arrow.Schema
}

// Decode reads a whole Parquet file into an arrow table. The caller must
// release the table.
func Decode(ctx context.Context, data []byte, mem memory.Allocator) (arrow.Table, error) {
	pf, err := file.NewParquetReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "opening parquet file")
	}
	defer pf.Close()

	reader, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{}, mem)
	if err != nil {
		return nil, errors.Wrap(err, "creating arrow reader")
	}
	table, err := reader.ReadTable(ctx)
	return table, errors.Wrap(err, "reading table")
}

// Inspect returns the metadata of a Parquet file without decoding its rows.
func Inspect(data []byte) (*FileInfo, error) {
	pf, err := file.NewParquetReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "opening parquet file")
	}
	defer pf.Close()

	reader, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
	if err != nil {
		return nil, errors.Wrap(err, "creating arrow reader")
	}
	sc, err := reader.Schema()
	if err != nil {
		return nil, errors.Wrap(err, "reading schema")
	}

	info := &FileInfo{
		Rows:      pf.NumRows(),
		RowGroups: pf.NumRowGroups(),
		Schema:    sc,
	}
	if info.RowGroups > 0 && pf.MetaData().RowGroup(0).NumColumns() > 0 {
		cc, err := pf.MetaData().RowGroup(0).ColumnChunk(0)
		if err != nil {
			return nil, errors.Wrap(err, "reading column chunk metadata")
		}
		info.Compression = fmt.Sprint(cc.Compression())
	}
	return info, nil
}
