// Package columnar writes coerced batches to durable storage as immutable
// Parquet files laid out by ingest date and run.
package columnar

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/apache/arrow/go/v10/arrow"
	"github.com/apache/arrow/go/v10/arrow/array"
	"github.com/apache/arrow/go/v10/parquet"
	"github.com/apache/arrow/go/v10/parquet/compress"
	"github.com/apache/arrow/go/v10/parquet/pqarrow"
	"github.com/cenkalti/backoff/v4"
	"github.com/featurebasedb/lakeingest/coerce"
	"github.com/featurebasedb/lakeingest/errors"
	"github.com/featurebasedb/lakeingest/logger"
	"github.com/featurebasedb/lakeingest/schema"
	"github.com/featurebasedb/lakeingest/storage"
	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

const (
	ErrSerialization errors.Code = "SerializationError"
	ErrUpload        errors.Code = "UploadError"
)

// Writer defaults.
const (
	DefaultMaxRowsPerFile = 1000000
	DefaultRowGroupSize   = 64 * 1024

	DefaultUploadRetries     = 5
	DefaultUploadBackoff     = 200 * time.Millisecond
	DefaultUploadMaxInterval = 5 * time.Second
)

// Config holds the file layout and upload options of a Writer.
type Config struct {
	// Prefix is the key prefix of the warehouse in the store.
	Prefix string

	MaxRowsPerFile int
	RowGroupSize   int

	// UploadRetries is the number of times a failed Put is retried. Zero
	// means DefaultUploadRetries; a negative value disables retries.
	UploadRetries    int
	UploadBackoff    time.Duration
	UploadMaxBackoff time.Duration
}

func (c *Config) setDefaults() {
	if c.MaxRowsPerFile <= 0 {
		c.MaxRowsPerFile = DefaultMaxRowsPerFile
	}
	if c.RowGroupSize <= 0 {
		c.RowGroupSize = DefaultRowGroupSize
	}
	if c.UploadRetries == 0 {
		c.UploadRetries = DefaultUploadRetries
	}
	if c.UploadBackoff <= 0 {
		c.UploadBackoff = DefaultUploadBackoff
	}
	if c.UploadMaxBackoff <= 0 {
		c.UploadMaxBackoff = DefaultUploadMaxInterval
	}
}

// File describes a data file written to the store.
type File struct {
	Path       string `json:"path"`
	Size       int64  `json:"size"`
	Rows       int64  `json:"rows"`
	Checksum   string `json:"checksum"`
	IngestDate string `json:"ingest_date"`
	RunID      string `json:"run_id"`
	Part       int    `json:"part"`
}

// Partition returns the partition values of the file.
func (f File) Partition() map[string]string {
	return map[string]string{
		PartitionIngestDate: f.IngestDate,
		PartitionRunID:      f.RunID,
	}
}

// Encoded is a fully serialized file that has not been uploaded yet.
type Encoded struct {
	File File
	Data []byte
}

// Writer serializes coerced batches and uploads them to a store.
type Writer struct {
	store  storage.Store
	cfg    Config
	logger logger.Logger

	// NewRunID returns the run id of the next batch. Defaults to a random
	// UUID.
	NewRunID func() string
}

func NewWriter(store storage.Store, cfg Config, log logger.Logger) *Writer {
	cfg.setDefaults()
	if log == nil {
		log = logger.NopLogger
	}
	return &Writer{
		store:    store,
		cfg:      cfg,
		logger:   log,
		NewRunID: uuid.NewString,
	}
}

func (w *Writer) Config() Config { return w.cfg }

func (w *Writer) Store() storage.Store { return w.store }

// Write serializes b into one or more files and uploads them, returning the
// files in part order.
func (w *Writer) Write(ctx context.Context, namespace string, desc *schema.Descriptor, b *coerce.Batch) ([]File, error) {
	encoded, err := w.Encode(namespace, desc, b)
	if err != nil {
		return nil, err
	}
	files := make([]File, 0, len(encoded))
	for _, e := range encoded {
		if err := w.Upload(ctx, e); err != nil {
			return files, err
		}
		files = append(files, e.File)
	}
	return files, nil
}

// Encode serializes b without uploading it. Batches larger than
// MaxRowsPerFile are split into parts sharing one run id.
func (w *Writer) Encode(namespace string, desc *schema.Descriptor, b *coerce.Batch) ([]*Encoded, error) {
	if b.Record == nil || b.Rows() == 0 {
		return nil, nil
	}
	if !b.Record.Schema().Equal(desc.ArrowSchema()) {
		return nil, errors.New(ErrSerialization,
			fmt.Sprintf("batch schema does not match %s: %v", desc.Table, b.Record.Schema()))
	}

	runID := w.NewRunID()
	rows := b.Record.NumRows()
	perFile := int64(w.cfg.MaxRowsPerFile)

	var out []*Encoded
	for part, off := 0, int64(0); off < rows; part, off = part+1, off+perFile {
		end := off + perFile
		if end > rows {
			end = rows
		}
		slice := b.Record.NewSlice(off, end)
		data, err := w.encodeRecord(slice)
		slice.Release()
		if err != nil {
			return nil, errors.New(ErrSerialization,
				fmt.Sprintf("encoding %s part %d: %v", desc.Table, part, err))
		}

		out = append(out, &Encoded{
			File: File{
				Path:       DataKey(w.cfg.Prefix, namespace, desc.Table, b.IngestTime, runID, part),
				Size:       int64(len(data)),
				Rows:       end - off,
				Checksum:   Checksum(data),
				IngestDate: IngestDate(b.IngestTime),
				RunID:      runID,
				Part:       part,
			},
			Data: data,
		})
	}
	return out, nil
}

// Checksum returns the hex BLAKE3 digest recorded for a file's contents.
func Checksum(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (w *Writer) encodeRecord(rec arrow.Record) ([]byte, error) {
	tbl := array.NewTableFromRecords(rec.Schema(), []arrow.Record{rec})
	defer tbl.Release()

	props := parquet.NewWriterProperties(
		parquet.WithCompression(compress.Codecs.Snappy),
		parquet.WithMaxRowGroupLength(int64(w.cfg.RowGroupSize)),
	)
	arrProps := pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema())

	var buf bytes.Buffer
	if err := pqarrow.WriteTable(tbl, &buf, int64(w.cfg.RowGroupSize), props, arrProps); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Upload puts an encoded file with a single Put, retrying failures with
// exponential backoff.
func (w *Writer) Upload(ctx context.Context, e *Encoded) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = w.cfg.UploadBackoff
	bo.MaxInterval = w.cfg.UploadMaxBackoff
	bo.MaxElapsedTime = 0

	retries := uint64(0)
	if w.cfg.UploadRetries > 0 {
		retries = uint64(w.cfg.UploadRetries)
	}

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := w.store.Put(ctx, e.File.Path, e.Data)
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		if err != nil {
			w.logger.Warnf("upload attempt %d of %s failed: %v", attempt, e.File.Path, err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(bo, retries), ctx))
	if err != nil {
		return errors.New(ErrUpload,
			fmt.Sprintf("uploading %s after %d attempts: %v", e.File.Path, attempt, err))
	}
	w.logger.Debugf("uploaded %s (%d rows, %d bytes)", e.File.Path, e.File.Rows, e.File.Size)
	return nil
}

// WriteQuarantine writes quarantined records as JSON lines and returns the
// key written to. Nothing is written for an empty slice.
func (w *Writer) WriteQuarantine(ctx context.Context, namespace string, desc *schema.Descriptor, ingest time.Time, recs []coerce.Quarantined) (string, error) {
	if len(recs) == 0 {
		return "", nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, q := range recs {
		if err := enc.Encode(q); err != nil {
			return "", errors.New(ErrSerialization, fmt.Sprintf("encoding quarantined record: %v", err))
		}
	}
	key := QuarantineKey(w.cfg.Prefix, namespace, desc.Table, ingest, w.NewRunID())
	err := w.Upload(ctx, &Encoded{
		File: File{Path: key, Size: int64(buf.Len()), Rows: int64(len(recs))},
		Data: buf.Bytes(),
	})
	return key, err
}
