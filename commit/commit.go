// Package commit registers written data files with the catalog. The
// Coordinator creates the destination namespace and table on first use and
// appends files as a new snapshot, retrying when a concurrent writer moved
// the table forward.
package commit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/featurebasedb/lakeingest/catalog"
	"github.com/featurebasedb/lakeingest/columnar"
	"github.com/featurebasedb/lakeingest/errors"
	"github.com/featurebasedb/lakeingest/logger"
	"github.com/featurebasedb/lakeingest/schema"
	"github.com/featurebasedb/lakeingest/tracing"
)

const (
	ErrCommitFailed   errors.Code = "CommitFailed"
	ErrSchemaMismatch errors.Code = "SchemaMismatch"
)

// Coordinator defaults.
const (
	DefaultMaxAttempts     = 8
	DefaultRetryBackoff    = 50 * time.Millisecond
	DefaultRetryMaxBackoff = 2 * time.Second
)

type Config struct {
	// Prefix is the warehouse prefix table locations are derived from. It
	// should match the columnar writer's prefix.
	Prefix string

	// MaxAttempts bounds the number of appends tried when commits conflict.
	MaxAttempts     int
	RetryBackoff    time.Duration
	RetryMaxBackoff time.Duration

	// Properties are set on namespaces the coordinator creates.
	Properties map[string]string
}

// Result describes a successful Append.
type Result struct {
	Ident      catalog.TableIdent
	SnapshotID int64

	// Duplicate is true if every file was already registered, in which case
	// no snapshot was created and SnapshotID is the current one.
	Duplicate bool

	// Attempts is the number of appends tried, counting conflicts.
	Attempts int

	CreatedNamespace bool
	CreatedTable     bool
}

// Coordinator commits data files to tables in a catalog. It is safe for
// concurrent use by multiple pipelines.
type Coordinator struct {
	catalog catalog.Catalog
	cfg     Config
	logger  logger.Logger
}

func NewCoordinator(c catalog.Catalog, cfg Config, log logger.Logger) *Coordinator {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = DefaultRetryBackoff
	}
	if cfg.RetryMaxBackoff <= 0 {
		cfg.RetryMaxBackoff = DefaultRetryMaxBackoff
	}
	if log == nil {
		log = logger.NopLogger
	}
	return &Coordinator{
		catalog: c,
		cfg:     cfg,
		logger:  log,
	}
}

func (c *Coordinator) Catalog() catalog.Catalog { return c.catalog }

// TableSchema returns the catalog schema of an entity's table.
func TableSchema(desc *schema.Descriptor) catalog.Schema {
	cols := desc.AllColumns()
	out := catalog.Schema{Columns: make([]catalog.Column, len(cols))}
	for i, col := range cols {
		out.Columns[i] = catalog.Column{
			ID:       i + 1,
			Name:     col.Name,
			Type:     col.Type.String(),
			Required: !col.Nullable,
		}
	}
	return out
}

// DataFile converts a written file to its catalog entry.
func DataFile(f columnar.File) catalog.DataFile {
	return catalog.DataFile{
		Path:          f.Path,
		Format:        catalog.FormatParquet,
		RecordCount:   f.Rows,
		FileSizeBytes: f.Size,
		Partition:     f.Partition(),
		Checksum:      f.Checksum,
	}
}

// Append makes files visible in the entity's table in namespace, creating
// the namespace and table if needed. Files already registered are skipped.
func (c *Coordinator) Append(ctx context.Context, namespace string, desc *schema.Descriptor, files []columnar.File) (*Result, error) {
	span, ctx := tracing.StartSpanFromContext(ctx, "Coordinator.Append")
	defer span.Finish()

	ident := catalog.NewTableIdent(namespace, desc.Table)
	if len(files) == 0 {
		return nil, catalog.NewErrInvalidArgument(fmt.Sprintf("no files to commit to %s", ident))
	}
	res := &Result{Ident: ident}

	tbl, err := c.ensureTable(ctx, ident, desc, res)
	if err != nil {
		return nil, err
	}
	want := TableSchema(desc)
	if !tbl.Schema.Equal(want) {
		return nil, errors.New(ErrSchemaMismatch,
			fmt.Sprintf("table %s has a schema different from entity %s", ident, desc.Entity))
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.RetryBackoff
	bo.MaxInterval = c.cfg.RetryMaxBackoff
	bo.MaxElapsedTime = 0

	var snap *catalog.Snapshot
	err = backoff.Retry(func() error {
		if res.Attempts > 0 {
			if tbl, err = c.catalog.LoadTable(ctx, ident); err != nil {
				return backoff.Permanent(err)
			}
		}
		res.Attempts++

		pending := newFiles(tbl.CurrentSnapshot(), files)
		if len(pending) == 0 {
			res.Duplicate = true
			res.SnapshotID = tbl.CurrentSnapshotID
			return nil
		}

		snap, err = c.catalog.AppendFiles(ctx, ident, tbl.CurrentSnapshotID, pending)
		if errors.Is(err, catalog.ErrCommitConflict) {
			c.logger.Debugf("commit to %s conflicted on attempt %d: %v", ident, res.Attempts, err)
			return err
		} else if err != nil {
			return backoff.Permanent(err)
		}
		res.SnapshotID = snap.SnapshotID
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(c.cfg.MaxAttempts-1)), ctx))
	if errors.Is(err, catalog.ErrCommitConflict) {
		return nil, errors.New(ErrCommitFailed,
			fmt.Sprintf("committing %d files to %s: gave up after %d attempts: %v", len(files), ident, res.Attempts, err))
	} else if err != nil {
		return nil, errors.Wrapf(err, "committing to %s", ident)
	}

	span.LogKV("table", ident.String(), "snapshot", res.SnapshotID, "attempts", res.Attempts)
	if res.Duplicate {
		c.logger.Infof("files already committed to %s at snapshot %d", ident, res.SnapshotID)
	} else {
		c.logger.Infof("committed %d files to %s as snapshot %d", len(files), ident, res.SnapshotID)
	}
	return res, nil
}

// ensureTable loads the table, creating its namespace and the table itself
// when they are absent. Losing a creation race to another writer is not an
// error.
func (c *Coordinator) ensureTable(ctx context.Context, ident catalog.TableIdent, desc *schema.Descriptor, res *Result) (*catalog.Table, error) {
	tbl, err := c.catalog.LoadTable(ctx, ident)
	if err == nil {
		return tbl, nil
	} else if !errors.Is(err, catalog.ErrTableNotFound) && !errors.Is(err, catalog.ErrNamespaceNotFound) {
		return nil, errors.Wrapf(err, "loading table %s", ident)
	}

	err = c.catalog.CreateNamespace(ctx, ident.Namespace, c.cfg.Properties)
	switch {
	case err == nil:
		res.CreatedNamespace = true
		c.logger.Infof("created namespace %s", ident.Namespace)
	case errors.Is(err, catalog.ErrNamespaceExists):
	default:
		return nil, errors.Wrapf(err, "creating namespace %s", ident.Namespace)
	}

	location := strings.TrimSuffix(columnar.TablePrefix(c.cfg.Prefix, ident.Namespace, ident.Name), "/")
	tbl, err = c.catalog.CreateTable(ctx, ident, TableSchema(desc), location)
	switch {
	case err == nil:
		res.CreatedTable = true
		c.logger.Infof("created table %s at %s", ident, location)
		return tbl, nil
	case errors.Is(err, catalog.ErrTableExists):
		tbl, err = c.catalog.LoadTable(ctx, ident)
		return tbl, errors.Wrapf(err, "reloading table %s", ident)
	default:
		return nil, errors.Wrapf(err, "creating table %s", ident)
	}
}

// newFiles returns the files of files not registered in snap.
func newFiles(snap *catalog.Snapshot, files []columnar.File) []catalog.DataFile {
	out := make([]catalog.DataFile, 0, len(files))
	for _, f := range files {
		if snap != nil && snap.HasFile(f.Path) {
			continue
		}
		out = append(out, DataFile(f))
	}
	return out
}
