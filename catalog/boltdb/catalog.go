// Package boltdb contains the boltdb implementation of catalog.Catalog.
package boltdb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/featurebasedb/lakeingest/boltdb"
	"github.com/featurebasedb/lakeingest/catalog"
	"github.com/featurebasedb/lakeingest/errors"
	"github.com/featurebasedb/lakeingest/logger"
)

var (
	bucketCatalog = boltdb.Bucket("catalog")
)

// CatalogBuckets defines the buckets used by this package. It can be called
// during setup to create the buckets ahead of time.
var CatalogBuckets []boltdb.Bucket = []boltdb.Bucket{
	bucketCatalog,
}

// Ensure type implements interface.
var _ catalog.Catalog = (*Catalog)(nil)

// Catalog stores namespaces and whole table metadata documents as JSON.
// Appends run in a single write transaction, which bolt serializes.
type Catalog struct {
	db *boltdb.DB

	logger logger.Logger
}

// NewCatalog returns a new instance of Catalog. The db must have been opened
// with CatalogBuckets registered.
func NewCatalog(db *boltdb.DB, logger logger.Logger) *Catalog {
	return &Catalog{
		db:     db,
		logger: logger,
	}
}

// CreateNamespace creates ns. If it already exists an error is returned.
func (c *Catalog) CreateNamespace(ctx context.Context, ns string, props map[string]string) error {
	if err := catalog.ValidateNamespace(ns); err != nil {
		return err
	}

	tx, err := c.db.BeginTx(ctx, true)
	if err != nil {
		return errors.Wrap(err, "getting transaction")
	}
	defer tx.Rollback()

	bkt, err := tx.Bkt(bucketCatalog)
	if err != nil {
		return err
	}
	if bkt.Get(namespaceKey(ns)) != nil {
		return catalog.NewErrNamespaceExists(ns)
	}

	if props == nil {
		props = map[string]string{}
	}
	val, err := json.Marshal(props)
	if err != nil {
		return errors.Wrap(err, "marshalling namespace properties")
	}
	if err := bkt.Put(namespaceKey(ns), val); err != nil {
		return errors.Wrap(err, "putting namespace")
	}

	return tx.Commit()
}

func (c *Catalog) ListNamespaces(ctx context.Context) ([]string, error) {
	tx, err := c.db.BeginTx(ctx, false)
	if err != nil {
		return nil, errors.Wrap(err, "beginning tx")
	}
	defer tx.Rollback()

	bkt, err := tx.Bkt(bucketCatalog)
	if err != nil {
		return nil, err
	}

	out := make([]string, 0)
	prefix := []byte(prefixNamespaces)
	cur := bkt.Cursor()
	for k, _ := cur.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = cur.Next() {
		out = append(out, strings.TrimPrefix(string(k), prefixNamespaces))
	}
	return out, nil
}

// CreateTable creates the table. Its namespace must exist and the table must
// not.
func (c *Catalog) CreateTable(ctx context.Context, ident catalog.TableIdent, schema catalog.Schema, location string) (*catalog.Table, error) {
	if err := ident.Validate(); err != nil {
		return nil, err
	}

	tx, err := c.db.BeginTx(ctx, true)
	if err != nil {
		return nil, errors.Wrap(err, "getting transaction")
	}
	defer tx.Rollback()

	bkt, err := tx.Bkt(bucketCatalog)
	if err != nil {
		return nil, err
	}
	if bkt.Get(namespaceKey(ident.Namespace)) == nil {
		return nil, catalog.NewErrNamespaceNotFound(ident.Namespace)
	}
	if bkt.Get(tableKey(ident)) != nil {
		return nil, catalog.NewErrTableExists(ident)
	}

	tbl := catalog.NewTable(ident, schema, location, tx.Now())
	if err := c.putTable(tx, tbl); err != nil {
		return nil, errors.Wrap(err, "putting table")
	}

	return tbl, tx.Commit()
}

// LoadTable returns the table's metadata. An error is returned if the table
// does not exist.
func (c *Catalog) LoadTable(ctx context.Context, ident catalog.TableIdent) (*catalog.Table, error) {
	tx, err := c.db.BeginTx(ctx, false)
	if err != nil {
		return nil, errors.Wrap(err, "beginning tx")
	}
	defer tx.Rollback()

	return c.table(tx, ident)
}

func (c *Catalog) ListTables(ctx context.Context, ns string) ([]catalog.TableIdent, error) {
	tx, err := c.db.BeginTx(ctx, false)
	if err != nil {
		return nil, errors.Wrap(err, "beginning tx")
	}
	defer tx.Rollback()

	bkt, err := tx.Bkt(bucketCatalog)
	if err != nil {
		return nil, err
	}
	if bkt.Get(namespaceKey(ns)) == nil {
		return nil, catalog.NewErrNamespaceNotFound(ns)
	}

	out := make([]catalog.TableIdent, 0)
	prefix := []byte(fmt.Sprintf(prefixFmtTables, ns))
	cur := bkt.Cursor()
	for k, v := cur.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = cur.Next() {
		if v == nil {
			c.logger.Printf("nil value for key: %s", k)
			continue
		}
		out = append(out, catalog.NewTableIdent(ns, strings.TrimPrefix(string(k), string(prefix))))
	}
	return out, nil
}

// AppendFiles commits files as a new snapshot of the table.
func (c *Catalog) AppendFiles(ctx context.Context, ident catalog.TableIdent, base int64, files []catalog.DataFile) (*catalog.Snapshot, error) {
	tx, err := c.db.BeginTx(ctx, true)
	if err != nil {
		return nil, errors.Wrap(err, "getting transaction")
	}
	defer tx.Rollback()

	tbl, err := c.table(tx, ident)
	if err != nil {
		return nil, err
	}
	current := tbl.CurrentSnapshotID

	snap, err := tbl.Append(base, files, tx.Now())
	if err != nil {
		return nil, err
	}
	if snap.SnapshotID == current {
		// Every file was already registered; nothing to write.
		return snap, nil
	}

	if err := c.putTable(tx, tbl); err != nil {
		return nil, errors.Wrap(err, "putting table")
	}
	return snap, tx.Commit()
}

func (c *Catalog) table(tx *boltdb.Tx, ident catalog.TableIdent) (*catalog.Table, error) {
	bkt, err := tx.Bkt(bucketCatalog)
	if err != nil {
		return nil, err
	}

	b := bkt.Get(tableKey(ident))
	if b == nil {
		return nil, catalog.NewErrTableNotFound(ident)
	}

	tbl := &catalog.Table{}
	if err := json.Unmarshal(b, tbl); err != nil {
		return nil, errors.Wrap(err, "unmarshalling table json")
	}
	return tbl, nil
}

func (c *Catalog) putTable(tx *boltdb.Tx, tbl *catalog.Table) error {
	bkt, err := tx.Bkt(bucketCatalog)
	if err != nil {
		return err
	}

	val, err := json.Marshal(tbl)
	if err != nil {
		return errors.Wrap(err, "marshalling table to json")
	}

	return bkt.Put(tableKey(tbl.Ident), val)
}

const (
	prefixNamespaces = "namespaces/"
	prefixFmtTables  = "tables/%s/"
)

// namespaceKey returns the key a namespace's properties are stored under.
func namespaceKey(ns string) []byte {
	return []byte(prefixNamespaces + ns)
}

// tableKey returns the key a table's metadata is stored under.
func tableKey(ident catalog.TableIdent) []byte {
	return []byte(fmt.Sprintf(prefixFmtTables+"%s", ident.Namespace, ident.Name))
}
