// Package inmem provides an in-memory implementation of catalog.Catalog.
package inmem

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/featurebasedb/lakeingest/catalog"
)

// Ensure type implements interface.
var _ catalog.Catalog = (*Catalog)(nil)

type Catalog struct {
	mu         sync.Mutex
	namespaces map[string]map[string]string
	tables     map[catalog.TableIdent]*catalog.Table

	// Now is used to timestamp tables and snapshots. Defaults to time.Now.
	Now func() time.Time
}

// NewCatalog returns a new, empty Catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		namespaces: make(map[string]map[string]string),
		tables:     make(map[catalog.TableIdent]*catalog.Table),
		Now:        time.Now,
	}
}

func (c *Catalog) CreateNamespace(ctx context.Context, ns string, props map[string]string) error {
	if err := catalog.ValidateNamespace(ns); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.namespaces[ns]; ok {
		return catalog.NewErrNamespaceExists(ns)
	}
	p := make(map[string]string, len(props))
	for k, v := range props {
		p[k] = v
	}
	c.namespaces[ns] = p
	return nil
}

func (c *Catalog) ListNamespaces(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]string, 0, len(c.namespaces))
	for ns := range c.namespaces {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out, nil
}

func (c *Catalog) CreateTable(ctx context.Context, ident catalog.TableIdent, schema catalog.Schema, location string) (*catalog.Table, error) {
	if err := ident.Validate(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.namespaces[ident.Namespace]; !ok {
		return nil, catalog.NewErrNamespaceNotFound(ident.Namespace)
	}
	if _, ok := c.tables[ident]; ok {
		return nil, catalog.NewErrTableExists(ident)
	}
	tbl := catalog.NewTable(ident, schema, location, c.Now())
	c.tables[ident] = tbl
	return tbl.Clone(), nil
}

func (c *Catalog) LoadTable(ctx context.Context, ident catalog.TableIdent) (*catalog.Table, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tbl, ok := c.tables[ident]
	if !ok {
		return nil, catalog.NewErrTableNotFound(ident)
	}
	return tbl.Clone(), nil
}

func (c *Catalog) ListTables(ctx context.Context, ns string) ([]catalog.TableIdent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.namespaces[ns]; !ok {
		return nil, catalog.NewErrNamespaceNotFound(ns)
	}
	out := make([]catalog.TableIdent, 0)
	for ident := range c.tables {
		if ident.Namespace == ns {
			out = append(out, ident)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (c *Catalog) AppendFiles(ctx context.Context, ident catalog.TableIdent, base int64, files []catalog.DataFile) (*catalog.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	tbl, ok := c.tables[ident]
	if !ok {
		return nil, catalog.NewErrTableNotFound(ident)
	}
	// Apply to a copy so a failed append leaves the table untouched.
	next := tbl.Clone()
	snap, err := next.Append(base, files, c.Now())
	if err != nil {
		return nil, err
	}
	c.tables[ident] = next
	return next.Clone().Snapshot(snap.SnapshotID), nil
}
