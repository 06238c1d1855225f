// Package catalog defines the table catalog: namespaces, tables with a fixed
// schema, and the append-only snapshot history that makes data files
// visible to readers.
package catalog

import (
	"context"
	"fmt"
	"strings"
)

// Catalog is the metadata store for tables. Implementations must be safe for
// concurrent use, and AppendFiles must be atomic with respect to other
// appends on the same table.
type Catalog interface {
	// CreateNamespace returns an error coded ErrNamespaceExists if the
	// namespace is already present.
	CreateNamespace(ctx context.Context, namespace string, props map[string]string) error
	ListNamespaces(ctx context.Context) ([]string, error)

	// CreateTable returns an error coded ErrTableExists if the table is
	// already present, and ErrNamespaceNotFound if its namespace is not.
	CreateTable(ctx context.Context, ident TableIdent, schema Schema, location string) (*Table, error)

	// LoadTable returns an error coded ErrTableNotFound if the table does
	// not exist.
	LoadTable(ctx context.Context, ident TableIdent) (*Table, error)
	ListTables(ctx context.Context, namespace string) ([]TableIdent, error)

	// AppendFiles adds files to the table as a new snapshot whose parent is
	// baseSnapshotID. If baseSnapshotID is not the table's current snapshot
	// the append fails with ErrCommitConflict. Files whose path is already
	// registered are skipped; if none remain, the current snapshot is
	// returned unchanged.
	AppendFiles(ctx context.Context, ident TableIdent, baseSnapshotID int64, files []DataFile) (*Snapshot, error)
}

// TableIdent identifies a table within the catalog.
type TableIdent struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
}

func NewTableIdent(namespace, name string) TableIdent {
	return TableIdent{Namespace: namespace, Name: name}
}

func (t TableIdent) String() string {
	return t.Namespace + "." + t.Name
}

// Validate returns an error if either part of the identifier is unusable.
func (t TableIdent) Validate() error {
	if err := ValidateNamespace(t.Namespace); err != nil {
		return err
	}
	if t.Name == "" || strings.ContainsAny(t.Name, "/. ") {
		return NewErrInvalidArgument(fmt.Sprintf("invalid table name '%s'", t.Name))
	}
	return nil
}

// ValidateNamespace returns an error if ns cannot be used as a namespace.
func ValidateNamespace(ns string) error {
	if ns == "" || strings.ContainsAny(ns, "/. ") {
		return NewErrInvalidArgument(fmt.Sprintf("invalid namespace '%s'", ns))
	}
	return nil
}
