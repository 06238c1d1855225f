// Package schema is the registry of entity descriptors: for each entity type
// the fixed, ordered column schema of its table and the source field names
// (primary plus aliases) each column is extracted from.
package schema

import (
	"fmt"
	"strings"

	"github.com/apache/arrow/go/v10/arrow"
	"github.com/featurebasedb/lakeingest/errors"
)

// IngestColumn is the synthetic column stamped once per batch with the
// coercion time. It is always the last column of a table.
const IngestColumn = "_ingest_ts_ms"

const (
	ErrUnknownEntity errors.Code = "UnknownEntity"
	ErrUnknownType   errors.Code = "UnknownType"
)

func NewErrUnknownEntity(name string) error {
	return errors.New(
		ErrUnknownEntity,
		fmt.Sprintf("unknown entity '%s'", name),
	)
}

// EntityType names one of the closed set of entities this system ingests.
type EntityType string

const (
	EntityOrder                EntityType = "Order"
	EntityVariety              EntityType = "Variety"
	EntityVarietyInventory     EntityType = "VarietyInventory"
	EntityMaterial             EntityType = "Material"
	EntityBatch                EntityType = "Batch"
	EntityInventoryTransaction EntityType = "InventoryTransaction"
)

// Type is the semantic type of a column.
type Type int

const (
	TypeString Type = iota + 1
	TypeFloat64
	TypeUint32
	TypeTimestampMillis
)

var typeNames = map[Type]string{
	TypeString:          "string",
	TypeFloat64:         "float64",
	TypeUint32:          "uint32",
	TypeTimestampMillis: "timestamp_ms",
}

func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// ParseType is the inverse of Type.String.
func ParseType(s string) (Type, error) {
	for t, name := range typeNames {
		if name == s {
			return t, nil
		}
	}
	return 0, errors.New(ErrUnknownType, fmt.Sprintf("unknown column type '%s'", s))
}

// ArrowType returns the arrow data type a column of this type is stored as.
func (t Type) ArrowType() arrow.DataType {
	switch t {
	case TypeString:
		return arrow.BinaryTypes.String
	case TypeFloat64:
		return arrow.PrimitiveTypes.Float64
	case TypeUint32:
		return arrow.PrimitiveTypes.Uint32
	case TypeTimestampMillis:
		// Parquet stores millisecond timestamps as UTC instants and reads
		// them back with the UTC zone.
		return arrow.FixedWidthTypes.Timestamp_ms
	}
	panic(fmt.Sprintf("no arrow type for %v", t))
}

// Column describes one column of an entity table and where its value comes
// from in a source record.
type Column struct {
	Name     string
	Type     Type
	Nullable bool

	// Aliases are alternate source field names tried, in order, when the
	// record has no field called Name.
	Aliases []string
}

// FieldNames returns the source field names to try for this column, primary
// name first.
func (c Column) FieldNames() []string {
	return append([]string{c.Name}, c.Aliases...)
}

// Descriptor describes an entity: its table name and its columns, not
// including IngestColumn.
type Descriptor struct {
	Entity  EntityType
	Table   string
	Columns []Column
}

// AllColumns returns the table's full column list, ending with IngestColumn.
func (d *Descriptor) AllColumns() []Column {
	cols := make([]Column, 0, len(d.Columns)+1)
	cols = append(cols, d.Columns...)
	return append(cols, Column{Name: IngestColumn, Type: TypeTimestampMillis})
}

// ArrowSchema returns the arrow schema every columnar batch and file of this
// entity must match exactly.
func (d *Descriptor) ArrowSchema() *arrow.Schema {
	cols := d.AllColumns()
	fields := make([]arrow.Field, len(cols))
	for i, c := range cols {
		fields[i] = arrow.Field{Name: c.Name, Type: c.Type.ArrowType(), Nullable: c.Nullable}
	}
	return arrow.NewSchema(fields, nil)
}

// Lookup returns the descriptor for name, which may be an entity name
// ("VarietyInventory") or a table name ("variety_inventory"), compared case
// insensitively.
func Lookup(name string) (*Descriptor, error) {
	n := strings.TrimSpace(name)
	for _, d := range registry {
		if strings.EqualFold(string(d.Entity), n) || strings.EqualFold(d.Table, n) {
			return d, nil
		}
	}
	return nil, NewErrUnknownEntity(name)
}

// MustLookup is like Lookup but panics on an unknown entity.
func MustLookup(name string) *Descriptor {
	d, err := Lookup(name)
	if err != nil {
		panic(err)
	}
	return d
}

// Descriptors returns every registered descriptor in registration order.
func Descriptors() []*Descriptor {
	out := make([]*Descriptor, len(registry))
	copy(out, registry)
	return out
}
