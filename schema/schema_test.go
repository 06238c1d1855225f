package schema_test

import (
	"testing"

	"github.com/apache/arrow/go/v10/arrow"
	"github.com/featurebasedb/lakeingest/errors"
	"github.com/featurebasedb/lakeingest/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	for _, name := range []string{"Order", "orders", "ORDERS", " order "} {
		d, err := schema.Lookup(name)
		require.NoError(t, err, name)
		assert.Equal(t, schema.EntityOrder, d.Entity)
	}

	d, err := schema.Lookup("variety_inventory")
	require.NoError(t, err)
	assert.Equal(t, schema.EntityVarietyInventory, d.Entity)

	_, err = schema.Lookup("customers")
	if assert.Error(t, err) {
		assert.True(t, errors.Is(err, schema.ErrUnknownEntity))
	}
}

func TestDescriptors(t *testing.T) {
	ds := schema.Descriptors()
	assert.Len(t, ds, 6)

	for _, d := range ds {
		t.Run(d.Table, func(t *testing.T) {
			seen := map[string]bool{}
			for _, c := range d.AllColumns() {
				for _, n := range c.FieldNames() {
					assert.False(t, seen[n], "field name %s claimed twice", n)
					seen[n] = true
				}
			}
			assert.Equal(t, "id", d.Columns[0].Name)

			sc := d.ArrowSchema()
			assert.Equal(t, len(d.Columns)+1, len(sc.Fields()))
			last := sc.Field(len(sc.Fields()) - 1)
			assert.Equal(t, schema.IngestColumn, last.Name)
			assert.False(t, last.Nullable)
			assert.True(t, arrow.TypeEqual(&arrow.TimestampType{Unit: arrow.Millisecond, TimeZone: "UTC"}, last.Type))
		})
	}
}

func TestOrdersArrowSchema(t *testing.T) {
	sc := schema.MustLookup("orders").ArrowSchema()
	exp := arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.BinaryTypes.String},
		{Name: "variety", Type: arrow.BinaryTypes.String},
		{Name: "quantity_in_kg", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
		{Name: "delivery_date", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "price_in_euro", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
		{Name: "_ingest_ts_ms", Type: &arrow.TimestampType{Unit: arrow.Millisecond, TimeZone: "UTC"}},
	}, nil)
	assert.True(t, exp.Equal(sc), "got %v", sc)
}

func TestParseType(t *testing.T) {
	for _, typ := range []schema.Type{schema.TypeString, schema.TypeFloat64, schema.TypeUint32, schema.TypeTimestampMillis} {
		got, err := schema.ParseType(typ.String())
		require.NoError(t, err)
		assert.Equal(t, typ, got)
	}
	_, err := schema.ParseType("decimal")
	assert.True(t, errors.Is(err, schema.ErrUnknownType))
}
