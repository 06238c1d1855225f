// Package coerce converts batches of loosely typed records into arrow
// records matching an entity's fixed schema.
package coerce

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/apache/arrow/go/v10/arrow"
	"github.com/apache/arrow/go/v10/arrow/array"
	"github.com/apache/arrow/go/v10/arrow/memory"
	"github.com/featurebasedb/lakeingest/batch"
	"github.com/featurebasedb/lakeingest/errors"
	"github.com/featurebasedb/lakeingest/schema"
)

// TimestampLayout is the layout timestamp strings are parsed with. The
// fractional seconds are optional and the value is taken to be UTC.
const TimestampLayout = "2006-01-02 15:04:05.999999999"

const (
	ErrCoercion      errors.Code = "CoercionError"
	ErrUnknownPolicy errors.Code = "UnknownPolicy"
)

// Policy decides what happens to records holding a field of the wrong type.
type Policy string

const (
	// PolicyDefault replaces invalid values with the column default.
	PolicyDefault Policy = "default"
	// PolicyQuarantine removes records with invalid values from the batch
	// and hands them back separately.
	PolicyQuarantine Policy = "quarantine"
	// PolicyStrict fails the whole batch on the first invalid value.
	PolicyStrict Policy = "strict"
)

func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyDefault, nil
	case PolicyDefault, PolicyQuarantine, PolicyStrict:
		return p, nil
	}
	return "", errors.New(ErrUnknownPolicy, fmt.Sprintf("unknown coercion policy '%s'", s))
}

// Outcome is the result of extracting one field from one record.
type Outcome int

const (
	OutcomePresent Outcome = iota
	OutcomeInvalid
	OutcomeAbsent
)

func (o Outcome) String() string {
	switch o {
	case OutcomePresent:
		return "present"
	case OutcomeInvalid:
		return "invalid"
	case OutcomeAbsent:
		return "absent"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Batch is a coerced batch. The caller owns Record and must call Release.
type Batch struct {
	Record arrow.Record

	// IngestTime is the value stamped into every row's ingest column.
	IngestTime time.Time

	Report Report

	// Quarantined holds the records removed under PolicyQuarantine, in
	// input order.
	Quarantined []Quarantined

	// Sources holds, for each row of Record, the index of the input record
	// it was coerced from.
	Sources []int
}

// Rows returns the number of rows in the coerced record.
func (b *Batch) Rows() int {
	if b.Record == nil {
		return 0
	}
	return int(b.Record.NumRows())
}

func (b *Batch) Release() {
	if b.Record != nil {
		b.Record.Release()
		b.Record = nil
	}
}

// Quarantined is a record set aside because of invalid fields.
type Quarantined struct {
	Record batch.Record `json:"record"`
	Fields []string     `json:"invalid_fields"`
}

// Coercer converts record batches. The zero value is not usable; use
// NewCoercer.
type Coercer struct {
	Policy Policy

	// Now returns the ingest time of a batch.
	Now func() time.Time

	mem memory.Allocator
}

func NewCoercer(policy Policy) *Coercer {
	if policy == "" {
		policy = PolicyDefault
	}
	return &Coercer{
		Policy: policy,
		Now:    time.Now,
		mem:    memory.NewGoAllocator(),
	}
}

// WithAllocator sets the allocator coerced records are built with.
func (c *Coercer) WithAllocator(mem memory.Allocator) *Coercer {
	c.mem = mem
	return c
}

// value is one extracted field.
type value struct {
	outcome Outcome
	v       interface{}
}

// Coerce converts records into a columnar batch for desc. Under
// PolicyDefault it never fails.
func (c *Coercer) Coerce(desc *schema.Descriptor, records []batch.Record) (*Batch, error) {
	ingest := c.Now().UTC()
	out := &Batch{
		IngestTime: ingest,
		Report:     newReport(desc),
	}

	rows := make([][]value, 0, len(records))
	for i, rec := range records {
		row := make([]value, len(desc.Columns))
		var invalid []string
		for j, col := range desc.Columns {
			row[j] = extract(col, rec)
			if row[j].outcome == OutcomeInvalid {
				invalid = append(invalid, col.Name)
			}
		}

		if len(invalid) > 0 {
			switch c.Policy {
			case PolicyStrict:
				col := desc.Columns[indexOf(desc, invalid[0])]
				return nil, errors.New(ErrCoercion,
					fmt.Sprintf("record %d: invalid %s value for %s.%s: %#v",
						i, col.Type, desc.Table, col.Name, rawValue(col, rec)))
			case PolicyQuarantine:
				out.Quarantined = append(out.Quarantined, Quarantined{Record: rec, Fields: invalid})
				out.Report.Quarantined++
				continue
			}
		}
		out.Report.add(desc, row)
		rows = append(rows, row)
		out.Sources = append(out.Sources, i)
	}

	rec, err := c.build(desc, rows, ingest)
	if err != nil {
		return nil, err
	}
	out.Record = rec
	out.Report.Rows = len(rows)
	return out, nil
}

func (c *Coercer) build(desc *schema.Descriptor, rows [][]value, ingest time.Time) (arrow.Record, error) {
	b := array.NewRecordBuilder(c.mem, desc.ArrowSchema())
	defer b.Release()

	for j, col := range desc.Columns {
		fb := b.Field(j)
		fb.Reserve(len(rows))
		for _, row := range rows {
			// Absent and invalid fields hold their type's default.
			v := row[j]
			switch col.Type {
			case schema.TypeString:
				fb.(*array.StringBuilder).Append(v.v.(string))
			case schema.TypeFloat64:
				fb.(*array.Float64Builder).Append(v.v.(float64))
			case schema.TypeUint32:
				fb.(*array.Uint32Builder).Append(v.v.(uint32))
			case schema.TypeTimestampMillis:
				fb.(*array.TimestampBuilder).Append(arrow.Timestamp(v.v.(time.Time).UnixMilli()))
			default:
				return nil, errors.Errorf("no builder for column %s of type %v", col.Name, col.Type)
			}
		}
	}

	ib := b.Field(len(desc.Columns)).(*array.TimestampBuilder)
	ts := arrow.Timestamp(ingest.UnixMilli())
	for range rows {
		ib.Append(ts)
	}

	return b.NewRecord(), nil
}

func indexOf(desc *schema.Descriptor, name string) int {
	for i, c := range desc.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// lookup returns the first non-nil value found under one of the column's
// field names.
func lookup(col schema.Column, rec batch.Record) (interface{}, bool) {
	for _, name := range col.FieldNames() {
		if v, ok := rec[name]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func rawValue(col schema.Column, rec batch.Record) interface{} {
	v, _ := lookup(col, rec)
	return v
}

// extract produces the value of col for rec. Absent and invalid values carry
// the column default.
func extract(col schema.Column, rec batch.Record) value {
	raw, ok := lookup(col, rec)
	if !ok {
		return value{outcome: OutcomeAbsent, v: zero(col.Type)}
	}

	var v interface{}
	switch col.Type {
	case schema.TypeString:
		v, ok = toString(raw)
	case schema.TypeFloat64:
		v, ok = toFloat64(raw)
	case schema.TypeUint32:
		v, ok = toUint32(raw)
	case schema.TypeTimestampMillis:
		v, ok = toTimestamp(raw)
	}
	if !ok {
		return value{outcome: OutcomeInvalid, v: zero(col.Type)}
	}
	return value{outcome: OutcomePresent, v: v}
}

func zero(t schema.Type) interface{} {
	switch t {
	case schema.TypeString:
		return ""
	case schema.TypeFloat64:
		return float64(0)
	case schema.TypeUint32:
		return uint32(0)
	case schema.TypeTimestampMillis:
		return time.Unix(0, 0).UTC()
	}
	return nil
}

func toString(raw interface{}) (interface{}, bool) {
	s, ok := raw.(string)
	return s, ok
}

func toFloat64(raw interface{}) (interface{}, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return nil, false
}

func toUint32(raw interface{}) (interface{}, bool) {
	var f float64
	switch v := raw.(type) {
	case uint32:
		return v, true
	case int:
		f = float64(v)
	case int32:
		f = float64(v)
	case int64:
		f = float64(v)
	case uint64:
		f = float64(v)
	case float32:
		f = float64(v)
	case float64:
		f = v
	case json.Number:
		var err error
		if f, err = v.Float64(); err != nil {
			return nil, false
		}
	default:
		return nil, false
	}
	if f < 0 || f > math.MaxUint32 || f != math.Trunc(f) {
		return nil, false
	}
	return uint32(f), true
}

func toTimestamp(raw interface{}) (interface{}, bool) {
	switch v := raw.(type) {
	case time.Time:
		return v.UTC(), true
	case string:
		t, err := time.ParseInLocation(TimestampLayout, v, time.UTC)
		if err != nil {
			return nil, false
		}
		return t, true
	}
	return nil, false
}
