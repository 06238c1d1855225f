package coerce

import (
	"fmt"
	"sort"
	"strings"

	"github.com/featurebasedb/lakeingest/schema"
)

// FieldCounts tallies extraction outcomes.
type FieldCounts struct {
	Present int `json:"present"`
	Invalid int `json:"invalid"`
	Absent  int `json:"absent"`
}

func (f *FieldCounts) add(o Outcome) {
	switch o {
	case OutcomePresent:
		f.Present++
	case OutcomeInvalid:
		f.Invalid++
	case OutcomeAbsent:
		f.Absent++
	}
}

// Report describes what coercion did to a batch. Quarantined records are
// counted in Quarantined only.
type Report struct {
	Rows        int                     `json:"rows"`
	Quarantined int                     `json:"quarantined"`
	Total       FieldCounts             `json:"total"`
	Columns     map[string]*FieldCounts `json:"columns"`
}

func newReport(desc *schema.Descriptor) Report {
	r := Report{Columns: make(map[string]*FieldCounts, len(desc.Columns))}
	for _, c := range desc.Columns {
		r.Columns[c.Name] = &FieldCounts{}
	}
	return r
}

func (r *Report) add(desc *schema.Descriptor, row []value) {
	for j, v := range row {
		r.Total.add(v.outcome)
		r.Columns[desc.Columns[j].Name].add(v.outcome)
	}
}

// Clean reports whether every extracted field was present and valid.
func (r *Report) Clean() bool {
	return r.Total.Invalid == 0 && r.Total.Absent == 0 && r.Quarantined == 0
}

// String summarizes the report for logging, listing only columns with
// invalid or absent values.
func (r Report) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "rows=%d quarantined=%d present=%d invalid=%d absent=%d",
		r.Rows, r.Quarantined, r.Total.Present, r.Total.Invalid, r.Total.Absent)
	for _, name := range sortedKeys(r.Columns) {
		c := r.Columns[name]
		if c.Invalid == 0 && c.Absent == 0 {
			continue
		}
		fmt.Fprintf(&sb, " %s(invalid=%d absent=%d)", name, c.Invalid, c.Absent)
	}
	return sb.String()
}

func sortedKeys(m map[string]*FieldCounts) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
