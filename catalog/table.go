package catalog

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// NoSnapshot is the current snapshot id of a table nothing has been appended
// to yet.
const NoSnapshot int64 = 0

// FormatParquet is the only data file format written.
const FormatParquet = "parquet"

// OperationAppend is the operation of every snapshot.
const OperationAppend = "append"

// Snapshot summary keys.
const (
	SummaryAddedFiles   = "added-data-files"
	SummaryAddedRecords = "added-records"
	SummaryTotalFiles   = "total-data-files"
	SummaryTotalRecords = "total-records"
)

// Column is one column of a table schema.
type Column struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
}

// Schema is the ordered column list of a table.
type Schema struct {
	Columns []Column `json:"columns"`
}

// Equal reports whether s and o have the same columns in the same order.
func (s Schema) Equal(o Schema) bool {
	if len(s.Columns) != len(o.Columns) {
		return false
	}
	for i := range s.Columns {
		if s.Columns[i] != o.Columns[i] {
			return false
		}
	}
	return true
}

// DataFile is a file registered in a snapshot.
type DataFile struct {
	Path          string            `json:"file-path"`
	Format        string            `json:"file-format"`
	RecordCount   int64             `json:"record-count"`
	FileSizeBytes int64             `json:"file-size-in-bytes"`
	Partition     map[string]string `json:"partition,omitempty"`
	Checksum      string            `json:"checksum,omitempty"`
}

// Snapshot is the state of a table after one append. Files holds every file
// visible in the snapshot, not only the ones it added.
type Snapshot struct {
	SnapshotID       int64             `json:"snapshot-id"`
	ParentSnapshotID int64             `json:"parent-snapshot-id,omitempty"`
	SequenceNumber   int64             `json:"sequence-number"`
	TimestampMs      int64             `json:"timestamp-ms"`
	Operation        string            `json:"operation"`
	Summary          map[string]string `json:"summary,omitempty"`
	Files            []DataFile        `json:"files"`
}

// HasFile reports whether path is registered in the snapshot.
func (s *Snapshot) HasFile(path string) bool {
	for _, f := range s.Files {
		if f.Path == path {
			return true
		}
	}
	return false
}

// Table is the metadata of one table.
type Table struct {
	Ident             TableIdent `json:"identifier"`
	UUID              string     `json:"table-uuid"`
	Location          string     `json:"location"`
	Schema            Schema     `json:"schema"`
	CurrentSnapshotID int64      `json:"current-snapshot-id"`
	Snapshots         []Snapshot `json:"snapshots,omitempty"`
	CreatedAtMs       int64      `json:"created-at-ms"`
	LastUpdatedMs     int64      `json:"last-updated-ms"`
}

// NewTable returns the metadata of a new, empty table.
func NewTable(ident TableIdent, schema Schema, location string, now time.Time) *Table {
	return &Table{
		Ident:             ident,
		UUID:              uuid.NewString(),
		Location:          location,
		Schema:            schema,
		CurrentSnapshotID: NoSnapshot,
		CreatedAtMs:       now.UnixMilli(),
		LastUpdatedMs:     now.UnixMilli(),
	}
}

// CurrentSnapshot returns the current snapshot, or nil if there is none.
func (t *Table) CurrentSnapshot() *Snapshot {
	return t.Snapshot(t.CurrentSnapshotID)
}

// Snapshot returns the snapshot with the given id, or nil.
func (t *Table) Snapshot(id int64) *Snapshot {
	if id == NoSnapshot {
		return nil
	}
	for i := range t.Snapshots {
		if t.Snapshots[i].SnapshotID == id {
			return &t.Snapshots[i]
		}
	}
	return nil
}

// Files returns the files of the current snapshot.
func (t *Table) Files() []DataFile {
	if s := t.CurrentSnapshot(); s != nil {
		return s.Files
	}
	return nil
}

// Clone returns a deep copy of t.
func (t *Table) Clone() *Table {
	out := *t
	out.Schema.Columns = append([]Column(nil), t.Schema.Columns...)
	out.Snapshots = make([]Snapshot, len(t.Snapshots))
	for i, s := range t.Snapshots {
		out.Snapshots[i] = s.clone()
	}
	return &out
}

func (s Snapshot) clone() Snapshot {
	out := s
	out.Summary = make(map[string]string, len(s.Summary))
	for k, v := range s.Summary {
		out.Summary[k] = v
	}
	out.Files = make([]DataFile, len(s.Files))
	for i, f := range s.Files {
		out.Files[i] = f
		if f.Partition != nil {
			out.Files[i].Partition = make(map[string]string, len(f.Partition))
			for k, v := range f.Partition {
				out.Files[i].Partition[k] = v
			}
		}
	}
	return out
}

// Append applies an append of files based on baseSnapshotID to t in place,
// and returns the resulting current snapshot. It implements the AppendFiles
// semantics for catalogs that keep whole Table values.
func (t *Table) Append(baseSnapshotID int64, files []DataFile, now time.Time) (*Snapshot, error) {
	if len(files) == 0 {
		return nil, NewErrInvalidArgument("append requires at least one file")
	}
	if baseSnapshotID != t.CurrentSnapshotID {
		return nil, NewErrCommitConflict(t.Ident, baseSnapshotID, t.CurrentSnapshotID)
	}

	parent := t.CurrentSnapshot()
	seen := make(map[string]bool)
	var union []DataFile
	var totalRecords int64
	if parent != nil {
		for _, f := range parent.Files {
			seen[f.Path] = true
			totalRecords += f.RecordCount
		}
		union = append(union, parent.Files...)
	}

	var added int
	var addedRecords int64
	for _, f := range files {
		if f.Path == "" {
			return nil, NewErrInvalidArgument("data file without a path")
		}
		if seen[f.Path] {
			continue
		}
		seen[f.Path] = true
		if f.Format == "" {
			f.Format = FormatParquet
		}
		union = append(union, f)
		added++
		addedRecords += f.RecordCount
	}
	if added == 0 {
		return parent, nil
	}

	var seq int64
	for _, s := range t.Snapshots {
		if s.SequenceNumber > seq {
			seq = s.SequenceNumber
		}
	}
	seq++

	snap := Snapshot{
		SnapshotID:       seq,
		ParentSnapshotID: t.CurrentSnapshotID,
		SequenceNumber:   seq,
		TimestampMs:      now.UnixMilli(),
		Operation:        OperationAppend,
		Summary: map[string]string{
			SummaryAddedFiles:   strconv.Itoa(added),
			SummaryAddedRecords: strconv.FormatInt(addedRecords, 10),
			SummaryTotalFiles:   strconv.Itoa(len(union)),
			SummaryTotalRecords: strconv.FormatInt(totalRecords+addedRecords, 10),
		},
		Files: union,
	}
	t.Snapshots = append(t.Snapshots, snap)
	t.CurrentSnapshotID = snap.SnapshotID
	t.LastUpdatedMs = snap.TimestampMs
	return &t.Snapshots[len(t.Snapshots)-1], nil
}
