// Package journal is the write-ahead record of batches between upload and
// commit. A pipeline records its intent before uploading a batch's files,
// marks the entry written once they are durable, and removes it after the
// commit. Batches that could not be written are spilled as raw records.
// Whatever remains in the journal is the work of the reconciler.
package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/featurebasedb/lakeingest/batch"
	"github.com/featurebasedb/lakeingest/columnar"
	"github.com/featurebasedb/lakeingest/errors"
)

const (
	ErrEntryNotFound errors.Code = "JournalEntryNotFound"
)

func NewErrEntryNotFound(id string) error {
	return errors.New(
		ErrEntryNotFound,
		fmt.Sprintf("journal entry '%s' does not exist", id),
	)
}

// State is the state of a pending entry.
type State string

const (
	// StateWriting means upload of the entry's files has started; any of
	// them may or may not be in storage.
	StateWriting State = "writing"

	// StateWritten means every file is in storage and awaits a commit.
	StateWritten State = "written"
)

// Entry is a batch whose files are being written or await a commit.
type Entry struct {
	ID        string          `json:"id"`
	Namespace string          `json:"namespace"`
	Entity    string          `json:"entity"`
	State     State           `json:"state"`
	Files     []columnar.File `json:"files"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Spill is a batch of raw records that could not be written. Replaying it
// runs the records through coercion again.
type Spill struct {
	ID        string         `json:"id"`
	Namespace string         `json:"namespace"`
	Entity    string         `json:"entity"`
	Reason    string         `json:"reason"`
	Records   []batch.Record `json:"records"`
	CreatedAt time.Time      `json:"created_at"`
}

// Journal is safe for concurrent use by multiple pipelines.
type Journal interface {
	// Begin records e in StateWriting. e.ID is assigned if empty.
	Begin(ctx context.Context, e *Entry) error

	// MarkWritten moves the entry to StateWritten.
	MarkWritten(ctx context.Context, id string) error

	// Complete removes the entry once its files are committed.
	Complete(ctx context.Context, id string) error

	// Pending returns every entry not yet completed, oldest first.
	Pending(ctx context.Context) ([]*Entry, error)

	// Spill records s. s.ID is assigned if empty.
	Spill(ctx context.Context, s *Spill) error

	// Spills returns every spilled batch, oldest first.
	Spills(ctx context.Context) ([]*Spill, error)

	// RemoveSpill removes a spilled batch once it has been replayed.
	RemoveSpill(ctx context.Context, id string) error
}
