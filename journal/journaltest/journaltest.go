// Package journaltest contains tests every journal.Journal implementation
// must pass.
package journaltest

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/featurebasedb/lakeingest/batch"
	"github.com/featurebasedb/lakeingest/columnar"
	"github.com/featurebasedb/lakeingest/errors"
	"github.com/featurebasedb/lakeingest/journal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestJournal runs the shared suite against the journal returned by
// newJournal, which is called once per subtest.
func TestJournal(t *testing.T, newJournal func(t *testing.T) journal.Journal) {
	ctx := context.Background()

	t.Run("Lifecycle", func(t *testing.T) {
		j := newJournal(t)

		e := &journal.Entry{
			Namespace: "farm",
			Entity:    "orders",
			Files: []columnar.File{
				{Path: "w/farm/orders/data/ingest_date=2024-05-01/run_id=r/part-00000.parquet", Size: 10, Rows: 3, Checksum: "c0", RunID: "r"},
			},
		}
		require.NoError(t, j.Begin(ctx, e))
		assert.NotEmpty(t, e.ID)
		assert.Equal(t, journal.StateWriting, e.State)

		pending, err := j.Pending(ctx)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, journal.StateWriting, pending[0].State)
		assert.Equal(t, e.Files, pending[0].Files)

		require.NoError(t, j.MarkWritten(ctx, e.ID))
		pending, err = j.Pending(ctx)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, journal.StateWritten, pending[0].State)
		assert.Equal(t, "farm", pending[0].Namespace)
		assert.Equal(t, "orders", pending[0].Entity)

		require.NoError(t, j.Complete(ctx, e.ID))
		pending, err = j.Pending(ctx)
		require.NoError(t, err)
		assert.Len(t, pending, 0)

		err = j.Complete(ctx, e.ID)
		assert.True(t, errors.Is(err, journal.ErrEntryNotFound), "got %v", err)
		err = j.MarkWritten(ctx, "nope")
		assert.True(t, errors.Is(err, journal.ErrEntryNotFound), "got %v", err)
	})

	t.Run("PendingOrder", func(t *testing.T) {
		j := newJournal(t)
		ids := []string{"c", "a", "b"}
		for _, id := range ids {
			require.NoError(t, j.Begin(ctx, &journal.Entry{ID: id, Namespace: "farm", Entity: "orders"}))
		}
		pending, err := j.Pending(ctx)
		require.NoError(t, err)
		var got []string
		for _, e := range pending {
			got = append(got, e.ID)
		}
		assert.Equal(t, ids, got)
	})

	t.Run("Spills", func(t *testing.T) {
		j := newJournal(t)

		s1 := &journal.Spill{
			Namespace: "farm",
			Entity:    "orders",
			Reason:    "context canceled",
			Records: []batch.Record{
				{"id": "o-1", "quantity_in_kg": 2.5, "deliveryDate": "2024-05-01 10:00:00"},
				{"id": "o-2"},
			},
		}
		s2 := &journal.Spill{Namespace: "farm", Entity: "batches", Records: []batch.Record{{"id": "b-1"}}}
		require.NoError(t, j.Spill(ctx, s1))
		require.NoError(t, j.Spill(ctx, s2))
		assert.NotEmpty(t, s1.ID)
		assert.NotEqual(t, s1.ID, s2.ID)

		spills, err := j.Spills(ctx)
		require.NoError(t, err)
		require.Len(t, spills, 2)
		assert.Equal(t, s1.ID, spills[0].ID)
		assert.Equal(t, "context canceled", spills[0].Reason)
		require.Len(t, spills[0].Records, 2)
		assert.Equal(t, "o-1", spills[0].Records[0]["id"])
		assert.Equal(t, 2.5, number(t, spills[0].Records[0]["quantity_in_kg"]))
		assert.NotContains(t, spills[0].Records[1], "quantity_in_kg")

		require.NoError(t, j.RemoveSpill(ctx, s1.ID))
		spills, err = j.Spills(ctx)
		require.NoError(t, err)
		require.Len(t, spills, 1)
		assert.Equal(t, s2.ID, spills[0].ID)

		err = j.RemoveSpill(ctx, s1.ID)
		assert.True(t, errors.Is(err, journal.ErrEntryNotFound), "got %v", err)
	})
}

// number returns v as a float64, accepting values that came back from a
// JSON round trip.
func number(t *testing.T, v interface{}) float64 {
	t.Helper()
	switch n := v.(type) {
	case float64:
		return n
	case json.Number:
		f, err := n.Float64()
		require.NoError(t, err)
		return f
	}
	t.Fatalf("not a number: %T %v", v, v)
	return 0
}
