package boltdb_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/featurebasedb/lakeingest/batch"
	"github.com/featurebasedb/lakeingest/boltdb"
	"github.com/featurebasedb/lakeingest/journal"
	journalbolt "github.com/featurebasedb/lakeingest/journal/boltdb"
	"github.com/featurebasedb/lakeingest/journal/journaltest"
	"github.com/featurebasedb/lakeingest/logger"
	testbolt "github.com/featurebasedb/lakeingest/test/boltdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJournal(t *testing.T) {
	journaltest.TestJournal(t, func(t *testing.T) journal.Journal {
		db := testbolt.MustOpenDB(t, journalbolt.JournalBuckets...)
		return journalbolt.NewJournal(db, logger.NewLogfLogger(t))
	})
}

func TestJournalReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	db, err := boltdb.NewSvcBolt(dir, "journal", journalbolt.JournalBuckets...)
	require.NoError(t, err)
	j := journalbolt.NewJournal(db, logger.NopLogger)

	e := &journal.Entry{Namespace: "farm", Entity: "orders"}
	require.NoError(t, j.Begin(ctx, e))
	require.NoError(t, j.MarkWritten(ctx, e.ID))
	require.NoError(t, j.Spill(ctx, &journal.Spill{Namespace: "farm", Entity: "orders", Records: []batch.Record{{"batch_count": 7}}}))
	require.NoError(t, db.Close())

	db, err = boltdb.NewSvcBolt(dir, "journal", journalbolt.JournalBuckets...)
	require.NoError(t, err)
	defer db.Close()
	j = journalbolt.NewJournal(db, logger.NopLogger)

	pending, err := j.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, e.ID, pending[0].ID)
	assert.Equal(t, journal.StateWritten, pending[0].State)

	spills, err := j.Spills(ctx)
	require.NoError(t, err)
	require.Len(t, spills, 1)
	assert.Equal(t, json.Number("7"), spills[0].Records[0]["batch_count"])
}
