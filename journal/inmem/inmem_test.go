package inmem_test

import (
	"testing"

	"github.com/featurebasedb/lakeingest/journal"
	"github.com/featurebasedb/lakeingest/journal/inmem"
	"github.com/featurebasedb/lakeingest/journal/journaltest"
)

func TestJournal(t *testing.T) {
	journaltest.TestJournal(t, func(t *testing.T) journal.Journal {
		return inmem.NewJournal()
	})
}
