package inmem_test

import (
	"testing"

	"github.com/featurebasedb/lakeingest/storage"
	"github.com/featurebasedb/lakeingest/storage/inmem"
	"github.com/featurebasedb/lakeingest/storage/storagetest"
)

func TestStore(t *testing.T) {
	storagetest.TestStore(t, func(t *testing.T) storage.Store {
		return inmem.NewStore()
	})
}
