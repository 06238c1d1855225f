// Package boltdb contains test helpers for opening throwaway bolt databases.
package boltdb

import (
	"path/filepath"
	"testing"

	"github.com/featurebasedb/lakeingest/boltdb"
	"github.com/stretchr/testify/require"
)

// MustGetDB returns an unopened DB whose file lives in the test's temp dir.
func MustGetDB(tb testing.TB, buckets ...boltdb.Bucket) *boltdb.DB {
	tb.Helper()

	dsn := "file:" + filepath.Join(tb.TempDir(), "lakeingest.boltdb")

	db := boltdb.NewDB(dsn)
	db.RegisterBuckets(buckets...)
	return db
}

// MustOpenDB returns a new, open DB. Fatal on error. The DB is closed when the
// test finishes.
func MustOpenDB(tb testing.TB, buckets ...boltdb.Bucket) *boltdb.DB {
	tb.Helper()
	db := MustGetDB(tb, buckets...)

	require.NoError(tb, db.Open())
	tb.Cleanup(func() {
		MustCloseDB(tb, db)
	})
	return db
}

// MustCloseDB closes the DB. Fatal on error.
func MustCloseDB(tb testing.TB, db *boltdb.DB) {
	tb.Helper()
	if err := db.Close(); err != nil {
		tb.Fatal(err)
	}
}
