package storage_test

import (
	"testing"

	"github.com/featurebasedb/lakeingest/errors"
	"github.com/featurebasedb/lakeingest/storage"
	"github.com/stretchr/testify/assert"
)

func TestConfigBackend(t *testing.T) {
	tests := []struct {
		url      string
		backend  string
		location string
	}{
		{url: "memory:", backend: storage.BackendMemory},
		{url: "file:/var/lake", backend: storage.BackendLocal, location: "/var/lake"},
		{url: "file:///var/lake", backend: storage.BackendLocal, location: "/var/lake"},
		{url: "./data", backend: storage.BackendLocal, location: "./data"},
		{url: "s3://lake-bucket", backend: storage.BackendS3, location: "lake-bucket"},
	}
	for _, test := range tests {
		t.Run(test.url, func(t *testing.T) {
			cfg := &storage.Config{URL: test.url}
			backend, loc, err := cfg.Backend()
			assert.NoError(t, err)
			assert.Equal(t, test.backend, backend)
			assert.Equal(t, test.location, loc)
		})
	}

	for _, bad := range []string{"", "gs://bucket", "s3://", "file:"} {
		cfg := &storage.Config{URL: bad}
		_, _, err := cfg.Backend()
		assert.True(t, errors.Is(err, storage.ErrInvalidURL), "url %q", bad)
	}
}

func TestJoinKey(t *testing.T) {
	assert.Equal(t, "warehouse/farm/orders/data", storage.JoinKey("warehouse/", "", "/farm", "orders", "data"))
	assert.Equal(t, "farm", storage.JoinKey("", "farm"))
}
