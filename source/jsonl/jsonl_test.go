package jsonl_test

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/featurebasedb/lakeingest/errors"
	"github.com/featurebasedb/lakeingest/source"
	"github.com/featurebasedb/lakeingest/source/jsonl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSource(t *testing.T) {
	ctx := context.Background()
	in := `{"id": "o-1", "quantityInKg": 12.5, "batch_count": 3}

{"id": "o-2", "deliveryDate": "2024-05-01 10:00:00"}
`
	src := jsonl.NewSource(strings.NewReader(in))
	defer src.Close()

	rec, err := src.Record(ctx)
	require.NoError(t, err)
	assert.Equal(t, "o-1", rec["id"])
	assert.Equal(t, json.Number("12.5"), rec["quantityInKg"])
	assert.Equal(t, json.Number("3"), rec["batch_count"])

	rec, err = src.Record(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01 10:00:00", rec["deliveryDate"])

	_, err = src.Record(ctx)
	assert.Equal(t, io.EOF, err)
}

func TestSourceBadLine(t *testing.T) {
	src := jsonl.NewSource(strings.NewReader("{\"id\": 1}\n{oops\n"))
	defer src.Close()

	_, err := src.Record(context.Background())
	require.NoError(t, err)
	_, err = src.Record(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestSourceBlocked(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	src := jsonl.NewSource(pr)
	defer src.Close()

	t.Run("Timeout", func(t *testing.T) {
		src.Timeout = 10 * time.Millisecond
		_, err := src.Record(context.Background())
		assert.True(t, errors.Is(err, source.ErrFlush), "got %v", err)
	})

	t.Run("Cancel", func(t *testing.T) {
		src.Timeout = 0
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()
		_, err := src.Record(ctx)
		assert.Equal(t, context.Canceled, err)
	})

	t.Run("Resume", func(t *testing.T) {
		go func() {
			_, _ = pw.Write([]byte(`{"id": "late"}` + "\n"))
		}()
		rec, err := src.Record(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "late", rec["id"])
	})
}

func TestOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"id": "x"}`), 0600))

	src, err := jsonl.Open(path)
	require.NoError(t, err)
	rec, err := src.Record(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "x", rec["id"])
	assert.NoError(t, src.Close())

	_, err = jsonl.Open(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
