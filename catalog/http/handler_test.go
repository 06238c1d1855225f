package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/featurebasedb/lakeingest/catalog"
	"github.com/featurebasedb/lakeingest/catalog/catalogtest"
	cataloghttp "github.com/featurebasedb/lakeingest/catalog/http"
	"github.com/featurebasedb/lakeingest/catalog/inmem"
	"github.com/featurebasedb/lakeingest/errors"
	"github.com/featurebasedb/lakeingest/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func do(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, path, r))
	return w
}

func TestHandler(t *testing.T) {
	h := cataloghttp.Handler(inmem.NewCatalog(), logger.NewLogfLogger(t))

	t.Run("Health", func(t *testing.T) {
		w := do(t, h, "GET", "/health", nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Metrics", func(t *testing.T) {
		do(t, h, "GET", "/health", nil)
		w := do(t, h, "GET", "/metrics", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "lakeingest_catalog_http_requests_total")
	})

	t.Run("StatusCodes", func(t *testing.T) {
		w := do(t, h, "GET", "/v1/namespaces/farm/tables/orders", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		err := errors.UnmarshalJSON(w.Body)
		assert.True(t, errors.Is(err, catalog.ErrTableNotFound), "got %v", err)

		w = do(t, h, "POST", "/v1/namespaces", cataloghttp.CreateNamespaceRequest{Namespace: "farm"})
		assert.Equal(t, http.StatusOK, w.Code)

		w = do(t, h, "POST", "/v1/namespaces", cataloghttp.CreateNamespaceRequest{Namespace: "farm"})
		assert.Equal(t, http.StatusConflict, w.Code)

		w = do(t, h, "POST", "/v1/namespaces", cataloghttp.CreateNamespaceRequest{Namespace: "a b"})
		assert.Equal(t, http.StatusBadRequest, w.Code)

		req := httptest.NewRequest("POST", "/v1/namespaces", strings.NewReader("{not json"))
		w = httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w = do(t, h, "POST", "/v1/namespaces/farm/tables", cataloghttp.CreateTableRequest{
			Name:     "orders",
			Schema:   catalogtest.TestSchema,
			Location: "w/farm/orders",
		})
		require.Equal(t, http.StatusOK, w.Code)

		w = do(t, h, "POST", "/v1/namespaces/farm/tables/orders/append", cataloghttp.AppendFilesRequest{
			BaseSnapshotID: catalog.NoSnapshot,
			Files:          []catalog.DataFile{catalogtest.DataFile("a", 1)},
		})
		require.Equal(t, http.StatusOK, w.Code)
		var snap catalog.Snapshot
		require.NoError(t, json.NewDecoder(w.Body).Decode(&snap))
		assert.Len(t, snap.Files, 1)

		w = do(t, h, "POST", "/v1/namespaces/farm/tables/orders/append", cataloghttp.AppendFilesRequest{
			BaseSnapshotID: catalog.NoSnapshot,
			Files:          []catalog.DataFile{catalogtest.DataFile("b", 1)},
		})
		assert.Equal(t, http.StatusConflict, w.Code)
		err = errors.UnmarshalJSON(w.Body)
		assert.True(t, errors.Is(err, catalog.ErrCommitConflict), "got %v", err)
	})

	t.Run("Panic", func(t *testing.T) {
		ph := cataloghttp.Handler(panicCatalog{}, logger.NopLogger)
		w := do(t, ph, "GET", "/v1/namespaces", nil)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

type panicCatalog struct {
	catalog.Catalog
}

func (panicCatalog) ListNamespaces(ctx context.Context) ([]string, error) {
	panic("boom")
}
