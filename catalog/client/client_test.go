package client_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/featurebasedb/lakeingest/catalog"
	"github.com/featurebasedb/lakeingest/catalog/catalogtest"
	"github.com/featurebasedb/lakeingest/catalog/client"
	cataloghttp "github.com/featurebasedb/lakeingest/catalog/http"
	"github.com/featurebasedb/lakeingest/catalog/inmem"
	"github.com/featurebasedb/lakeingest/errors"
	"github.com/featurebasedb/lakeingest/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) *client.Client {
	t.Helper()
	srv := httptest.NewServer(cataloghttp.Handler(inmem.NewCatalog(), logger.NewLogfLogger(t)))
	t.Cleanup(srv.Close)
	return client.New(srv.URL, logger.NewLogfLogger(t))
}

func TestClient(t *testing.T) {
	catalogtest.TestCatalog(t, func(t *testing.T) catalog.Catalog {
		return newClient(t)
	})
}

func TestClientHealth(t *testing.T) {
	ctx := context.Background()
	assert.True(t, newClient(t).Health(ctx))

	down := client.New("http://127.0.0.1:1", logger.NopLogger).WithRetries(0, time.Millisecond, time.Millisecond)
	assert.False(t, down.Health(ctx))
}

func TestClientErrorCodes(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)
	ident := catalog.NewTableIdent("farm", "orders")

	_, err := c.LoadTable(ctx, ident)
	require.Error(t, err)
	assert.True(t, errors.Is(err, catalog.ErrTableNotFound), "got %v", err)
	assert.Contains(t, err.Error(), "status code: 404")

	require.NoError(t, c.CreateNamespace(ctx, "farm", nil))
	err = c.CreateNamespace(ctx, "farm", nil)
	assert.True(t, errors.Is(err, catalog.ErrNamespaceExists), "got %v", err)
	assert.Contains(t, err.Error(), "status code: 409")
}

func TestClientRetriesServerErrors(t *testing.T) {
	ctx := context.Background()
	backend := cataloghttp.Handler(inmem.NewCatalog(), logger.NopLogger)

	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		backend.ServeHTTP(w, r)
	}))
	defer srv.Close()

	c := client.New(srv.URL, logger.NopLogger).WithRetries(4, time.Millisecond, 5*time.Millisecond)
	nss, err := c.ListNamespaces(ctx)
	require.NoError(t, err)
	assert.Empty(t, nss)
	assert.Equal(t, 3, calls)
}
