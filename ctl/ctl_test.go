package ctl

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/featurebasedb/lakeingest"
	"github.com/featurebasedb/lakeingest/catalog"
	"github.com/featurebasedb/lakeingest/catalog/client"
	"github.com/featurebasedb/lakeingest/catalog/inmem"
	"github.com/featurebasedb/lakeingest/columnar"
	"github.com/featurebasedb/lakeingest/errors"
	"github.com/featurebasedb/lakeingest/logger"
	"github.com/featurebasedb/lakeingest/schema"
	"github.com/featurebasedb/lakeingest/storage"
	"github.com/google/go-cmp/cmp"
	"github.com/pelletier/go-toml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ordersJSONL = `{"id":"o-1","variety":"cherry","quantityInKg":1.5,"priceInEuro":3}
{"id":"o-2","variety":"roma","quantity_in_kg":"2"}

{"id":"o-3","variety":"plum","deliveryDate":"2024-05-01"}
`

// testConfig returns a Config keeping everything under a temp dir.
func testConfig(t *testing.T) *Config {
	t.Helper()
	dir := t.TempDir()
	c := NewConfig()
	c.Namespace = "farm"
	c.Storage.URL = "file:" + filepath.Join(dir, "store")
	c.Catalog = filepath.Join(dir, "catalog")
	c.DataDir = filepath.Join(dir, "data")
	c.Batch.MaxRows = 2
	return c
}

func TestGenerateConfigCommand_Run(t *testing.T) {
	buf := &bytes.Buffer{}
	cm := NewGenerateConfigCommand(nil, buf, os.Stderr)
	require.NoError(t, cm.Run(context.Background()))

	out := buf.String()
	assert.Contains(t, out, "max-rows = 25000")
	assert.Contains(t, out, "max-seconds = 30")
	assert.Contains(t, out, "[storage]")

	// The output must read back as the defaults.
	got := &Config{}
	require.NoError(t, toml.Unmarshal(buf.Bytes(), got))
	if diff := cmp.Diff(NewConfig(), got); diff != "" {
		t.Fatalf("generated config does not round trip (-want +got):\n%s", diff)
	}
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, NewConfig().Validate())

	for name, mod := range map[string]func(c *Config){
		"Namespace": func(c *Config) { c.Namespace = "" },
		"MaxRows":   func(c *Config) { c.Batch.MaxRows = 0 },
		"Seconds":   func(c *Config) { c.Batch.MaxSeconds = -1 },
		"Policy":    func(c *Config) { c.Policy = "lenient" },
		"Storage":   func(c *Config) { c.Storage.URL = "gs://bucket" },
	} {
		t.Run(name, func(t *testing.T) {
			c := NewConfig()
			mod(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestConfigOpenCatalog(t *testing.T) {
	c := NewConfig()
	l := logger.NewLogfLogger(t)

	c.Catalog = "memory:"
	cat, closer, err := c.OpenCatalog(l)
	require.NoError(t, err)
	assert.IsType(t, &inmem.Catalog{}, cat)
	require.NoError(t, closer.Close())

	c.Catalog = "http://localhost:8181"
	cat, _, err = c.OpenCatalog(l)
	require.NoError(t, err)
	assert.IsType(t, &client.Client{}, cat)

	c.Catalog = "ftp://localhost"
	_, _, err = c.OpenCatalog(l)
	assert.True(t, errors.Is(err, ErrConfig))

	// A bolt catalog persists across opens.
	c.Catalog = "file:" + t.TempDir()
	cat, closer, err = c.OpenCatalog(l)
	require.NoError(t, err)
	require.NoError(t, cat.CreateNamespace(context.Background(), "farm", nil))
	require.NoError(t, closer.Close())

	cat, closer, err = c.OpenCatalog(l)
	require.NoError(t, err)
	defer closer.Close()
	nss, err := cat.ListNamespaces(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"farm"}, nss)
}

func TestSetupLoggerReopen(t *testing.T) {
	c := NewConfig()
	c.LogPath = filepath.Join(t.TempDir(), "lakeingest.log")
	cmdio := lakeingest.NewCmdIO(nil, &bytes.Buffer{}, &bytes.Buffer{})
	closer, err := c.setupLogger(cmdio)
	require.NoError(t, err)
	defer closer.Close()

	cmdio.Logger().Infof("before rotation")
	require.NoError(t, os.Rename(c.LogPath, c.LogPath+".1"))
	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGHUP))

	// The reopened file gets a line of its own.
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(c.LogPath)
		return err == nil && strings.Contains(string(data), "reopened log")
	}, 5*time.Second, 10*time.Millisecond)

	old, err := os.ReadFile(c.LogPath + ".1")
	require.NoError(t, err)
	assert.Contains(t, string(old), "before rotation")
}

func TestEntities(t *testing.T) {
	descs, err := entities(nil)
	require.NoError(t, err)
	assert.Len(t, descs, len(schema.Descriptors()))

	descs, err = entities([]string{"orders,Variety", "Order"})
	require.NoError(t, err)
	require.Len(t, descs, 2)
	assert.Equal(t, "orders", descs[0].Table)
	assert.Equal(t, "varieties", descs[1].Table)

	_, err = entities([]string{"tractors"})
	assert.True(t, errors.Is(err, schema.ErrUnknownEntity))
}

func TestRunReadReconcile(t *testing.T) {
	ctx := context.Background()
	conf := testConfig(t)

	run := NewRunCommand(strings.NewReader(ordersJSONL), &bytes.Buffer{}, &bytes.Buffer{})
	run.Config = conf
	run.Entities = []string{"orders"}
	require.NoError(t, run.Run(ctx))

	// Three records in batches of two are two commits.
	cat, closer, err := conf.OpenCatalog(run.Logger())
	require.NoError(t, err)
	tbl, err := cat.LoadTable(ctx, catalog.NewTableIdent("farm", "orders"))
	require.NoError(t, err)
	assert.Len(t, tbl.Snapshots, 2)
	assert.Len(t, tbl.Files(), 2)
	require.NoError(t, closer.Close())

	t.Run("Read", func(t *testing.T) {
		out := &bytes.Buffer{}
		read := NewReadCommand(nil, out, &bytes.Buffer{})
		read.Config = conf
		read.Entity = "orders"
		read.FromSnapshot = true
		require.NoError(t, read.Run(ctx))

		s := out.String()
		assert.Contains(t, s, "quantity_in_kg (float64)")
		assert.Contains(t, s, "o-3")
		// Missing fields hold their type's default.
		assert.NotContains(t, s, "NULL")
		assert.Contains(t, s, "3 of 3 rows from 2 files")

		out.Reset()
		read.Limit = 1
		require.NoError(t, read.Run(ctx))
		assert.Contains(t, out.String(), "1 of 3 rows from 2 files")
	})

	t.Run("ReadNeedsEntity", func(t *testing.T) {
		read := NewReadCommand(nil, &bytes.Buffer{}, &bytes.Buffer{})
		read.Config = conf
		assert.Error(t, read.Run(ctx))
	})

	t.Run("InspectFile", func(t *testing.T) {
		store, err := conf.OpenStore()
		require.NoError(t, err)
		objs, err := store.List(ctx, columnar.DataPrefix(conf.Prefix, "farm", "orders"))
		require.NoError(t, err)
		require.Len(t, objs, 2)

		// One file per batch: two rows, then one.
		out := &bytes.Buffer{}
		inspect := NewInspectFileCommand(nil, out, &bytes.Buffer{})
		inspect.Config = conf
		for _, obj := range objs {
			inspect.Path = obj.Key
			require.NoError(t, inspect.Run(ctx))
		}

		s := out.String()
		assert.Contains(t, s, "Rows: 2")
		assert.Contains(t, s, "Rows: 1")
		assert.Contains(t, s, "Partition: ingest_date=")
		assert.Contains(t, s, schema.IngestColumn)
		assert.Contains(t, s, "Sample:")

		// The same file read from the local filesystem.
		backend, dir, err := conf.Storage.Backend()
		require.NoError(t, err)
		require.Equal(t, storage.BackendLocal, backend)
		out.Reset()
		inspect.Local = true
		inspect.Path = filepath.Join(dir, filepath.FromSlash(objs[0].Key))
		inspect.Sample = 0
		require.NoError(t, inspect.Run(ctx))
		assert.Contains(t, out.String(), "Rows: ")
		assert.NotContains(t, out.String(), "Sample:")
	})

	t.Run("Reconcile", func(t *testing.T) {
		out := &bytes.Buffer{}
		rec := NewReconcileCommand(nil, out, &bytes.Buffer{})
		rec.Config = conf
		require.NoError(t, rec.Run(ctx))
		assert.Equal(t, "committed: 0\nabandoned: 0\nreplayed: 0\nfailed: 0\n", out.String())
	})
}

func TestRunCommandDirectory(t *testing.T) {
	ctx := context.Background()
	conf := testConfig(t)
	conf.Policy = "quarantine"

	in := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(in, "orders.jsonl"), []byte(ordersJSONL), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(in, "varieties.jsonl"),
		[]byte(`{"id":"v-1","name":"cherry","createdAt":"2024-05-01 00:00:00","updatedAt":"2024-05-01 08:30:00.250"}`+"\n"), 0600))

	run := NewRunCommand(nil, &bytes.Buffer{}, &bytes.Buffer{})
	run.Config = conf
	run.Entities = []string{"orders", "varieties"}
	run.Input = in
	require.NoError(t, run.Run(ctx))

	cat, closer, err := conf.OpenCatalog(run.Logger())
	require.NoError(t, err)
	tables, err := cat.ListTables(ctx, "farm")
	require.NoError(t, err)
	assert.ElementsMatch(t, []catalog.TableIdent{
		catalog.NewTableIdent("farm", "orders"),
		catalog.NewTableIdent("farm", "varieties"),
	}, tables)
	require.NoError(t, closer.Close())

	t.Run("Stdin", func(t *testing.T) {
		run.Input = "-"
		assert.True(t, errors.Is(run.Run(ctx), ErrConfig))
	})

	t.Run("MissingFile", func(t *testing.T) {
		run.Input = in
		run.Entities = []string{"materials"}
		assert.Error(t, run.Run(ctx))
	})

	t.Run("UnknownSource", func(t *testing.T) {
		run.Entities = []string{"orders"}
		run.Source = "carrier-pigeon"
		assert.True(t, errors.Is(run.Run(ctx), ErrConfig))
	})
}

func TestServeCatalogCommand(t *testing.T) {
	ctx := context.Background()
	conf := testConfig(t)

	srv := NewServeCatalogCommand(nil, &bytes.Buffer{}, &bytes.Buffer{})
	srv.Config = conf
	srv.Bind = "127.0.0.1:0"
	require.NoError(t, srv.Start())
	defer srv.Close()

	// Ingest through the served catalog.
	remote := testConfig(t)
	remote.Catalog = "http://" + srv.Addr()
	run := NewRunCommand(strings.NewReader(ordersJSONL), &bytes.Buffer{}, &bytes.Buffer{})
	run.Config = remote
	run.Entities = []string{"orders"}
	require.NoError(t, run.Run(ctx))

	c := client.New("http://"+srv.Addr(), nil)
	assert.True(t, c.Health(ctx))
	tbl, err := c.LoadTable(ctx, catalog.NewTableIdent("farm", "orders"))
	require.NoError(t, err)
	assert.Len(t, tbl.Snapshots, 2)

	require.NoError(t, srv.Close())

	t.Run("RemoteCatalog", func(t *testing.T) {
		srv := NewServeCatalogCommand(nil, &bytes.Buffer{}, &bytes.Buffer{})
		srv.Config = remote
		assert.True(t, errors.Is(srv.Start(), ErrConfig))
	})
}
