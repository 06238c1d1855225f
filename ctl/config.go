// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package ctl

import (
	"io"
	"strings"
	"time"

	"github.com/featurebasedb/lakeingest/batch"
	"github.com/featurebasedb/lakeingest/boltdb"
	"github.com/featurebasedb/lakeingest/catalog"
	catalogbolt "github.com/featurebasedb/lakeingest/catalog/boltdb"
	"github.com/featurebasedb/lakeingest/catalog/client"
	"github.com/featurebasedb/lakeingest/catalog/inmem"
	"github.com/featurebasedb/lakeingest/coerce"
	"github.com/featurebasedb/lakeingest/columnar"
	"github.com/featurebasedb/lakeingest/commit"
	"github.com/featurebasedb/lakeingest/errors"
	"github.com/featurebasedb/lakeingest/journal"
	journalbolt "github.com/featurebasedb/lakeingest/journal/boltdb"
	journalinmem "github.com/featurebasedb/lakeingest/journal/inmem"
	"github.com/featurebasedb/lakeingest/logger"
	"github.com/featurebasedb/lakeingest/pipeline"
	"github.com/featurebasedb/lakeingest/storage"
	storageinmem "github.com/featurebasedb/lakeingest/storage/inmem"
	"github.com/featurebasedb/lakeingest/storage/local"
	"github.com/featurebasedb/lakeingest/storage/s3"
	"github.com/featurebasedb/lakeingest/toml"
)

const ErrConfig errors.Code = "ConfigError"

// Config represents the configuration shared by the lakeingest commands.
type Config struct {
	// Namespace the entity tables are registered under.
	Namespace string `toml:"namespace"`

	// Prefix is the key prefix of the warehouse within the store.
	Prefix string `toml:"prefix"`

	// Catalog selects the catalog: "memory:", "file:/some/dir" (or a bare
	// directory) for an embedded bolt catalog, or the http(s) address of a
	// catalog server.
	Catalog string `toml:"catalog"`

	// DataDir holds the journal. Empty keeps the journal in memory.
	DataDir string `toml:"data-dir"`

	// Policy is the coercion policy: default, quarantine or strict.
	Policy string `toml:"policy"`

	LogPath string `toml:"log-path"`
	Verbose bool   `toml:"verbose"`

	// MetricsBind is the address /metrics is served on during run. Empty
	// disables it.
	MetricsBind string `toml:"metrics-bind"`

	Storage storage.Config `toml:"storage"`

	Batch struct {
		MaxRows    int `toml:"max-rows"`
		MaxSeconds int `toml:"max-seconds"`
	} `toml:"batch"`

	Writer struct {
		MaxRowsPerFile int `toml:"max-rows-per-file"`
		UploadRetries  int `toml:"upload-retries"`
	} `toml:"writer"`

	Commit struct {
		MaxAttempts int `toml:"max-attempts"`
	} `toml:"commit"`

	Kafka struct {
		Hosts []string `toml:"hosts"`

		// Topics are named TopicPrefix followed by the table name.
		TopicPrefix string `toml:"topic-prefix"`
		Group       string `toml:"group"`
		SkipOld     bool   `toml:"skip-old"`

		// Timeout flushes the open batch when no message arrives for this
		// long. Zero leaves flushing to the batch thresholds.
		Timeout toml.Duration `toml:"timeout"`
	} `toml:"kafka"`

	Tracing struct {
		// SamplerType is a jaeger sampler type ("const", "probabilistic",
		// ...). Empty disables tracing.
		SamplerType   string  `toml:"sampler-type"`
		SamplerParam  float64 `toml:"sampler-param"`
		AgentHostPort string  `toml:"agent-host-port"`
	} `toml:"tracing"`
}

// NewConfig returns a Config with default values.
func NewConfig() *Config {
	c := &Config{
		Namespace: "default",
		Prefix:    "warehouse",
		Catalog:   "file:./lakeingest-data/catalog",
		DataDir:   "./lakeingest-data",
		Policy:    string(coerce.PolicyDefault),
		Storage:   *storage.NewDefaultConfig(),
	}
	c.Batch.MaxRows = batch.DefaultSize
	c.Batch.MaxSeconds = int(batch.DefaultMaxStaleness / time.Second)
	c.Writer.MaxRowsPerFile = columnar.DefaultMaxRowsPerFile
	c.Writer.UploadRetries = columnar.DefaultUploadRetries
	c.Commit.MaxAttempts = commit.DefaultMaxAttempts
	c.Kafka.Hosts = []string{"localhost:9092"}
	c.Kafka.TopicPrefix = "lakeingest."
	c.Kafka.Group = "lakeingest"
	c.Tracing.SamplerParam = 1
	return c
}

// Validate checks the settings every command depends on.
func (c *Config) Validate() error {
	if err := catalog.ValidateNamespace(c.Namespace); err != nil {
		return err
	}
	if c.Batch.MaxRows <= 0 {
		return errors.New(ErrConfig, "batch.max-rows must be positive")
	}
	if c.Batch.MaxSeconds < 0 {
		return errors.New(ErrConfig, "batch.max-seconds must not be negative")
	}
	if _, err := coerce.ParsePolicy(c.Policy); err != nil {
		return err
	}
	_, _, err := c.Storage.Backend()
	return err
}

// BatchConfig returns the flush thresholds.
func (c *Config) BatchConfig() batch.Config {
	return batch.Config{
		Size:         c.Batch.MaxRows,
		MaxStaleness: time.Duration(c.Batch.MaxSeconds) * time.Second,
	}
}

// OpenStore returns the object store named by Storage.URL.
func (c *Config) OpenStore() (storage.Store, error) {
	backend, location, err := c.Storage.Backend()
	if err != nil {
		return nil, err
	}
	switch backend {
	case storage.BackendMemory:
		return storageinmem.NewStore(), nil
	case storage.BackendLocal:
		s, err := local.NewStore(location)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	s, err := s3.NewStoreFromConfig(&c.Storage)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// OpenCatalog returns the catalog named by Catalog. The closer releases
// whatever the catalog holds open and must be called when done.
func (c *Config) OpenCatalog(log logger.Logger) (catalog.Catalog, io.Closer, error) {
	uri := strings.TrimSpace(c.Catalog)
	switch {
	case uri == "memory:" || uri == "memory":
		log.Warnf("using an in-memory catalog; commits are lost on exit")
		return inmem.NewCatalog(), nopCloser{}, nil
	case strings.HasPrefix(uri, "http://") || strings.HasPrefix(uri, "https://"):
		return client.New(uri, log), nopCloser{}, nil
	case uri == "" || strings.Contains(uri, "://"):
		return nil, nil, errors.New(ErrConfig, "unsupported catalog uri: '"+uri+"'")
	}
	db, err := boltdb.NewSvcBolt(uri, "catalog", catalogbolt.CatalogBuckets...)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "opening catalog at %s", uri)
	}
	return catalogbolt.NewCatalog(db, log), db, nil
}

// OpenJournal returns a bolt journal in DataDir, or an in-memory journal if
// DataDir is empty.
func (c *Config) OpenJournal(log logger.Logger) (journal.Journal, io.Closer, error) {
	if c.DataDir == "" {
		log.Warnf("no data-dir; the journal is not durable")
		return journalinmem.NewJournal(), nopCloser{}, nil
	}
	db, err := boltdb.NewSvcBolt(c.DataDir, "journal", journalbolt.JournalBuckets...)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "opening journal in %s", c.DataDir)
	}
	return journalbolt.NewJournal(db, log), db, nil
}

// Env is everything a pipeline needs, opened from a Config.
type Env struct {
	Store       storage.Store
	Catalog     catalog.Catalog
	Journal     journal.Journal
	Writer      *columnar.Writer
	Coordinator *commit.Coordinator
	Pipeline    *pipeline.Pipeline

	closers []io.Closer
}

// Open validates c and opens the store, catalog and journal.
func (c *Config) Open(log logger.Logger) (_ *Env, err error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	policy, _ := coerce.ParsePolicy(c.Policy)

	env := &Env{}
	defer func() {
		if err != nil {
			env.Close()
		}
	}()

	if env.Store, err = c.OpenStore(); err != nil {
		return nil, errors.Wrap(err, "opening store")
	}
	var closer io.Closer
	if env.Catalog, closer, err = c.OpenCatalog(log); err != nil {
		return nil, err
	}
	env.closers = append(env.closers, closer)
	if env.Journal, closer, err = c.OpenJournal(log); err != nil {
		return nil, err
	}
	env.closers = append(env.closers, closer)

	retries := c.Writer.UploadRetries
	if retries == 0 {
		retries = -1
	}
	env.Writer = columnar.NewWriter(env.Store, columnar.Config{
		Prefix:         c.Prefix,
		MaxRowsPerFile: c.Writer.MaxRowsPerFile,
		UploadRetries:  retries,
	}, log)
	env.Coordinator = commit.NewCoordinator(env.Catalog, commit.Config{
		Prefix:      c.Prefix,
		MaxAttempts: c.Commit.MaxAttempts,
	}, log)
	env.Pipeline = pipeline.New(pipeline.Config{
		Namespace: c.Namespace,
		Batch:     c.BatchConfig(),
		Policy:    policy,
	}, env.Writer, env.Coordinator, env.Journal, log)
	return env, nil
}

// Close releases the catalog and journal.
func (e *Env) Close() error {
	var first error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	e.closers = nil
	return first
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
