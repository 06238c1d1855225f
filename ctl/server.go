// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package ctl

import (
	"time"

	"github.com/spf13/pflag"
)

// BuildConfigFlags attaches a flag for every Config option to flags. Flag
// names match the TOML keys so setAllConfig can resolve them from the
// environment and a config file.
func BuildConfigFlags(flags *pflag.FlagSet, c *Config) {
	flags.StringVarP(&c.Namespace, "namespace", "n", c.Namespace, "Namespace the entity tables are registered under.")
	flags.StringVar(&c.Prefix, "prefix", c.Prefix, "Key prefix of the warehouse in the store.")
	flags.StringVar(&c.Catalog, "catalog", c.Catalog, "Catalog: memory:, file:/dir for an embedded catalog, or the http address of a catalog server.")
	flags.StringVarP(&c.DataDir, "data-dir", "d", c.DataDir, "Directory holding the journal. Empty keeps it in memory.")
	flags.StringVar(&c.Policy, "policy", c.Policy, "Coercion policy for mistyped fields: default, quarantine or strict.")
	flags.StringVar(&c.LogPath, "log-path", c.LogPath, "Log path")
	flags.BoolVar(&c.Verbose, "verbose", c.Verbose, "Enable verbose logging")
	flags.StringVar(&c.MetricsBind, "metrics-bind", c.MetricsBind, "Address to serve /metrics on while running. Empty to disable.")

	// Storage
	flags.StringVar(&c.Storage.URL, "storage.url", c.Storage.URL, "Object store: memory:, file:/dir or s3://bucket.")
	flags.StringVar(&c.Storage.Region, "storage.region", c.Storage.Region, "S3 region.")
	flags.StringVar(&c.Storage.Endpoint, "storage.endpoint", c.Storage.Endpoint, "S3 endpoint, for S3 compatible stores.")
	flags.BoolVar(&c.Storage.ForcePathStyle, "storage.force-path-style", c.Storage.ForcePathStyle, "Use path style S3 addressing.")

	// Batch
	flags.IntVar(&c.Batch.MaxRows, "batch.max-rows", c.Batch.MaxRows, "Number of records at which a batch is flushed.")
	flags.IntVar(&c.Batch.MaxSeconds, "batch.max-seconds", c.Batch.MaxSeconds, "Seconds after the previous flush at which a batch is flushed. Zero to disable.")

	// Writer
	flags.IntVar(&c.Writer.MaxRowsPerFile, "writer.max-rows-per-file", c.Writer.MaxRowsPerFile, "Rows per data file; larger batches are split into parts.")
	flags.IntVar(&c.Writer.UploadRetries, "writer.upload-retries", c.Writer.UploadRetries, "Times a failed upload is retried (0 disables retries).")

	// Commit
	flags.IntVar(&c.Commit.MaxAttempts, "commit.max-attempts", c.Commit.MaxAttempts, "Appends tried when commits conflict.")

	// Kafka
	flags.StringSliceVar(&c.Kafka.Hosts, "kafka.hosts", c.Kafka.Hosts, "Comma separated list of kafka brokers.")
	flags.StringVar(&c.Kafka.TopicPrefix, "kafka.topic-prefix", c.Kafka.TopicPrefix, "Prefix of the topic each entity is read from, followed by the table name.")
	flags.StringVar(&c.Kafka.Group, "kafka.group", c.Kafka.Group, "Kafka consumer group.")
	flags.BoolVar(&c.Kafka.SkipOld, "kafka.skip-old", c.Kafka.SkipOld, "Start at the newest offset when the group has none.")
	flags.DurationVar((*time.Duration)(&c.Kafka.Timeout), "kafka.timeout", time.Duration(c.Kafka.Timeout), "Flush the open batch when no message arrives for this long. Zero to disable.")

	// Tracing
	flags.StringVar(&c.Tracing.SamplerType, "tracing.sampler-type", c.Tracing.SamplerType, "Jaeger sampler type (const, probabilistic, ratelimiting). Empty disables tracing.")
	flags.Float64Var(&c.Tracing.SamplerParam, "tracing.sampler-param", c.Tracing.SamplerParam, "Jaeger sampler parameter.")
	flags.StringVar(&c.Tracing.AgentHostPort, "tracing.agent-host-port", c.Tracing.AgentHostPort, "Jaeger agent host:port.")
}
