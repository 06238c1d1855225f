// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package ctl

import (
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/featurebasedb/lakeingest"
	"github.com/featurebasedb/lakeingest/errors"
	"github.com/featurebasedb/lakeingest/logger"
	"github.com/featurebasedb/lakeingest/schema"
	"github.com/featurebasedb/lakeingest/source"
	"github.com/featurebasedb/lakeingest/source/jsonl"
	"github.com/featurebasedb/lakeingest/source/kafka"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

// Source kinds accepted by RunCommand.
const (
	SourceJSONL = "jsonl"
	SourceKafka = "kafka"
)

// RunCommand ingests records into entity tables, one pipeline per entity.
type RunCommand struct {
	Config *Config

	// Entities to ingest, by entity or table name.
	Entities []string

	// Source is SourceJSONL or SourceKafka.
	Source string

	// Input is the JSON lines input: a file or "-" for stdin with a single
	// entity, or a directory holding <table>.jsonl per entity.
	Input string

	// Standard input/output
	*lakeingest.CmdIO
}

// NewRunCommand returns a new instance of RunCommand.
func NewRunCommand(stdin io.Reader, stdout, stderr io.Writer) *RunCommand {
	return &RunCommand{
		Config: NewConfig(),
		Source: SourceJSONL,
		Input:  "-",
		CmdIO:  lakeingest.NewCmdIO(stdin, stdout, stderr),
	}
}

// Run executes the main program execution.
func (cmd *RunCommand) Run(ctx context.Context) error {
	lc, err := cmd.Config.setupLogger(cmd.CmdIO)
	if err != nil {
		return errors.Wrap(err, "setting up logger")
	}
	defer lc.Close()
	log := cmd.Logger()

	tc, err := cmd.Config.setupTracing("lakeingest", log)
	if err != nil {
		return err
	}
	defer tc.Close()

	descs, err := entities(cmd.Entities)
	if err != nil {
		return err
	}

	env, err := cmd.Config.Open(log)
	if err != nil {
		return err
	}
	defer env.Close()

	sources := make([]source.Source, 0, len(descs))
	defer func() {
		for _, src := range sources {
			if err := src.Close(); err != nil {
				log.Warnf("closing source: %v", err)
			}
		}
	}()
	for _, desc := range descs {
		src, err := cmd.openSource(desc, len(descs), log)
		if err != nil {
			return errors.Wrapf(err, "opening source for %s", desc.Table)
		}
		sources = append(sources, src)
	}

	if cmd.Config.MetricsBind != "" {
		stop, err := cmd.serveMetrics(log)
		if err != nil {
			return err
		}
		defer stop()
	}

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for i, desc := range descs {
		i, desc := i, desc
		g.Go(func() error {
			return errors.Wrapf(env.Pipeline.Process(gctx, string(desc.Entity), sources[i]), "ingesting %s", desc.Table)
		})
	}
	err = g.Wait()
	if err != nil && ctx.Err() != nil {
		log.Printf("interrupted after %v; buffered records were spilled to the journal, run reconcile to replay them", time.Since(start))
		return nil
	}
	if err == nil {
		log.Printf("ingested %d entities in %v", len(descs), time.Since(start))
	}
	return err
}

func (cmd *RunCommand) openSource(desc *schema.Descriptor, n int, log logger.Logger) (source.Source, error) {
	switch cmd.Source {
	case SourceJSONL, "":
		path := cmd.Input
		if n > 1 && (path == "-" || path == "") {
			return nil, errors.New(ErrConfig, "several entities need an input directory, not stdin")
		}
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			path = filepath.Join(path, desc.Table+".jsonl")
		} else if n > 1 {
			return nil, errors.New(ErrConfig, "several entities need an input directory, not "+path)
		}
		if path == "-" || path == "" {
			return jsonl.NewSource(cmd.Stdin), nil
		}
		src, err := jsonl.Open(path)
		if err != nil {
			return nil, err
		}
		return src, nil
	case SourceKafka:
		src := kafka.NewSource()
		src.Hosts = cmd.Config.Kafka.Hosts
		src.Topic = cmd.Config.Kafka.TopicPrefix + desc.Table
		src.Group = cmd.Config.Kafka.Group
		src.SkipOld = cmd.Config.Kafka.SkipOld
		src.Timeout = time.Duration(cmd.Config.Kafka.Timeout)
		src.Log = log.WithPrefix("[kafka " + src.Topic + "] ")
		if err := src.Open(); err != nil {
			return nil, err
		}
		return src, nil
	}
	return nil, errors.New(ErrConfig, "unknown source '"+cmd.Source+"'")
}

// serveMetrics serves /metrics on MetricsBind until stop is called.
func (cmd *RunCommand) serveMetrics(log logger.Logger) (stop func(), err error) {
	ln, err := net.Listen("tcp", cmd.Config.MetricsBind)
	if err != nil {
		return nil, errors.Wrapf(err, "listening on %s", cmd.Config.MetricsBind)
	}
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	srv := &http.Server{Handler: router}

	log.Printf("serving metrics on http://%s/metrics", ln.Addr())
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Errorf("metrics server: %v", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
