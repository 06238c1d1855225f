package ctl

import (
	"io"

	"github.com/featurebasedb/lakeingest/errors"
	"github.com/featurebasedb/lakeingest/logger"
	"github.com/featurebasedb/lakeingest/tracing"
	"github.com/featurebasedb/lakeingest/tracing/opentracing"
	jaegercfg "github.com/uber/jaeger-client-go/config"
)

// setupTracing installs a jaeger tracer as the global tracer when a sampler
// is configured. The returned closer flushes buffered spans.
func (c *Config) setupTracing(service string, log logger.Logger) (io.Closer, error) {
	if c.Tracing.SamplerType == "" {
		return nopCloser{}, nil
	}

	cfg, err := jaegercfg.FromEnv()
	if err != nil {
		return nil, errors.Wrap(err, "reading jaeger environment")
	}
	cfg.ServiceName = service
	cfg.Sampler.Type = c.Tracing.SamplerType
	cfg.Sampler.Param = c.Tracing.SamplerParam
	if c.Tracing.AgentHostPort != "" {
		cfg.Reporter.LocalAgentHostPort = c.Tracing.AgentHostPort
	}

	tracer, closer, err := cfg.NewTracer()
	if err != nil {
		return nil, errors.Wrap(err, "initializing jaeger tracer")
	}
	tracing.GlobalTracer = opentracing.NewTracer(tracer, log)
	return closer, nil
}
