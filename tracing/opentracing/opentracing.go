// Package opentracing adapts an opentracing-go tracer, such as the Jaeger
// tracer the CLI sets up, to tracing.Tracer.
package opentracing

import (
	"context"
	"net/http"

	"github.com/featurebasedb/lakeingest/logger"
	"github.com/featurebasedb/lakeingest/tracing"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
)

// Ensure type implements interface.
var _ tracing.Tracer = (*Tracer)(nil)

// Component tags every span started through Tracer.
const Component = "lakeingest"

// Tracer represents a wrapper for OpenTracing that implements tracing.Tracer.
type Tracer struct {
	tracer opentracing.Tracer
	logger logger.Logger
}

// NewTracer returns a new instance of Tracer.
func NewTracer(tracer opentracing.Tracer, logger logger.Logger) *Tracer {
	return &Tracer{tracer: tracer, logger: logger}
}

// StartSpanFromContext returns a new child span and context from a given context.
func (t *Tracer) StartSpanFromContext(ctx context.Context, operationName string) (tracing.Span, context.Context) {
	var opts []opentracing.StartSpanOption
	if parent := opentracing.SpanFromContext(ctx); parent != nil {
		opts = append(opts, opentracing.ChildOf(parent.Context()))
	}
	span := t.tracer.StartSpan(operationName, opts...)
	ext.Component.Set(span, Component)
	return span, opentracing.ContextWithSpan(ctx, span)
}

// InjectHTTPHeaders adds the span of the request's context to its headers
// and marks that span as the client side of the call.
func (t *Tracer) InjectHTTPHeaders(r *http.Request) {
	if span := opentracing.SpanFromContext(r.Context()); span != nil {
		ext.SpanKindRPCClient.Set(span)
		ext.HTTPMethod.Set(span, r.Method)
		ext.HTTPUrl.Set(span, r.URL.String())
		if err := t.tracer.Inject(
			span.Context(),
			opentracing.HTTPHeaders,
			opentracing.HTTPHeadersCarrier(r.Header),
		); err != nil {
			t.logger.Errorf("opentracing inject error: %s", err)
		}
	}
}

// ExtractHTTPHeaders starts a server span that continues the trace carried
// in the request headers, if any.
func (t *Tracer) ExtractHTTPHeaders(r *http.Request) (tracing.Span, context.Context) {
	wireContext, err := t.tracer.Extract(
		opentracing.HTTPHeaders,
		opentracing.HTTPHeadersCarrier(r.Header),
	)
	if err != nil && err != opentracing.ErrSpanContextNotFound {
		t.logger.Debugf("opentracing extract error: %s", err)
	}

	span := t.tracer.StartSpan("HTTP "+r.Method+" "+r.URL.Path,
		ext.RPCServerOption(wireContext),
		opentracing.Tag{Key: string(ext.Component), Value: Component},
		opentracing.Tag{Key: string(ext.HTTPMethod), Value: r.Method},
		opentracing.Tag{Key: string(ext.HTTPUrl), Value: r.URL.Path},
	)
	return span, opentracing.ContextWithSpan(r.Context(), span)
}
