// Package tracing reports scheduler flushes of an observer.System as
// OpenTelemetry spans.
package tracing

import (
	"context"
	"fmt"
	"time"

	"github.com/delaneyj/watchparty/observer"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const defaultTracerName = "watchparty"

// Config configures the tracer.
type Config struct {
	// TracerName is the name of the tracer (default: "watchparty").
	TracerName string

	// Provider supplies the tracer. If nil, the global provider is used.
	Provider trace.TracerProvider

	// Context is the parent of every flush span (default: context.Background()).
	Context context.Context
}

// Option configures the tracer.
type Option func(*Config)

// WithTracerName sets the tracer name.
func WithTracerName(name string) Option {
	return func(c *Config) {
		c.TracerName = name
	}
}

// WithTracerProvider sets the tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Config) {
		c.Provider = tp
	}
}

// WithContext sets the parent context of flush spans.
func WithContext(ctx context.Context) Option {
	return func(c *Config) {
		c.Context = ctx
	}
}

// Tracer implements observer.Instrumentation. Each flush becomes a span,
// each watcher run an event on it.
//
//	sys := observer.NewSystem(observer.WithInstrumentation(tracing.New()))
type Tracer struct {
	tracer trace.Tracer
	parent context.Context
	span   trace.Span
	errs   int
}

var _ observer.Instrumentation = (*Tracer)(nil)

// New creates a Tracer.
func New(opts ...Option) *Tracer {
	config := Config{TracerName: defaultTracerName}
	for _, opt := range opts {
		opt(&config)
	}
	if config.Context == nil {
		config.Context = context.Background()
	}

	var tracer trace.Tracer
	if config.Provider != nil {
		tracer = config.Provider.Tracer(config.TracerName)
	} else {
		tracer = otel.Tracer(config.TracerName)
	}
	return &Tracer{tracer: tracer, parent: config.Context}
}

func (t *Tracer) FlushStarted(queued int) {
	_, t.span = t.tracer.Start(t.parent, "watchparty.flush",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.Int("watchparty.queued", queued)),
		trace.WithTimestamp(time.Now()),
	)
	t.errs = 0
}

func (t *Tracer) WatcherRan(w *observer.Watcher, took time.Duration, err error) {
	if t.span == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.Int64("watchparty.watcher.id", int64(w.ID())),
		attribute.String("watchparty.watcher.kind", w.Kind().String()),
		attribute.Int64("watchparty.watcher.took_ns", took.Nanoseconds()),
	}
	if exp := w.Expression(); exp != "" {
		attrs = append(attrs, attribute.String("watchparty.watcher.expression", exp))
	}
	t.span.AddEvent("watcher.run", trace.WithAttributes(attrs...))
	if err != nil {
		t.errs++
		t.span.RecordError(err, trace.WithAttributes(attrs[0]))
	}
}

func (t *Tracer) UpdateLoopDetected(w *observer.Watcher) {
	if t.span == nil {
		return
	}
	t.span.AddEvent("watcher.update_loop", trace.WithAttributes(
		attribute.Int64("watchparty.watcher.id", int64(w.ID())),
	))
	t.errs++
}

func (t *Tracer) FlushFinished(ran int, _ time.Duration) {
	if t.span == nil {
		return
	}
	t.span.SetAttributes(attribute.Int("watchparty.ran", ran))
	if t.errs == 0 {
		t.span.SetStatus(codes.Ok, "")
	} else {
		t.span.SetAttributes(attribute.Int("watchparty.errors", t.errs))
		t.span.SetStatus(codes.Error, fmt.Sprintf("%d watcher errors", t.errs))
	}
	t.span.End()
	t.span = nil
}
