// Package observability provides tracing for slabpool benchmark and
// diagnostic runs. Spans wrap pool workload phases so exhaustion and
// recovery waves can be lined up against allocation activity.
package observability

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
	initOnce sync.Once
)

// TracingConfig contains tracing configuration.
type TracingConfig struct {
	// ServiceName labels every span; defaults to "slabpool".
	ServiceName string
	// Writer receives the exported spans. Nil discards them, which
	// keeps span plumbing exercised in tests without output noise.
	Writer io.Writer
	// Pretty enables human-readable multi-line span output.
	Pretty bool
}

// Initialize sets up the global tracer. Safe to call more than once;
// only the first call takes effect.
func Initialize(config TracingConfig) error {
	var err error

	initOnce.Do(func() {
		if config.ServiceName == "" {
			config.ServiceName = "slabpool"
		}
		if config.Writer == nil {
			config.Writer = io.Discard
		}

		opts := []stdouttrace.Option{stdouttrace.WithWriter(config.Writer)}
		if config.Pretty {
			opts = append(opts, stdouttrace.WithPrettyPrint())
		}

		var exporter *stdouttrace.Exporter
		exporter, err = stdouttrace.New(opts...)
		if err != nil {
			err = fmt.Errorf("failed to create trace exporter: %w", err)
			return
		}

		provider = sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
		otel.SetTracerProvider(provider)
		tracer = provider.Tracer(config.ServiceName)
	})

	return err
}

// Shutdown flushes pending spans and stops the provider.
func Shutdown(ctx context.Context) error {
	if provider == nil {
		return nil
	}
	return provider.Shutdown(ctx)
}

// GetTracer returns the global tracer. Initialize must have been
// called first.
func GetTracer() trace.Tracer {
	return tracer
}

// Span wraps an OpenTelemetry span and batches attribute writes until
// End, so hot loops touch only a local slice.
type Span struct {
	span       trace.Span
	startTime  time.Time
	attributes []attribute.KeyValue
}

// NewSpan starts a span for a workload phase.
func NewSpan(ctx context.Context, operationName string) (context.Context, *Span) {
	ctx, span := tracer.Start(ctx, operationName)

	return ctx, &Span{
		span:      span,
		startTime: time.Now(),
	}
}

// SetAttribute records an attribute, deferring the write to End.
func (s *Span) SetAttribute(key string, value interface{}) {
	var attr attribute.KeyValue

	switch v := value.(type) {
	case string:
		attr = attribute.String(key, v)
	case int:
		attr = attribute.Int(key, v)
	case int64:
		attr = attribute.Int64(key, v)
	case uint32:
		attr = attribute.Int64(key, int64(v))
	case uint64:
		attr = attribute.Int64(key, int64(v))
	case float64:
		attr = attribute.Float64(key, v)
	case bool:
		attr = attribute.Bool(key, v)
	default:
		attr = attribute.String(key, fmt.Sprintf("%v", v))
	}

	s.attributes = append(s.attributes, attr)
}

// AddEvent adds an event to the span.
func (s *Span) AddEvent(name string, attrs ...attribute.KeyValue) {
	s.span.AddEvent(name, trace.WithAttributes(attrs...))
}

// SetStatus sets the span status.
func (s *Span) SetStatus(code codes.Code, description string) {
	s.span.SetStatus(code, description)
}

// Duration returns the time elapsed since the span started.
func (s *Span) Duration() time.Duration {
	return time.Since(s.startTime)
}

// End flushes batched attributes and ends the span.
func (s *Span) End() {
	if len(s.attributes) > 0 {
		s.span.SetAttributes(s.attributes...)
	}
	s.span.End()
}

// PhaseTracer scopes spans to one named pool, prefixing every
// operation with the pool name and stamping pool attributes.
type PhaseTracer struct {
	poolName string
}

// NewPhaseTracer creates a tracer for the given pool.
func NewPhaseTracer(poolName string) *PhaseTracer {
	return &PhaseTracer{poolName: poolName}
}

// StartPhase starts a span named after a workload phase of this pool.
func (pt *PhaseTracer) StartPhase(ctx context.Context, phase string) (context.Context, *Span) {
	ctx, span := NewSpan(ctx, fmt.Sprintf("pool.%s.%s", pt.poolName, phase))
	span.SetAttribute("pool.name", pt.poolName)
	span.SetAttribute("pool.phase", phase)
	return ctx, span
}

// TracePhase runs fn inside a phase span, recording operation count,
// duration, and error status.
func (pt *PhaseTracer) TracePhase(ctx context.Context, phase string, operations int, fn func(context.Context) error) error {
	ctx, span := pt.StartPhase(ctx, phase)
	defer span.End()

	span.SetAttribute("phase.operations", operations)

	err := fn(ctx)
	span.SetAttribute("phase.duration_us", span.Duration().Microseconds())

	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.SetAttribute("error", true)
	} else {
		span.SetStatus(codes.Ok, "")
	}

	return err
}
