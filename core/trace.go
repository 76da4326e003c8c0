package core

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/dosco/fxquery/core"

type StringAttr struct {
	Name  string
	Value string
}

type Tracer interface {
	Start(c context.Context, name string) (context.Context, Spaner)
}

type Spaner interface {
	SetAttributesString(attrs ...StringAttr)
	IsRecording() bool
	Error(err error)
	End()
}

// OtelTracer starts spans on the global OpenTelemetry tracer provider.
type OtelTracer struct {
	tracer trace.Tracer
}

func NewOtelTracer() *OtelTracer {
	return &OtelTracer{tracer: otel.Tracer(tracerName)}
}

func (t *OtelTracer) Start(c context.Context, name string) (context.Context, Spaner) {
	c, span := t.tracer.Start(c, name)
	return c, &otelSpan{span: span}
}

type otelSpan struct {
	span trace.Span
}

func (s *otelSpan) SetAttributesString(attrs ...StringAttr) {
	kv := make([]attribute.KeyValue, len(attrs))
	for i, a := range attrs {
		kv[i] = attribute.String(a.Name, a.Value)
	}
	s.span.SetAttributes(kv...)
}

func (s *otelSpan) IsRecording() bool {
	return s.span.IsRecording()
}

func (s *otelSpan) Error(err error) {
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

func (s *otelSpan) End() {
	s.span.End()
}

func (e *engine) spanStart(c context.Context, name string) (context.Context, Spaner) {
	return e.trace.Start(c, name)
}

type tracer struct{}

func (t *tracer) Start(c context.Context, name string) (context.Context, Spaner) {
	return c, &span{}
}

type span struct{}

func (s *span) SetAttributesString(attrs ...StringAttr) {}
func (s *span) IsRecording() bool                       { return false }
func (s *span) Error(err error)                         {}
func (s *span) End()                                    {}
