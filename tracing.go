package bootstrap

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName = "github.com/GoCodeAlone/bootstrap"

	spanStartup             = "bootstrap.start"
	spanShutdown            = "bootstrap.stop"
	spanContext             = "bootstrap.context"
	spanApplicationServices = "bootstrap.application_services"

	attrServiceName = attribute.Key("bootstrap.service.name")
	attrOperation   = attribute.Key("bootstrap.operation")
)

// traceUnit runs fn inside a span called name. On success the span is marked
// OK with okMessage; on failure the error is recorded on the span and returned.
func traceUnit(ctx context.Context, tracer trace.Tracer, name, okMessage string, fn func(context.Context) error, opts ...trace.SpanStartOption) error {
	ctx, span := tracer.Start(ctx, name, opts...)
	defer span.End()

	if err := fn(ctx); err != nil {
		failSpan(span, err)
		return err
	}
	span.SetStatus(codes.Ok, okMessage)
	return nil
}

// traceValue is traceUnit for operations producing a value.
func traceValue[T any](ctx context.Context, tracer trace.Tracer, name string, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := traceUnit(ctx, tracer, name, "", func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	return out, err
}

func failSpan(span trace.Span, err error) {
	span.SetStatus(codes.Error, err.Error())
	span.RecordError(err)
}
