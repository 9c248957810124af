// Package otel turns bridge events into OpenTelemetry spans.
package otel

import (
	"context"
	"sync"
	"time"

	eventbus "github.com/hanpama/gqlhx/internal/eventbus"
	events "github.com/hanpama/gqlhx/internal/events"
	reqid "github.com/hanpama/gqlhx/internal/reqid"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Setup configures OpenTelemetry and attaches eventbus subscribers.
// If endpoint is empty, no telemetry is configured.
func Setup(endpoint, service string) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	exp, err := otlptracegrpc.New(context.Background(),
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(service),
		)),
	)
	otel.SetTracerProvider(tp)

	unsubscribe := Subscribe(otel.Tracer("gqlhx"))
	return func(ctx context.Context) error {
		unsubscribe()
		return tp.Shutdown(ctx)
	}, nil
}

// Subscribe records spans on tracer for events published on the global bus.
func Subscribe(tracer trace.Tracer) (unsubscribe func()) {
	s := &subscriber{tracer: tracer}
	return s.register()
}

type subscriber struct {
	tracer    trace.Tracer
	httpSpans sync.Map // reqid.Token -> trace.Span
	gqlSpans  sync.Map // reqid.Token -> trace.Span
}

func (s *subscriber) parent(ctx context.Context) context.Context {
	tok := reqid.Token(ctx)
	if tok == nil {
		return ctx
	}
	if v, ok := s.httpSpans.Load(tok); ok {
		return trace.ContextWithSpan(ctx, v.(trace.Span))
	}
	return ctx
}

func (s *subscriber) register() func() {
	unsubs := []func(){
		eventbus.Subscribe(func(ctx context.Context, e events.HTTPStart) {
			_, span := s.tracer.Start(ctx, "http.request")
			span.SetAttributes(
				semconv.HTTPMethodKey.String(e.Request.Method),
				attribute.String("http.target", e.Request.URL.Path),
				attribute.String("gqlhx.request_id", e.RequestID),
				attribute.Bool("htmx.request", e.HTMX.Request),
			)
			if e.HTMX.Target != "" {
				span.SetAttributes(attribute.String("htmx.target", e.HTMX.Target))
			}
			if e.HTMX.Trigger != "" {
				span.SetAttributes(attribute.String("htmx.trigger", e.HTMX.Trigger))
			}
			if tok := reqid.Token(ctx); tok != nil {
				s.httpSpans.Store(tok, span)
			} else {
				span.End()
			}
		}),

		eventbus.Subscribe(func(ctx context.Context, e events.HTTPFinish) {
			tok := reqid.Token(ctx)
			if tok == nil {
				return
			}
			v, ok := s.httpSpans.LoadAndDelete(tok)
			if !ok {
				return
			}
			span := v.(trace.Span)
			span.SetAttributes(semconv.HTTPStatusCodeKey.Int(e.Status))
			if e.Status >= 500 {
				span.SetStatus(codes.Error, "server error")
			}
			span.End()
		}),

		eventbus.Subscribe(func(ctx context.Context, e events.GraphQLStart) {
			_, span := s.tracer.Start(s.parent(ctx), "graphql.execute")
			span.SetAttributes(
				attribute.String("graphql.operation.name", e.OperationName),
				attribute.String("graphql.operation.type", e.OperationType),
				attribute.String("gqlhx.executor", e.Executor),
			)
			if tok := reqid.Token(ctx); tok != nil {
				s.gqlSpans.Store(tok, span)
			} else {
				span.End()
			}
		}),

		eventbus.Subscribe(func(ctx context.Context, e events.GraphQLFinish) {
			tok := reqid.Token(ctx)
			if tok == nil {
				return
			}
			v, ok := s.gqlSpans.LoadAndDelete(tok)
			if !ok {
				return
			}
			span := v.(trace.Span)
			span.SetAttributes(attribute.Int("graphql.error_count", len(e.Errors)))
			if e.Err != nil {
				span.RecordError(e.Err)
				span.SetStatus(codes.Error, e.Err.Error())
			}
			span.End()
		}),

		eventbus.Subscribe(func(ctx context.Context, e events.TemplateRender) {
			// published after rendering; backdate the span to its start
			_, span := s.tracer.Start(s.parent(ctx), "template.render",
				trace.WithTimestamp(time.Now().Add(-e.Duration)))
			span.SetAttributes(
				attribute.String("gqlhx.template", e.Template),
				attribute.String("gqlhx.root_key", e.RootKey),
				attribute.StringSlice("gqlhx.template.candidates", e.Candidates),
			)
			if e.Err != nil {
				span.RecordError(e.Err)
				span.SetStatus(codes.Error, e.Err.Error())
			}
			span.End()
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
