package otel

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	eventbus "github.com/hanpama/gqlhx/internal/eventbus"
	events "github.com/hanpama/gqlhx/internal/events"
	reqid "github.com/hanpama/gqlhx/internal/reqid"
)

func TestSetupWithoutEndpoint(t *testing.T) {
	shutdown, err := Setup("", "gqlhx")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestSpansFromEvents(t *testing.T) {
	eventbus.Use(eventbus.New())
	t.Cleanup(func() { eventbus.Use(nil) })

	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	unsubscribe := Subscribe(tp.Tracer("test"))
	defer unsubscribe()

	ctx, rid := reqid.NewContext(context.Background())
	req := httptest.NewRequest("POST", "/graphql", nil)
	eventbus.Publish(ctx, events.HTTPStart{Request: req, RequestID: rid, HTMX: events.HTMX{Request: true, Target: "#list"}})
	eventbus.Publish(ctx, events.GraphQLStart{OperationType: "query"})
	eventbus.Publish(ctx, events.GraphQLFinish{Err: errors.New("boom")})
	eventbus.Publish(ctx, events.TemplateRender{Template: "partials/items.html", RootKey: "items"})
	eventbus.Publish(ctx, events.HTTPFinish{Request: req, Status: 200})

	spans := rec.Ended()
	require.Len(t, spans, 3)
	names := []string{spans[0].Name(), spans[1].Name(), spans[2].Name()}
	assert.Equal(t, []string{"graphql.execute", "template.render", "http.request"}, names)

	httpSpan := spans[2]
	for _, s := range spans[:2] {
		assert.Equal(t, httpSpan.SpanContext().SpanID(), s.Parent().SpanID(), s.Name())
	}
	assert.Len(t, spans[0].Events(), 1, "error recorded on graphql span")

	attrs := map[string]string{}
	for _, kv := range httpSpan.Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, rid, attrs["gqlhx.request_id"])
	assert.Equal(t, "true", attrs["htmx.request"])
	assert.Equal(t, "#list", attrs["htmx.target"])
}

func TestOverlappingRequestsSharingAnID(t *testing.T) {
	eventbus.Use(eventbus.New())
	t.Cleanup(func() { eventbus.Use(nil) })

	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	defer Subscribe(tp.Tracer("test"))()

	newReq := func() (context.Context, *http.Request) {
		r := httptest.NewRequest("POST", "/graphql", nil)
		r.Header.Set(reqid.Header, "same")
		ctx, _ := reqid.FromRequest(r)
		return ctx, r
	}
	ctxA, reqA := newReq()
	ctxB, reqB := newReq()

	eventbus.Publish(ctxA, events.HTTPStart{Request: reqA})
	eventbus.Publish(ctxB, events.HTTPStart{Request: reqB})
	eventbus.Publish(ctxA, events.GraphQLStart{OperationType: "query"})
	eventbus.Publish(ctxB, events.GraphQLStart{OperationType: "query"})
	eventbus.Publish(ctxA, events.GraphQLFinish{})
	eventbus.Publish(ctxB, events.GraphQLFinish{})
	eventbus.Publish(ctxA, events.HTTPFinish{Request: reqA, Status: 200})
	eventbus.Publish(ctxB, events.HTTPFinish{Request: reqB, Status: 200})

	assert.Len(t, rec.Started(), 4)
	spans := rec.Ended()
	require.Len(t, spans, 4)

	// Ended order: gql A, gql B, http A, http B.
	assert.Equal(t, spans[2].SpanContext().SpanID(), spans[0].Parent().SpanID())
	assert.Equal(t, spans[3].SpanContext().SpanID(), spans[1].Parent().SpanID())
}
