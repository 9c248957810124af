// Package metrics exports Prometheus metrics for bridge events.
package metrics

import (
	"context"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	eventbus "github.com/hanpama/gqlhx/internal/eventbus"
	events "github.com/hanpama/gqlhx/internal/events"
)

// Collector owns the bridge metrics.
type Collector struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	executions      *prometheus.CounterVec
	execDuration    prometheus.Histogram
	renders         *prometheus.CounterVec
}

// New creates the metrics and registers them on reg.
func New(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gqlhx_http_requests_total",
			Help: "HTTP requests handled, by method and status.",
		}, []string{"method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gqlhx_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gqlhx_graphql_executions_total",
			Help: "GraphQL executions, by operation type and outcome (ok, graphql_error, failure).",
		}, []string{"operation", "outcome"}),
		execDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gqlhx_graphql_execution_duration_seconds",
			Help:    "Time spent in the schema handle.",
			Buckets: prometheus.DefBuckets,
		}),
		renders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gqlhx_template_renders_total",
			Help: "Fragment renders, by template and outcome.",
		}, []string{"template", "outcome"}),
	}
	for _, m := range []prometheus.Collector{c.requests, c.requestDuration, c.executions, c.execDuration, c.renders} {
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Subscribe records events published on the global bus.
func (c *Collector) Subscribe() (unsubscribe func()) {
	unsubs := []func(){
		eventbus.Subscribe(func(_ context.Context, e events.HTTPFinish) {
			method := methodLabel(e.Request.Method)
			c.requests.WithLabelValues(method, strconv.Itoa(e.Status)).Inc()
			c.requestDuration.WithLabelValues(method).Observe(e.Duration.Seconds())
		}),
		eventbus.Subscribe(func(_ context.Context, e events.GraphQLFinish) {
			outcome := "ok"
			switch {
			case e.Err != nil:
				outcome = "failure"
			case len(e.Errors) > 0:
				outcome = "graphql_error"
			}
			op := e.OperationType
			if op == "" {
				op = "unknown"
			}
			c.executions.WithLabelValues(op, outcome).Inc()
			c.execDuration.Observe(e.Duration.Seconds())
		}),
		eventbus.Subscribe(func(_ context.Context, e events.TemplateRender) {
			outcome := "ok"
			if e.Err != nil {
				outcome = "failure"
			}
			c.renders.WithLabelValues(e.Template, outcome).Inc()
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// methodLabel keeps the method label bounded; clients can send any method.
func methodLabel(m string) string {
	switch m {
	case http.MethodGet, http.MethodPost, http.MethodHead, http.MethodOptions:
		return m
	}
	return "other"
}
