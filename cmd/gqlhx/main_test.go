package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/hanpama/gqlhx/internal/config"
	demo "github.com/hanpama/gqlhx/internal/demo"
	metrics "github.com/hanpama/gqlhx/internal/metrics"
	server "github.com/hanpama/gqlhx/internal/server"
	templates "github.com/hanpama/gqlhx/internal/templates"
)

func TestHelp(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"help", "serve"}, &out, &out))
	assert.Contains(t, out.String(), "-server.addr")

	out.Reset()
	require.NoError(t, run(context.Background(), []string{"help"}, &out, &out))
	assert.Contains(t, out.String(), "COMMANDS:")

	assert.Error(t, run(context.Background(), []string{"help", "nope"}, &out, &out))
}

func TestUnknownAndMissingCommand(t *testing.T) {
	var stderr bytes.Buffer
	assert.EqualError(t, run(context.Background(), nil, &stderr, &stderr), "missing command")
	assert.Error(t, run(context.Background(), []string{"compile"}, &stderr, &stderr))
	assert.Contains(t, stderr.String(), "USAGE:")
}

func TestCheck(t *testing.T) {
	dir := t.TempDir()
	tplDir := filepath.Join(dir, "tpl")
	require.NoError(t, os.MkdirAll(filepath.Join(tplDir, "partials"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(tplDir, "partials", "users.html"), []byte("{{ root }}"), 0o644))
	cfgFile := filepath.Join(dir, "gqlhx.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte(`
schema: demo.schema
renderers:
  people: partials/users.html
`), 0o644))

	var out bytes.Buffer
	err := run(context.Background(), []string{"check", "-config", cfgFile, "-templates", tplDir, "-env", writeEnv(t, dir)}, &out, &out)
	require.NoError(t, err, out.String())
	assert.Contains(t, out.String(), "ok: schema demo.schema (sync executor)")
}

func TestCheckFailures(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer

	err := run(context.Background(), []string{"check", "-env", writeEnv(t, dir), "-schema", "missing.schema"}, &out, &out)
	assert.ErrorContains(t, err, "no module named 'missing'")

	cfgFile := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("renderers:\n  card: cards/none.html\n"), 0o644))
	err = run(context.Background(), []string{"check", "-env", writeEnv(t, dir), "-config", cfgFile, "-schema", demo.Name}, &out, &out)
	assert.ErrorContains(t, err, `renderer "card"`)

	err = run(context.Background(), []string{"check", "-env", writeEnv(t, dir), "-log.level", "loud"}, &out, &out)
	assert.ErrorContains(t, err, "Config.Log.Level")
}

func TestEnvFileSetsSchema(t *testing.T) {
	dir := t.TempDir()
	env := filepath.Join(dir, "app.env")
	require.NoError(t, os.WriteFile(env, []byte(config.SchemaEnv+"="+demo.Name+"\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv(config.SchemaEnv) })

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"check", "-env", env}, &out, &out))
	assert.Contains(t, out.String(), "schema demo.schema")

	assert.Error(t, run(context.Background(), []string{"check", "-env", filepath.Join(dir, "absent.env")}, &out, &out))
}

// writeEnv returns an empty dotenv file so the working directory's .env is
// never read.
func writeEnv(t *testing.T, dir string) string {
	t.Helper()
	p := filepath.Join(dir, "empty.env")
	require.NoError(t, os.WriteFile(p, nil, 0o644))
	return p
}

func newTestRouter(t *testing.T, cfg config.Config) (http.Handler, *prometheus.Registry) {
	t.Helper()
	engine, err := templates.New()
	require.NoError(t, err)
	h, err := server.New(cfg, engine, server.WithSchema(demo.Name), server.WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	reg := prometheus.NewRegistry()
	return newRouter(cfg, h, reg), reg
}

func TestRouterServesEndpoint(t *testing.T) {
	cfg := config.Default()
	router, _ := newTestRouter(t, cfg)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/graphql", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, cfg.Placeholder, w.Body.String())

	form := url.Values{"query": {"{ users { name } }"}}
	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "Grace Hopper")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/elsewhere", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouterCORS(t *testing.T) {
	cfg := config.Default()
	cfg.Server.CORSOrigins = []string{"https://app.example.com"}
	router, _ := newTestRouter(t, cfg)

	req := httptest.NewRequest(http.MethodOptions, "/graphql", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouterMetrics(t *testing.T) {
	cfg := config.Default()
	router, reg := newTestRouter(t, cfg)
	_, err := metrics.New(reg)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "gqlhx_graphql_execution_duration_seconds")
}
