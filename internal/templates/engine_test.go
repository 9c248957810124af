package templates

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T, files fstest.MapFS, opts ...Option) *Engine {
	t.Helper()
	e, err := New(append([]Option{WithFS(files)}, opts...)...)
	require.NoError(t, err)
	return e
}

func TestSelectFirstExisting(t *testing.T) {
	e := newEngine(t, fstest.MapFS{
		"partials/items_table.html": {Data: []byte(`table:{% for i in items %}{{ i }},{% endfor %}`)},
	})
	tpl, err := e.Select("partials/items.html", "partials/items_table.html", "gqlhx/fallback.html")
	require.NoError(t, err)
	assert.Equal(t, "partials/items_table.html", tpl.Name)

	out, err := tpl.RenderString(map[string]any{"items": []any{1, 2, 3}})
	require.NoError(t, err)
	assert.Equal(t, "table:1,2,3,", out)
}

func TestSelectFallsBackToEmbeddedDefault(t *testing.T) {
	e := newEngine(t, fstest.MapFS{})
	tpl, err := e.Select("partials/users.html", "gqlhx/fallback.html")
	require.NoError(t, err)
	assert.Equal(t, "gqlhx/fallback.html", tpl.Name)

	out, err := tpl.RenderString(map[string]any{"gql": map[string]any{"users": []any{}}, "root": []any{float64(1), float64(2)}})
	require.NoError(t, err)
	assert.Contains(t, out, "[1,2]")
}

func TestDirectoriesShadowDefaults(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "gqlhx"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "gqlhx", "fallback.html"), []byte("custom"), 0o644))

	e, err := New(WithDir(dir))
	require.NoError(t, err)
	tpl, err := e.Select("gqlhx/fallback.html")
	require.NoError(t, err)
	out, err := tpl.RenderString(nil)
	require.NoError(t, err)
	assert.Equal(t, "custom", out)
	assert.Equal(t, []string{dir}, e.Dirs())
}

func TestSelectNotFound(t *testing.T) {
	e := newEngine(t, fstest.MapFS{}, WithoutDefaults())
	_, err := e.Select("a.html", "b.html")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTemplateNotFound))
	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, []string{"a.html", "b.html"}, nf.Candidates)
}

func TestSelectRejectsUnsafeNames(t *testing.T) {
	e := newEngine(t, fstest.MapFS{"ok.html": {Data: []byte("ok")}})
	assert.False(t, e.Exists("../ok.html"))
	assert.False(t, e.Exists("/ok.html"))
	assert.False(t, e.Exists("."))
	assert.True(t, e.Exists("ok.html"))
}

func TestIncludeAndExtendsResolveFromRoot(t *testing.T) {
	e := newEngine(t, fstest.MapFS{
		"layouts/base.html":   {Data: []byte(`<ul>{% block body %}{% endblock %}</ul>`)},
		"shared/row.html":     {Data: []byte(`{% for i in items %}<li>{{ i }}</li>{% endfor %}`)},
		"partials/items.html": {Data: []byte(`{% extends "layouts/base.html" %}{% block body %}{% include "shared/row.html" %}{% endblock %}`)},
	})
	tpl, err := e.Select("partials/items.html")
	require.NoError(t, err)
	out, err := tpl.RenderString(map[string]any{"items": []any{1, 2}})
	require.NoError(t, err)
	assert.Equal(t, "<ul><li>1</li><li>2</li></ul>", out)
}

func TestIncludeFromDefaultsLayer(t *testing.T) {
	e := newEngine(t, fstest.MapFS{
		"partials/users.html": {Data: []byte(`{% include "gqlhx/error.html" %}`)},
	})
	tpl, err := e.Select("partials/users.html")
	require.NoError(t, err)
	out, err := tpl.RenderString(map[string]any{"errors": []any{map[string]any{"message": "nope"}}})
	require.NoError(t, err)
	assert.Contains(t, out, "nope")
}

func TestWholeFloatsRenderAsIntegers(t *testing.T) {
	e := newEngine(t, fstest.MapFS{"n.html": {Data: []byte(`{{ a }}|{{ b }}`)}})
	tpl, err := e.Select("n.html")
	require.NoError(t, err)
	out, err := tpl.RenderString(map[string]any{"a": float64(2), "b": int64(7)})
	require.NoError(t, err)
	assert.Equal(t, "2|7", out)

	v, err := convertValue(2.5)
	require.NoError(t, err)
	assert.Equal(t, 2.5, v)
}

func TestSelectCompileError(t *testing.T) {
	e := newEngine(t, fstest.MapFS{"bad.html": {Data: []byte(`{% for %}`)}})
	_, err := e.Select("bad.html", "gqlhx/fallback.html")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrTemplateNotFound))
}

func TestErrorTemplate(t *testing.T) {
	e := newEngine(t, fstest.MapFS{})
	tpl, err := e.Select("gqlhx/error.html")
	require.NoError(t, err)
	type gqlErr struct {
		Message string `json:"message"`
		Path    []any  `json:"path,omitempty"`
	}
	out, err := tpl.RenderString(map[string]any{"errors": []gqlErr{{Message: "boom <b>", Path: []any{"users"}}}})
	require.NoError(t, err)
	assert.Contains(t, out, "boom &lt;b&gt;")
	assert.Contains(t, out, "<code>users</code>")
}

func TestGlobalsAndFilters(t *testing.T) {
	e := newEngine(t, fstest.MapFS{
		"g.html": {Data: []byte(`{{ site }}|{{ name|shout }}|{{ "  x "|trim }}`)},
	}, WithGlobals(map[string]any{"site": "demo"}))
	require.NoError(t, e.RegisterFilter("shout", func(in, _ any) (any, error) {
		return strings.ToUpper(in.(string)), nil
	}))
	assert.Error(t, e.RegisterFilter("shout", func(in, _ any) (any, error) { return in, nil }))

	tpl, err := e.Select("g.html")
	require.NoError(t, err)
	out, err := tpl.RenderString(map[string]any{"name": "htmx"})
	require.NoError(t, err)
	assert.Equal(t, "demo|HTMX|x", out)
}

func TestNewRequiresLayer(t *testing.T) {
	_, err := New(WithoutDefaults())
	assert.Error(t, err)
	_, err = New(WithDir(filepath.Join(t.TempDir(), "missing")))
	assert.Error(t, err)
}

func TestWatchInvalidates(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "w.html")
	require.NoError(t, os.WriteFile(file, []byte("one"), 0o644))

	e, err := New(WithDir(dir), WithoutDefaults())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, e.Watch(ctx))

	render := func() string {
		tpl, err := e.Select("w.html")
		require.NoError(t, err)
		out, err := tpl.RenderString(nil)
		require.NoError(t, err)
		return out
	}
	require.Equal(t, "one", render())
	require.NoError(t, os.WriteFile(file, []byte("two"), 0o644))
	require.Eventually(t, func() bool { return render() == "two" }, 5*time.Second, 20*time.Millisecond)
}
