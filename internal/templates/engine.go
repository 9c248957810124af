// Package templates selects and renders the HTML fragments returned by the
// bridge. Templates use Django syntax (pongo2) and are looked up across an
// ordered list of file system layers; the embedded defaults are always last.
package templates

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"reflect"
	"strings"
	"sync"

	"github.com/flosch/pongo2/v6"
)

//go:embed defaults
var embedded embed.FS

// Defaults holds gqlhx/fallback.html and gqlhx/error.html.
var Defaults fs.FS = mustSub(embedded, "defaults")

func mustSub(fsys fs.FS, dir string) fs.FS {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		panic(err)
	}
	return sub
}

// ErrTemplateNotFound is wrapped by NotFoundError.
var ErrTemplateNotFound = errors.New("templates: template does not exist")

// NotFoundError lists the candidates that were tried.
type NotFoundError struct {
	Candidates []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("templates: none of [%s] exist", strings.Join(e.Candidates, ", "))
}

func (e *NotFoundError) Unwrap() error { return ErrTemplateNotFound }

// Option configures an Engine.
type Option func(*engineConfig)

type engineConfig struct {
	dirs       []string
	layers     []fs.FS
	noDefaults bool
	globals    map[string]any
}

// WithDir adds template directories on disk, searched in the order given.
func WithDir(dirs ...string) Option {
	return func(cfg *engineConfig) {
		for _, d := range dirs {
			if d = strings.TrimSpace(d); d != "" {
				cfg.dirs = append(cfg.dirs, d)
			}
		}
	}
}

// WithFS adds a template layer searched after the directories.
func WithFS(fsys fs.FS) Option {
	return func(cfg *engineConfig) {
		if fsys != nil {
			cfg.layers = append(cfg.layers, fsys)
		}
	}
}

// WithoutDefaults drops the embedded default templates.
func WithoutDefaults() Option { return func(cfg *engineConfig) { cfg.noDefaults = true } }

// WithGlobals seeds values visible to every template.
func WithGlobals(data map[string]any) Option {
	return func(cfg *engineConfig) {
		if cfg.globals == nil {
			cfg.globals = make(map[string]any, len(data))
		}
		for k, v := range data {
			cfg.globals[strings.TrimSpace(k)] = v
		}
	}
}

// rootLoader resolves include and extends names from the layer root rather
// than from the including template's directory.
type rootLoader struct {
	*pongo2.FSLoader
}

func (rootLoader) Abs(_, name string) string { return name }

// Engine compiles and caches templates.
type Engine struct {
	mu        sync.RWMutex
	set       *pongo2.TemplateSet
	layers    []fs.FS
	dirs      []string
	templates map[string]*pongo2.Template
}

// New builds an Engine. At least one layer must remain once options apply.
func New(options ...Option) (*Engine, error) {
	cfg := &engineConfig{}
	for _, opt := range options {
		if opt != nil {
			opt(cfg)
		}
	}

	var layers []fs.FS
	for _, d := range cfg.dirs {
		info, err := os.Stat(d)
		if err != nil {
			return nil, fmt.Errorf("templates: template dir: %w", err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("templates: %s is not a directory", d)
		}
		layers = append(layers, os.DirFS(d))
	}
	layers = append(layers, cfg.layers...)
	if !cfg.noDefaults {
		layers = append(layers, Defaults)
	}
	if len(layers) == 0 {
		return nil, errors.New("templates: no template layers configured")
	}

	loaders := make([]pongo2.TemplateLoader, len(layers))
	for i, l := range layers {
		loaders[i] = rootLoader{pongo2.NewFSLoader(l)}
	}
	e := &Engine{
		set:       pongo2.NewSet("gqlhx", loaders...),
		layers:    layers,
		dirs:      cfg.dirs,
		templates: make(map[string]*pongo2.Template),
	}
	registerDefaultFilters()
	if len(cfg.globals) > 0 {
		globals, err := convertToContext(cfg.globals)
		if err != nil {
			return nil, fmt.Errorf("templates: apply globals: %w", err)
		}
		if e.set.Globals == nil {
			e.set.Globals = make(pongo2.Context)
		}
		e.set.Globals.Update(globals)
	}
	return e, nil
}

// Dirs reports the on-disk template directories.
func (e *Engine) Dirs() []string { return append([]string(nil), e.dirs...) }

// Exists reports whether name resolves in any layer.
func (e *Engine) Exists(name string) bool {
	if !fs.ValidPath(name) || name == "." {
		return false
	}
	for _, l := range e.layers {
		if info, err := fs.Stat(l, name); err == nil && !info.IsDir() {
			return true
		}
	}
	return false
}

// Select compiles the first candidate that exists. Compile errors are
// returned rather than skipped.
func (e *Engine) Select(candidates ...string) (*Template, error) {
	for _, name := range candidates {
		if !e.Exists(name) {
			continue
		}
		tpl, err := e.load(name)
		if err != nil {
			return nil, err
		}
		return &Template{Name: name, tpl: tpl}, nil
	}
	return nil, &NotFoundError{Candidates: append([]string(nil), candidates...)}
}

func (e *Engine) load(name string) (*pongo2.Template, error) {
	e.mu.RLock()
	if tpl, ok := e.templates[name]; ok {
		e.mu.RUnlock()
		return tpl, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if tpl, ok := e.templates[name]; ok {
		return tpl, nil
	}
	tpl, err := e.set.FromFile(name)
	if err != nil {
		return nil, fmt.Errorf("templates: load %q: %w", name, err)
	}
	e.templates[name] = tpl
	return tpl, nil
}

// Invalidate drops compiled templates. With no names every template is
// dropped.
func (e *Engine) Invalidate(names ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(names) == 0 {
		e.templates = make(map[string]*pongo2.Template)
		e.set.CleanCache()
		return
	}
	for _, n := range names {
		delete(e.templates, n)
	}
	e.set.CleanCache(names...)
}

// RegisterFilter registers a template filter. Filters are process-wide in
// pongo2; registering an existing name fails.
func (e *Engine) RegisterFilter(name string, fn func(input any, param any) (any, error)) error {
	if strings.TrimSpace(name) == "" || fn == nil {
		return errors.New("templates: filter name and function required")
	}
	if pongo2.FilterExists(name) {
		return fmt.Errorf("templates: filter %q already exists", name)
	}
	return pongo2.RegisterFilter(name, func(in *pongo2.Value, param *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
		var p any
		if param != nil {
			p = param.Interface()
		}
		out, err := fn(in.Interface(), p)
		if err != nil {
			return nil, &pongo2.Error{Sender: "filter:" + name, OrigError: err}
		}
		return pongo2.AsValue(out), nil
	})
}

// Template is a compiled template ready to render.
type Template struct {
	Name string
	tpl  *pongo2.Template
}

// Render executes the template with data. Values are normalized through JSON
// so structs are addressed by their JSON field names. Whole float64 values
// become int64, so a Float field holding 2.0 renders as "2".
func (t *Template) Render(w io.Writer, data map[string]any) error {
	ctx, err := convertToContext(data)
	if err != nil {
		return fmt.Errorf("templates: convert data: %w", err)
	}
	if err := t.tpl.ExecuteWriter(ctx, w); err != nil {
		return fmt.Errorf("templates: execute %q: %w", t.Name, err)
	}
	return nil
}

// RenderString renders into a string.
func (t *Template) RenderString(data map[string]any) (string, error) {
	var buf bytes.Buffer
	if err := t.Render(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func convertToContext(in map[string]any) (pongo2.Context, error) {
	out := make(pongo2.Context, len(in))
	for key, value := range in {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		converted, err := convertValue(value)
		if err != nil {
			return nil, err
		}
		out[key] = converted
	}
	return out, nil
}

func convertValue(value any) (any, error) {
	switch v := value.(type) {
	case nil, string, bool, int, int32, int64:
		return v, nil
	case float64:
		// JSON numbers decode as float64 and encoding/json writes a whole
		// Float such as 2.0 as 2, so an Int and a whole Float cannot be told
		// apart here. Both render as integers; fractional values stay float64.
		if v == math.Trunc(v) && math.Abs(v) < 1<<53 {
			return int64(v), nil
		}
		return v, nil
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			c, err := convertValue(item)
			if err != nil {
				return nil, err
			}
			out[k] = c
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			c, err := convertValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = c
		}
		return out, nil
	}
	if reflect.ValueOf(value).Kind() == reflect.Func {
		return value, nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	var decoded any
	if err := json.Unmarshal(b, &decoded); err != nil {
		return nil, err
	}
	return convertValue(decoded)
}
