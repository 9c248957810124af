// Package server answers GraphQL form submissions with rendered HTML
// fragments.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	config "github.com/hanpama/gqlhx/internal/config"
	eventbus "github.com/hanpama/gqlhx/internal/eventbus"
	events "github.com/hanpama/gqlhx/internal/events"
	executor "github.com/hanpama/gqlhx/internal/executor"
	language "github.com/hanpama/gqlhx/internal/language"
	logging "github.com/hanpama/gqlhx/internal/logging"
	registry "github.com/hanpama/gqlhx/internal/registry"
	reqid "github.com/hanpama/gqlhx/internal/reqid"
	templates "github.com/hanpama/gqlhx/internal/templates"
)

// Form fields read from POST requests.
const (
	FieldQuery         = "query"
	FieldVariables     = "variables"
	FieldOperationName = "operationName"
	FieldRenderer      = "renderer"
	FieldTemplate      = "tpl"
	FieldPick          = "pick"
)

const (
	msgMissingQuery = "Missing 'query'"
	maxFormMemory   = 8 << 20
)

// Handler is an http.Handler that executes GraphQL form posts and renders the
// result with a template.
type Handler struct {
	exec     *executor.Executable
	engine   *templates.Engine
	selector templates.Selector
	cfg      config.Config
	opt      Options
	log      zerolog.Logger
}

type Options struct {
	// Schema is set directly on the handler and wins over settings. A string
	// is looked up in Registry.
	Schema any

	// Registry resolves schema names. Defaults to registry.Default.
	Registry *registry.Registry

	// Integration overrides the settings' integration.
	Integration config.Integration

	// Logger defaults to the "server" component logger.
	Logger *zerolog.Logger

	// MaxBodyBytes overrides the settings when positive.
	MaxBodyBytes int64

	// Placeholder overrides the GET response body when non-empty.
	Placeholder string
}

type Option func(*Options)

func WithSchema(schema any) Option                { return func(o *Options) { o.Schema = schema } }
func WithRegistry(reg *registry.Registry) Option  { return func(o *Options) { o.Registry = reg } }
func WithLogger(l zerolog.Logger) Option          { return func(o *Options) { o.Logger = &l } }
func WithMaxBodyBytes(n int64) Option             { return func(o *Options) { o.MaxBodyBytes = n } }
func WithPlaceholder(body string) Option          { return func(o *Options) { o.Placeholder = body } }
func WithIntegration(i config.Integration) Option { return func(o *Options) { o.Integration = i } }

// New resolves and binds the schema handle once. A missing or unsupported
// schema is a configuration error.
func New(cfg config.Config, engine *templates.Engine, opts ...Option) (*Handler, error) {
	if engine == nil {
		return nil, errors.New("server: template engine is nil")
	}
	var op Options
	for _, f := range opts {
		f(&op)
	}
	if op.Integration != nil {
		cfg.Integration = op.Integration
	}
	if op.MaxBodyBytes > 0 {
		cfg.Server.MaxBodyBytes = op.MaxBodyBytes
	}
	if op.Placeholder != "" {
		cfg.Placeholder = op.Placeholder
	}
	if cfg.ErrorTemplate == "" {
		cfg.ErrorTemplate = config.DefaultErrorTemplate
	}

	handle, err := config.ResolveSchema(op.Schema, cfg, op.Registry)
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}
	exec, err := executor.Bind(handle)
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}

	log := logging.New("server")
	if op.Logger != nil {
		log = *op.Logger
	}
	return &Handler{
		exec:     exec,
		engine:   engine,
		selector: templates.NewSelector(cfg),
		cfg:      cfg,
		opt:      op,
		log:      log,
	}, nil
}

// Executor exposes the bound schema handle.
func (h *Handler) Executor() *executor.Executable { return h.exec }

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, rid := reqid.FromRequest(r)
	ctx = h.log.With().Str("request_id", rid).Logger().WithContext(ctx)
	r = r.WithContext(ctx)
	w.Header().Set(reqid.Header, rid)

	start := time.Now()
	eventbus.Publish(ctx, events.HTTPStart{Request: r, RequestID: rid, HTMX: events.HTMXFromRequest(r)})
	status := http.StatusOK
	defer func() {
		eventbus.Publish(ctx, events.HTTPFinish{Request: r, RequestID: rid, Status: status, Duration: time.Since(start)})
	}()

	switch r.Method {
	case http.MethodGet:
		status = writeText(w, http.StatusOK, h.cfg.Placeholder)
	case http.MethodPost:
		status = h.post(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		status = writeText(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) post(w http.ResponseWriter, r *http.Request) int {
	ctx := r.Context()
	log := zerolog.Ctx(ctx)

	if h.cfg.Server.MaxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.cfg.Server.MaxBodyBytes)
	}
	if err := parseForm(r); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return writeText(w, http.StatusRequestEntityTooLarge, "request body too large")
		}
		return writeText(w, http.StatusBadRequest, "Bad form data: "+err.Error())
	}

	query := r.PostFormValue(FieldQuery)
	if query == "" {
		return writeText(w, http.StatusBadRequest, msgMissingQuery)
	}
	variables, err := loadVariables(r.PostFormValue(FieldVariables))
	if err != nil {
		return writeText(w, http.StatusBadRequest, "Bad variables JSON: "+err.Error())
	}
	params := executor.Params{
		Query:         query,
		Variables:     variables,
		OperationName: r.PostFormValue(FieldOperationName),
	}

	res, err := h.execute(ctx, params)
	if err != nil {
		log.Error().Err(err).Str("executor", h.exec.Kind().String()).Msg("graphql execution failed")
		return writeText(w, http.StatusInternalServerError, "GraphQL execution failed")
	}
	if res.HasErrors() {
		log.Debug().Str("errors", res.ErrorMessages()).Msg("graphql errors")
		return h.render(w, r, http.StatusBadRequest, []string{h.cfg.ErrorTemplate}, map[string]any{KeyErrors: res.Errors}, "")
	}

	rootKey, _ := PickKey(r.PostFormValue(FieldPick), res.Data)
	candidates := h.selector.Candidates(rendererHint(r), rootKey)
	return h.render(w, r, http.StatusOK, candidates, BuildContext(res.Data, rootKey), rootKey)
}

func (h *Handler) execute(ctx context.Context, p executor.Params) (executor.Result, error) {
	opType := ""
	if sum, err := language.Inspect(p.Query, p.OperationName); err == nil {
		opType = string(sum.OperationType)
		zerolog.Ctx(ctx).Debug().Str("operation", opType).Strs("fields", sum.RootFields).Msg("executing")
	}
	kind := h.exec.Kind().String()

	start := time.Now()
	eventbus.Publish(ctx, events.GraphQLStart{
		Query:         p.Query,
		OperationName: p.OperationName,
		OperationType: opType,
		Executor:      kind,
	})
	res, err := h.exec.Execute(ctx, p)
	errs := make([]error, len(res.Errors))
	for i := range res.Errors {
		errs[i] = res.Errors[i]
	}
	eventbus.Publish(ctx, events.GraphQLFinish{
		Query:         p.Query,
		OperationName: p.OperationName,
		OperationType: opType,
		Executor:      kind,
		Errors:        errs,
		Err:           err,
		Duration:      time.Since(start),
	})
	return res, err
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, candidates []string, data map[string]any, rootKey string) int {
	ctx := r.Context()
	start := time.Now()

	var (
		buf  bytes.Buffer
		name string
	)
	tpl, err := h.engine.Select(candidates...)
	if err == nil {
		name = tpl.Name
		err = tpl.Render(&buf, data)
	}
	eventbus.Publish(ctx, events.TemplateRender{
		Template:   name,
		Candidates: candidates,
		RootKey:    rootKey,
		Err:        err,
		Duration:   time.Since(start),
	})
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Strs("candidates", candidates).Msg("template rendering failed")
		return writeText(w, http.StatusInternalServerError, "template rendering failed")
	}
	zerolog.Ctx(ctx).Debug().Str("template", name).Str("root", rootKey).Msg("rendered")

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
	return status
}

// ------------------ Request parsing ------------------

// parseForm reads multipart bodies with ParseMultipartForm and everything
// else with ParseForm, so body read and decoding errors surface.
func parseForm(r *http.Request) error {
	if ct := r.Header.Get("Content-Type"); ct != "" {
		if mt, _, err := mime.ParseMediaType(ct); err == nil && mt == "multipart/form-data" {
			return r.ParseMultipartForm(maxFormMemory)
		}
	}
	return r.ParseForm()
}

func rendererHint(r *http.Request) string {
	if v := r.PostFormValue(FieldRenderer); v != "" {
		return v
	}
	return r.PostFormValue(FieldTemplate)
}

func loadVariables(raw string) (map[string]any, error) {
	if raw == "" {
		return nil, nil
	}
	var vars map[string]any
	if err := json.Unmarshal([]byte(raw), &vars); err != nil {
		return nil, err
	}
	return vars, nil
}

func writeText(w http.ResponseWriter, status int, body string) int {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
	return status
}
