package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"

	config "github.com/hanpama/gqlhx/internal/config"
	_ "github.com/hanpama/gqlhx/internal/demo"
	eventbus "github.com/hanpama/gqlhx/internal/eventbus"
	logging "github.com/hanpama/gqlhx/internal/logging"
	metrics "github.com/hanpama/gqlhx/internal/metrics"
	otel "github.com/hanpama/gqlhx/internal/otel"
	registry "github.com/hanpama/gqlhx/internal/registry"
	server "github.com/hanpama/gqlhx/internal/server"
	templates "github.com/hanpama/gqlhx/internal/templates"
)

const rootUsage = `gqlhx - GraphQL to HTML fragments for htmx

USAGE:
  gqlhx <command> [flags]

COMMANDS:
  serve            Run the HTTP endpoint
  check            Validate settings, resolve the schema and templates
  help             Show help for any command
`

const commonFlags = `  -config <file>            YAML settings file
  -env <file>               dotenv file loaded before settings (default: .env if present)
  -schema <module.attr>     Registered schema handle, e.g. demo.schema
  -templates <dir>          Template directory. Repeatable; searched in order
  -log.level <level>        debug, info, warn or error (default: info)
  -log.pretty               Human-readable console logs
`

const serveUsage = `serve FLAGS:
` + commonFlags + `  -server.addr <addr>       HTTP listen address (default: :8080)
  -server.path <path>       Endpoint path (default: /graphql)
  -server.cors <origin>     Allowed CORS origin. Repeatable
  -server.watch             Reload templates when files change
  -metrics.path <path>      Prometheus endpoint; empty disables (default: /metrics)
  -otel.endpoint <addr>     OTLP collector endpoint
  -otel.service <name>      OpenTelemetry service name (default: gqlhx)
`

const checkUsage = `check FLAGS:
` + commonFlags

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		log.Fatal().Err(err).Msg("gqlhx")
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stderr, rootUsage)
		return errors.New("missing command")
	}
	cmd, cmdArgs := args[0], args[1:]
	switch cmd {
	case "serve":
		return cmdServe(ctx, cmdArgs, stderr)
	case "check":
		return cmdCheck(cmdArgs, stdout, stderr)
	case "help", "-h", "-help", "--help":
		return cmdHelp(cmdArgs, stdout)
	default:
		fmt.Fprint(stderr, rootUsage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdHelp(args []string, stdout io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stdout, rootUsage)
		return nil
	}
	switch args[0] {
	case "serve":
		fmt.Fprint(stdout, serveUsage)
	case "check":
		fmt.Fprint(stdout, checkUsage)
	default:
		return fmt.Errorf("unknown help topic %q", args[0])
	}
	return nil
}

type stringListFlag []string

func (s *stringListFlag) String() string { return strings.Join(*s, ",") }

func (s *stringListFlag) Set(v string) error {
	if v = strings.TrimSpace(v); v != "" {
		*s = append(*s, v)
	}
	return nil
}

// settings collects the flags shared by every command. Flags override the
// settings file only when given.
type settings struct {
	fs         *flag.FlagSet
	configFile string
	envFile    string
	schema     string
	templates  stringListFlag
	logLevel   string
	logPretty  bool
}

func newSettings(name string) *settings {
	s := &settings{fs: flag.NewFlagSet(name, flag.ContinueOnError)}
	s.fs.SetOutput(new(bytes.Buffer))
	s.fs.StringVar(&s.configFile, "config", "", "YAML settings file")
	s.fs.StringVar(&s.envFile, "env", "", "dotenv file")
	s.fs.StringVar(&s.schema, "schema", "", "registered schema handle")
	s.fs.Var(&s.templates, "templates", "template directory")
	s.fs.StringVar(&s.logLevel, "log.level", "", "log level")
	s.fs.BoolVar(&s.logPretty, "log.pretty", false, "console logs")
	return s
}

func (s *settings) load() (config.Config, error) {
	if err := loadEnv(s.envFile); err != nil {
		return config.Config{}, err
	}
	cfg, err := config.Load(s.configFile)
	if err != nil {
		return config.Config{}, err
	}
	if s.schema != "" {
		cfg.Schema = s.schema
	}
	if len(s.templates) > 0 {
		cfg.TemplateDirs = append([]string(nil), s.templates...)
	}
	if s.logLevel != "" {
		cfg.Log.Level = s.logLevel
	}
	if s.logPretty {
		cfg.Log.Pretty = true
	}
	return cfg, nil
}

// loadEnv reads a dotenv file without overriding the environment. The
// default .env is optional; an explicit file must exist.
func loadEnv(file string) error {
	if file == "" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(file); err != nil {
		return fmt.Errorf("load %s: %w", file, err)
	}
	return nil
}

func newEngine(cfg config.Config) (*templates.Engine, error) {
	return templates.New(templates.WithDir(cfg.TemplateDirs...))
}

func cmdCheck(args []string, stdout, stderr io.Writer) error {
	s := newSettings("check")
	if err := s.fs.Parse(args); err != nil {
		fmt.Fprint(stderr, checkUsage)
		return err
	}
	cfg, err := s.load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	engine, err := newEngine(cfg)
	if err != nil {
		return err
	}
	for _, name := range []string{cfg.FallbackTemplate, cfg.ErrorTemplate} {
		if _, err := engine.Select(name); err != nil {
			return fmt.Errorf("check template: %w", err)
		}
	}
	for alias, name := range cfg.Renderers {
		if !engine.Exists(name) {
			return fmt.Errorf("renderer %q: template %q does not exist", alias, name)
		}
	}
	h, err := server.New(cfg, engine, server.WithLogger(zerolog.Nop()))
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "ok: schema %s (%s executor), %d template dir(s), registered: %s\n",
		cfg.Schema, h.Executor().Kind(), len(cfg.TemplateDirs), strings.Join(registry.Default.Names(), ", "))
	return nil
}

func cmdServe(ctx context.Context, args []string, stderr io.Writer) error {
	s := newSettings("serve")
	var (
		addr, path, metricsPath string
		otelEndpoint, otelSvc   string
		watch                   bool
		origins                 stringListFlag
	)
	s.fs.StringVar(&addr, "server.addr", "", "HTTP listen address")
	s.fs.StringVar(&path, "server.path", "", "endpoint path")
	s.fs.Var(&origins, "server.cors", "allowed CORS origin")
	s.fs.BoolVar(&watch, "server.watch", false, "reload templates")
	s.fs.StringVar(&metricsPath, "metrics.path", "", "Prometheus endpoint")
	s.fs.StringVar(&otelEndpoint, "otel.endpoint", "", "OTLP collector endpoint")
	s.fs.StringVar(&otelSvc, "otel.service", "", "OpenTelemetry service name")
	if err := s.fs.Parse(args); err != nil {
		fmt.Fprint(stderr, serveUsage)
		return err
	}
	cfg, err := s.load()
	if err != nil {
		return err
	}
	s.fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "server.addr":
			cfg.Server.Addr = addr
		case "server.path":
			cfg.Server.Path = path
		case "server.cors":
			cfg.Server.CORSOrigins = origins
		case "server.watch":
			cfg.Server.WatchTemplates = watch
		case "metrics.path":
			cfg.Metrics.Path = metricsPath
		case "otel.endpoint":
			cfg.Otel.Endpoint = otelEndpoint
		case "otel.service":
			cfg.Otel.Service = otelSvc
		}
	})
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := logging.Setup(cfg.Log.Level, cfg.Log.Pretty, stderr); err != nil {
		return err
	}

	eventbus.Use(eventbus.New())
	shutdown, err := otel.Setup(cfg.Otel.Endpoint, cfg.Otel.Service)
	if err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector, err := metrics.New(promReg)
	if err != nil {
		return fmt.Errorf("metrics setup: %w", err)
	}
	defer collector.Subscribe()()

	engine, err := newEngine(cfg)
	if err != nil {
		return err
	}
	if cfg.Server.WatchTemplates {
		if err := engine.Watch(ctx); err != nil {
			return err
		}
	}
	h, err := server.New(cfg, engine)
	if err != nil {
		return fmt.Errorf("server init: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           newRouter(cfg, h, promReg),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	log.Info().Str("addr", cfg.Server.Addr).Str("path", cfg.Server.Path).Str("schema", cfg.Schema).Msg("listening")

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newRouter(cfg config.Config, h http.Handler, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(hlog.NewHandler(log.Logger))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, d time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", d).
			Msg("request")
	}))
	if len(cfg.Server.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.Server.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"*"},
			ExposedHeaders: []string{"X-Request-ID"},
			MaxAge:         300,
		}))
	}
	r.Handle(cfg.Server.Path, h)
	if cfg.Metrics.Path != "" && gatherer != nil {
		r.Handle(cfg.Metrics.Path, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return r
}
