// Package config holds the settings the HTML bridge reads at startup.
package config

import (
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	// RootPlaceholder is replaced with the root key in template patterns.
	RootPlaceholder = "{root}"

	DefaultFallbackTemplate = "gqlhx/fallback.html"
	DefaultErrorTemplate    = "gqlhx/error.html"
	DefaultTemplateSuffix   = ".html"

	// SchemaEnv overrides the schema setting when set.
	SchemaEnv = "GQLHX_SCHEMA"
)

// DefaultTemplatePatterns is the naming convention tried for a root key.
var DefaultTemplatePatterns = []string{
	"partials/{root}.html",
	"partials/{root}_table.html",
	DefaultFallbackTemplate,
}

// Config is the settings surface of the bridge.
type Config struct {
	// Schema is a registry name ("module.attr") of the schema handle.
	Schema string `yaml:"schema"`
	// Integration is an optional source of a schema handle, consulted when
	// Schema is empty.
	Integration Integration `yaml:"-" validate:"-"`

	// Renderers maps renderer aliases to template names.
	Renderers        map[string]string `yaml:"renderers" validate:"dive,keys,required,endkeys,required"`
	FallbackTemplate string            `yaml:"fallback_template" validate:"required"`
	ErrorTemplate    string            `yaml:"error_template" validate:"required"`
	TemplatePatterns []string          `yaml:"template_patterns" validate:"dive,rootpattern"`
	TemplateSuffix   string            `yaml:"template_suffix" validate:"required,startswith=."`
	TemplateDirs     []string          `yaml:"template_dirs" validate:"dive,required"`
	// Placeholder is the body returned for GET requests.
	Placeholder string `yaml:"placeholder"`

	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
	Otel    OtelConfig    `yaml:"otel"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type ServerConfig struct {
	Addr         string   `yaml:"addr" validate:"required"`
	Path         string   `yaml:"path" validate:"required,startswith=/"`
	MaxBodyBytes int64    `yaml:"max_body_bytes" validate:"gte=0"`
	CORSOrigins  []string `yaml:"cors_origins"`
	// WatchTemplates drops compiled templates when files change on disk.
	WatchTemplates bool `yaml:"watch_templates"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Pretty bool   `yaml:"pretty"`
}

type OtelConfig struct {
	Endpoint string `yaml:"endpoint"`
	Service  string `yaml:"service" validate:"required"`
}

type MetricsConfig struct {
	// Path serves Prometheus metrics when non-empty.
	Path string `yaml:"path" validate:"omitempty,startswith=/"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		FallbackTemplate: DefaultFallbackTemplate,
		ErrorTemplate:    DefaultErrorTemplate,
		TemplatePatterns: append([]string(nil), DefaultTemplatePatterns...),
		TemplateSuffix:   DefaultTemplateSuffix,
		Placeholder:      "POST GraphQL to this endpoint.",
		Server: ServerConfig{
			Addr:         ":8080",
			Path:         "/graphql",
			MaxBodyBytes: 1 << 20,
		},
		Log:     LogConfig{Level: "info"},
		Otel:    OtelConfig{Service: "gqlhx"},
		Metrics: MetricsConfig{Path: "/metrics"},
	}
}

// Load reads a YAML settings file over Default. ${VAR} references are
// expanded from the environment before decoding. An empty filename yields the
// defaults. GQLHX_SCHEMA overrides the schema setting.
func Load(filename string) (Config, error) {
	cfg := Default()
	if filename != "" {
		raw, err := os.ReadFile(filename)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", filename, err)
		}
		if err := Decode([]byte(os.ExpandEnv(string(raw))), &cfg); err != nil {
			return Config{}, fmt.Errorf("config: %s: %w", filename, err)
		}
	}
	if v := strings.TrimSpace(os.Getenv(SchemaEnv)); v != "" {
		cfg.Schema = v
	}
	return cfg, nil
}

// Decode unmarshals YAML into cfg, keeping values the document omits.
func Decode(data []byte, cfg *Config) error {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("decode yaml: %w", err)
	}
	return nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("rootpattern", func(fl validator.FieldLevel) bool {
		s := strings.TrimSpace(fl.Field().String())
		return s != "" && (strings.Contains(s, RootPlaceholder) || path.Ext(s) != "")
	})
	return v
}

// Validate checks the settings. The error lists every offending field.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
	}
	sort.Strings(msgs)
	return fmt.Errorf("config: invalid settings: %s", strings.Join(msgs, "; "))
}
