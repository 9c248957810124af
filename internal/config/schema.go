package config

import (
	"errors"
	"fmt"

	"github.com/hanpama/gqlhx/internal/registry"
)

// ErrNoSchema is returned when no schema handle can be resolved.
var ErrNoSchema = errors.New("no GraphQL schema configured: pass server.WithSchema, set the schema setting (or " + SchemaEnv + "), or configure an integration")

// Integration is an optional third-party source of the schema handle, such as
// a framework adapter holding its own settings. Schema returns nil when the
// integration is present but not configured.
type Integration interface {
	Schema() any
}

// IntegrationFunc adapts a function to Integration.
type IntegrationFunc func() any

func (f IntegrationFunc) Schema() any { return f() }

// ResolveSchema returns the schema handle in priority order: the explicit
// value (a string is looked up in reg), the schema setting, then the
// integration. reg defaults to registry.Default.
func ResolveSchema(explicit any, cfg Config, reg *registry.Registry) (any, error) {
	if reg == nil {
		reg = registry.Default
	}
	switch v := explicit.(type) {
	case nil:
	case string:
		if v != "" {
			return importSchema(reg, v)
		}
	default:
		return v, nil
	}
	if cfg.Schema != "" {
		return importSchema(reg, cfg.Schema)
	}
	if cfg.Integration != nil {
		if s := cfg.Integration.Schema(); s != nil {
			return s, nil
		}
	}
	return nil, ErrNoSchema
}

func importSchema(reg *registry.Registry, name string) (any, error) {
	v, err := reg.Import(name)
	if err != nil {
		return nil, fmt.Errorf("config: resolve schema %q: %w", name, err)
	}
	return v, nil
}
