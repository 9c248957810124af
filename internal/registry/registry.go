// Package registry maps dotted names such as "myapp.schema.Schema" to values
// registered by the embedding application. It stands in for import-by-string
// configuration: only values explicitly registered can be looked up.
package registry

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

var (
	// ErrInvalidPath is returned when a dotted path has no separator.
	ErrInvalidPath = errors.New("registry: invalid module path")
	// ErrModuleNotFound is returned when no value was registered under the module.
	ErrModuleNotFound = errors.New("registry: module not found")
	// ErrAttributeNotFound is returned when the module exists but lacks the attribute.
	ErrAttributeNotFound = errors.New("registry: attribute not found")
)

// ImportError describes a failed Import.
type ImportError struct {
	Path   string
	Module string
	Attr   string
	Err    error
}

func (e *ImportError) Error() string {
	switch {
	case errors.Is(e.Err, ErrInvalidPath):
		return fmt.Sprintf("%s isn't a valid module path", e.Path)
	case errors.Is(e.Err, ErrModuleNotFound):
		return fmt.Sprintf("no module named '%s'", e.Module)
	case errors.Is(e.Err, ErrAttributeNotFound):
		return fmt.Sprintf("module '%s' does not define '%s'", e.Module, e.Attr)
	}
	return fmt.Sprintf("import %s: %v", e.Path, e.Err)
}

func (e *ImportError) Unwrap() error { return e.Err }

// Registry is a table of modules, each holding named attributes.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]map[string]any
}

// New creates an empty Registry.
func New() *Registry { return &Registry{modules: make(map[string]map[string]any)} }

// Register stores v as module.attr. Registering the same name twice replaces
// the previous value.
func (r *Registry) Register(module, attr string, v any) error {
	module = strings.TrimSpace(module)
	attr = strings.TrimSpace(attr)
	if module == "" || attr == "" || strings.Contains(attr, ".") {
		return &ImportError{Path: module + "." + attr, Module: module, Attr: attr, Err: ErrInvalidPath}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.modules[module]
	if m == nil {
		m = make(map[string]any)
		r.modules[module] = m
	}
	m[attr] = v
	return nil
}

// MustRegister is like Register but panics on an invalid name. Intended for
// init functions.
func (r *Registry) MustRegister(module, attr string, v any) {
	if err := r.Register(module, attr, v); err != nil {
		panic(err)
	}
}

// Import resolves a dotted path. The path is split on its last '.' into a
// module name and an attribute name.
func (r *Registry) Import(path string) (any, error) {
	i := strings.LastIndex(path, ".")
	if i <= 0 || i == len(path)-1 {
		return nil, &ImportError{Path: path, Err: ErrInvalidPath}
	}
	module, attr := path[:i], path[i+1:]

	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[module]
	if !ok {
		return nil, &ImportError{Path: path, Module: module, Attr: attr, Err: ErrModuleNotFound}
	}
	v, ok := m[attr]
	if !ok {
		return nil, &ImportError{Path: path, Module: module, Attr: attr, Err: ErrAttributeNotFound}
	}
	return v, nil
}

// Names lists every registered dotted name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for module, attrs := range r.modules {
		for attr := range attrs {
			out = append(out, module+"."+attr)
		}
	}
	return out
}

// Default is the process-wide registry used by the package-level helpers.
var Default = New()

// Register stores v in the Default registry.
func Register(module, attr string, v any) error { return Default.Register(module, attr, v) }

// MustRegister stores v in the Default registry, panicking on an invalid name.
func MustRegister(module, attr string, v any) { Default.MustRegister(module, attr, v) }

// Import resolves path against the Default registry.
func Import(path string) (any, error) { return Default.Import(path) }
