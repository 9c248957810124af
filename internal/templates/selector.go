package templates

import (
	"strings"

	"github.com/hanpama/gqlhx/internal/config"
)

// Selector builds the ordered list of template names to try for a response.
type Selector struct {
	// Aliases maps renderer hints to template names.
	Aliases map[string]string
	// Patterns contain {root}, replaced with the root key.
	Patterns []string
	// Fallback is always the last candidate.
	Fallback string
	// Suffix marks a hint as a literal template name.
	Suffix string
}

// NewSelector reads the template settings from cfg.
func NewSelector(cfg config.Config) Selector {
	return Selector{
		Aliases:  cfg.Renderers,
		Patterns: cfg.TemplatePatterns,
		Fallback: cfg.FallbackTemplate,
		Suffix:   cfg.TemplateSuffix,
	}
}

// Candidates returns template names in lookup order. A hint naming a template
// file is used verbatim; otherwise it is looked up in Aliases. Without a
// usable hint the root key is substituted into each pattern. The fallback is
// appended unless already present.
func (s Selector) Candidates(hint, rootKey string) []string {
	suffix := s.Suffix
	if suffix == "" {
		suffix = config.DefaultTemplateSuffix
	}
	fallback := s.Fallback
	if fallback == "" {
		fallback = config.DefaultFallbackTemplate
	}

	var out []string
	if hint != "" {
		if strings.HasSuffix(hint, suffix) {
			out = []string{hint}
		} else if name, ok := s.Aliases[hint]; ok && name != "" {
			out = []string{name}
		}
	}
	if len(out) == 0 && rootKey != "" {
		for _, p := range s.Patterns {
			out = append(out, strings.ReplaceAll(p, config.RootPlaceholder, rootKey))
		}
	}
	for _, c := range out {
		if c == fallback {
			return out
		}
	}
	return append(out, fallback)
}
