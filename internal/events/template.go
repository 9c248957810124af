package events

import "time"

// TemplateRender is emitted after a fragment is rendered, or rendering
// failed. Template is empty when no candidate could be loaded.
type TemplateRender struct {
	Template   string
	Candidates []string
	RootKey    string
	Err        error
	Duration   time.Duration
}
