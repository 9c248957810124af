package executor

import "strings"

// Error is a GraphQL error reported by the schema.
type Error struct {
	Message    string         `json:"message"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

func (e Error) Error() string {
	return e.Message
}

// Response is what the sync and generic execution capabilities return. Either
// field may be nil.
type Response struct {
	Data   map[string]any
	Errors []Error
}

// Pair is one of the two result shapes a Callable may return.
type Pair struct {
	Data   map[string]any
	Errors []Error
}

// Result is the normalized outcome of an execution. Data and Errors are never
// nil.
type Result struct {
	Data   map[string]any `json:"data"`
	Errors []Error        `json:"errors"`
}

// HasErrors reports whether the schema reported any errors.
func (r Result) HasErrors() bool { return len(r.Errors) > 0 }

// ErrorMessages joins the messages of all reported errors.
func (r Result) ErrorMessages() string {
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = e.Message
	}
	return strings.Join(msgs, "; ")
}

func normalize(data map[string]any, errs []Error) Result {
	if data == nil {
		data = map[string]any{}
	}
	if errs == nil {
		errs = []Error{}
	}
	return Result{Data: data, Errors: errs}
}
