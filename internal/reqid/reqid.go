// Package reqid carries a per-request identifier through context.
package reqid

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// Header is the HTTP header used to accept and echo request ids.
const Header = "X-Request-ID"

// key is the context key for the request ID.
type key struct{}

// NewContext returns a copy of parent with a new random request ID stored.
// It also returns the generated ID.
func NewContext(parent context.Context) (context.Context, string) {
	return WithID(parent, uuid.NewString())
}

// entry is allocated per request, so two requests sharing an incoming id
// still carry distinct entries.
type entry struct{ id string }

// WithID stores id in a copy of parent.
func WithID(parent context.Context, id string) (context.Context, string) {
	return context.WithValue(parent, key{}, &entry{id: id}), id
}

// FromRequest reuses a well-formed incoming X-Request-ID or generates one.
func FromRequest(r *http.Request) (context.Context, string) {
	if id := strings.TrimSpace(r.Header.Get(Header)); validID(id) {
		return WithID(r.Context(), id)
	}
	return NewContext(r.Context())
}

// FromContext extracts the request ID from ctx.
// It returns the ID and whether it was present.
func FromContext(ctx context.Context) (string, bool) {
	e, ok := ctx.Value(key{}).(*entry)
	if !ok {
		return "", false
	}
	return e.id, true
}

// Token returns a comparable value unique to the request stored in ctx, or
// nil when ctx has none. Unlike the id it cannot be chosen by the client.
func Token(ctx context.Context) any {
	e, ok := ctx.Value(key{}).(*entry)
	if !ok {
		return nil
	}
	return e
}

func validID(id string) bool {
	if id == "" || len(id) > 128 {
		return false
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_', c == '.':
		default:
			return false
		}
	}
	return true
}
