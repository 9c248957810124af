package events

import (
	"net/http"
	"time"
)

// HTMX describes the htmx request headers of a form post. Zero for plain
// requests.
type HTMX struct {
	Request bool   // HX-Request
	Target  string // HX-Target
	Trigger string // HX-Trigger
}

// HTMXFromRequest reads the htmx headers of r.
func HTMXFromRequest(r *http.Request) HTMX {
	return HTMX{
		Request: r.Header.Get("HX-Request") == "true",
		Target:  r.Header.Get("HX-Target"),
		Trigger: r.Header.Get("HX-Trigger"),
	}
}

// HTTPStart is published when the bridge accepts a request, before the body
// is read.
type HTTPStart struct {
	Request   *http.Request
	RequestID string
	HTMX      HTMX
}

// HTTPFinish is published once the fragment or plain-text reply is written.
type HTTPFinish struct {
	Request   *http.Request
	RequestID string
	Status    int
	Duration  time.Duration
}
