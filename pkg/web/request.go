package web

import (
	"strings"
)

// Kind classifies an inbound transport message.
type Kind string

const (
	// KindData is a regular request carrying method, path and body.
	KindData Kind = "data"
	// KindDisconnect signals that the client connection went away.
	KindDisconnect Kind = "disconnect"
)

// Params holds decoded form or query parameters.
type Params map[string]string

// CookieParam is the reserved key under which ParseForm injects the raw
// cookie header value, so handler code can read it without touching headers.
const CookieParam = "__cookie"

// Request is one inbound message from the transport. Header keys are stored
// lower-cased; duplicate keys overwrite. A Request is not mutated after
// receipt, except for identity installation on the cookie header.
type Request struct {
	ConnID  string            `json:"conn_id"`
	Method  string            `json:"method"`
	Path    string            `json:"path"`
	Query   string            `json:"query"`
	Headers map[string]string `json:"headers"`
	Body    []byte            `json:"body"`
	Kind    Kind              `json:"kind"`
}

// Header returns the value for name, case-insensitively. Missing headers
// yield the empty string.
func (r *Request) Header(name string) string {
	if r == nil || r.Headers == nil {
		return ""
	}
	return r.Headers[strings.ToLower(name)]
}

// SetHeader stores value under the lower-cased name.
func (r *Request) SetHeader(name, value string) {
	if r.Headers == nil {
		r.Headers = map[string]string{}
	}
	r.Headers[strings.ToLower(name)] = value
}

// Params decodes the request into form parameters. See ParseForm.
func (r *Request) Params() Params {
	return ParseForm(r)
}
