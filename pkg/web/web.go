package web

import (
	"encoding/json"
	"regexp"

	"github.com/pkg/errors"

	"github.com/peak-dev/Tir/pkg/template"
)

// Sender is the outbound side of the transport, as seen by handler code.
type Sender interface {
	Send(connID string, status int, statusText string, headers map[string]string, body []byte) error
	Close(connID string) error
}

var (
	// ErrNotFound reports that Expect saw a path that did not match. The
	// conversation is already closed when it is returned; treat it as
	// terminal and return it from the handler.
	ErrNotFound = errors.New("not found")
	// ErrClosed reports an operation on a closed conversation.
	ErrClosed = errors.New("conversation closed")
)

// Handler is the entry point of a conversation. It runs as straight-line
// code; Recv (and the wrappers built on it) suspends until the next request
// for the same identity arrives. Returning nil or ErrNotFound terminates the
// conversation normally; any other error (or a panic) is an unrecovered
// failure reported as a 500.
type Handler func(*Web) error

// Web wraps one conversation: the current request, the outbound connection
// and the suspension hook installed by the engine.
type Web struct {
	req    *Request
	sender Sender
	recv   func() (*Request, error)
	views  *template.Loader
	cookie string
	closed bool
}

// NewWeb builds a handler wrapper. The recv hook is how the engine delivers
// the next request; it blocks until one arrives.
func NewWeb(req *Request, sender Sender, recv func() (*Request, error)) *Web {
	return &Web{req: req, sender: sender, recv: recv}
}

// SetViews attaches the template loader handlers render file views through.
func (w *Web) SetViews(views *template.Loader) { w.views = views }

// Views returns the attached template loader, or nil.
func (w *Web) Views() *template.Loader { return w.views }

// RenderPage renders a file-based view with ctx and sends it as a 200 page.
func (w *Web) RenderPage(name string, ctx map[string]any) error {
	if w.views == nil {
		return errors.New("no view loader attached")
	}
	body, err := w.views.Render(name, ctx)
	if err != nil {
		return err
	}
	return w.Page(body, 200, "OK", nil)
}

// Request returns the current request.
func (w *Web) Request() *Request { return w.req }

// Path returns the current request path.
func (w *Web) Path() string { return w.req.Path }

// Method returns the current request method.
func (w *Web) Method() string { return w.req.Method }

// SetCookie sets the cookie value propagated on subsequent pages.
func (w *Web) SetCookie(value string) { w.cookie = value }

// GetCookie returns the previously set cookie value, falling back to the
// request's cookie header.
func (w *Web) GetCookie() string {
	if w.cookie != "" {
		return w.cookie
	}
	return w.req.Header("cookie")
}

// Send serializes data as JSON and writes it as the full response body.
// It does not suspend.
func (w *Web) Send(data any) error {
	body, err := json.Marshal(data)
	if err != nil {
		return errors.Wrap(err, "encode response")
	}
	return w.Page(string(body), 200, "OK", map[string]string{
		"content-type": "application/json",
	})
}

// Page writes an arbitrary response. A cookie set earlier in the
// conversation is propagated via set-cookie unless the caller supplies one.
func (w *Web) Page(body string, code int, status string, headers map[string]string) error {
	if w.closed {
		return ErrClosed
	}
	out := map[string]string{}
	for k, v := range headers {
		out[k] = v
	}
	if w.cookie != "" {
		if _, ok := out["set-cookie"]; !ok {
			out["set-cookie"] = w.cookie
		}
	}
	return w.sender.Send(w.req.ConnID, code, status, out, []byte(body))
}

// Recv suspends the conversation until the engine delivers the next request
// for this identity. The delivered request becomes the current one. This is
// the only suspension point in the framework.
func (w *Web) Recv() (*Request, error) {
	if w.closed {
		return nil, ErrClosed
	}
	req, err := w.recv()
	if err != nil {
		return nil, err
	}
	w.req = req
	return req, nil
}

// Click waits for the next request and returns just its path.
func (w *Web) Click() (string, error) {
	req, err := w.Recv()
	if err != nil {
		return "", err
	}
	return req.Path, nil
}

// Expect sends body as a page, waits for the next request and matches its
// path against pattern. On mismatch the client gets a 404, the conversation
// is closed and ErrNotFound is returned; the caller must treat that as
// terminal and not resume further.
func (w *Web) Expect(pattern string, body string) (string, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return "", errors.Wrapf(err, "expect pattern %q", pattern)
	}
	if err := w.Page(body, 200, "OK", nil); err != nil {
		return "", err
	}
	path, err := w.Click()
	if err != nil {
		return "", err
	}
	if !re.MatchString(path) {
		_ = w.Error("<h1>Not Found</h1>", 404, "Not Found")
		return "", ErrNotFound
	}
	return path, nil
}

// Prompt sends body as a page, waits for the next request and parses it as
// form data.
func (w *Web) Prompt(body string) (Params, error) {
	if err := w.Page(body, 200, "OK", nil); err != nil {
		return nil, err
	}
	req, err := w.Recv()
	if err != nil {
		return nil, err
	}
	return ParseForm(req), nil
}

// Redirect sends a 303 response pointing at url. It does not suspend.
func (w *Web) Redirect(url string) error {
	return w.Page("", 303, "See Other", map[string]string{"location": url})
}

// Error sends an error page and closes the conversation.
func (w *Web) Error(body string, code int, status string) error {
	err := w.Page(body, code, status, nil)
	w.Close()
	return err
}

// Close tells the transport to terminate the connection behind the current
// request. Further operations return ErrClosed.
func (w *Web) Close() {
	if w.closed {
		return
	}
	w.closed = true
	_ = w.sender.Close(w.req.ConnID)
}

// Closed reports whether the conversation was closed.
func (w *Web) Closed() bool { return w.closed }
