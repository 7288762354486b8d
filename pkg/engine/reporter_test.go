package engine

import (
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/peak-dev/Tir/pkg/web"
)

// recordingSender captures what the reporter sends.
type recordingSender struct {
	mu   sync.Mutex
	sent []sentResponse
}

func (s *recordingSender) Send(connID string, status int, statusText string, headers map[string]string, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentResponse{connID, status, statusText, headers, string(body)})
	return nil
}

func (s *recordingSender) Close(connID string) error { return nil }

func sampleHandler(w *web.Web) error {
	return w.Send(map[string]string{"sample": "handler"})
}

func TestFormatTrace(t *testing.T) {
	trace := formatTrace(&Failure{Panic: "kaboom", Stack: []byte("goroutine 1 [running]:")})
	require.Contains(t, trace, "panic: kaboom")
	require.Contains(t, trace, "goroutine 1")

	trace = formatTrace(&Failure{Err: errors.New("wrapped failure")})
	require.Contains(t, trace, "wrapped failure")
	// pkg/errors carries its own stack, surfaced by %+v
	require.Contains(t, trace, "reporter_test.go")

	require.Equal(t, "(no failure recorded)", formatTrace(nil))
}

func TestHandlerSourceExcerpt(t *testing.T) {
	src, err := handlerSource(sampleHandler)
	require.NoError(t, err)
	require.Contains(t, src, "sampleHandler")
	require.Contains(t, src, `"sample": "handler"`)
	// line-numbered output
	require.Regexp(t, `(?m)^\s+\d+  `, src)
}

func TestReportRendersDiagnosticPage(t *testing.T) {
	sender := &recordingSender{}
	r := newReporter(sender, sampleHandler, true)

	req := &web.Request{ConnID: "c1", Method: "GET", Path: "/fails", Kind: web.KindData}
	r.report(req, &Failure{Panic: "kaboom", Stack: []byte("stack trace here")})

	require.Len(t, sender.sent, 1)
	page := sender.sent[0]
	require.Equal(t, 500, page.Status)
	require.Equal(t, "text/html", page.Headers["content-type"])
	require.Contains(t, page.Body, "Tir Error")
	require.Contains(t, page.Body, "kaboom")
	require.Contains(t, page.Body, "sampleHandler")
	require.Contains(t, page.Body, "/fails")
}

func TestReportHidesDetailsWithoutDebugPages(t *testing.T) {
	sender := &recordingSender{}
	r := newReporter(sender, sampleHandler, false)

	req := &web.Request{ConnID: "c1", Path: "/fails"}
	r.report(req, &Failure{Panic: "secret internals"})

	require.Len(t, sender.sent, 1)
	require.Equal(t, 500, sender.sent[0].Status)
	require.NotContains(t, sender.sent[0].Body, "secret internals")
}
