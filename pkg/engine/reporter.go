package engine

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"reflect"
	"runtime"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/peak-dev/Tir/pkg/template"
	"github.com/peak-dev/Tir/pkg/web"
)

// diagnosticPage is the fixed 500 template. All three slots carry trusted
// internal content, so they are inserted without escaping.
const diagnosticPage = `<html>
<head><title>Tir Error</title></head>
<body>
<h1>Tir Error</h1>
<p>There was an error processing your request.</p>
<h2>Stack Trace</h2>
<pre>{{ error }}</pre>
<h2>Source Code</h2>
<pre>{{ source }}</pre>
<h2>Request</h2>
<pre>{{ request }}</pre>
</body>
</html>`

const sourceUnavailable = "(source unavailable)"

// maxSourceLines bounds the excerpt when brace matching never closes.
const maxSourceLines = 120

// reporter renders the diagnostic 500 page for conversations that failed
// with an unrecovered error. Formatting failures in any one part degrade to
// a placeholder; error reporting itself must never raise.
type reporter struct {
	sender  web.Sender
	handler web.Handler
	tmpl    *template.Template
	debug   bool
	log     zerolog.Logger
}

func newReporter(sender web.Sender, handler web.Handler, debug bool) *reporter {
	tmpl, err := template.Compile(diagnosticPage, "diagnostic")
	if err != nil {
		// the constant template is known-good; guard anyway
		tmpl = nil
	}
	return &reporter{
		sender:  sender,
		handler: handler,
		tmpl:    tmpl,
		debug:   debug,
		log:     log.With().Str("component", "reporter").Logger(),
	}
}

func (r *reporter) report(req *web.Request, failure *Failure) {
	trace := formatTrace(failure)
	r.log.Error().
		Str("conn_id", req.ConnID).
		Str("path", req.Path).
		Msg("conversation failed: " + firstLine(trace))

	body := "<h1>Internal Server Error</h1>"
	if r.debug {
		body = r.renderDiagnostic(req, trace)
	}
	if err := r.sender.Send(req.ConnID, 500, "Internal Server Error", map[string]string{
		"content-type": "text/html",
	}, []byte(body)); err != nil {
		r.log.Error().Err(err).Str("conn_id", req.ConnID).Msg("failed to send error page")
	}
}

func (r *reporter) renderDiagnostic(req *web.Request, trace string) string {
	source, err := handlerSource(r.handler)
	if err != nil {
		source = sourceUnavailable
	}
	dump, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		dump = []byte("(request unavailable)")
	}

	if r.tmpl != nil {
		body, err := r.tmpl.Render(map[string]any{
			"error":   trace,
			"source":  source,
			"request": string(dump),
		})
		if err == nil {
			return body
		}
		r.log.Error().Err(err).Msg("diagnostic template failed")
	}
	return "<pre>" + trace + "</pre>"
}

// formatTrace prefers the captured panic stack; error returns carry their
// own stack when wrapped with pkg/errors, surfaced by %+v.
func formatTrace(failure *Failure) string {
	switch {
	case failure == nil:
		return "(no failure recorded)"
	case failure.Panic != nil:
		return fmt.Sprintf("panic: %v\n\n%s", failure.Panic, failure.Stack)
	case failure.Err != nil:
		return fmt.Sprintf("%+v", failure.Err)
	}
	return "(no failure recorded)"
}

// handlerSource returns a line-numbered excerpt of the entry-point handler,
// bounded to the function's defined range by brace matching from its
// definition line.
func handlerSource(handler web.Handler) (string, error) {
	pc := reflect.ValueOf(handler).Pointer()
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return "", fmt.Errorf("no function info for handler")
	}
	file, start := fn.FileLine(fn.Entry())
	f, err := os.Open(file)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	var b strings.Builder
	depth := 0
	opened := false
	lineno := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lineno++
		if lineno < start {
			continue
		}
		line := scanner.Text()
		fmt.Fprintf(&b, "%4d  %s\n", lineno, line)
		for i := 0; i < len(line); i++ {
			switch line[i] {
			case '{':
				depth++
				opened = true
			case '}':
				depth--
			}
		}
		if opened && depth <= 0 {
			break
		}
		if lineno-start >= maxSourceLines {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return b.String(), nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
