// Package engine owns the conversation registry and the dispatch loop. It
// receives requests from the transport, routes each one to the suspended
// computation for its identity, resumes that computation exactly once per
// message and removes terminated entries before the next message for the
// same identity is processed.
package engine

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/peak-dev/Tir/pkg/template"
	"github.com/peak-dev/Tir/pkg/transport"
	"github.com/peak-dev/Tir/pkg/web"
)

// IdentFunc derives the conversation identity from a request. fresh reports
// that a new identity was assigned, in which case the function must have
// installed it as the request's effective cookie.
type IdentFunc func(*web.Request) (id string, fresh bool)

// CookieIdent is the default identity strategy: the cookie header value, or
// a freshly generated token installed on the request and echoed back to the
// client via set-cookie on the first page.
func CookieIdent(req *web.Request) (string, bool) {
	if cookie := req.Header("cookie"); cookie != "" {
		return cookie, false
	}
	token := "APP-" + uuid.NewString()
	req.SetHeader("cookie", token)
	return token, true
}

// Config wires an Engine. There are no process-wide settings; everything the
// loop and its collaborators need is passed here.
type Config struct {
	// Handler is the entry point run as the body of every new conversation.
	Handler web.Handler
	// Ident derives conversation identities; CookieIdent when nil.
	Ident IdentFunc
	// OnDisconnect, if set, is invoked for disconnect messages.
	OnDisconnect func(*web.Request)
	// Views is handed to handlers that render file-based templates; the
	// engine itself only uses it indirectly.
	Views *template.Loader
	// DebugPages controls whether 500 responses carry the full diagnostic
	// page (trace, source excerpt, request dump). Disable on public
	// deployments.
	DebugPages bool
}

// Engine is the dispatch loop plus the registry of in-flight conversations.
// The registry is the only shared mutable structure; entries are removed
// deterministically on termination, never left to garbage collection.
type Engine struct {
	cfg      Config
	tr       transport.Transport
	reporter *reporter

	mu       sync.Mutex
	registry map[string]*conversation

	log zerolog.Logger
}

// New validates the configuration and builds an Engine.
func New(tr transport.Transport, cfg Config) (*Engine, error) {
	if tr == nil {
		return nil, errors.New("engine transport is nil")
	}
	if cfg.Handler == nil {
		return nil, errors.New("engine handler is nil")
	}
	if cfg.Ident == nil {
		cfg.Ident = CookieIdent
	}
	return &Engine{
		cfg:      cfg,
		tr:       tr,
		reporter: newReporter(tr, cfg.Handler, cfg.DebugPages),
		registry: map[string]*conversation{},
		log:      log.With().Str("component", "engine").Logger(),
	}, nil
}

// Run drives the dispatch loop until ctx is cancelled or the transport shuts
// down. A failure to receive one message is logged and skipped; a failure
// inside one conversation never terminates the loop.
func (e *Engine) Run(ctx context.Context) error {
	for {
		req, err := e.tr.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, transport.ErrShutdown) {
				return nil
			}
			e.log.Error().Err(err).Msg("transport receive failed")
			continue
		}
		e.dispatch(req)
	}
}

// dispatch processes exactly one inbound message: route it to the identity's
// conversation, resume once, then act on the observed state.
func (e *Engine) dispatch(req *web.Request) {
	if req.Kind == web.KindDisconnect {
		if e.cfg.OnDisconnect != nil {
			e.cfg.OnDisconnect(req)
		}
		e.log.Debug().Str("conn_id", req.ConnID).Msg("client disconnected")
		return
	}

	id, fresh := e.cfg.Ident(req)
	e.log.Info().
		Str("identity", id).
		Str("method", req.Method).
		Str("path", req.Path).
		Msg("request")

	conv, ok := e.lookup(id)
	if !ok {
		conv = newConversation(id, req, e.tr, e.cfg.Views)
		if fresh {
			conv.web.SetCookie(req.Header("cookie"))
		}
		e.register(id, conv)
		conv.start(e.cfg.Handler)
	} else {
		conv.deliver(req)
	}

	out := <-conv.yields
	switch out.state {
	case convSuspended:
		// stays registered, waiting for the next request
	case convDone:
		e.remove(id)
	case convFailed:
		e.reporter.report(conv.lastReq, out.failure)
		e.remove(id)
	}
}

func (e *Engine) lookup(id string) (*conversation, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	conv, ok := e.registry[id]
	return conv, ok
}

func (e *Engine) register(id string, conv *conversation) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.registry[id] = conv
}

func (e *Engine) remove(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.registry, id)
}

// Active returns the number of registered conversations.
func (e *Engine) Active() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.registry)
}

// Has reports whether an identity currently has a registered conversation.
func (e *Engine) Has(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.registry[id]
	return ok
}
