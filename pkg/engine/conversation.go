package engine

import (
	"runtime/debug"

	"github.com/pkg/errors"

	"github.com/peak-dev/Tir/pkg/template"
	"github.com/peak-dev/Tir/pkg/web"
)

type convState int

const (
	convSuspended convState = iota // blocked in Recv, waiting for a request
	convDone                       // handler returned normally
	convFailed                     // handler panicked or returned an error
)

type outcome struct {
	state   convState
	failure *Failure
}

// Failure captures an unrecovered handler failure: either a panic with its
// stack, or an error return.
type Failure struct {
	Err   error
	Panic any
	Stack []byte
}

// conversation is one resumable computation plus its channels. The handler
// runs on its own goroutine; the dispatch loop delivers requests over inbox
// and blocks on yields until the handler suspends again or terminates, so
// handler code between two Recv calls executes atomically with respect to
// every other conversation.
type conversation struct {
	id      string
	web     *web.Web
	lastReq *web.Request
	inbox   chan *web.Request
	yields  chan outcome
}

// newConversation builds the wrapper around the first request. The handler
// goroutine does not run until start, so the caller may still configure the
// wrapper (cookie, views) without racing it.
func newConversation(id string, req *web.Request, sender web.Sender, views *template.Loader) *conversation {
	c := &conversation{
		id:      id,
		lastReq: req,
		inbox:   make(chan *web.Request),
		yields:  make(chan outcome, 1),
	}
	c.web = web.NewWeb(req, sender, c.recv)
	c.web.SetViews(views)
	return c
}

// start resumes the computation for the first time.
func (c *conversation) start(handler web.Handler) {
	go c.run(handler)
}

// deliver hands the next request to the suspended handler. The caller must
// have observed a convSuspended outcome for the previous message, so the
// goroutine is guaranteed to be blocked on inbox.
func (c *conversation) deliver(req *web.Request) {
	c.lastReq = req
	c.inbox <- req
}

// recv is the suspension hook wired into the Web wrapper: announce the
// suspension, then block until the loop delivers the next request.
func (c *conversation) recv() (*web.Request, error) {
	c.yields <- outcome{state: convSuspended}
	req, ok := <-c.inbox
	if !ok {
		return nil, web.ErrClosed
	}
	return req, nil
}

func (c *conversation) run(handler web.Handler) {
	var failure *Failure
	func() {
		defer func() {
			if v := recover(); v != nil {
				failure = &Failure{Panic: v, Stack: debug.Stack()}
			}
		}()
		if err := handler(c.web); err != nil && !errors.Is(err, web.ErrNotFound) {
			failure = &Failure{Err: err}
		}
	}()
	if failure != nil {
		c.yields <- outcome{state: convFailed, failure: failure}
		return
	}
	c.yields <- outcome{state: convDone}
}
