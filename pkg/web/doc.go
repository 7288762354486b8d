// Package web holds the per-conversation handler surface.
//
// A handler is plain straight-line code over a *Web: it inspects the
// current request, sends pages or JSON, and calls Recv (or the helpers
// built on it, Click/Prompt/Expect) to suspend until the same client's
// next request arrives. The engine resumes it with that request; between
// two Recv calls the handler runs without interleaving.
//
// The package also carries the transport-independent request model and the
// lenient form/query parsing that feeds it.
package web
