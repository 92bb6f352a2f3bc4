// Package equation binds one occurrence of math markup in a buffer to an
// asynchronous render request.
//
// A Session is created for a piece of source text at a buffer position. It
// classifies the text as single-line or multi-line, tracks the span through
// the host, sends a request to the worker and, when the reply arrives,
// either places the rendered image over the source text or shows the
// worker's diagnostic at the end of the line.
//
//	Created ──Start──▶ Pending ──data──▶ Rendered ──┐
//	   │                  │    ──error─▶ Errored  ──┤
//	   └──────────────────┴──────────────────────────┴──Invalidate──▶ Invalidated
//
// Invalidation never aborts the worker request; a reply arriving for an
// invalidated session is discarded and anything it allocated is released.
//
// Everything the session needs from the editor is described by the
// interfaces in host.go. All Session methods must be called on the event
// loop goroutine.
package equation
