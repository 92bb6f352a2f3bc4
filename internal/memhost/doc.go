// Package memhost is an in-memory editor host. It keeps one text buffer per
// context, tracks spans through edits, records annotations, and creates
// placeholder surfaces that remember their locator.
//
// It is the host behind the render command and the reference host used by
// tests. Like the rest of the core it is not safe for concurrent use: call
// it from the event loop goroutine.
//
// Span semantics:
//
//   - an edit entirely before a span shifts it
//   - an edit entirely after a span leaves it alone
//   - an edit that touches the inside of a span destroys it and calls its
//     invalidation callback once, after the edit is applied
//
// Insertions exactly at either boundary of a span do not touch it.
package memhost
