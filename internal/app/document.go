package app

import (
	"github.com/Thiago4532/mdmath.nvim/internal/equation"
)

// sessionKey identifies an equation occurrence for reuse across refreshes.
type sessionKey struct {
	row, col int
	text     string
}

// Document is the render state of one context.
type Document struct {
	ctx      equation.ContextID
	sessions []*equation.Session
	// attached is false after the shared worker failed; the next refresh
	// acquires a new one.
	attached bool
}

func newDocument(ctx equation.ContextID) *Document {
	return &Document{ctx: ctx}
}

// Sessions returns the live sessions of the document.
func (d *Document) Sessions() []*equation.Session {
	out := make([]*equation.Session, 0, len(d.sessions))
	for _, s := range d.sessions {
		if s.State() != equation.StateInvalidated {
			out = append(out, s)
		}
	}
	return out
}

// live indexes the sessions that can be reused by their current position.
// Sessions that were invalidated or never started are dropped.
func (d *Document) live() map[sessionKey]*equation.Session {
	out := make(map[sessionKey]*equation.Session, len(d.sessions))
	for _, s := range d.sessions {
		if s.State() == equation.StateInvalidated || s.State() == equation.StateCreated {
			continue
		}
		row, col, ok := s.Position()
		if !ok {
			continue
		}
		key := sessionKey{row: row, col: col, text: s.Text()}
		if _, dup := out[key]; dup {
			s.Invalidate()
			continue
		}
		out[key] = s
	}
	return out
}

// invalidateAll tears down every session.
func (d *Document) invalidateAll() {
	for _, s := range d.sessions {
		s.Invalidate()
	}
	d.sessions = nil
}

// dropPending invalidates the sessions still waiting for a reply and
// returns how many there were. Displayed sessions are kept.
func (d *Document) dropPending() int {
	kept := d.sessions[:0]
	dropped := 0
	for _, s := range d.sessions {
		switch s.State() {
		case equation.StatePending:
			s.Invalidate()
			dropped++
		case equation.StateInvalidated:
		default:
			kept = append(kept, s)
		}
	}
	clear(d.sessions[len(kept):])
	d.sessions = kept
	return dropped
}
