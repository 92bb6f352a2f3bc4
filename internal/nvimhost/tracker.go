package nvimhost

import (
	"fmt"

	"github.com/Thiago4532/mdmath.nvim/internal/equation"
)

// Tracker follows spans through line-granular buffer changes. Neovim
// reports edits as "lines [first, last) were replaced by n lines"; a span
// touching any replaced line is destroyed, spans below the change move.
type Tracker struct {
	spans map[equation.ContextID][]*span
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{spans: make(map[equation.ContextID][]*span)}
}

// Add tracks a span starting at (row, col) and covering rows buffer rows.
func (t *Tracker) Add(ctx equation.ContextID, row, col, rows int, onInvalidated func()) (equation.Span, error) {
	if row < 0 || col < 0 || rows < 1 {
		return nil, fmt.Errorf("track span of %d rows at %d:%d: invalid position", rows, row, col)
	}
	s := &span{tracker: t, ctx: ctx, row: row, col: col, rows: rows, onInvalidated: onInvalidated}
	t.spans[ctx] = append(t.spans[ctx], s)
	return s, nil
}

// Lines applies a change replacing rows [first, last) of ctx with count
// rows. last < 0 means the end of the buffer. Callbacks of destroyed spans
// run after every span has been updated.
func (t *Tracker) Lines(ctx equation.ContextID, first, last, count int) {
	var fired []func()
	live := t.spans[ctx][:0]
	for _, s := range t.spans[ctx] {
		end := s.row + s.rows
		switch {
		case last >= 0 && s.row >= last:
			s.row += count - (last - first)
		case end <= first:
		default:
			s.dead = true
			if s.onInvalidated != nil {
				fired = append(fired, s.onInvalidated)
			}
			continue
		}
		live = append(live, s)
	}
	clear(t.spans[ctx][len(live):])
	t.spans[ctx] = live
	for _, fn := range fired {
		fn()
	}
}

// Detach destroys every span of ctx, as when the buffer is unloaded.
func (t *Tracker) Detach(ctx equation.ContextID) {
	t.Lines(ctx, 0, -1, 0)
	delete(t.spans, ctx)
}

// Len returns the number of live spans in ctx.
func (t *Tracker) Len(ctx equation.ContextID) int {
	return len(t.spans[ctx])
}

type span struct {
	tracker       *Tracker
	ctx           equation.ContextID
	row, col      int
	rows          int
	dead          bool
	onInvalidated func()
}

// Position implements equation.Span.
func (s *span) Position() (int, int, bool) {
	if s.dead {
		return 0, 0, false
	}
	return s.row, s.col, true
}

// Cancel implements equation.Span.
func (s *span) Cancel() {
	if s.dead {
		return
	}
	s.dead = true
	s.onInvalidated = nil
	spans := s.tracker.spans[s.ctx]
	for i, o := range spans {
		if o == s {
			s.tracker.spans[s.ctx] = append(spans[:i], spans[i+1:]...)
			return
		}
	}
}
