// Package termsize reports the pixel size of a terminal cell.
package termsize

import (
	"errors"
	"fmt"
)

// ErrUnknown indicates the cell size could not be determined.
var ErrUnknown = errors.New("cell size unknown")

// DefaultTTY is the terminal probed when none is given.
const DefaultTTY = "/dev/tty"

// Size is a window size in cells and pixels.
type Size struct {
	Rows, Cols    int
	Width, Height int
}

// Cell returns the pixel size of one cell, or ErrUnknown when the terminal
// does not report pixel dimensions.
func (s Size) Cell() (width, height int, err error) {
	if s.Rows <= 0 || s.Cols <= 0 || s.Width <= 0 || s.Height <= 0 {
		return 0, 0, fmt.Errorf("%w: terminal reports %dx%d px for %dx%d cells",
			ErrUnknown, s.Width, s.Height, s.Cols, s.Rows)
	}
	return s.Width / s.Cols, s.Height / s.Rows, nil
}

// Probe implements equation.Metrics by asking the terminal, falling back to
// a configured cell size.
type Probe struct {
	tty       string
	fallbackW int
	fallbackH int
	query     func(path string) (Size, error)
}

// Option configures a Probe.
type Option func(*Probe)

// WithTTY sets the terminal device to query.
func WithTTY(path string) Option {
	return func(p *Probe) {
		p.tty = path
	}
}

// WithFallback sets the cell size used when the terminal cannot be
// queried. Zero values mean no fallback.
func WithFallback(width, height int) Option {
	return func(p *Probe) {
		p.fallbackW = width
		p.fallbackH = height
	}
}

// New creates a Probe.
func New(opts ...Option) *Probe {
	p := &Probe{tty: DefaultTTY, query: Query}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CellPixelSize returns the current cell size. The terminal is asked every
// time since font changes alter it.
func (p *Probe) CellPixelSize() (int, int, error) {
	size, err := p.query(p.tty)
	if err == nil {
		w, h, cerr := size.Cell()
		if cerr == nil {
			return w, h, nil
		}
		err = cerr
	}
	if p.fallbackW > 0 && p.fallbackH > 0 {
		return p.fallbackW, p.fallbackH, nil
	}
	return 0, 0, err
}
