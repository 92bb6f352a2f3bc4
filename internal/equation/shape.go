package equation

import (
	"fmt"
	"strings"

	"github.com/rivo/uniseg"
)

// Shape is the on-screen geometry of an equation's source text.
type Shape struct {
	// Lines holds the source text split at newlines.
	Lines []string
	// Widths holds the visible width of each line in cells.
	Widths []int
	// Width is the widest line; the rendered image must fit in it.
	Width int
	// Height is the number of buffer rows covered.
	Height int
	// WholeLine is set when the equation covers entire buffer lines.
	WholeLine bool
	// Center asks the worker to centre the image.
	Center bool
}

// Multiline reports whether the equation spans more than one row.
func (s Shape) Multiline() bool {
	return s.Height > 1
}

// Classify measures text placed at (row, col) of ctx. A multi-line equation
// must cover whole buffer lines: every line of text must be exactly as wide
// as the buffer line it sits on, otherwise ErrNotRectangular is returned.
func Classify(lines LineSource, ctx ContextID, row, col int, text string, opts Options) (Shape, error) {
	if text == "" {
		return Shape{}, ErrEmpty
	}

	parts := strings.Split(text, "\n")
	shape := Shape{
		Lines:  parts,
		Widths: make([]int, len(parts)),
		Height: len(parts),
	}
	for i, p := range parts {
		shape.Widths[i] = uniseg.StringWidth(p)
		shape.Width = max(shape.Width, shape.Widths[i])
	}

	if len(parts) == 1 {
		line, err := lines.Line(ctx, row)
		if err != nil {
			return Shape{}, fmt.Errorf("read line %d: %w", row, err)
		}
		shape.WholeLine = col == 0 && line == text
		shape.Center = opts.CenterInline
		if shape.WholeLine {
			shape.Center = opts.CenterDisplay
		}
		return shape, nil
	}

	if col != 0 {
		return Shape{}, fmt.Errorf("%w: starts at column %d", ErrNotRectangular, col)
	}
	for i, w := range shape.Widths {
		line, err := lines.Line(ctx, row+i)
		if err != nil {
			return Shape{}, fmt.Errorf("read line %d: %w", row+i, err)
		}
		if got := uniseg.StringWidth(line); got != w {
			return Shape{}, fmt.Errorf("%w: line %d is %d cells wide, equation line is %d",
				ErrNotRectangular, row+i, got, w)
		}
	}
	shape.WholeLine = true
	shape.Center = opts.CenterDisplay
	return shape, nil
}
