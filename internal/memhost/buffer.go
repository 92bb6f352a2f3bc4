package memhost

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownContext indicates no buffer is open for the context.
	ErrUnknownContext = errors.New("unknown context")

	// ErrOutOfRange indicates a position outside the buffer.
	ErrOutOfRange = errors.New("position out of range")

	// ErrUnknownAnnotation indicates an annotation that is not placed.
	ErrUnknownAnnotation = errors.New("unknown annotation")
)

// Buffer is the text of one context plus the spans tracked in it.
type Buffer struct {
	text  string
	spans []*span
}

func newBuffer(text string) *Buffer {
	return &Buffer{text: text}
}

// Text returns the whole buffer.
func (b *Buffer) Text() string {
	return b.text
}

// Lines returns the buffer split at newlines.
func (b *Buffer) Lines() []string {
	return strings.Split(b.text, "\n")
}

// LineCount returns the number of lines; an empty buffer has one.
func (b *Buffer) LineCount() int {
	return strings.Count(b.text, "\n") + 1
}

// Line returns row without its newline.
func (b *Buffer) Line(row int) (string, error) {
	start, err := b.lineStart(row)
	if err != nil {
		return "", err
	}
	end := strings.IndexByte(b.text[start:], '\n')
	if end < 0 {
		return b.text[start:], nil
	}
	return b.text[start : start+end], nil
}

// Offset converts a row and byte column to a byte offset.
func (b *Buffer) Offset(row, col int) (int, error) {
	start, err := b.lineStart(row)
	if err != nil {
		return 0, err
	}
	line, _ := b.Line(row)
	if col < 0 || col > len(line) {
		return 0, fmt.Errorf("%w: column %d of row %d", ErrOutOfRange, col, row)
	}
	return start + col, nil
}

// Point converts a byte offset to a row and byte column.
func (b *Buffer) Point(offset int) (row, col int) {
	offset = min(max(offset, 0), len(b.text))
	before := b.text[:offset]
	row = strings.Count(before, "\n")
	col = offset - (strings.LastIndexByte(before, '\n') + 1)
	return row, col
}

func (b *Buffer) lineStart(row int) (int, error) {
	if row < 0 {
		return 0, fmt.Errorf("%w: row %d", ErrOutOfRange, row)
	}
	offset := 0
	for i := 0; i < row; i++ {
		next := strings.IndexByte(b.text[offset:], '\n')
		if next < 0 {
			return 0, fmt.Errorf("%w: row %d", ErrOutOfRange, row)
		}
		offset += next + 1
	}
	return offset, nil
}

// edit replaces del bytes at offset with insert and updates spans. The
// callbacks of destroyed spans are returned so they run after the buffer
// is consistent.
func (b *Buffer) edit(offset, del int, insert string) ([]func(), error) {
	if offset < 0 || del < 0 || offset+del > len(b.text) {
		return nil, fmt.Errorf("%w: edit %d+%d of %d bytes", ErrOutOfRange, offset, del, len(b.text))
	}
	b.text = b.text[:offset] + insert + b.text[offset+del:]

	delta := len(insert) - del
	end := offset + del
	var fired []func()
	live := b.spans[:0]
	for _, s := range b.spans {
		switch {
		case end <= s.start:
			s.start += delta
		case offset >= s.start+s.length:
		default:
			s.dead = true
			if s.onInvalidated != nil {
				fired = append(fired, s.onInvalidated)
			}
			continue
		}
		live = append(live, s)
	}
	clear(b.spans[len(live):])
	b.spans = live
	return fired, nil
}

func (b *Buffer) forget(target *span) {
	for i, s := range b.spans {
		if s == target {
			b.spans = append(b.spans[:i], b.spans[i+1:]...)
			return
		}
	}
}

// span is a tracked byte range.
type span struct {
	buf           *Buffer
	start, length int
	dead          bool
	onInvalidated func()
}

// Position implements equation.Span.
func (s *span) Position() (row, col int, ok bool) {
	if s.dead {
		return 0, 0, false
	}
	row, col = s.buf.Point(s.start)
	return row, col, true
}

// Cancel implements equation.Span.
func (s *span) Cancel() {
	if s.dead {
		return
	}
	s.dead = true
	s.onInvalidated = nil
	s.buf.forget(s)
}
