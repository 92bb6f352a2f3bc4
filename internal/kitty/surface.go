package kitty

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/Thiago4532/mdmath.nvim/internal/equation"
)

// Placeholder is the character kitty replaces with image cells.
const Placeholder = '\U0010EEEE'

// maxID keeps image ids within the 24 bits a foreground colour carries.
const maxID = 1<<24 - 1

var (
	// ErrTooTall indicates a surface with more rows than placeholders can
	// address.
	ErrTooTall = errors.New("image too tall for placeholders")

	// ErrClosed indicates a surface that was already closed.
	ErrClosed = errors.New("surface closed")
)

// Factory creates kitty surfaces. Escape sequences are written to the
// terminal writer, one Write call per command.
type Factory struct {
	term   io.Writer
	nextID uint32
	logger *zap.Logger
}

// Option configures a Factory.
type Option func(*Factory)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(f *Factory) {
		f.logger = logger
	}
}

// WithFirstID sets the first image id handed out; useful when several
// programs share one terminal.
func WithFirstID(id uint32) Option {
	return func(f *Factory) {
		f.nextID = id - 1
	}
}

// NewFactory creates a Factory writing to term.
func NewFactory(term io.Writer, opts ...Option) *Factory {
	f := &Factory{term: term, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Factory) allocID() uint32 {
	f.nextID++
	if f.nextID == 0 || f.nextID > maxID {
		f.nextID = 1
	}
	return f.nextID
}

// CreateSurface implements equation.SurfaceFactory. The image at locator
// is transmitted and placed scaled to width columns and height rows.
func (f *Factory) CreateSurface(height, width int, locator string) (equation.Surface, error) {
	if height <= 0 || width <= 0 {
		return nil, fmt.Errorf("kitty: invalid surface size %dx%d", width, height)
	}
	if height > len(rowDiacritics) {
		return nil, fmt.Errorf("%w: %d rows", ErrTooTall, height)
	}

	id := f.allocID()
	if _, err := io.WriteString(f.term, transmit(id, width, height, locator)); err != nil {
		return nil, fmt.Errorf("kitty: transmit image %d: %w", id, err)
	}
	f.logger.Debug("image transmitted", zap.Uint32("image_id", id), zap.String("locator", locator),
		zap.Int("cols", width), zap.Int("rows", height))

	return &Surface{factory: f, id: id, width: width, height: height}, nil
}

// Surface is a placed kitty image.
type Surface struct {
	factory *Factory
	id      uint32
	width   int
	height  int
	closed  bool
}

// ID returns the kitty image id.
func (s *Surface) ID() uint32 {
	return s.id
}

// TextRepresentation implements equation.Surface.
func (s *Surface) TextRepresentation() []equation.Chunk {
	rows := make([]equation.Chunk, s.height)
	for r := range rows {
		var b strings.Builder
		b.WriteRune(Placeholder)
		b.WriteRune(rowDiacritics[r])
		b.WriteRune(rowDiacritics[0])
		for c := 1; c < s.width; c++ {
			b.WriteRune(Placeholder)
		}
		rows[r] = equation.Chunk{Text: b.String(), Width: s.width}
	}
	return rows
}

// ColorHint implements equation.Surface. The colour is the image id.
func (s *Surface) ColorHint() equation.Highlight {
	return equation.Highlight{
		Group:      fmt.Sprintf("MdmathImage%d", s.id),
		Foreground: fmt.Sprintf("#%06x", s.id),
	}
}

// Close implements equation.Surface by deleting the image and its data
// from the terminal.
func (s *Surface) Close() error {
	if s.closed {
		return ErrClosed
	}
	s.closed = true
	if _, err := io.WriteString(s.factory.term, remove(s.id)); err != nil {
		return fmt.Errorf("kitty: delete image %d: %w", s.id, err)
	}
	return nil
}

// transmit returns the command loading the PNG file at path as image id
// with a virtual placement of cols x rows cells. q=2 silences replies,
// which would otherwise arrive as input.
func transmit(id uint32, cols, rows int, path string) string {
	payload := base64.StdEncoding.EncodeToString([]byte(path))
	return fmt.Sprintf("\x1b_Ga=T,U=1,f=100,t=f,i=%d,c=%d,r=%d,q=2;%s\x1b\\", id, cols, rows, payload)
}

func remove(id uint32) string {
	return fmt.Sprintf("\x1b_Ga=d,d=I,i=%d,q=2\x1b\\", id)
}
