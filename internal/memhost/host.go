package memhost

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Thiago4532/mdmath.nvim/internal/equation"
)

// Placement is an annotation recorded by the host.
type Placement struct {
	ID         equation.AnnotationID
	Context    equation.ContextID
	Row, Col   int
	Annotation equation.Annotation
}

// Host implements every equation host interface over in-memory buffers.
type Host struct {
	buffers    map[equation.ContextID]*Buffer
	placements map[equation.ContextID]map[equation.AnnotationID]Placement
	nextID     equation.AnnotationID
	surfaces   map[*Surface]struct{}
	cellW      int
	cellH      int
	surfaceErr error
	placeErr   error
	onSurface  func()
}

// Option configures a Host.
type Option func(*Host)

// WithCellSize sets the cell size reported by CellPixelSize. Without it the
// metrics probe fails and images are stretched to the source width.
func WithCellSize(width, height int) Option {
	return func(h *Host) {
		h.cellW = width
		h.cellH = height
	}
}

// New creates an empty host.
func New(opts ...Option) *Host {
	h := &Host{
		buffers:    make(map[equation.ContextID]*Buffer),
		placements: make(map[equation.ContextID]map[equation.AnnotationID]Placement),
		surfaces:   make(map[*Surface]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Equation returns the host wired into an equation.Host.
func (h *Host) Equation() equation.Host {
	return equation.Host{
		Spans:       h,
		Surfaces:    h,
		Annotations: h,
		Metrics:     h,
		Lines:       h,
	}
}

// Open creates or replaces the buffer of ctx. Spans of a replaced buffer
// are invalidated.
func (h *Host) Open(ctx equation.ContextID, text string) {
	if old, ok := h.buffers[ctx]; ok {
		h.buffers[ctx] = newBuffer(text)
		for _, s := range old.spans {
			s.dead = true
			if s.onInvalidated != nil {
				s.onInvalidated()
			}
		}
		return
	}
	h.buffers[ctx] = newBuffer(text)
}

// Close drops the buffer of ctx and its annotations without invalidating
// spans.
func (h *Host) Close(ctx equation.ContextID) {
	delete(h.buffers, ctx)
	delete(h.placements, ctx)
}

// Buffer returns the buffer of ctx.
func (h *Host) Buffer(ctx equation.ContextID) (*Buffer, error) {
	b, ok := h.buffers[ctx]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownContext, ctx)
	}
	return b, nil
}

// Edit replaces del bytes at (row, col) with insert.
func (h *Host) Edit(ctx equation.ContextID, row, col, del int, insert string) error {
	b, err := h.Buffer(ctx)
	if err != nil {
		return err
	}
	offset, err := b.Offset(row, col)
	if err != nil {
		return err
	}
	fired, err := b.edit(offset, del, insert)
	if err != nil {
		return err
	}
	for _, fn := range fired {
		fn()
	}
	return nil
}

// Lines returns the lines of ctx.
func (h *Host) Lines(ctx equation.ContextID) ([]string, error) {
	b, err := h.Buffer(ctx)
	if err != nil {
		return nil, err
	}
	return b.Lines(), nil
}

// Line implements equation.LineSource.
func (h *Host) Line(ctx equation.ContextID, row int) (string, error) {
	b, err := h.Buffer(ctx)
	if err != nil {
		return "", err
	}
	return b.Line(row)
}

// Track implements equation.SpanTracker.
func (h *Host) Track(ctx equation.ContextID, row, col, length int, onInvalidated func()) (equation.Span, error) {
	b, err := h.Buffer(ctx)
	if err != nil {
		return nil, err
	}
	start, err := b.Offset(row, col)
	if err != nil {
		return nil, err
	}
	if length < 0 || start+length > len(b.text) {
		return nil, fmt.Errorf("%w: span of %d bytes at %d:%d", ErrOutOfRange, length, row, col)
	}
	s := &span{buf: b, start: start, length: length, onInvalidated: onInvalidated}
	b.spans = append(b.spans, s)
	return s, nil
}

// Spans returns the number of live spans in ctx.
func (h *Host) Spans(ctx equation.ContextID) int {
	b, ok := h.buffers[ctx]
	if !ok {
		return 0
	}
	return len(b.spans)
}

// Place implements equation.Annotator.
func (h *Host) Place(ctx equation.ContextID, row, col int, a equation.Annotation) (equation.AnnotationID, error) {
	if h.placeErr != nil {
		return 0, h.placeErr
	}
	b, err := h.Buffer(ctx)
	if err != nil {
		return 0, err
	}
	if _, err := b.Offset(row, col); err != nil {
		return 0, err
	}

	h.nextID++
	m := h.placements[ctx]
	if m == nil {
		m = make(map[equation.AnnotationID]Placement)
		h.placements[ctx] = m
	}
	m[h.nextID] = Placement{ID: h.nextID, Context: ctx, Row: row, Col: col, Annotation: a}
	return h.nextID, nil
}

// Remove implements equation.Annotator.
func (h *Host) Remove(ctx equation.ContextID, id equation.AnnotationID) error {
	m := h.placements[ctx]
	if _, ok := m[id]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownAnnotation, id)
	}
	delete(m, id)
	return nil
}

// Placements returns the annotations of ctx ordered by position.
func (h *Host) Placements(ctx equation.ContextID) []Placement {
	out := make([]Placement, 0, len(h.placements[ctx]))
	for _, p := range h.placements[ctx] {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b Placement) int {
		if a.Row != b.Row {
			return a.Row - b.Row
		}
		if a.Col != b.Col {
			return a.Col - b.Col
		}
		return int(a.ID - b.ID)
	})
	return out
}

// CellPixelSize implements equation.Metrics.
func (h *Host) CellPixelSize() (int, int, error) {
	if h.cellW <= 0 || h.cellH <= 0 {
		return 0, 0, fmt.Errorf("cell size not configured")
	}
	return h.cellW, h.cellH, nil
}

// FailSurfaces makes CreateSurface return err until called with nil.
func (h *Host) FailSurfaces(err error) {
	h.surfaceErr = err
}

// FailPlacements makes Place return err until called with nil.
func (h *Host) FailPlacements(err error) {
	h.placeErr = err
}

// OnCreateSurface registers fn to run inside CreateSurface, before the
// surface is returned. Tests use it to edit the buffer at that moment.
func (h *Host) OnCreateSurface(fn func()) {
	h.onSurface = fn
}

// CreateSurface implements equation.SurfaceFactory.
func (h *Host) CreateSurface(height, width int, locator string) (equation.Surface, error) {
	if h.surfaceErr != nil {
		return nil, h.surfaceErr
	}
	if height <= 0 || width <= 0 {
		return nil, fmt.Errorf("%w: surface %dx%d", ErrOutOfRange, width, height)
	}
	s := &Surface{host: h, Height: height, Width: width, Locator: locator}
	h.surfaces[s] = struct{}{}
	if h.onSurface != nil {
		h.onSurface()
	}
	return s, nil
}

// OpenSurfaces returns the number of surfaces not yet closed.
func (h *Host) OpenSurfaces() int {
	return len(h.surfaces)
}

// Surface is a placeholder image: a block of shade characters that
// remembers where the image lives.
type Surface struct {
	host    *Host
	Height  int
	Width   int
	Locator string
	closed  bool
}

// SurfaceHighlight is the colour hint of every memhost surface.
var SurfaceHighlight = equation.Highlight{Group: "MdmathSurface"}

// TextRepresentation implements equation.Surface.
func (s *Surface) TextRepresentation() []equation.Chunk {
	rows := make([]equation.Chunk, s.Height)
	for i := range rows {
		rows[i] = equation.Chunk{Text: strings.Repeat("░", s.Width), Width: s.Width}
	}
	return rows
}

// ColorHint implements equation.Surface.
func (s *Surface) ColorHint() equation.Highlight {
	return SurfaceHighlight
}

// Close implements equation.Surface.
func (s *Surface) Close() error {
	if s.closed {
		return fmt.Errorf("surface %s already closed", s.Locator)
	}
	s.closed = true
	delete(s.host.surfaces, s)
	return nil
}
