package equation

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Thiago4532/mdmath.nvim/internal/processor"
	"github.com/Thiago4532/mdmath.nvim/internal/protocol"
)

// State is the lifecycle state of a Session.
type State int

const (
	StateCreated State = iota
	StatePending
	StateRendered
	StateErrored
	StateInvalidated
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StatePending:
		return "pending"
	case StateRendered:
		return "rendered"
	case StateErrored:
		return "errored"
	case StateInvalidated:
		return "invalidated"
	default:
		return "unknown"
	}
}

// Options configures sessions.
type Options struct {
	// CenterDisplay centres equations that cover whole lines.
	CenterDisplay bool
	// CenterInline centres equations embedded in other text.
	CenterInline bool
	// Logger receives session diagnostics.
	Logger *zap.Logger
}

// Session is one equation occurrence and its render lifecycle.
type Session struct {
	host   Host
	ctx    ContextID
	text   string
	shape  Shape
	span   Span
	logger *zap.Logger

	state     State
	requestID string
	surface   Surface
	placed    bool
	placedID  AnnotationID
	result    *protocol.Result
	renderErr error
}

// New classifies text at (row, col) of ctx and starts tracking its span.
// It fails without side effects when the text cannot be displayed, for
// example a multi-line equation that is not rectangular.
func New(host Host, opts Options, ctx ContextID, row, col int, text string) (*Session, error) {
	shape, err := Classify(host.Lines, ctx, row, col, text, opts)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Session{
		host:   host,
		ctx:    ctx,
		text:   text,
		shape:  shape,
		state:  StateCreated,
		logger: logger.With(zap.Int("context", int(ctx)), zap.Int("row", row), zap.Int("col", col)),
	}

	span, err := host.Spans.Track(ctx, row, col, len(text), s.Invalidate)
	if err != nil {
		return nil, fmt.Errorf("track span: %w", err)
	}
	s.span = span
	return s, nil
}

// Start sends the render request. The session stays Created if the request
// cannot be sent, so Start may be retried with another Requester.
func (s *Session) Start(r Requester) error {
	if s.state != StateCreated {
		return ErrAlreadyStarted
	}

	id, err := r.Request(s.shape.Width, s.shape.Height, s.shape.Center, s.text, s.resolve)
	if err != nil {
		return fmt.Errorf("request render: %w", err)
	}
	s.requestID = id
	s.state = StatePending
	s.logger.Debug("render requested", zap.String("request_id", id))
	return nil
}

// Invalidate tears the session down: the span is no longer tracked and any
// placed annotation and surface are released. It is idempotent and the
// session never changes state again.
func (s *Session) Invalidate() {
	if s.state == StateInvalidated {
		return
	}
	s.state = StateInvalidated

	if s.span != nil {
		s.span.Cancel()
	}
	if s.placed {
		if err := s.host.Annotations.Remove(s.ctx, s.placedID); err != nil {
			s.logger.Warn("remove annotation", zap.Error(err))
		}
		s.placed = false
	}
	s.releaseSurface()
}

// State returns the lifecycle state.
func (s *Session) State() State {
	return s.state
}

// Text returns the equation source.
func (s *Session) Text() string {
	return s.text
}

// Shape returns the classified geometry.
func (s *Session) Shape() Shape {
	return s.shape
}

// RequestID returns the identifier of the render request, empty before
// Start.
func (s *Session) RequestID() string {
	return s.requestID
}

// Result returns the worker's answer for a Rendered session.
func (s *Session) Result() *protocol.Result {
	return s.result
}

// Err returns the render error shown by an Errored session.
func (s *Session) Err() error {
	return s.renderErr
}

// Position returns the current start of the tracked span.
func (s *Session) Position() (row, col int, ok bool) {
	if s.state == StateInvalidated || s.span == nil {
		return 0, 0, false
	}
	return s.span.Position()
}

// resolve is the request continuation.
func (s *Session) resolve(resp processor.Response) {
	switch s.state {
	case StatePending:
	case StateInvalidated:
		s.logger.Debug("discarding reply for invalidated equation", zap.String("request_id", s.requestID))
		return
	default:
		s.logger.Warn("unexpected reply", zap.Stringer("state", s.state))
		return
	}

	if resp.Err != nil {
		s.showError(resp.Err)
		return
	}
	s.showResult(resp.Result)
}

func (s *Session) showResult(res *protocol.Result) {
	cellW, cellH, err := s.host.Metrics.CellPixelSize()
	if err != nil {
		s.logger.Debug("cell size unavailable", zap.Error(err))
		cellW, cellH = 0, 0
	}
	cols := fitColumns(*res, s.shape.Height, s.shape.Width, cellW, cellH)

	surface, err := s.host.Surfaces.CreateSurface(s.shape.Height, cols, res.Locator)
	if err != nil {
		s.showError(fmt.Errorf("display: %w", err))
		return
	}
	s.surface = surface

	// Creating the surface may have given the host a chance to report an
	// edit over our span.
	if s.state == StateInvalidated {
		s.releaseSurface()
		return
	}

	row, col, ok := s.span.Position()
	if !ok {
		s.Invalidate()
		return
	}

	a := Annotation{
		Lines:     pad(surface.TextRepresentation(), s.shape.Width, s.shape.Center),
		Highlight: surface.ColorHint(),
		Anchor:    AnchorOverlay,
	}
	if err := s.place(row, col, a); err != nil {
		s.releaseSurface()
		s.showError(fmt.Errorf("display: %w", err))
		return
	}
	s.result = res
	s.state = StateRendered
	s.logger.Debug("equation rendered", zap.Int("columns", cols), zap.String("locator", res.Locator))
}

func (s *Session) showError(err error) {
	s.renderErr = err

	row, _, ok := s.span.Position()
	if !ok {
		s.Invalidate()
		return
	}

	a := Annotation{
		Lines:     []Chunk{errorChunk(err.Error())},
		Highlight: ErrorHighlight,
		Anchor:    AnchorEndOfLine,
	}
	s.place(row+s.shape.Height-1, 0, a)
	s.state = StateErrored
	s.logger.Debug("equation failed", zap.Error(err))
}

func (s *Session) place(row, col int, a Annotation) error {
	id, err := s.host.Annotations.Place(s.ctx, row, col, a)
	if err != nil {
		s.logger.Warn("place annotation", zap.Error(err), zap.Stringer("anchor", a.Anchor))
		return err
	}
	s.placedID = id
	s.placed = true
	return nil
}

func (s *Session) releaseSurface() {
	if s.surface == nil {
		return
	}
	if err := s.surface.Close(); err != nil {
		s.logger.Warn("close surface", zap.Error(err))
	}
	s.surface = nil
}
