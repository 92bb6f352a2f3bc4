package equation

import "github.com/Thiago4532/mdmath.nvim/internal/processor"

// ContextID identifies the buffer a session belongs to.
type ContextID = processor.ContextID

// Chunk is a run of display text and the number of terminal columns it
// occupies.
type Chunk struct {
	Text  string
	Width int
}

// Highlight tells the host how to colour an annotation. When Foreground is
// set the host defines Group with that colour; otherwise Group is expected
// to exist already.
type Highlight struct {
	Group      string
	Foreground string
}

// ErrorHighlight is used for inline render diagnostics.
var ErrorHighlight = Highlight{Group: "DiagnosticError"}

// Anchor selects how an annotation is attached to the buffer.
type Anchor int

const (
	// AnchorOverlay draws each line over the buffer text starting at the
	// placement position, one buffer row per line.
	AnchorOverlay Anchor = iota
	// AnchorEndOfLine draws a single line after the end of the row.
	AnchorEndOfLine
)

// String returns the anchor name.
func (a Anchor) String() string {
	switch a {
	case AnchorOverlay:
		return "overlay"
	case AnchorEndOfLine:
		return "eol"
	default:
		return "unknown"
	}
}

// Annotation is a piece of virtual text placed in a buffer.
type Annotation struct {
	Lines     []Chunk
	Highlight Highlight
	Anchor    Anchor
}

// AnnotationID identifies a placed annotation within its context.
type AnnotationID int

// Span is a tracked region of buffer text. It moves with edits around it
// and is destroyed by edits inside it.
type Span interface {
	// Position returns the current start of the span; ok is false once the
	// span has been destroyed.
	Position() (row, col int, ok bool)
	// Cancel stops tracking. onInvalidated is not called afterwards.
	Cancel()
}

// SpanTracker starts tracking regions of buffer text. onInvalidated must be
// invoked on the event loop.
type SpanTracker interface {
	Track(ctx ContextID, row, col, length int, onInvalidated func()) (Span, error)
}

// Surface is a displayable rendered image.
type Surface interface {
	// TextRepresentation returns one chunk per row that, drawn with
	// ColorHint, makes the terminal show the image.
	TextRepresentation() []Chunk
	ColorHint() Highlight
	Close() error
}

// SurfaceFactory creates display surfaces for rendered output.
type SurfaceFactory interface {
	CreateSurface(height, width int, locator string) (Surface, error)
}

// Annotator places and removes virtual text.
type Annotator interface {
	Place(ctx ContextID, row, col int, a Annotation) (AnnotationID, error)
	Remove(ctx ContextID, id AnnotationID) error
}

// Metrics reports the terminal cell size in pixels.
type Metrics interface {
	CellPixelSize() (width, height int, err error)
}

// LineSource reads buffer lines.
type LineSource interface {
	Line(ctx ContextID, row int) (string, error)
}

// Host bundles the editor primitives a session uses.
type Host struct {
	Spans       SpanTracker
	Surfaces    SurfaceFactory
	Annotations Annotator
	Metrics     Metrics
	Lines       LineSource
}

// Requester sends render requests; *processor.Processor implements it.
type Requester interface {
	Request(width, height int, center bool, text string, k processor.Continuation) (string, error)
}
