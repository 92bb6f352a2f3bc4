package protocol

import "strconv"

// Delimiter separates header fields.
const Delimiter = ':'

// ControlID is the identifier reserved for control commands. Responses
// addressed to it never match a pending request.
const ControlID = "0"

// maxHeaderField bounds a single header field so a desynchronized stream
// cannot grow the scanner without limit.
const maxHeaderField = 64

// maxPayload bounds the length a frame header may announce.
const maxPayload = 64 << 20

// payloadPrealloc caps the buffer reserved before payload bytes arrive.
const payloadPrealloc = 4 << 10

// Kind identifies the type of a frame.
type Kind string

// Outbound kinds.
const (
	KindForeground Kind = "fgcolor"
	KindScale      Kind = "scale"
	KindRequest    Kind = "request"
)

// Inbound kinds.
const (
	KindData  Kind = "data"
	KindError Kind = "error"
)

// IsResponse reports whether k is a kind the worker may send.
func (k Kind) IsResponse() bool {
	return k == KindData || k == KindError
}

// Frame is a decoded response frame.
type Frame struct {
	ID      string
	Kind    Kind
	Payload []byte
}

// Command is a decoded outbound frame. Only the fields relevant to Kind are
// set: Value for fgcolor and scale, the geometry and Payload for request.
type Command struct {
	ID      string
	Kind    Kind
	Value   string
	Width   int
	Height  int
	Center  bool
	Payload []byte
}

// Result is the record carried by a data response.
type Result struct {
	// Width and Height are the image dimensions in pixels.
	Width  int
	Height int
	// Locator is opaque to the protocol; it tells the display surface where
	// the rendered output lives (typically a file path).
	Locator string
}

// EncodeForeground encodes the control command that sets the foreground
// colour used by the worker.
func EncodeForeground(hex string) []byte {
	b := appendHeader(nil, ControlID, KindForeground)
	b = append(b, hex...)
	return append(b, Delimiter)
}

// EncodeScale encodes the control command that sets the render scale.
func EncodeScale(scale float64) []byte {
	b := appendHeader(nil, ControlID, KindScale)
	b = strconv.AppendFloat(b, scale, 'f', -1, 64)
	return append(b, Delimiter)
}

// EncodeRequest encodes a render request. width and height are measured in
// terminal cells; payload is the equation source sent verbatim.
func EncodeRequest(id string, width, height int, center bool, payload []byte) []byte {
	b := make([]byte, 0, len(id)+len(payload)+40)
	b = appendHeader(b, id, KindRequest)
	b = strconv.AppendInt(b, int64(width), 10)
	b = append(b, Delimiter)
	b = strconv.AppendInt(b, int64(height), 10)
	b = append(b, Delimiter)
	b = strconv.AppendBool(b, center)
	b = append(b, Delimiter)
	return appendPayload(b, payload)
}

// EncodeResponse encodes a response frame the way a worker emits it.
func EncodeResponse(id string, kind Kind, payload []byte) []byte {
	b := make([]byte, 0, len(id)+len(payload)+16)
	b = appendHeader(b, id, kind)
	return appendPayload(b, payload)
}

// FormatResult encodes r as a data record.
func FormatResult(r Result) []byte {
	b := strconv.AppendInt(nil, int64(r.Width), 10)
	b = append(b, Delimiter)
	b = strconv.AppendInt(b, int64(r.Height), 10)
	b = append(b, Delimiter)
	return append(b, r.Locator...)
}

func appendHeader(b []byte, id string, kind Kind) []byte {
	b = append(b, id...)
	b = append(b, Delimiter)
	b = append(b, kind...)
	return append(b, Delimiter)
}

func appendPayload(b, payload []byte) []byte {
	b = strconv.AppendInt(b, int64(len(payload)), 10)
	b = append(b, Delimiter)
	return append(b, payload...)
}
