package protocol

import (
	"bytes"
	"strconv"
)

// scanState is the position of a Scanner within the frame grammar.
type scanState int

const (
	readIdentifier scanState = iota
	readKind
	readLength
	readPayload
)

// String returns the grammar field read in state s.
func (s scanState) String() string {
	switch s {
	case readIdentifier:
		return "identifier"
	case readKind:
		return "kind"
	case readLength:
		return "length"
	case readPayload:
		return "payload"
	default:
		return "unknown"
	}
}

// Scanner incrementally decodes response frames from a byte stream.
//
// The worker's output is not guaranteed to arrive in whole frames, so Feed
// accepts any chunking, down to a single byte, and returns the frames
// completed by that chunk. A Scanner is not safe for concurrent use.
type Scanner struct {
	state   scanState
	field   []byte
	id      string
	kind    Kind
	remain  int
	payload []byte
	offset  int64
	err     error
}

// NewScanner returns a Scanner positioned at the start of a frame.
func NewScanner() *Scanner {
	return &Scanner{}
}

// Feed consumes chunk and returns every frame it completes, in stream order.
// On a grammar violation Feed returns the frames completed before the bad
// byte together with a *MalformedError; the scanner then rejects all further
// input with the same error.
func (s *Scanner) Feed(chunk []byte) ([]Frame, error) {
	if s.err != nil {
		return nil, s.err
	}

	var frames []Frame
	for i := 0; i < len(chunk); {
		if s.state == readPayload {
			n := min(s.remain, len(chunk)-i)
			s.payload = append(s.payload, chunk[i:i+n]...)
			s.remain -= n
			s.offset += int64(n)
			i += n
			if s.remain == 0 {
				frames = append(frames, s.emit())
			}
			continue
		}

		b := chunk[i]
		i++
		s.offset++
		if b != Delimiter {
			if len(s.field) >= maxHeaderField {
				return frames, s.fail("field exceeds maximum length")
			}
			s.field = append(s.field, b)
			continue
		}

		if err := s.endField(); err != nil {
			return frames, err
		}
		if s.state == readPayload && s.remain == 0 {
			frames = append(frames, s.emit())
		}
	}
	return frames, nil
}

// Err returns the error that poisoned the scanner, if any.
func (s *Scanner) Err() error {
	return s.err
}

// Buffered reports whether the scanner holds a partially read frame.
func (s *Scanner) Buffered() bool {
	return s.state != readIdentifier || len(s.field) > 0
}

// endField handles a delimiter terminating the current header field.
func (s *Scanner) endField() error {
	switch s.state {
	case readIdentifier:
		s.id = string(s.field)
		s.state = readKind
	case readKind:
		kind := Kind(s.field)
		if !kind.IsResponse() {
			return s.fail("unknown response kind")
		}
		s.kind = kind
		s.state = readLength
	case readLength:
		n, ok := parseLength(s.field)
		if !ok {
			return s.fail("length is not a decimal integer")
		}
		if n > maxPayload {
			return s.fail("length exceeds maximum")
		}
		s.remain = n
		s.payload = make([]byte, 0, min(n, payloadPrealloc))
		s.state = readPayload
	}
	s.field = s.field[:0]
	return nil
}

func (s *Scanner) emit() Frame {
	f := Frame{ID: s.id, Kind: s.kind, Payload: s.payload}
	s.id, s.kind, s.payload = "", "", nil
	s.state = readIdentifier
	return f
}

func (s *Scanner) fail(reason string) error {
	s.err = &MalformedError{
		Offset: s.offset,
		Field:  s.state.String(),
		Value:  bytes.Clone(s.field),
		Reason: reason,
	}
	return s.err
}

// parseLength accepts only ASCII digits; strconv.Atoi alone would also take
// a sign.
func parseLength(field []byte) (int, bool) {
	if len(field) == 0 {
		return 0, false
	}
	for _, c := range field {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(string(field))
	if err != nil {
		return 0, false
	}
	return n, true
}
