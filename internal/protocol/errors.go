package protocol

import (
	"errors"
	"fmt"
)

// ErrInvalidResult indicates a data payload that does not follow the
// <width>:<height>:<locator> record format.
var ErrInvalidResult = errors.New("invalid render result")

// MalformedError reports a byte stream that does not follow the frame
// grammar. Once a scanner returns a MalformedError the stream is considered
// desynchronized and the scanner refuses further input.
type MalformedError struct {
	// Offset is the stream offset of the byte that exposed the problem.
	Offset int64
	// Field names the header field being read ("identifier", "kind", ...).
	Field string
	// Value holds the offending field bytes, truncated for display.
	Value []byte
	// Reason is a short human readable description.
	Reason string
}

// Error implements the error interface.
func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed frame at offset %d: %s %q: %s", e.Offset, e.Field, e.Value, e.Reason)
}
