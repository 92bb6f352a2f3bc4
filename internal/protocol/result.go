package protocol

import (
	"bytes"
	"fmt"
)

// ParseResult decodes a data payload of the form
// <pixelWidth>:<pixelHeight>:<locator>. The locator is everything after the
// second delimiter and may itself contain ':'.
func ParseResult(payload []byte) (*Result, error) {
	w, rest, ok := bytes.Cut(payload, []byte{Delimiter})
	if !ok {
		return nil, fmt.Errorf("%w: missing height", ErrInvalidResult)
	}
	h, locator, ok := bytes.Cut(rest, []byte{Delimiter})
	if !ok {
		return nil, fmt.Errorf("%w: missing locator", ErrInvalidResult)
	}

	width, err := parseDimension(w)
	if err != nil {
		return nil, fmt.Errorf("%w: width: %v", ErrInvalidResult, err)
	}
	height, err := parseDimension(h)
	if err != nil {
		return nil, fmt.Errorf("%w: height: %v", ErrInvalidResult, err)
	}
	if len(locator) == 0 {
		return nil, fmt.Errorf("%w: empty locator", ErrInvalidResult)
	}

	return &Result{Width: width, Height: height, Locator: string(locator)}, nil
}

func parseDimension(b []byte) (int, error) {
	n, ok := parseLength(b)
	if !ok {
		return 0, fmt.Errorf("%q is not a decimal integer", b)
	}
	if n == 0 {
		return 0, fmt.Errorf("must be positive")
	}
	return n, nil
}
