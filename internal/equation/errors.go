package equation

import "errors"

var (
	// ErrEmpty indicates the source text is empty.
	ErrEmpty = errors.New("empty equation")

	// ErrNotRectangular indicates a multi-line equation whose lines do not
	// cover the buffer lines exactly.
	ErrNotRectangular = errors.New("multi-line equation is not rectangular")

	// ErrAlreadyStarted indicates Start was called on a session that is no
	// longer in the Created state.
	ErrAlreadyStarted = errors.New("session already started")
)
