package processor

import (
	"time"

	"go.uber.org/zap"
)

// DefaultCloseTimeout is how long a closing worker may take to exit after
// its stdin is closed before it is killed.
const DefaultCloseTimeout = 3 * time.Second

// Config describes how to start the worker and how to initialize it.
type Config struct {
	// Command is the worker executable.
	Command string

	// Args are command-line arguments.
	Args []string

	// Env are additional KEY=VALUE environment entries.
	Env []string

	// Dir is the working directory (defaults to the current one).
	Dir string

	// Foreground is the hex colour sent with fgcolor on start.
	Foreground string

	// Scale is sent with scale on start.
	Scale float64

	// CloseTimeout bounds a graceful close (default DefaultCloseTimeout).
	CloseTimeout time.Duration
}

// Option configures a Processor.
type Option func(*Processor)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithFatalHandler sets the callback invoked, on the event loop, when the
// worker fails fatally. It is called at most once.
func WithFatalHandler(fn func(p *Processor, err error)) Option {
	return func(p *Processor) {
		p.onFatal = fn
	}
}

// WithExitHandler sets the callback invoked, on the event loop, once the
// processor has reached StateClosed, whatever the cause.
func WithExitHandler(fn func(p *Processor)) Option {
	return func(p *Processor) {
		p.onExit = fn
	}
}

// WithFailPendingOnExit makes a dying worker resolve every outstanding
// request with ErrTerminated instead of leaving it pending.
func WithFailPendingOnExit(enabled bool) Option {
	return func(p *Processor) {
		p.failPending = enabled
	}
}
