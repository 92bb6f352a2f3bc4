package processor

import (
	"go.uber.org/zap"

	"github.com/Thiago4532/mdmath.nvim/internal/loop"
)

// ContextID identifies a consumer of the shared worker, typically an editor
// buffer.
type ContextID int

// Supervisor shares a single Processor between contexts by reference
// counting. The first Acquire spawns the worker and the last Release closes
// it. All methods must be called on the event loop goroutine.
type Supervisor struct {
	cfg    Config
	poster loop.Poster
	opts   []Option
	logger *zap.Logger

	current *Processor
	closing *Processor
	holders map[ContextID]struct{}

	onFatal func(error)
	spawn   func(Config, loop.Poster, ...Option) (*Processor, error)
}

// SupervisorOption configures a Supervisor.
type SupervisorOption func(*Supervisor)

// WithSupervisorLogger sets the logger used by the supervisor and the
// processors it spawns.
func WithSupervisorLogger(logger *zap.Logger) SupervisorOption {
	return func(s *Supervisor) {
		s.logger = logger
	}
}

// WithFatalCallback sets the callback invoked when the shared worker fails.
// By the time it runs the supervisor has already forgotten the worker and
// all of its holders.
func WithFatalCallback(fn func(err error)) SupervisorOption {
	return func(s *Supervisor) {
		s.onFatal = fn
	}
}

// WithProcessorOptions adds options applied to every spawned Processor.
func WithProcessorOptions(opts ...Option) SupervisorOption {
	return func(s *Supervisor) {
		s.opts = append(s.opts, opts...)
	}
}

// NewSupervisor creates a supervisor that spawns workers from cfg.
func NewSupervisor(cfg Config, poster loop.Poster, opts ...SupervisorOption) *Supervisor {
	s := &Supervisor{
		cfg:     cfg,
		poster:  poster,
		logger:  zap.NewNop(),
		holders: make(map[ContextID]struct{}),
		spawn:   Spawn,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Acquire registers ctx as a holder of the shared worker and returns it,
// spawning the worker if ctx is the first holder. Acquiring twice from the
// same context returns the same handle without counting twice. On spawn
// failure nothing is registered.
func (s *Supervisor) Acquire(ctx ContextID) (*Processor, error) {
	if s.current != nil {
		s.holders[ctx] = struct{}{}
		return s.current, nil
	}

	if s.closing != nil {
		return nil, ErrWorkerClosing
	}

	opts := append([]Option{
		WithLogger(s.logger),
		WithFatalHandler(s.handleFatal),
		WithExitHandler(s.handleExit),
	}, s.opts...)

	p, err := s.spawn(s.cfg, s.poster, opts...)
	if err != nil {
		s.logger.Error("spawn worker", zap.Error(err))
		return nil, err
	}

	s.current = p
	s.holders[ctx] = struct{}{}
	s.logger.Debug("worker acquired", zap.Int("context", int(ctx)), zap.Int("holders", len(s.holders)))
	return p, nil
}

// Release drops ctx's hold on the worker and closes the worker when no
// holder is left. Releasing a context that holds nothing is a no-op.
func (s *Supervisor) Release(ctx ContextID) {
	if _, ok := s.holders[ctx]; !ok {
		s.logger.Debug("release without acquire", zap.Int("context", int(ctx)))
		return
	}
	delete(s.holders, ctx)

	if len(s.holders) > 0 || s.current == nil {
		return
	}

	p := s.current
	s.current = nil
	s.closing = p
	p.Close()
}

// Holds reports whether ctx currently holds the worker.
func (s *Supervisor) Holds(ctx ContextID) bool {
	_, ok := s.holders[ctx]
	return ok
}

// Holders returns the number of contexts holding the worker.
func (s *Supervisor) Holders() int {
	return len(s.holders)
}

// Current returns the shared worker, or nil if none is running.
func (s *Supervisor) Current() *Processor {
	return s.current
}

// SetForeground updates the colour used by the running worker and by
// workers spawned later.
func (s *Supervisor) SetForeground(hex string) error {
	s.cfg.Foreground = hex
	if s.current == nil {
		return nil
	}
	return s.current.SetForeground(hex)
}

// SetScale updates the scale used by the running worker and by workers
// spawned later.
func (s *Supervisor) SetScale(scale float64) error {
	s.cfg.Scale = scale
	if s.current == nil {
		return nil
	}
	return s.current.SetScale(scale)
}

// Shutdown closes the worker regardless of holders. It returns the worker
// being closed, if any, so callers can wait on its Done channel.
func (s *Supervisor) Shutdown() *Processor {
	clear(s.holders)
	p := s.current
	s.current = nil
	if p != nil {
		s.closing = p
		p.Close()
	}
	return s.closing
}

func (s *Supervisor) handleFatal(p *Processor, err error) {
	if p == s.current {
		s.current = nil
		clear(s.holders)
	}
	if s.onFatal != nil {
		s.onFatal(err)
	}
}

func (s *Supervisor) handleExit(p *Processor) {
	if p == s.closing {
		s.closing = nil
	}
	if p == s.current {
		// Exited without a fatal report, e.g. closed directly.
		s.current = nil
		clear(s.holders)
	}
}
