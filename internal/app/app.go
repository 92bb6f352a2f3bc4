// Package app coordinates rendering for every enabled context: it finds the
// equations of a buffer, keeps one session per equation and shares a single
// render worker between contexts.
//
// All methods must be called on the event loop goroutine.
package app

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/Thiago4532/mdmath.nvim/internal/config"
	"github.com/Thiago4532/mdmath.nvim/internal/equation"
	"github.com/Thiago4532/mdmath.nvim/internal/loop"
	"github.com/Thiago4532/mdmath.nvim/internal/mathscan"
	"github.com/Thiago4532/mdmath.nvim/internal/processor"
)

// ContextID identifies a buffer.
type ContextID = equation.ContextID

// Buffers reads the full text of a context.
type Buffers interface {
	Lines(ctx ContextID) ([]string, error)
}

// Host is everything the application needs from the editor.
type Host struct {
	equation.Host
	Buffers Buffers
}

// Application is the central coordinator between the editor host and the
// render worker.
type Application struct {
	host   Host
	sup    *processor.Supervisor
	opts   equation.Options
	render config.Render
	logger *zap.Logger
	report func(error)

	poster     loop.Poster
	retryDelay time.Duration
	retrying   map[ContextID]bool

	docs     map[ContextID]*Document
	shutdown bool
}

// DefaultRetryDelay is how long a refresh waits for a closing worker
// before trying again.
const DefaultRetryDelay = 50 * time.Millisecond

// Option configures an Application.
type Option func(*Application)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(a *Application) {
		a.logger = logger
	}
}

// WithReporter sets the function that shows worker failures to the user.
// It must be loud; failures it receives are not recoverable without a new
// worker.
func WithReporter(fn func(error)) Option {
	return func(a *Application) {
		a.report = fn
	}
}

// New creates an Application rendering with the worker described by cfg.
// Work from the worker is delivered through poster.
func New(cfg config.Config, host Host, poster loop.Poster, opts ...Option) *Application {
	a := &Application{
		host:   host,
		render: cfg.Render,
		logger: zap.NewNop(),
		report: func(error) {},
		poster: poster,
		docs:   make(map[ContextID]*Document),

		retryDelay: DefaultRetryDelay,
		retrying:   make(map[ContextID]bool),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.opts = equation.Options{
		CenterDisplay: cfg.Render.CenterDisplay,
		CenterInline:  cfg.Render.CenterInline,
		Logger:        a.logger.Named("equation"),
	}
	a.sup = processor.NewSupervisor(cfg.Processor(), poster,
		processor.WithSupervisorLogger(a.logger.Named("processor")),
		processor.WithFatalCallback(a.handleFatal),
		processor.WithProcessorOptions(processor.WithFailPendingOnExit(cfg.Worker.FailPendingOnExit)),
	)
	return a
}

// Enable starts rendering ctx and renders its current equations. Enabling
// an enabled context refreshes it.
func (a *Application) Enable(ctx ContextID) error {
	if a.shutdown {
		return ErrShutdown
	}
	if _, ok := a.docs[ctx]; !ok {
		a.docs[ctx] = newDocument(ctx)
		a.logger.Debug("context enabled", zap.Int("context", int(ctx)))
	}
	return a.Refresh(ctx)
}

// Disable removes every rendered equation of ctx and releases its hold on
// the worker.
func (a *Application) Disable(ctx ContextID) {
	doc, ok := a.docs[ctx]
	if !ok {
		return
	}
	doc.invalidateAll()
	delete(a.docs, ctx)
	a.sup.Release(ctx)
	a.logger.Debug("context disabled", zap.Int("context", int(ctx)))
}

// Enabled reports whether ctx is enabled.
func (a *Application) Enabled(ctx ContextID) bool {
	_, ok := a.docs[ctx]
	return ok
}

// Contexts returns the enabled contexts in ascending order.
func (a *Application) Contexts() []ContextID {
	out := make([]ContextID, 0, len(a.docs))
	for ctx := range a.docs {
		out = append(out, ctx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Sessions returns the live sessions of ctx.
func (a *Application) Sessions(ctx ContextID) []*equation.Session {
	doc, ok := a.docs[ctx]
	if !ok {
		return nil
	}
	return doc.Sessions()
}

// Refresh scans ctx for equations. Sessions whose equation is still in
// place are kept, the others are invalidated, and new equations get new
// sessions. Equations that cannot be displayed are skipped.
func (a *Application) Refresh(ctx ContextID) error {
	if a.shutdown {
		return ErrShutdown
	}
	doc, ok := a.docs[ctx]
	if !ok {
		return &OperationError{Op: "refresh", Context: int(ctx), Err: ErrNotEnabled}
	}

	p, err := a.attach(doc)
	if errors.Is(err, processor.ErrWorkerClosing) {
		a.retryLater(ctx)
		return nil
	}
	if err != nil {
		return &OperationError{Op: "refresh", Context: int(ctx), Err: err}
	}

	lines, err := a.host.Buffers.Lines(ctx)
	if err != nil {
		return &OperationError{Op: "refresh", Context: int(ctx), Err: err}
	}

	live := doc.live()
	next := make([]*equation.Session, 0, len(live))
	created := 0
	var startErr error
	for _, m := range mathscan.Scan(lines) {
		key := sessionKey{row: m.Row, col: m.Col, text: m.Text}
		if s, ok := live[key]; ok {
			delete(live, key)
			next = append(next, s)
			continue
		}

		if startErr != nil {
			// The worker refused a request; keep matching the rest.
			continue
		}
		s, err := equation.New(a.host.Host, a.opts, ctx, m.Row, m.Col, m.Text)
		if err != nil {
			a.logger.Debug("skipping equation", zap.Int("context", int(ctx)),
				zap.Int("row", m.Row), zap.Int("col", m.Col), zap.Error(err))
			continue
		}
		if err := s.Start(p); err != nil {
			s.Invalidate()
			startErr = err
			continue
		}
		next = append(next, s)
		created++
	}
	for _, s := range live {
		s.Invalidate()
	}
	doc.sessions = next
	if startErr != nil {
		return &OperationError{Op: "refresh", Context: int(ctx), Err: startErr}
	}

	a.logger.Debug("context refreshed", zap.Int("context", int(ctx)),
		zap.Int("sessions", len(next)), zap.Int("created", created))
	return nil
}

// attach makes sure doc holds the shared worker, spawning a new one after
// a failure.
func (a *Application) attach(doc *Document) (*processor.Processor, error) {
	if doc.attached {
		if p := a.sup.Current(); p != nil && a.sup.Holds(doc.ctx) {
			return p, nil
		}
	}
	p, err := a.sup.Acquire(doc.ctx)
	if err != nil {
		return nil, err
	}
	doc.attached = true
	return p, nil
}

// SetForeground changes the colour of rendered equations and re-renders
// every enabled context.
func (a *Application) SetForeground(hex string) error {
	changed, err := a.setForeground(hex)
	if err != nil || !changed {
		return err
	}
	return a.rerender()
}

// SetScale changes the render scale and re-renders every enabled context.
func (a *Application) SetScale(scale float64) error {
	changed, err := a.setScale(scale)
	if err != nil || !changed {
		return err
	}
	return a.rerender()
}

// ApplyConfig applies the render settings of a reloaded configuration and
// re-renders once if any of them changed. Worker settings take effect the
// next time a worker is spawned.
func (a *Application) ApplyConfig(cfg config.Config) error {
	changed := cfg.Render.CenterDisplay != a.opts.CenterDisplay || cfg.Render.CenterInline != a.opts.CenterInline
	a.opts.CenterDisplay = cfg.Render.CenterDisplay
	a.opts.CenterInline = cfg.Render.CenterInline

	fg, err := a.setForeground(cfg.Render.Foreground)
	if err != nil {
		return err
	}
	scale, err := a.setScale(cfg.Render.Scale)
	if err != nil {
		return err
	}
	if !changed && !fg && !scale {
		return nil
	}
	return a.rerender()
}

func (a *Application) setForeground(hex string) (bool, error) {
	if a.render.Foreground == hex {
		return false, nil
	}
	if err := a.sup.SetForeground(hex); err != nil && !errors.Is(err, processor.ErrClosed) {
		return false, fmt.Errorf("set foreground: %w", err)
	}
	a.render.Foreground = hex
	return true, nil
}

func (a *Application) setScale(scale float64) (bool, error) {
	if scale <= 0 {
		return false, fmt.Errorf("set scale: %v is not positive", scale)
	}
	if a.render.Scale == scale {
		return false, nil
	}
	if err := a.sup.SetScale(scale); err != nil && !errors.Is(err, processor.ErrClosed) {
		return false, fmt.Errorf("set scale: %w", err)
	}
	a.render.Scale = scale
	return true, nil
}

// rerender drops every session and renders all contexts again.
func (a *Application) rerender() error {
	var errs []error
	for _, ctx := range a.Contexts() {
		a.docs[ctx].invalidateAll()
		if err := a.Refresh(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// retryLater refreshes ctx again once the previous worker had time to
// exit.
func (a *Application) retryLater(ctx ContextID) {
	if a.retrying[ctx] {
		return
	}
	a.retrying[ctx] = true
	a.logger.Debug("previous worker still closing, retrying", zap.Int("context", int(ctx)))
	time.AfterFunc(a.retryDelay, func() {
		a.poster.Post(func() {
			delete(a.retrying, ctx)
			if _, ok := a.docs[ctx]; !ok || a.shutdown {
				return
			}
			if err := a.Refresh(ctx); err != nil {
				a.logger.Warn("retry refresh", zap.Int("context", int(ctx)), zap.Error(err))
			}
		})
	})
}

// Shutdown disables every context and closes the worker. The returned
// processor, if any, is the one being closed.
func (a *Application) Shutdown() *processor.Processor {
	for _, ctx := range a.Contexts() {
		a.docs[ctx].invalidateAll()
		delete(a.docs, ctx)
	}
	a.shutdown = true
	return a.sup.Shutdown()
}

// handleFatal runs after the supervisor has forgotten the failed worker.
// Sessions waiting on it will never be answered and are dropped; displayed
// equations stay. Every document is detached so the next Refresh spawns a
// new worker.
func (a *Application) handleFatal(err error) {
	a.logger.Error("render worker failed", zap.Error(err))
	for _, ctx := range a.Contexts() {
		doc := a.docs[ctx]
		dropped := doc.dropPending()
		doc.attached = false
		a.logger.Debug("context detached", zap.Int("context", int(ctx)), zap.Int("dropped", dropped))
	}
	a.report(err)
}
