package loop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// ErrStopped is returned by Run when the loop was stopped explicitly, and
// by Do when the loop is no longer accepting work.
var ErrStopped = errors.New("event loop stopped")

// ErrAlreadyRunning is returned when Run is called twice.
var ErrAlreadyRunning = errors.New("event loop already running")

// Poster schedules work on an event loop. Post must be safe to call from any
// goroutine and never blocks on the loop itself; it reports false when the
// loop no longer accepts work.
type Poster interface {
	Post(fn func()) bool
}

// Loop runs posted closures one at a time, in the order they were posted.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	done    chan struct{}
	stopped atomic.Bool
	running atomic.Bool
	logger  *zap.Logger
}

// Option configures a Loop.
type Option func(*Loop)

// WithLogger sets the logger used to report panics in posted work.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Loop) {
		l.logger = logger
	}
}

// New creates a loop. It does nothing until Run is called.
func New(opts ...Option) *Loop {
	l := &Loop{
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Post queues fn. The queue is unbounded so read goroutines never stall on
// a busy loop.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.stopped.Load() {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Do posts fn and waits until it has run. It must not be called from the
// loop goroutine.
func (l *Loop) Do(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	if !l.Post(func() { result <- fn() }) {
		return ErrStopped
	}
	select {
	case err := <-result:
		return err
	case <-l.done:
		// The closure may have run just before the loop exited.
		select {
		case err := <-result:
			return err
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes posted work until ctx is cancelled or Stop is called. Work
// that was accepted by Post is always run before Run returns.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(l.done)

	for {
		for _, fn := range l.drain() {
			l.run(fn)
		}

		if l.stopped.Load() {
			for _, fn := range l.drain() {
				l.run(fn)
			}
			return ErrStopped
		}

		select {
		case <-ctx.Done():
			l.stop()
			for _, fn := range l.drain() {
				l.run(fn)
			}
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// Stop makes Run return after the queued work has run. Post fails from now
// on.
func (l *Loop) Stop() {
	if !l.stop() {
		return
	}
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// stop closes the queue and reports whether it was open. Post checks the
// flag under the same lock, so nothing is queued after the final drain.
func (l *Loop) stop() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.stopped.Swap(true)
}

// Done is closed when Run returns.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) drain() []func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	q := l.queue
	l.queue = nil
	return q
}

// run isolates a panic in posted work so one bad callback cannot take the
// whole loop down.
func (l *Loop) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("panic in event loop callback", zap.String("panic", fmt.Sprint(r)), zap.Stack("stack"))
		}
	}()
	fn()
}
