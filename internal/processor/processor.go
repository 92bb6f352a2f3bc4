package processor

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Thiago4532/mdmath.nvim/internal/loop"
	"github.com/Thiago4532/mdmath.nvim/internal/protocol"
)

// State is the lifecycle state of a Processor.
type State int

const (
	StateRunning State = iota
	StateClosing
	StateClosed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Processor is a handle on one running worker process.
type Processor struct {
	id        string
	cfg       Config
	poster    loop.Poster
	transport *transport
	registry  *Registry
	logger    *zap.Logger

	// diag accumulates the worker's stderr, unbounded.
	diag bytes.Buffer

	state          State
	nextID         uint64
	closeRequested bool
	killed         bool
	fatalReported  bool
	closeTimer     *time.Timer

	failPending bool
	onFatal     func(*Processor, error)
	onExit      func(*Processor)

	done chan struct{}
}

// Spawn starts the worker described by cfg, starts its read goroutines and
// sends the initial foreground colour and scale. Work produced by the read
// goroutines is delivered through poster. Spawn must be called on the event
// loop goroutine. On failure no process is left running and the error is a
// *SpawnError.
func Spawn(cfg Config, poster loop.Poster, opts ...Option) (*Processor, error) {
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = DefaultCloseTimeout
	}

	p := &Processor{
		id:     uuid.NewString(),
		cfg:    cfg,
		poster: poster,
		logger: zap.NewNop(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(zap.String("worker_id", p.id))
	p.registry = NewRegistry(p.logger)

	t, err := startTransport(cfg)
	if err != nil {
		return nil, &SpawnError{Command: cfg.Command, Err: err}
	}
	p.transport = t
	p.state = StateRunning
	p.startReaders()

	if err := p.initialize(); err != nil {
		// Nobody owns this processor yet, so its exit must stay silent.
		p.state = StateClosed
		p.fatalReported = true
		p.transport.kill()
		return nil, &SpawnError{Command: cfg.Command, Err: err}
	}

	p.logger.Info("worker started",
		zap.String("command", cfg.Command),
		zap.Int("pid", t.pid()))
	return p, nil
}

// initialize sends the control commands every fresh worker needs.
func (p *Processor) initialize() error {
	if err := p.transport.write(protocol.EncodeForeground(p.cfg.Foreground)); err != nil {
		return fmt.Errorf("send foreground: %w", err)
	}
	if err := p.transport.write(protocol.EncodeScale(p.cfg.Scale)); err != nil {
		return fmt.Errorf("send scale: %w", err)
	}
	return nil
}

// startReaders starts the response and diagnostic read goroutines and the
// goroutine that reaps the process once both pipes are drained.
func (p *Processor) startReaders() {
	var g errgroup.Group
	scanner := protocol.NewScanner()

	g.Go(func() error {
		return readChunks(p.transport.stdout, func(chunk []byte) {
			if scanner.Err() != nil {
				// Desynchronized; keep draining so the process can exit.
				return
			}
			frames, err := scanner.Feed(chunk)
			if len(frames) > 0 {
				p.poster.Post(func() { p.deliver(frames) })
			}
			if err != nil {
				p.poster.Post(func() { p.desync(err) })
			}
		})
	})

	g.Go(func() error {
		return readChunks(p.transport.stderr, func(chunk []byte) {
			data := bytes.Clone(chunk)
			p.poster.Post(func() { p.diag.Write(data) })
		})
	})

	go func() {
		// exec requires every read to finish before Wait.
		readErr := g.Wait()
		waitErr := p.transport.cmd.Wait()
		state := p.transport.cmd.ProcessState
		if !p.poster.Post(func() { p.handleExit(state, waitErr, readErr) }) {
			close(p.done)
		}
	}()
}

// ID returns the unique identifier of this worker instance.
func (p *Processor) ID() string {
	return p.id
}

// State returns the lifecycle state.
func (p *Processor) State() State {
	return p.state
}

// Diagnostics returns everything the worker has written to stderr so far.
func (p *Processor) Diagnostics() string {
	return p.diag.String()
}

// Outstanding returns the number of requests waiting for a response.
func (p *Processor) Outstanding() int {
	return p.registry.Len()
}

// Done is closed once the worker process has exited and its exit has been
// handled.
func (p *Processor) Done() <-chan struct{} {
	return p.done
}

// Request sends a render request and registers k to receive its result. It
// returns the identifier assigned to the request. Request never waits for
// the reply.
func (p *Processor) Request(width, height int, center bool, text string, k Continuation) (string, error) {
	if p.state != StateRunning {
		return "", ErrClosed
	}

	p.nextID++
	id := strconv.FormatUint(p.nextID, 10)
	if err := p.registry.Register(id, k); err != nil {
		return "", err
	}

	frame := protocol.EncodeRequest(id, width, height, center, []byte(text))
	if err := p.transport.write(frame); err != nil {
		p.registry.Remove(id)
		return "", fmt.Errorf("request %s: %w", id, err)
	}

	p.logger.Debug("request sent",
		zap.String("request_id", id),
		zap.Int("width", width),
		zap.Int("height", height),
		zap.Bool("center", center))
	return id, nil
}

// SetForeground changes the foreground colour for subsequent renders.
func (p *Processor) SetForeground(hex string) error {
	if p.state != StateRunning {
		return ErrClosed
	}
	p.cfg.Foreground = hex
	return p.transport.write(protocol.EncodeForeground(hex))
}

// SetScale changes the render scale for subsequent renders.
func (p *Processor) SetScale(scale float64) error {
	if p.state != StateRunning {
		return ErrClosed
	}
	p.cfg.Scale = scale
	return p.transport.write(protocol.EncodeScale(scale))
}

// Close asks the worker to exit by closing its command pipe. Responses to
// requests already sent are still delivered while the worker drains. If the
// worker has not exited after Config.CloseTimeout it is killed.
func (p *Processor) Close() {
	if p.state != StateRunning {
		return
	}
	p.state = StateClosing
	p.closeRequested = true

	if err := p.transport.closeInput(); err != nil {
		p.logger.Warn("close command pipe", zap.Error(err))
	}

	p.closeTimer = time.AfterFunc(p.cfg.CloseTimeout, func() {
		p.poster.Post(func() {
			if p.state != StateClosing {
				return
			}
			p.logger.Warn("worker did not exit in time, killing it",
				zap.Duration("timeout", p.cfg.CloseTimeout))
			p.killed = true
			p.transport.kill()
		})
	})
}

// deliver routes decoded frames to their continuations.
func (p *Processor) deliver(frames []protocol.Frame) {
	for _, f := range frames {
		if p.state == StateClosed {
			p.logger.Debug("dropping response after close", zap.String("request_id", f.ID))
			continue
		}
		p.registry.Resolve(f)
	}
}

// desync handles a malformed response stream: the protocol can no longer be
// trusted, so the worker is torn down.
func (p *Processor) desync(err error) {
	if p.state == StateClosed {
		return
	}
	p.state = StateClosed
	p.transport.kill()
	p.reportFatal(err)
}

// handleExit runs on the loop after the process has been reaped.
func (p *Processor) handleExit(state *os.ProcessState, waitErr, readErr error) {
	defer func() {
		close(p.done)
		if p.onExit != nil {
			p.onExit(p)
		}
	}()

	if p.closeTimer != nil {
		p.closeTimer.Stop()
	}
	_ = p.transport.closeInput()
	if readErr != nil {
		p.logger.Warn("worker pipe read failed", zap.Error(readErr))
	}

	if p.state == StateClosed {
		p.logger.Debug("worker exited after failure")
		return
	}

	clean := state != nil && state.Success()
	p.state = StateClosed

	switch {
	case p.closeRequested && (clean || p.killed):
		p.logger.Info("worker closed", zap.Int("dropped", p.registry.Len()))
		if p.failPending {
			p.registry.Fail(ErrTerminated)
		} else {
			p.registry.Reset()
		}
	case clean:
		p.reportFatal(ErrClosedUnexpectedly)
	default:
		p.reportFatal(p.crashError(state, waitErr))
	}
}

func (p *Processor) crashError(state *os.ProcessState, waitErr error) *CrashError {
	ce := &CrashError{
		ExitCode:    -1,
		Diagnostics: p.diag.String(),
		Err:         waitErr,
	}
	if state != nil {
		ce.ExitCode = state.ExitCode()
		if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			ce.Signal = ws.Signal().String()
		}
	}
	return ce
}

// reportFatal surfaces err once. Outstanding requests stay pending unless
// failPending is set.
func (p *Processor) reportFatal(err error) {
	if p.fatalReported {
		return
	}
	p.fatalReported = true

	p.logger.Error("worker failed",
		zap.Error(err),
		zap.Int("outstanding", p.registry.Len()))

	if p.failPending {
		p.registry.Fail(fmt.Errorf("%w: %v", ErrTerminated, err))
	}
	if p.onFatal != nil {
		p.onFatal(p, err)
	}
}
