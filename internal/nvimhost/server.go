package nvimhost

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/neovim/go-client/nvim"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Thiago4532/mdmath.nvim/internal/app"
	"github.com/Thiago4532/mdmath.nvim/internal/config"
	"github.com/Thiago4532/mdmath.nvim/internal/equation"
	"github.com/Thiago4532/mdmath.nvim/internal/kitty"
	"github.com/Thiago4532/mdmath.nvim/internal/loop"
	"github.com/Thiago4532/mdmath.nvim/internal/processor"
	"github.com/Thiago4532/mdmath.nvim/internal/termsize"
)

// Notification methods handled by the host.
const (
	MethodEnable        = "mdmath.enable"
	MethodDisable       = "mdmath.disable"
	MethodRefresh       = "mdmath.refresh"
	MethodSetForeground = "mdmath.set_foreground"
	MethodSetScale      = "mdmath.set_scale"

	methodLinesEvent  = "nvim_buf_lines_event"
	methodDetachEvent = "nvim_buf_detach_event"
)

// DefaultRefreshDelay is how long the host waits after the last edit of a
// buffer before scanning it again.
const DefaultRefreshDelay = 150 * time.Millisecond

// Handlers turns Neovim notifications into work on the event loop.
type Handlers struct {
	host   *Host
	app    *app.Application
	poster loop.Poster
	logger *zap.Logger

	refreshDelay time.Duration
	// timers is owned by the loop goroutine.
	timers map[equation.ContextID]*time.Timer
}

// NewHandlers creates the notification handlers for a and host.
func NewHandlers(host *Host, a *app.Application, poster loop.Poster, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		host:         host,
		app:          a,
		poster:       poster,
		logger:       logger,
		refreshDelay: DefaultRefreshDelay,
		timers:       make(map[equation.ContextID]*time.Timer),
	}
}

// Register installs the handlers on v.
func (h *Handlers) Register(v *nvim.Nvim) error {
	handlers := map[string]interface{}{
		MethodEnable:        h.Enable,
		MethodDisable:       h.Disable,
		MethodRefresh:       h.Refresh,
		MethodSetForeground: h.SetForeground,
		MethodSetScale:      h.SetScale,
		methodLinesEvent:    h.LinesEvent,
		methodDetachEvent:   h.DetachEvent,
	}
	for method, fn := range handlers {
		if err := v.RegisterHandler(method, fn); err != nil {
			return fmt.Errorf("register %s: %w", method, err)
		}
	}
	return nil
}

func (h *Handlers) post(fn func()) {
	if !h.poster.Post(fn) {
		h.logger.Debug("notification dropped after shutdown")
	}
}

// report logs err and shows it to the user.
func (h *Handlers) report(op string, err error) {
	if err == nil {
		return
	}
	h.logger.Warn(op, zap.Error(err))
	h.host.Report(err)
}

// Enable handles mdmath.enable.
func (h *Handlers) Enable(buf int) {
	ctx := equation.ContextID(buf)
	h.post(func() {
		if err := h.host.Attach(ctx); err != nil {
			h.report("enable", err)
			return
		}
		h.report("enable", h.app.Enable(ctx))
	})
}

// Disable handles mdmath.disable.
func (h *Handlers) Disable(buf int) {
	ctx := equation.ContextID(buf)
	h.post(func() {
		h.stopTimer(ctx)
		h.app.Disable(ctx)
		h.host.Detach(ctx, true)
	})
}

// Refresh handles mdmath.refresh.
func (h *Handlers) Refresh(buf int) {
	ctx := equation.ContextID(buf)
	h.post(func() {
		h.stopTimer(ctx)
		if !h.app.Enabled(ctx) {
			return
		}
		h.report("refresh", h.app.Refresh(ctx))
	})
}

// SetForeground handles mdmath.set_foreground.
func (h *Handlers) SetForeground(hex string) {
	h.post(func() {
		h.report("set foreground", h.app.SetForeground(hex))
	})
}

// SetScale handles mdmath.set_scale.
func (h *Handlers) SetScale(scale float64) {
	h.post(func() {
		h.report("set scale", h.app.SetScale(scale))
	})
}

// LinesEvent handles nvim_buf_lines_event. Spans are moved or destroyed
// immediately; the buffer is scanned again once edits stop.
func (h *Handlers) LinesEvent(buf nvim.Buffer, tick interface{}, first, last int, lines []string, more bool) {
	ctx := equation.ContextID(buf)
	h.post(func() {
		h.host.Tracker().Lines(ctx, first, last, len(lines))
		if h.app.Enabled(ctx) {
			h.scheduleRefresh(ctx)
		}
	})
}

// DetachEvent handles nvim_buf_detach_event, sent when a buffer is unloaded.
func (h *Handlers) DetachEvent(buf nvim.Buffer) {
	ctx := equation.ContextID(buf)
	h.post(func() {
		h.stopTimer(ctx)
		h.app.Disable(ctx)
		h.host.Detach(ctx, false)
	})
}

func (h *Handlers) scheduleRefresh(ctx equation.ContextID) {
	if t, ok := h.timers[ctx]; ok {
		t.Reset(h.refreshDelay)
		return
	}
	var t *time.Timer
	t = time.AfterFunc(h.refreshDelay, func() {
		h.post(func() {
			if h.timers[ctx] != t {
				return
			}
			delete(h.timers, ctx)
			if !h.app.Enabled(ctx) {
				return
			}
			if err := h.app.Refresh(ctx); err != nil {
				h.logger.Warn("refresh after edit", zap.Int("buffer", int(ctx)), zap.Error(err))
			}
		})
	})
	h.timers[ctx] = t
}

func (h *Handlers) stopTimer(ctx equation.ContextID) {
	if t, ok := h.timers[ctx]; ok {
		t.Stop()
		delete(h.timers, ctx)
	}
}

func (h *Handlers) stopTimers() {
	for ctx := range h.timers {
		h.stopTimer(ctx)
	}
}

// Options configures Serve.
type Options struct {
	Config     config.Config
	ConfigPath string
	Logger     *zap.Logger
	// In and Out carry the msgpack-rpc stream, normally stdin and stdout.
	In  io.Reader
	Out io.WriteCloser
}

// Serve runs the RPC host until Neovim closes the channel or ctx is
// cancelled.
func Serve(ctx context.Context, opts Options) error {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	rpcLog := logger.Named("rpc").Sugar()
	v, err := nvim.New(opts.In, opts.Out, opts.Out, rpcLog.Debugf)
	if err != nil {
		return fmt.Errorf("connect to neovim: %w", err)
	}

	// Handlers only post to the loop, which does not run before everything
	// they use is in place, so they can be registered first and catch
	// notifications sent right after startup.
	l := loop.New(loop.WithLogger(logger.Named("loop")))
	handlers := NewHandlers(nil, nil, l, logger.Named("handlers"))
	if err := handlers.Register(v); err != nil {
		v.Close()
		return err
	}

	served := make(chan error, 1)
	go func() { served <- v.Serve() }()

	host, err := NewHost(v, logger.Named("host"))
	if err != nil {
		v.Close()
		<-served
		return err
	}
	cfg := opts.Config
	eq := equation.Host{
		Spans:       host,
		Surfaces:    kitty.NewFactory(NewTerminalWriter(v), kitty.WithLogger(logger.Named("kitty"))),
		Annotations: host,
		Metrics:     termsize.New(termsize.WithFallback(cfg.Display.CellWidth, cfg.Display.CellHeight)),
		Lines:       host,
	}
	a := app.New(cfg, app.Host{Host: eq, Buffers: host}, l,
		app.WithLogger(logger),
		app.WithReporter(host.Report),
	)
	handlers.host = host
	handlers.app = a

	if opts.ConfigPath != "" {
		w, err := config.Watch(opts.ConfigPath, func(next config.Config, err error) {
			l.Post(func() {
				if err != nil {
					handlers.report("reload config", err)
					return
				}
				handlers.report("reload config", a.ApplyConfig(next))
			})
		}, config.WithWatchLogger(logger.Named("config")))
		if err != nil {
			logger.Warn("config not watched", zap.Error(err))
		} else {
			defer w.Close()
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Stopped by shutdown, after the worker has been closed.
		if err := l.Run(context.Background()); !errors.Is(err, loop.ErrStopped) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		defer shutdown(l, a, handlers, 2*time.Duration(cfg.Worker.CloseTimeout), logger)
		select {
		case err := <-served:
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		case <-gctx.Done():
			v.Close()
			<-served
			return nil
		}
	})
	return g.Wait()
}

// shutdown closes the worker on the loop, waits for it to exit and stops
// the loop.
func shutdown(l *loop.Loop, a *app.Application, handlers *Handlers, wait time.Duration, logger *zap.Logger) {
	defer l.Stop()
	var closing *processor.Processor
	err := l.Do(context.Background(), func() error {
		handlers.stopTimers()
		closing = a.Shutdown()
		return nil
	})
	if err != nil || closing == nil {
		return
	}
	select {
	case <-closing.Done():
	case <-time.After(wait):
		logger.Warn("render worker did not exit")
	}
}
