package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thiago4532/mdmath.nvim/internal/app"
	"github.com/Thiago4532/mdmath.nvim/internal/equation"
	"github.com/Thiago4532/mdmath.nvim/internal/kitty"
	"github.com/Thiago4532/mdmath.nvim/internal/logging"
	"github.com/Thiago4532/mdmath.nvim/internal/loop"
	"github.com/Thiago4532/mdmath.nvim/internal/memhost"
	"github.com/Thiago4532/mdmath.nvim/internal/termsize"
)

// document is the context id of the rendered file.
const document equation.ContextID = 1

type renderOptions struct {
	kitty   bool
	timeout time.Duration
}

func newRenderCmd(opts *rootOptions) *cobra.Command {
	ropts := renderOptions{}
	cmd := &cobra.Command{
		Use:   "render FILE",
		Short: "Render the equations of a Markdown file",
		Long: `Renders every equation of FILE with the configured worker and prints one
line per equation: its position and the image, or the render error.

With --kitty the images are also drawn below each line using kitty's
unicode placeholders.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(cmd, opts, ropts, args[0])
		},
	}
	cmd.Flags().BoolVar(&ropts.kitty, "kitty", false, "Draw images with the kitty graphics protocol")
	cmd.Flags().DurationVar(&ropts.timeout, "timeout", 30*time.Second, "Give up when rendering takes longer")
	return cmd
}

func runRender(cmd *cobra.Command, opts *rootOptions, ropts renderOptions, path string) error {
	cfg, _, err := opts.load()
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log, "stderr")
	if err != nil {
		return err
	}
	defer logger.Sync()

	src, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	mh := memhost.New()
	eq := mh.Equation()
	eq.Metrics = termsize.New(termsize.WithFallback(cfg.Display.CellWidth, cfg.Display.CellHeight))
	term := &gate{w: out}
	if ropts.kitty {
		eq.Surfaces = kitty.NewFactory(term, kitty.WithLogger(logger.Named("kitty")))
	}

	l := loop.New(loop.WithLogger(logger.Named("loop")))
	fatal := make(chan error, 1)
	a := app.New(cfg, app.Host{Host: eq, Buffers: mh}, l,
		app.WithLogger(logger),
		app.WithReporter(func(err error) {
			select {
			case fatal <- err:
			default:
			}
		}),
	)
	go l.Run(context.Background())
	defer closeRenderer(l, a, 2*time.Duration(cfg.Worker.CloseTimeout), logger)

	ctx, cancel := context.WithTimeout(cmd.Context(), ropts.timeout)
	defer cancel()

	err = l.Do(ctx, func() error {
		mh.Open(document, string(src))
		return a.Enable(document)
	})
	if err != nil {
		return err
	}
	if err := waitRendered(ctx, l, a, fatal); err != nil {
		return fmt.Errorf("render %s: %w", path, err)
	}

	var failed, total int
	err = l.Do(ctx, func() error {
		sessions := a.Sessions(document)
		total = len(sessions)
		for _, s := range sessions {
			if !report(out, path, s, mh, ropts.kitty) {
				failed++
			}
		}
		return nil
	})
	// Images stay on screen after exit.
	term.close()
	if err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d equations failed", failed, total)
	}
	return nil
}

// waitRendered polls until no session of the document is pending.
func waitRendered(ctx context.Context, l *loop.Loop, a *app.Application, fatal <-chan error) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		pending := false
		err := l.Do(ctx, func() error {
			for _, s := range a.Sessions(document) {
				if s.State() == equation.StatePending {
					pending = true
				}
			}
			return nil
		})
		if err != nil {
			return err
		}

		select {
		case err := <-fatal:
			return err
		default:
		}
		if !pending {
			return nil
		}

		select {
		case err := <-fatal:
			return err
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// report prints the outcome of s and tells whether it rendered.
func report(w io.Writer, path string, s *equation.Session, mh *memhost.Host, draw bool) bool {
	row, col, ok := s.Position()
	if !ok {
		return false
	}
	pos := fmt.Sprintf("%s:%d:%d", path, row+1, col+1)

	switch s.State() {
	case equation.StateRendered:
		res := s.Result()
		fmt.Fprintf(w, "%s: %s (%dx%d)\n", pos, res.Locator, res.Width, res.Height)
		if draw {
			drawPlacement(w, mh, row, col)
		}
		return true
	case equation.StateErrored:
		fmt.Fprintf(w, "%s: error: %v\n", pos, s.Err())
	default:
		fmt.Fprintf(w, "%s: %s\n", pos, s.State())
	}
	return false
}

// drawPlacement prints the overlay at (row, col), coloured the way its
// highlight asks.
func drawPlacement(w io.Writer, mh *memhost.Host, row, col int) {
	for _, p := range mh.Placements(document) {
		if p.Row != row || p.Col != col || p.Annotation.Anchor != equation.AnchorOverlay {
			continue
		}
		fg := foreground(p.Annotation.Highlight.Foreground)
		for _, line := range p.Annotation.Lines {
			fmt.Fprintf(w, "%s%s\x1b[39m\n", fg, line.Text)
		}
		return
	}
}

// foreground returns the SGR sequence selecting the #rrggbb colour hex.
func foreground(hex string) string {
	if len(hex) != 7 || hex[0] != '#' {
		return ""
	}
	v, err := strconv.ParseUint(hex[1:], 16, 32)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("\x1b[38;2;%d;%d;%dm", v>>16&0xff, v>>8&0xff, v&0xff)
}

// closeRenderer shuts the application down and waits for the worker.
func closeRenderer(l *loop.Loop, a *app.Application, wait time.Duration, logger *zap.Logger) {
	defer func() {
		l.Stop()
		<-l.Done()
	}()
	var done <-chan struct{}
	_ = l.Do(context.Background(), func() error {
		if p := a.Shutdown(); p != nil {
			done = p.Done()
		}
		return nil
	})
	if done == nil {
		return
	}
	select {
	case <-done:
	case <-time.After(wait):
		logger.Warn("render worker did not exit")
	}
}

// gate forwards writes until it is closed and drops them afterwards.
type gate struct {
	mu     sync.Mutex
	w      io.Writer
	closed bool
}

func (g *gate) Write(p []byte) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return len(p), nil
	}
	return g.w.Write(p)
}

func (g *gate) close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
}
