package nvimhost

import (
	"errors"
	"fmt"

	"github.com/neovim/go-client/nvim"
	"go.uber.org/zap"

	"github.com/Thiago4532/mdmath.nvim/internal/equation"
)

// Namespace is the extmark namespace holding mdmath annotations.
const Namespace = "mdmath"

// API is the part of the Neovim client the host uses; *nvim.Nvim
// implements it.
type API interface {
	CreateNamespace(name string) (int, error)
	SetBufferExtmark(buffer nvim.Buffer, nsID int, line int, col int, opts map[string]interface{}) (int, error)
	DeleteBufferExtmark(buffer nvim.Buffer, nsID int, extmarkID int) (bool, error)
	BufferLines(buffer nvim.Buffer, start int, end int, strict bool) ([][]byte, error)
	AttachBuffer(buffer nvim.Buffer, sendBuffer bool, opts map[string]interface{}) (bool, error)
	DetachBuffer(buffer nvim.Buffer) (bool, error)
	ExecLua(code string, result interface{}, args ...interface{}) error
}

var _ API = (*nvim.Nvim)(nil)

// ErrUnknownAnnotation indicates an annotation that is not placed.
var ErrUnknownAnnotation = errors.New("unknown annotation")

// Host implements the equation host interfaces on top of a Neovim
// instance. Contexts are buffer handles.
type Host struct {
	api     API
	ns      int
	tracker *Tracker
	logger  *zap.Logger

	nextID      equation.AnnotationID
	annotations map[equation.ContextID]map[equation.AnnotationID][]int
	groups      map[string]bool
	attached    map[equation.ContextID]bool
}

// NewHost creates the mdmath namespace and returns a Host using api.
func NewHost(api API, logger *zap.Logger) (*Host, error) {
	ns, err := api.CreateNamespace(Namespace)
	if err != nil {
		return nil, fmt.Errorf("create namespace: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Host{
		api:         api,
		ns:          ns,
		tracker:     NewTracker(),
		logger:      logger,
		annotations: make(map[equation.ContextID]map[equation.AnnotationID][]int),
		groups:      make(map[string]bool),
		attached:    make(map[equation.ContextID]bool),
	}, nil
}

// Tracker returns the span tracker fed by buffer change events.
func (h *Host) Tracker() *Tracker {
	return h.tracker
}

// Attach subscribes to change events of ctx. Attaching twice is a no-op.
func (h *Host) Attach(ctx equation.ContextID) error {
	if h.attached[ctx] {
		return nil
	}
	ok, err := h.api.AttachBuffer(nvim.Buffer(ctx), false, map[string]interface{}{})
	if err != nil {
		return fmt.Errorf("attach buffer %d: %w", ctx, err)
	}
	if !ok {
		return fmt.Errorf("attach buffer %d: buffer not loaded", ctx)
	}
	h.attached[ctx] = true
	return nil
}

// Detach stops following ctx and destroys its spans. Set notify when Neovim
// has already detached the buffer itself.
func (h *Host) Detach(ctx equation.ContextID, notify bool) {
	if h.attached[ctx] && notify {
		if _, err := h.api.DetachBuffer(nvim.Buffer(ctx)); err != nil {
			h.logger.Debug("detach buffer", zap.Int("buffer", int(ctx)), zap.Error(err))
		}
	}
	delete(h.attached, ctx)
	h.tracker.Detach(ctx)
}

// Lines implements app.Buffers.
func (h *Host) Lines(ctx equation.ContextID) ([]string, error) {
	raw, err := h.api.BufferLines(nvim.Buffer(ctx), 0, -1, true)
	if err != nil {
		return nil, fmt.Errorf("read buffer %d: %w", ctx, err)
	}
	lines := make([]string, len(raw))
	for i, l := range raw {
		lines[i] = string(l)
	}
	return lines, nil
}

// Line implements equation.LineSource.
func (h *Host) Line(ctx equation.ContextID, row int) (string, error) {
	raw, err := h.api.BufferLines(nvim.Buffer(ctx), row, row+1, true)
	if err != nil {
		return "", fmt.Errorf("read line %d of buffer %d: %w", row, ctx, err)
	}
	if len(raw) != 1 {
		return "", fmt.Errorf("read line %d of buffer %d: got %d lines", row, ctx, len(raw))
	}
	return string(raw[0]), nil
}

// Track implements equation.SpanTracker. The span covers every row the
// length bytes from (row, col) reach.
func (h *Host) Track(ctx equation.ContextID, row, col, length int, onInvalidated func()) (equation.Span, error) {
	rows := 1
	remaining := length
	for r := row; ; r++ {
		line, err := h.Line(ctx, r)
		if err != nil {
			return nil, err
		}
		avail := len(line) + 1
		if r == row {
			avail -= col
		}
		if remaining <= avail {
			break
		}
		remaining -= avail
		rows++
	}
	return h.tracker.Add(ctx, row, col, rows, onInvalidated)
}

// Place implements equation.Annotator. Overlay annotations use one extmark
// per line.
func (h *Host) Place(ctx equation.ContextID, row, col int, a equation.Annotation) (equation.AnnotationID, error) {
	if err := h.defineGroup(a.Highlight); err != nil {
		return 0, err
	}

	var marks []int
	for i, chunk := range a.Lines {
		opts := map[string]interface{}{
			"virt_text": [][]interface{}{{chunk.Text, a.Highlight.Group}},
		}
		line, c := row+i, 0
		switch a.Anchor {
		case equation.AnchorEndOfLine:
			opts["virt_text_pos"] = "eol"
		default:
			opts["virt_text_pos"] = "overlay"
			opts["virt_text_hide"] = true
			if i == 0 {
				c = col
			}
		}
		id, err := h.api.SetBufferExtmark(nvim.Buffer(ctx), h.ns, line, c, opts)
		if err != nil {
			h.deleteMarks(ctx, marks)
			return 0, fmt.Errorf("place %s annotation at %d:%d: %w", a.Anchor, line, c, err)
		}
		marks = append(marks, id)
	}

	h.nextID++
	m := h.annotations[ctx]
	if m == nil {
		m = make(map[equation.AnnotationID][]int)
		h.annotations[ctx] = m
	}
	m[h.nextID] = marks
	return h.nextID, nil
}

// Remove implements equation.Annotator.
func (h *Host) Remove(ctx equation.ContextID, id equation.AnnotationID) error {
	marks, ok := h.annotations[ctx][id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownAnnotation, id)
	}
	delete(h.annotations[ctx], id)
	h.deleteMarks(ctx, marks)
	return nil
}

func (h *Host) deleteMarks(ctx equation.ContextID, marks []int) {
	for _, id := range marks {
		if _, err := h.api.DeleteBufferExtmark(nvim.Buffer(ctx), h.ns, id); err != nil {
			h.logger.Debug("delete extmark", zap.Int("buffer", int(ctx)), zap.Int("extmark", id), zap.Error(err))
		}
	}
}

const setHighlight = `vim.api.nvim_set_hl(0, select(1, ...), { fg = select(2, ...), default = false })`

// defineGroup creates highlight groups that carry their own colour.
func (h *Host) defineGroup(hl equation.Highlight) error {
	if hl.Foreground == "" || h.groups[hl.Group] {
		return nil
	}
	if err := h.api.ExecLua(setHighlight, nil, hl.Group, hl.Foreground); err != nil {
		return fmt.Errorf("define highlight %s: %w", hl.Group, err)
	}
	h.groups[hl.Group] = true
	return nil
}

const notify = `vim.notify(select(1, ...), vim.log.levels.ERROR, { title = "mdmath" })`

// Report shows err to the user as an error notification.
func (h *Host) Report(err error) {
	if nerr := h.api.ExecLua(notify, nil, "mdmath: "+err.Error()); nerr != nil {
		h.logger.Error("notify", zap.Error(nerr), zap.NamedError("reported", err))
	}
}

const chanSend = `vim.api.nvim_chan_send(vim.v.stderr, select(1, ...))`

// TerminalWriter writes escape sequences to the terminal Neovim runs in.
type TerminalWriter struct {
	api API
}

// NewTerminalWriter returns a writer sending bytes to Neovim's stderr
// channel, which is its terminal.
func NewTerminalWriter(api API) *TerminalWriter {
	return &TerminalWriter{api: api}
}

// Write implements io.Writer.
func (w *TerminalWriter) Write(p []byte) (int, error) {
	if err := w.api.ExecLua(chanSend, nil, string(p)); err != nil {
		return 0, err
	}
	return len(p), nil
}
