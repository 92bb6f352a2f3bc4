package nvimhost

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/neovim/go-client/nvim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Thiago4532/mdmath.nvim/internal/app"
	"github.com/Thiago4532/mdmath.nvim/internal/config"
	"github.com/Thiago4532/mdmath.nvim/internal/equation"
	"github.com/Thiago4532/mdmath.nvim/internal/loop"
)

type extmark struct {
	buf       nvim.Buffer
	line, col int
	opts      map[string]interface{}
}

type luaCall struct {
	code string
	args []interface{}
}

// fakeAPI is an in-memory Neovim.
type fakeAPI struct {
	mu       sync.Mutex
	lines    map[nvim.Buffer][]string
	marks    map[int]extmark
	nextMark int
	failMark int
	lua      []luaCall
	attached map[nvim.Buffer]bool
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		lines:    make(map[nvim.Buffer][]string),
		marks:    make(map[int]extmark),
		attached: make(map[nvim.Buffer]bool),
		failMark: -1,
	}
}

func (f *fakeAPI) CreateNamespace(name string) (int, error) {
	return 7, nil
}

func (f *fakeAPI) SetBufferExtmark(buf nvim.Buffer, ns, line, col int, opts map[string]interface{}) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ns != 7 {
		return 0, fmt.Errorf("namespace %d", ns)
	}
	if f.failMark == 0 {
		return 0, errors.New("extmark out of range")
	}
	f.failMark--
	f.nextMark++
	f.marks[f.nextMark] = extmark{buf: buf, line: line, col: col, opts: opts}
	return f.nextMark, nil
}

func (f *fakeAPI) DeleteBufferExtmark(buf nvim.Buffer, ns, id int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.marks[id]
	delete(f.marks, id)
	return ok, nil
}

func (f *fakeAPI) BufferLines(buf nvim.Buffer, start, end int, strict bool) ([][]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lines, ok := f.lines[buf]
	if !ok {
		return nil, fmt.Errorf("invalid buffer id: %d", buf)
	}
	if end < 0 {
		end = len(lines) + end + 1
	}
	if start < 0 || start > end || end > len(lines) {
		return nil, errors.New("index out of bounds")
	}
	out := make([][]byte, 0, end-start)
	for _, l := range lines[start:end] {
		out = append(out, []byte(l))
	}
	return out, nil
}

func (f *fakeAPI) AttachBuffer(buf nvim.Buffer, sendBuffer bool, opts map[string]interface{}) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.lines[buf]; !ok {
		return false, nil
	}
	f.attached[buf] = true
	return true, nil
}

func (f *fakeAPI) DetachBuffer(buf nvim.Buffer) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.attached, buf)
	return true, nil
}

func (f *fakeAPI) ExecLua(code string, result interface{}, args ...interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lua = append(f.lua, luaCall{code: code, args: args})
	return nil
}

func (f *fakeAPI) luaCalls(code string) []luaCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []luaCall
	for _, c := range f.lua {
		if c.code == code {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeAPI) isAttached(buf nvim.Buffer) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attached[buf]
}

func newHost(t *testing.T, api *fakeAPI) *Host {
	t.Helper()
	h, err := NewHost(api, zaptest.NewLogger(t))
	require.NoError(t, err)
	return h
}

func TestTracker_Lines(t *testing.T) {
	tests := []struct {
		name               string
		row, rows          int
		first, last, count int
		wantRow            int
		wantLive           bool
	}{
		{name: "insert above", row: 5, rows: 1, first: 2, last: 2, count: 3, wantRow: 8, wantLive: true},
		{name: "delete above", row: 5, rows: 2, first: 0, last: 3, count: 0, wantRow: 2, wantLive: true},
		{name: "change below", row: 5, rows: 2, first: 7, last: 8, count: 1, wantRow: 5, wantLive: true},
		{name: "insert right after", row: 5, rows: 2, first: 7, last: 7, count: 4, wantRow: 5, wantLive: true},
		{name: "insert at start", row: 5, rows: 1, first: 5, last: 5, count: 1, wantRow: 6, wantLive: true},
		{name: "edit first row", row: 5, rows: 3, first: 5, last: 6, count: 1},
		{name: "edit last row", row: 5, rows: 3, first: 7, last: 8, count: 1},
		{name: "insert inside", row: 5, rows: 3, first: 6, last: 6, count: 1},
		{name: "delete around", row: 5, rows: 1, first: 4, last: 7, count: 0},
		{name: "whole buffer", row: 5, rows: 1, first: 0, last: -1, count: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTracker()
			fired := 0
			s, err := tr.Add(1, tt.row, 3, tt.rows, func() { fired++ })
			require.NoError(t, err)

			tr.Lines(1, tt.first, tt.last, tt.count)
			row, col, ok := s.Position()
			assert.Equal(t, tt.wantLive, ok)
			if tt.wantLive {
				assert.Equal(t, tt.wantRow, row)
				assert.Equal(t, 3, col)
				assert.Zero(t, fired)
				assert.Equal(t, 1, tr.Len(1))
			} else {
				assert.Equal(t, 1, fired)
				assert.Zero(t, tr.Len(1))
			}
		})
	}
}

func TestTracker_CancelAndDetach(t *testing.T) {
	tr := NewTracker()
	fired := 0
	a, err := tr.Add(1, 0, 0, 1, func() { fired++ })
	require.NoError(t, err)
	_, err = tr.Add(1, 2, 0, 1, func() { fired++ })
	require.NoError(t, err)
	_, err = tr.Add(2, 0, 0, 1, func() { fired++ })
	require.NoError(t, err)

	a.Cancel()
	a.Cancel()
	_, _, ok := a.Position()
	assert.False(t, ok)
	assert.Equal(t, 1, tr.Len(1))
	assert.Zero(t, fired, "cancel does not fire the callback")

	tr.Detach(1)
	assert.Equal(t, 1, fired)
	assert.Zero(t, tr.Len(1))
	assert.Equal(t, 1, tr.Len(2))

	_, err = tr.Add(1, -1, 0, 1, nil)
	assert.Error(t, err)
	_, err = tr.Add(1, 0, 0, 0, nil)
	assert.Error(t, err)
}

func TestHost_Track(t *testing.T) {
	api := newFakeAPI()
	api.lines[1] = []string{"a $x$", "b $$", "x^2", "$$ c"}
	h := newHost(t, api)

	inline, err := h.Track(1, 0, 2, 3, nil)
	require.NoError(t, err)
	display, err := h.Track(1, 1, 2, len("$$\nx^2\n$$"), nil)
	require.NoError(t, err)

	// An edit of the middle row only touches the display equation.
	h.Tracker().Lines(1, 2, 3, 1)
	_, _, ok := inline.Position()
	assert.True(t, ok)
	_, _, ok = display.Position()
	assert.False(t, ok)

	_, err = h.Track(1, 3, 0, 100, nil)
	assert.Error(t, err, "span past the end of the buffer")
	_, err = h.Track(9, 0, 0, 1, nil)
	assert.Error(t, err)
}

func TestHost_PlaceAndRemove(t *testing.T) {
	api := newFakeAPI()
	api.lines[1] = []string{"", "", "", "", "", ""}
	h := newHost(t, api)

	hl := equation.Highlight{Group: "MdmathImage1", Foreground: "#000001"}
	overlay := equation.Annotation{
		Lines:     []equation.Chunk{{Text: "ab", Width: 2}, {Text: "cd", Width: 2}},
		Highlight: hl,
		Anchor:    equation.AnchorOverlay,
	}
	id, err := h.Place(1, 3, 4, overlay)
	require.NoError(t, err)
	_, err = h.Place(1, 0, 0, equation.Annotation{Lines: overlay.Lines[:1], Highlight: hl})
	require.NoError(t, err)
	assert.Len(t, api.luaCalls(setHighlight), 1, "highlight group is defined once")
	assert.Equal(t, []interface{}{"MdmathImage1", "#000001"}, api.luaCalls(setHighlight)[0].args)

	require.Len(t, api.marks, 3)
	assert.Equal(t, 3, api.marks[1].line)
	assert.Equal(t, 4, api.marks[1].col)
	assert.Equal(t, "overlay", api.marks[1].opts["virt_text_pos"])
	assert.Equal(t, [][]interface{}{{"ab", "MdmathImage1"}}, api.marks[1].opts["virt_text"])
	assert.Equal(t, 4, api.marks[2].line)
	assert.Equal(t, 0, api.marks[2].col, "continuation rows start at column 0")

	eol, err := h.Place(1, 5, 0, equation.Annotation{
		Lines:     []equation.Chunk{{Text: " Missing $", Width: 10}},
		Highlight: equation.ErrorHighlight,
		Anchor:    equation.AnchorEndOfLine,
	})
	require.NoError(t, err)
	assert.Equal(t, "eol", api.marks[4].opts["virt_text_pos"])
	assert.Len(t, api.luaCalls(setHighlight), 1, "groups without a colour are not defined")

	require.NoError(t, h.Remove(1, id))
	assert.Len(t, api.marks, 2)
	assert.ErrorIs(t, h.Remove(1, id), ErrUnknownAnnotation)
	assert.ErrorIs(t, h.Remove(2, eol), ErrUnknownAnnotation)
	require.NoError(t, h.Remove(1, eol))
	assert.Len(t, api.marks, 1)
}

func TestHost_PlaceFailureRemovesPartialMarks(t *testing.T) {
	api := newFakeAPI()
	api.failMark = 1
	h := newHost(t, api)

	_, err := h.Place(1, 0, 0, equation.Annotation{
		Lines:     []equation.Chunk{{Text: "a"}, {Text: "b"}},
		Highlight: equation.Highlight{Group: "X"},
	})
	assert.ErrorContains(t, err, "extmark out of range")
	assert.Empty(t, api.marks)
}

func TestHost_LinesAndAttach(t *testing.T) {
	api := newFakeAPI()
	api.lines[1] = []string{"one", "two"}
	h := newHost(t, api)

	lines, err := h.Lines(1)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, lines)
	line, err := h.Line(1, 1)
	require.NoError(t, err)
	assert.Equal(t, "two", line)
	_, err = h.Line(1, 2)
	assert.Error(t, err)

	require.NoError(t, h.Attach(1))
	require.NoError(t, h.Attach(1))
	assert.True(t, api.isAttached(1))
	assert.Error(t, h.Attach(2), "unloaded buffer")

	h.Detach(1, true)
	assert.False(t, api.isAttached(1))
}

func TestHost_ReportAndTerminalWriter(t *testing.T) {
	api := newFakeAPI()
	h := newHost(t, api)

	h.Report(errors.New("worker crashed"))
	calls := api.luaCalls(notify)
	require.Len(t, calls, 1)
	assert.Equal(t, []interface{}{"mdmath: worker crashed"}, calls[0].args)

	w := NewTerminalWriter(api)
	n, err := w.Write([]byte("\x1b_Ga=d\x1b\\"))
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Equal(t, []interface{}{"\x1b_Ga=d\x1b\\"}, api.luaCalls(chanSend)[0].args)
}

type handlerHarness struct {
	t        *testing.T
	api      *fakeAPI
	loop     *loop.Loop
	host     *Host
	app      *app.Application
	handlers *Handlers
}

// newHandlerHarness wires handlers to an application whose worker cannot be
// spawned, so nothing is ever rendered.
func newHandlerHarness(t *testing.T) *handlerHarness {
	t.Helper()
	api := newFakeAPI()
	api.lines[1] = []string{"$a$", "", "$b$"}
	h := newHost(t, api)
	l := loop.New()

	cfg := config.Default()
	cfg.Worker.Command = "mdmath-test-missing-worker"
	a := app.New(cfg, app.Host{
		Host:    equation.Host{Spans: h, Annotations: h, Lines: h},
		Buffers: h,
	}, l, app.WithLogger(zaptest.NewLogger(t)), app.WithReporter(h.Report))

	hh := &handlerHarness{t: t, api: api, loop: l, host: h, app: a,
		handlers: NewHandlers(h, a, l, zaptest.NewLogger(t))}
	hh.handlers.refreshDelay = 10 * time.Millisecond

	go l.Run(context.Background())
	t.Cleanup(func() {
		hh.do(func() { hh.handlers.stopTimers() })
		l.Stop()
		<-l.Done()
	})
	return hh
}

// do runs fn on the loop after all previously posted work.
func (hh *handlerHarness) do(fn func()) {
	hh.t.Helper()
	require.NoError(hh.t, hh.loop.Do(context.Background(), func() error {
		fn()
		return nil
	}))
}

func TestHandlers_EnableReportsSpawnFailure(t *testing.T) {
	hh := newHandlerHarness(t)
	hh.handlers.Enable(1)

	hh.do(func() {
		assert.True(t, hh.app.Enabled(1))
		assert.True(t, hh.api.isAttached(1))
	})
	calls := hh.api.luaCalls(notify)
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].args[0], "spawn worker mdmath-test-missing-worker")

	hh.handlers.Disable(1)
	hh.do(func() {
		assert.False(t, hh.app.Enabled(1))
		assert.False(t, hh.api.isAttached(1))
	})
}

func TestHandlers_LinesEventMovesSpans(t *testing.T) {
	hh := newHandlerHarness(t)

	var s equation.Span
	hh.do(func() {
		var err error
		s, err = hh.host.Track(1, 2, 0, 3, nil)
		require.NoError(t, err)
	})
	hh.handlers.LinesEvent(1, 2, 0, 0, []string{"new"}, false)
	hh.do(func() {
		row, _, ok := s.Position()
		require.True(t, ok)
		assert.Equal(t, 3, row)
		assert.Empty(t, hh.handlers.timers, "disabled buffers are not rescanned")
	})

	hh.handlers.DetachEvent(1)
	hh.do(func() {
		_, _, ok := s.Position()
		assert.False(t, ok)
	})
}

func TestHandlers_EditSchedulesRefresh(t *testing.T) {
	hh := newHandlerHarness(t)
	hh.do(func() { hh.handlers.refreshDelay = 200 * time.Millisecond })
	hh.handlers.Enable(1)
	hh.handlers.LinesEvent(1, 2, 1, 2, []string{"x"}, false)
	hh.handlers.LinesEvent(1, 3, 1, 2, []string{"xy"}, false)
	hh.do(func() {
		assert.Len(t, hh.handlers.timers, 1)
	})

	require.Eventually(t, func() bool {
		pending := true
		hh.do(func() { pending = len(hh.handlers.timers) > 0 })
		return !pending
	}, 5*time.Second, 5*time.Millisecond)

	hh.handlers.Refresh(1)
	hh.handlers.SetScale(0)
	hh.do(func() {})
	calls := hh.api.luaCalls(notify)
	require.NotEmpty(t, calls)
	assert.Contains(t, calls[len(calls)-1].args[0], "set scale")
}
