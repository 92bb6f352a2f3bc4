package processor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thiago4532/mdmath.nvim/internal/protocol"
)

func dataFrame(id, record string) protocol.Frame {
	return protocol.Frame{ID: id, Kind: protocol.KindData, Payload: []byte(record)}
}

func TestRegistry_ResolveAtMostOnce(t *testing.T) {
	r := NewRegistry(nil)
	calls := 0
	var got Response
	require.NoError(t, r.Register("1", func(resp Response) {
		calls++
		got = resp
	}))
	assert.True(t, r.Pending("1"))

	assert.True(t, r.Resolve(dataFrame("1", "100:40:/tmp/a.png")))
	assert.False(t, r.Resolve(dataFrame("1", "100:40:/tmp/a.png")))

	assert.Equal(t, 1, calls)
	require.NoError(t, got.Err)
	assert.Equal(t, &protocol.Result{Width: 100, Height: 40, Locator: "/tmp/a.png"}, got.Result)
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_DuplicateRegistration(t *testing.T) {
	r := NewRegistry(nil)
	first := 0
	require.NoError(t, r.Register("7", func(Response) { first++ }))

	err := r.Register("7", func(Response) { t.Error("second continuation must not run") })
	assert.ErrorIs(t, err, ErrDuplicateID)

	r.Resolve(dataFrame("7", "1:1:x"))
	assert.Equal(t, 1, first)
}

func TestRegistry_UnmatchedIsDropped(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register("1", func(Response) { t.Error("unexpected dispatch") }))

	assert.False(t, r.Resolve(dataFrame(protocol.ControlID, "1:1:x")))
	assert.False(t, r.Resolve(protocol.Frame{ID: "99", Kind: protocol.KindError, Payload: []byte("late")}))
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_ErrorFrame(t *testing.T) {
	r := NewRegistry(nil)
	var got Response
	require.NoError(t, r.Register("3", func(resp Response) { got = resp }))

	r.Resolve(protocol.Frame{ID: "3", Kind: protocol.KindError, Payload: []byte("Missing $ inserted")})
	assert.Nil(t, got.Result)

	var rerr *RenderError
	require.ErrorAs(t, got.Err, &rerr)
	assert.Equal(t, "Missing $ inserted", rerr.Error())
}

func TestRegistry_BadRecord(t *testing.T) {
	r := NewRegistry(nil)
	var got Response
	require.NoError(t, r.Register("4", func(resp Response) { got = resp }))

	r.Resolve(dataFrame("4", "not a record"))
	assert.Nil(t, got.Result)
	assert.ErrorIs(t, got.Err, protocol.ErrInvalidResult)
}

func TestRegistry_FailAndReset(t *testing.T) {
	r := NewRegistry(nil)
	boom := errors.New("boom")

	var errs []error
	for _, id := range []string{"1", "2", "3"} {
		require.NoError(t, r.Register(id, func(resp Response) { errs = append(errs, resp.Err) }))
	}
	r.Fail(boom)
	assert.Len(t, errs, 3)
	for _, err := range errs {
		assert.ErrorIs(t, err, boom)
	}
	assert.Equal(t, 0, r.Len())

	require.NoError(t, r.Register("4", func(Response) { t.Error("reset must not dispatch") }))
	r.Reset()
	assert.Equal(t, 0, r.Len())
	assert.False(t, r.Resolve(dataFrame("4", "1:1:x")))
}

func TestRegistry_RemoveAllowsReuse(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register("5", nil))
	r.Remove("5")
	assert.NoError(t, r.Register("5", nil))
	assert.True(t, r.Resolve(dataFrame("5", "1:1:x")))
}
