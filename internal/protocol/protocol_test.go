package protocol

import (
	"bytes"
	"errors"
	"math/rand"
	"slices"
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name string
		got  []byte
		want string
	}{
		{"foreground", EncodeForeground("#ffffff"), "0:fgcolor:#ffffff:"},
		{"scale integer", EncodeScale(1), "0:scale:1:"},
		{"scale fraction", EncodeScale(1.25), "0:scale:1.25:"},
		{"request", EncodeRequest("1", 5, 1, true, []byte("$x^2$")), "1:request:5:1:true:5:$x^2$"},
		{"request not centered", EncodeRequest("42", 10, 3, false, []byte("a:b\nc")), "42:request:10:3:false:5:a:b\nc"},
		{"request empty", EncodeRequest("7", 0, 1, false, nil), "7:request:0:1:false:0:"},
		{"response", EncodeResponse("3", KindError, []byte("bad")), "3:error:3:bad"},
		{"result", FormatResult(Result{Width: 100, Height: 40, Locator: "/tmp/a.png"}), "100:40:/tmp/a.png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, string(tt.got))
		})
	}
}

func TestEncodeRequestByteLength(t *testing.T) {
	// Multi-byte runes: the length is in bytes, not characters.
	got := EncodeRequest("9", 4, 1, false, []byte("α+β"))
	assert.Equal(t, "9:request:4:1:false:5:α+β", string(got))
}

func TestScannerWholeFrame(t *testing.T) {
	s := NewScanner()
	frames, err := s.Feed([]byte("1:data:17:100:40:/tmp/a.png"))
	require.NoError(t, err)
	require.Len(t, frames, 1)

	want := Frame{ID: "1", Kind: KindData, Payload: []byte("100:40:/tmp/a.png")}
	if diff := cmp.Diff(want, frames[0]); diff != "" {
		t.Errorf("frame mismatch (-want +got):\n%s", diff)
	}
	assert.False(t, s.Buffered())
}

func TestScannerBackToBack(t *testing.T) {
	stream := []byte("1:data:3:a:b2:error:4:oops10:data:0:")
	s := NewScanner()
	frames, err := s.Feed(stream)
	require.NoError(t, err)

	want := []Frame{
		{ID: "1", Kind: KindData, Payload: []byte("a:b")},
		{ID: "2", Kind: KindError, Payload: []byte("oops")},
		{ID: "10", Kind: KindData, Payload: []byte{}},
	}
	if diff := cmp.Diff(want, frames); diff != "" {
		t.Errorf("frames mismatch (-want +got):\n%s", diff)
	}
}

func TestScannerFragmentation(t *testing.T) {
	payload := []byte("12:7:/tmp/with:colon\nand newline")
	stream := append(EncodeResponse("5", KindData, payload), EncodeResponse("6", KindError, []byte("x"))...)

	whole, err := NewScanner().Feed(stream)
	require.NoError(t, err)
	require.Len(t, whole, 2)

	for size := 1; size <= len(stream); size++ {
		s := NewScanner()
		var got []Frame
		for start := 0; start < len(stream); start += size {
			end := min(start+size, len(stream))
			frames, err := s.Feed(stream[start:end])
			require.NoError(t, err, "chunk size %d", size)
			got = append(got, frames...)
		}
		if diff := cmp.Diff(whole, got); diff != "" {
			t.Fatalf("chunk size %d (-whole +chunked):\n%s", size, diff)
		}
	}
}

func TestScannerRandomSplits(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	var stream []byte
	var want []Frame
	for i := 0; i < 50; i++ {
		payload := make([]byte, rng.Intn(40))
		rng.Read(payload)
		id := string(rune('a' + i%26))
		stream = append(stream, EncodeResponse(id, KindData, payload)...)
		want = append(want, Frame{ID: id, Kind: KindData, Payload: payload})
	}

	for round := 0; round < 20; round++ {
		s := NewScanner()
		var got []Frame
		for rest := stream; len(rest) > 0; {
			n := 1 + rng.Intn(min(len(rest), 17))
			frames, err := s.Feed(rest[:n])
			require.NoError(t, err)
			got = append(got, frames...)
			rest = rest[n:]
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("round %d (-want +got):\n%s", round, diff)
		}
	}
}

func TestScannerMalformed(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		field  string
		frames int
	}{
		{"unknown kind", "1:request:3:abc", "kind", 0},
		{"kind case", "1:DATA:3:abc", "kind", 0},
		{"non numeric length", "1:data:x3:abc", "length", 0},
		{"signed length", "1:data:-3:abc", "length", 0},
		{"empty length", "1:data::abc", "length", 0},
		{"after good frame", "1:data:1:a2:bogus:", "kind", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScanner()
			frames, err := s.Feed([]byte(tt.input))
			assert.Len(t, frames, tt.frames)

			var merr *MalformedError
			require.ErrorAs(t, err, &merr)
			assert.Equal(t, tt.field, merr.Field)

			// Poisoned: further input is refused with the same error.
			more, err2 := s.Feed([]byte("3:data:1:z"))
			assert.Empty(t, more)
			assert.Same(t, err, err2)
			assert.Same(t, err, s.Err())
		})
	}
}

func TestScannerFieldLimit(t *testing.T) {
	s := NewScanner()
	long := make([]byte, maxHeaderField+1)
	for i := range long {
		long[i] = '9'
	}
	_, err := s.Feed(long)
	var merr *MalformedError
	require.True(t, errors.As(err, &merr))
	assert.Equal(t, "identifier", merr.Field)
}

func TestScannerLengthLimit(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"overflows int", "1:data:999999999999999999999:"},
		{"beyond int capacity", "1:data:999999999999999999:"},
		{"just above limit", "1:data:" + strconv.Itoa(maxPayload+1) + ":"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScanner()
			frames, err := s.Feed([]byte(tt.input))
			assert.Empty(t, frames)
			var merr *MalformedError
			require.ErrorAs(t, err, &merr)
			assert.Equal(t, "length", merr.Field)
		})
	}
}

func TestScannerLargePayloadGrows(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), payloadPrealloc*3)
	s := NewScanner()
	_, err := s.Feed([]byte("7:data:" + strconv.Itoa(len(payload)) + ":"))
	require.NoError(t, err)

	var frames []Frame
	for chunk := range slices.Chunk(payload, 1000) {
		got, err := s.Feed(chunk)
		require.NoError(t, err)
		frames = append(frames, got...)
	}
	require.Len(t, frames, 1)
	assert.Equal(t, payload, frames[0].Payload)
}

func TestCommandRoundTrip(t *testing.T) {
	all := make([]byte, 256)
	for i := range all {
		all[i] = byte(i)
	}

	payloads := [][]byte{
		nil,
		[]byte("$x^2$"),
		[]byte("a:b:c"),
		[]byte("line one\nline two:\n"),
		[]byte("0:data:5:hello"),
		all,
	}

	for _, p := range payloads {
		enc := EncodeRequest("17", 33, 4, true, p)

		for _, size := range []int{1, 3, len(enc)} {
			s := NewCommandScanner()
			var got []Command
			for start := 0; start < len(enc); start += size {
				cmds, err := s.Feed(enc[start:min(start+size, len(enc))])
				require.NoError(t, err)
				got = append(got, cmds...)
			}
			require.Len(t, got, 1)

			c := got[0]
			assert.Equal(t, "17", c.ID)
			assert.Equal(t, KindRequest, c.Kind)
			assert.Equal(t, 33, c.Width)
			assert.Equal(t, 4, c.Height)
			assert.True(t, c.Center)
			assert.Equal(t, len(p), len(c.Payload))
			assert.Equal(t, string(p), string(c.Payload))
		}
	}
}

func TestCommandScannerControl(t *testing.T) {
	stream := append(EncodeForeground("#c0c0c0"), EncodeScale(2.5)...)
	stream = append(stream, EncodeRequest("1", 5, 1, false, []byte("$a$"))...)

	cmds, err := NewCommandScanner().Feed(stream)
	require.NoError(t, err)
	require.Len(t, cmds, 3)

	assert.Equal(t, Command{ID: "0", Kind: KindForeground, Value: "#c0c0c0"}, cmds[0])
	assert.Equal(t, Command{ID: "0", Kind: KindScale, Value: "2.5"}, cmds[1])
	assert.Equal(t, "$a$", string(cmds[2].Payload))
}

func TestCommandScannerRejectsUnknownKind(t *testing.T) {
	_, err := NewCommandScanner().Feed([]byte("0:volume:11:"))
	var merr *MalformedError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, "kind", merr.Field)
}

func TestCommandScannerLengthLimit(t *testing.T) {
	_, err := NewCommandScanner().Feed([]byte("1:request:10:10:false:999999999999999999:"))
	var merr *MalformedError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, "length", merr.Field)
}

func TestParseResult(t *testing.T) {
	r, err := ParseResult([]byte("100:40:/tmp/a.png"))
	require.NoError(t, err)
	assert.Equal(t, &Result{Width: 100, Height: 40, Locator: "/tmp/a.png"}, r)

	r, err = ParseResult([]byte("3:4:C:\\out\\x.png"))
	require.NoError(t, err)
	assert.Equal(t, `C:\out\x.png`, r.Locator)

	bad := []string{"", "100", "100:40", "100:40:", "x:40:/a", "100:-4:/a", "0:4:/a"}
	for _, b := range bad {
		_, err := ParseResult([]byte(b))
		assert.ErrorIs(t, err, ErrInvalidResult, "payload %q", b)
	}
}
