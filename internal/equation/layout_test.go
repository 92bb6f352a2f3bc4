package equation

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/Thiago4532/mdmath.nvim/internal/protocol"
)

func TestFitColumns(t *testing.T) {
	tests := []struct {
		name         string
		w, h         int
		rows, max    int
		cellW, cellH int
		want         int
	}{
		{"exact", 40, 20, 1, 10, 10, 20, 4},
		{"rounds up", 41, 20, 1, 10, 10, 20, 5},
		{"clamped to source width", 400, 20, 1, 10, 10, 20, 10},
		{"at least one column", 1, 1000, 1, 10, 10, 20, 1},
		{"two rows", 40, 40, 2, 10, 10, 20, 4},
		{"no metrics", 40, 20, 1, 7, 0, 0, 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := fitColumns(protocol.Result{Width: tt.w, Height: tt.h}, tt.rows, tt.max, tt.cellW, tt.cellH)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPad(t *testing.T) {
	rows := []Chunk{{Text: "ab", Width: 2}, {Text: "abcdef", Width: 6}}

	got := pad(rows, 5, true)
	want := []Chunk{{Text: " ab  ", Width: 5}, {Text: "abcdef", Width: 6}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("centred (-want +got):\n%s", diff)
	}

	got = pad(rows, 5, false)
	want = []Chunk{{Text: "ab   ", Width: 5}, {Text: "abcdef", Width: 6}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("trailing (-want +got):\n%s", diff)
	}
}

func TestErrorChunk(t *testing.T) {
	assert.Equal(t, Chunk{Text: " boom", Width: 5}, errorChunk("  boom\nsecond line"))
	assert.Equal(t, Chunk{Text: " 数式", Width: 5}, errorChunk("数式"))
}
