package equation

import (
	"strings"

	"github.com/rivo/uniseg"

	"github.com/Thiago4532/mdmath.nvim/internal/protocol"
)

// fitColumns returns how many columns the image occupies when scaled to
// rows terminal rows, clamped to [1, maxCols]. Without usable cell metrics
// the image is stretched to maxCols.
func fitColumns(res protocol.Result, rows, maxCols, cellW, cellH int) int {
	if cellW <= 0 || cellH <= 0 || res.Width <= 0 || res.Height <= 0 {
		return maxCols
	}
	num := res.Width * rows * cellH
	den := res.Height * cellW
	cols := (num + den - 1) / den
	return min(max(cols, 1), maxCols)
}

// pad widens every row to width columns so the annotation hides the whole
// source text and nothing after it moves. Centred rows are padded on both
// sides, others on the right.
func pad(rows []Chunk, width int, center bool) []Chunk {
	out := make([]Chunk, len(rows))
	for i, r := range rows {
		missing := width - r.Width
		if missing <= 0 {
			out[i] = r
			continue
		}
		left := 0
		if center {
			left = missing / 2
		}
		right := missing - left
		out[i] = Chunk{
			Text:  strings.Repeat(" ", left) + r.Text + strings.Repeat(" ", right),
			Width: width,
		}
	}
	return out
}

// errorChunk formats a diagnostic for an end-of-line annotation. Only the
// first line of the message is shown.
func errorChunk(msg string) Chunk {
	msg, _, _ = strings.Cut(strings.TrimSpace(msg), "\n")
	text := " " + msg
	return Chunk{Text: text, Width: uniseg.StringWidth(text)}
}
