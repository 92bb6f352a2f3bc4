// Package mathscan finds TeX math in markdown text.
//
// Inline math is written $...$ on a single line and display math $$...$$,
// possibly over several lines. A backslash escapes the next byte, empty
// bodies are not math, and nothing inside code spans or fenced code blocks
// is scanned.
package mathscan

import (
	"sort"
	"strings"
)

// Match is one equation in the scanned text. Text includes the dollar
// delimiters; Row and Col locate its first byte.
type Match struct {
	Row     int
	Col     int
	Text    string
	Display bool
}

// Scan returns the equations found in lines, in order of appearance.
func Scan(lines []string) []Match {
	text := strings.Join(lines, "\n")
	starts := lineStarts(text)

	var out []Match
	inFence := false
	fence := ""
	for i := 0; i < len(text); {
		if i == 0 || text[i-1] == '\n' {
			line := text[i:]
			if nl := strings.IndexByte(line, '\n'); nl >= 0 {
				line = line[:nl]
			}
			if marker := fenceMarker(line); marker != "" && (!inFence || strings.HasPrefix(marker, fence)) {
				if inFence {
					inFence = false
				} else {
					inFence, fence = true, marker
				}
				i += len(line) + 1
				continue
			}
			if inFence {
				i += len(line) + 1
				continue
			}
		}

		switch text[i] {
		case '\\':
			i += 2
		case '`':
			i = skipCode(text, i)
		case '$':
			display := strings.HasPrefix(text[i:], "$$")
			delim := "$"
			if display {
				delim = "$$"
			}
			end := findClose(text, i+len(delim), delim, !display)
			if end < 0 {
				i += len(delim)
				continue
			}
			body := text[i+len(delim) : end]
			if strings.TrimSpace(body) == "" {
				i = end + len(delim)
				continue
			}
			row := sort.SearchInts(starts, i+1) - 1
			out = append(out, Match{
				Row:     row,
				Col:     i - starts[row],
				Text:    text[i : end+len(delim)],
				Display: display,
			})
			i = end + len(delim)
		default:
			i++
		}
	}
	return out
}

func lineStarts(text string) []int {
	starts := []int{0}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

// fenceMarker returns the run of backticks or tildes opening a fenced code
// block on line, or "" if line is not a fence.
func fenceMarker(line string) string {
	trimmed := strings.TrimLeft(line, " ")
	if len(line)-len(trimmed) > 3 || len(trimmed) < 3 {
		return ""
	}
	c := trimmed[0]
	if c != '`' && c != '~' {
		return ""
	}
	n := 0
	for n < len(trimmed) && trimmed[n] == c {
		n++
	}
	if n < 3 {
		return ""
	}
	return trimmed[:n]
}

// skipCode returns the offset just past the code span opening at i, or
// past the opening backticks when the span is never closed.
func skipCode(text string, i int) int {
	n := 0
	for i+n < len(text) && text[i+n] == '`' {
		n++
	}
	run := text[i : i+n]
	for j := i + n; j < len(text); {
		k := strings.Index(text[j:], run)
		if k < 0 {
			break
		}
		k += j
		m := k + n
		if m < len(text) && text[m] == '`' {
			for m < len(text) && text[m] == '`' {
				m++
			}
			j = m
			continue
		}
		return m
	}
	return i + n
}

// findClose returns the offset of the unescaped delim closing a span that
// starts at from, or -1.
func findClose(text string, from int, delim string, singleLine bool) int {
	for j := from; j < len(text); j++ {
		switch {
		case text[j] == '\\':
			j++
		case text[j] == '\n' && singleLine:
			return -1
		case strings.HasPrefix(text[j:], delim):
			return j
		}
	}
	return -1
}
