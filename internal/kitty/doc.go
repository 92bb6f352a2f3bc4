// Package kitty displays rendered images with the kitty graphics protocol.
//
// Images are transmitted once with a virtual placement (U=1) and drawn by
// writing Unicode placeholder cells: U+10EEEE carrying row and column
// diacritics, with the image id encoded in the foreground colour. The
// placeholder text is what editors place as virtual text, so images scroll
// and fold with the buffer like any other text.
//
// Only the first cell of a row carries a column diacritic; the terminal
// infers the column of the following cells.
package kitty
