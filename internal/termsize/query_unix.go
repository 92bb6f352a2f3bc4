//go:build unix

package termsize

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// Query reads the window size of the terminal at path.
func Query(path string) (Size, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return Size{}, fmt.Errorf("%w: %v", ErrUnknown, err)
	}
	defer f.Close()

	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return Size{}, fmt.Errorf("%w: %s is not a terminal", ErrUnknown, path)
	}
	ws, err := unix.IoctlGetWinsize(fd, unix.TIOCGWINSZ)
	if err != nil {
		return Size{}, fmt.Errorf("%w: %v", ErrUnknown, err)
	}
	return Size{
		Rows:   int(ws.Row),
		Cols:   int(ws.Col),
		Width:  int(ws.Xpixel),
		Height: int(ws.Ypixel),
	}, nil
}
