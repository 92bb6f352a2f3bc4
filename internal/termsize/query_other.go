//go:build !unix

package termsize

import (
	"fmt"
	"runtime"
)

// Query reports ErrUnknown; only unix terminals are queried.
func Query(path string) (Size, error) {
	return Size{}, fmt.Errorf("%w: unsupported on %s", ErrUnknown, runtime.GOOS)
}
