package processor

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// readBufferSize is the chunk size used by the read goroutines.
const readBufferSize = 32 * 1024

// transport owns the worker process and its three pipes. Writes happen on
// the event loop; reads happen on the goroutines started by Processor.
type transport struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser

	inputClosed bool
}

// startTransport starts the worker executable with piped stdio.
func startTransport(cfg Config) (*transport, error) {
	if cfg.Command == "" {
		return nil, ErrNoCommand
	}

	cmd := exec.Command(cfg.Command, cfg.Args...)
	cmd.Env = append(os.Environ(), cfg.Env...)
	cmd.Dir = cfg.Dir

	// Track created pipes for cleanup on error
	var created []io.Closer
	cleanup := func() {
		for _, c := range created {
			_ = c.Close()
		}
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	created = append(created, stdin)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	created = append(created, stdout)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	created = append(created, stderr)

	if err := cmd.Start(); err != nil {
		cleanup()
		return nil, fmt.Errorf("start process: %w", err)
	}

	return &transport{
		cmd:    cmd,
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
	}, nil
}

// write sends one encoded frame on the command pipe.
func (t *transport) write(frame []byte) error {
	if t.inputClosed {
		return ErrClosed
	}
	if _, err := t.stdin.Write(frame); err != nil {
		return fmt.Errorf("write command: %w", err)
	}
	return nil
}

// closeInput closes the command pipe; a well-behaved worker exits on EOF.
func (t *transport) closeInput() error {
	if t.inputClosed {
		return nil
	}
	t.inputClosed = true
	return t.stdin.Close()
}

// kill terminates the process. The read goroutines see EOF once the
// process is gone.
func (t *transport) kill() {
	_ = t.closeInput()
	if t.cmd.Process != nil {
		_ = t.cmd.Process.Kill()
	}
}

// pid returns the worker's process id.
func (t *transport) pid() int {
	if t.cmd.Process == nil {
		return 0
	}
	return t.cmd.Process.Pid
}

// readChunks reads r until EOF, handing each chunk to fn. A read error other
// than EOF or a closed pipe is returned.
func readChunks(r io.Reader, fn func([]byte)) error {
	buf := make([]byte, readBufferSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			fn(buf[:n])
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
				return nil
			}
			return err
		}
	}
}
