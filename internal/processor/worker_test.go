package processor

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Thiago4532/mdmath.nvim/internal/protocol"
)

// fakeWorkerEnv selects the fake worker mode when the test binary is
// re-executed as a worker.
const fakeWorkerEnv = "MDMATH_FAKE_WORKER"

// fakeWorkerConfig returns a Config that runs this test binary as a worker
// in the given mode.
func fakeWorkerConfig(mode string) Config {
	return Config{
		Command:      os.Args[0],
		Args:         []string{"-test.run=^$"},
		Env:          []string{fakeWorkerEnv + "=" + mode},
		Foreground:   "#ffffff",
		Scale:        1,
		CloseTimeout: 2 * time.Second,
	}
}

// runFakeWorker implements a conformant worker on stdin/stdout.
//
// Modes:
//
//	echo       answer every request; payload "fail" gets an error frame,
//	           "hold" is answered only after "flush", in reverse order,
//	           "controls" returns the last fgcolor and scale as locator
//	trickle    like echo but writes responses one byte at a time
//	crash      read three requests, print diagnostics, exit 3
//	exit0      exit cleanly after the first request
//	garbage    answer the first request with an unknown kind
//	deaf       ignore stdin EOF and keep running
func runFakeWorker(mode string) int {
	out := bufio.NewWriter(os.Stdout)
	write := func(b []byte) {
		if mode == "trickle" {
			for i := range b {
				os.Stdout.Write(b[i : i+1])
			}
			return
		}
		out.Write(b)
		out.Flush()
	}
	respond := func(cmd protocol.Command) {
		text := string(cmd.Payload)
		if text == "fail" {
			write(protocol.EncodeResponse(cmd.ID, protocol.KindError, []byte("undefined control sequence")))
			return
		}
		res := protocol.Result{
			Width:   cmd.Width * 10,
			Height:  cmd.Height * 20,
			Locator: fmt.Sprintf("/tmp/mdmath/%s:%s.png", cmd.ID, text),
		}
		write(protocol.EncodeResponse(cmd.ID, protocol.KindData, protocol.FormatResult(res)))
	}

	var (
		fg, scale string
		held      []protocol.Command
		requests  int
	)
	scanner := protocol.NewCommandScanner()
	buf := make([]byte, 4096)
	for {
		n, err := os.Stdin.Read(buf)
		cmds, ferr := scanner.Feed(buf[:n])
		if ferr != nil {
			fmt.Fprintln(os.Stderr, "bad command:", ferr)
			return 2
		}
		for _, cmd := range cmds {
			switch cmd.Kind {
			case protocol.KindForeground:
				fg = cmd.Value
				continue
			case protocol.KindScale:
				scale = cmd.Value
				continue
			}
			requests++

			switch mode {
			case "crash":
				if requests == 3 {
					fmt.Fprintln(os.Stderr, "TeX capacity exceeded")
					return 3
				}
			case "exit0":
				return 0
			case "garbage":
				write([]byte(cmd.ID + ":weird:0:"))
			default:
				switch string(cmd.Payload) {
				case "hold":
					held = append(held, cmd)
				case "flush":
					respond(cmd)
					for i := len(held) - 1; i >= 0; i-- {
						respond(held[i])
					}
					held = nil
				case "controls":
					write(protocol.EncodeResponse(cmd.ID, protocol.KindData,
						protocol.FormatResult(protocol.Result{Width: 1, Height: 1, Locator: fg + "|" + scale})))
				default:
					respond(cmd)
				}
			}
		}
		if err == io.EOF {
			if mode == "deaf" {
				time.Sleep(time.Minute)
			}
			return 0
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, "read:", err)
			return 1
		}
	}
}
