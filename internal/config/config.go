package config

import (
	"fmt"
	"regexp"
	"time"

	"github.com/Thiago4532/mdmath.nvim/internal/processor"
)

// Config is the complete mdmath configuration.
type Config struct {
	Worker  Worker  `toml:"worker" yaml:"worker"`
	Render  Render  `toml:"render" yaml:"render"`
	Display Display `toml:"display" yaml:"display"`
	Log     Log     `toml:"log" yaml:"log"`
}

// Worker configures the render worker process.
type Worker struct {
	// Command is the worker executable, looked up in PATH.
	Command string   `toml:"command" yaml:"command"`
	Args    []string `toml:"args" yaml:"args"`
	// Dir is the worker's working directory; empty means inherit.
	Dir string `toml:"dir" yaml:"dir"`
	// CloseTimeout bounds a graceful shutdown before the worker is killed.
	CloseTimeout Duration `toml:"close_timeout" yaml:"close_timeout"`
	// FailPendingOnExit resolves outstanding requests with an error when the
	// worker dies instead of leaving them unanswered.
	FailPendingOnExit bool `toml:"fail_pending_on_exit" yaml:"fail_pending_on_exit"`
}

// Render configures how equations are rendered.
type Render struct {
	Foreground    string  `toml:"foreground" yaml:"foreground"`
	Scale         float64 `toml:"scale" yaml:"scale"`
	CenterDisplay bool    `toml:"center_display" yaml:"center_display"`
	CenterInline  bool    `toml:"center_inline" yaml:"center_inline"`
}

// Display configures the terminal the images are shown in.
type Display struct {
	// CellWidth and CellHeight are the cell size in pixels used when the
	// terminal cannot be queried. Zero means unknown.
	CellWidth  int `toml:"cell_width" yaml:"cell_width"`
	CellHeight int `toml:"cell_height" yaml:"cell_height"`
}

// Log configures logging.
type Log struct {
	Level string `toml:"level" yaml:"level"`
	// File receives log output. Empty disables logging in host mode, where
	// stdout belongs to the RPC channel.
	File string `toml:"file" yaml:"file"`
	// Format is "json" or "console".
	Format string `toml:"format" yaml:"format"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Worker: Worker{
			Command:      "mdmath-processor",
			CloseTimeout: Duration(processor.DefaultCloseTimeout),
		},
		Render: Render{
			Foreground:    "#ffffff",
			Scale:         1,
			CenterDisplay: true,
		},
		Log: Log{
			Level:  "info",
			Format: "json",
		},
	}
}

var hexColor = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch {
	case c.Worker.Command == "":
		return &ValidationError{Field: "worker.command", Reason: "must not be empty"}
	case c.Worker.CloseTimeout < 0:
		return &ValidationError{Field: "worker.close_timeout", Reason: "must not be negative"}
	case !hexColor.MatchString(c.Render.Foreground):
		return &ValidationError{Field: "render.foreground", Reason: fmt.Sprintf("%q is not a #rrggbb colour", c.Render.Foreground)}
	case c.Render.Scale <= 0:
		return &ValidationError{Field: "render.scale", Reason: "must be positive"}
	case c.Display.CellWidth < 0 || c.Display.CellHeight < 0:
		return &ValidationError{Field: "display", Reason: "cell size must not be negative"}
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return &ValidationError{Field: "log.level", Reason: fmt.Sprintf("unknown level %q", c.Log.Level)}
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return &ValidationError{Field: "log.format", Reason: fmt.Sprintf("unknown format %q", c.Log.Format)}
	}
	return nil
}

// Processor returns the worker settings in the form the processor takes.
func (c Config) Processor() processor.Config {
	return processor.Config{
		Command:      c.Worker.Command,
		Args:         c.Worker.Args,
		Dir:          c.Worker.Dir,
		Foreground:   c.Render.Foreground,
		Scale:        c.Render.Scale,
		CloseTimeout: time.Duration(c.Worker.CloseTimeout),
	}
}

// Duration is a time.Duration written as "3s" in config files.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// String returns the duration in time.Duration notation.
func (d Duration) String() string {
	return time.Duration(d).String()
}
