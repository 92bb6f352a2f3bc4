package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix starts every environment override.
const EnvPrefix = "MDMATH_"

type envSetter func(cfg *Config, value string) error

// envSettings maps variable names, without EnvPrefix, to the settings they
// override.
var envSettings = map[string]envSetter{
	"WORKER_COMMAND": func(c *Config, v string) error { c.Worker.Command = v; return nil },
	"WORKER_ARGS":    func(c *Config, v string) error { c.Worker.Args = strings.Fields(v); return nil },
	"WORKER_DIR":     func(c *Config, v string) error { c.Worker.Dir = v; return nil },
	"WORKER_CLOSE_TIMEOUT": func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		c.Worker.CloseTimeout = Duration(d)
		return err
	},
	"WORKER_FAIL_PENDING_ON_EXIT": boolSetter(func(c *Config) *bool { return &c.Worker.FailPendingOnExit }),
	"RENDER_FOREGROUND":           func(c *Config, v string) error { c.Render.Foreground = v; return nil },
	"RENDER_SCALE": func(c *Config, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		c.Render.Scale = f
		return err
	},
	"RENDER_CENTER_DISPLAY": boolSetter(func(c *Config) *bool { return &c.Render.CenterDisplay }),
	"RENDER_CENTER_INLINE":  boolSetter(func(c *Config) *bool { return &c.Render.CenterInline }),
	"DISPLAY_CELL_WIDTH":    intSetter(func(c *Config) *int { return &c.Display.CellWidth }),
	"DISPLAY_CELL_HEIGHT":   intSetter(func(c *Config) *int { return &c.Display.CellHeight }),
	"LOG_LEVEL":             func(c *Config, v string) error { c.Log.Level = strings.ToLower(v); return nil },
	"LOG_FILE":              func(c *Config, v string) error { c.Log.File = v; return nil },
	"LOG_FORMAT":            func(c *Config, v string) error { c.Log.Format = strings.ToLower(v); return nil },
}

func boolSetter(field func(*Config) *bool) envSetter {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		*field(c) = b
		return err
	}
}

func intSetter(field func(*Config) *int) envSetter {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		*field(c) = n
		return err
	}
}

// ApplyEnv overrides cfg with MDMATH_* variables found through lookup.
// An empty value counts as set.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	for name, set := range envSettings {
		value, ok := lookup(EnvPrefix + name)
		if !ok {
			continue
		}
		if err := set(cfg, value); err != nil {
			return fmt.Errorf("environment %s%s: %w", EnvPrefix, name, err)
		}
	}
	return nil
}
