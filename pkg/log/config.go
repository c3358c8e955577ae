// Package log is the zerolog setup shared by the viewer commands. `serve`
// writes JSON lines for collection; `watch` keeps stdout for snapshots, so
// every logger here writes to stderr unless told otherwise.
package log

import (
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config is the `log` block of config.yaml plus the service name the
// command stamps on every line.
type Config struct {
	Level       string `mapstructure:"level"`
	Pretty      bool   `mapstructure:"pretty"`
	ServiceName string `mapstructure:"service_name"`

	// Output replaces stderr. Tests point it at a buffer.
	Output io.Writer `mapstructure:"-"`
}

var (
	global   = zerolog.New(os.Stderr).With().Timestamp().Logger()
	initOnce sync.Once
)

// New builds a logger from cfg. Pretty switches to the console writer used
// when running `viewer watch` by hand.
func New(cfg Config) zerolog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}

	ctx := zerolog.New(out).Level(levelOf(cfg.Level)).With().Timestamp()
	if cfg.ServiceName != "" {
		ctx = ctx.Str(FieldService, cfg.ServiceName)
	}
	return ctx.Logger()
}

// Init sets the process logger once. Later calls are ignored, so a command
// and the packages it loads cannot race to reconfigure it. Anything written
// through the stdlib log package ends up in the same stream, tagged
// source=stdlog.
func Init(cfg Config) {
	initOnce.Do(func() {
		global = New(cfg)
		stdlog.SetFlags(0)
		stdlog.SetOutput(global.With().Str("source", "stdlog").Logger())
	})
}

// L returns the process logger.
func L() zerolog.Logger {
	return global
}

// levelOf maps a config level to zerolog. Blank or unknown levels log at
// info; "warning" is accepted for warn.
func levelOf(s string) zerolog.Level {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "warning" {
		s = "warn"
	}
	lvl, err := zerolog.ParseLevel(s)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
