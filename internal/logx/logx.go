// Package logx configures the global zerolog logger for the binaries.
package logx

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup sets the level and output of log.Logger and tags every line with
// service. Unknown levels fall back to info.
func Setup(level string, pretty bool, service string) {
	Configure(os.Stderr, level, pretty, service)
}

func Configure(w io.Writer, level string, pretty bool, service string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	out := w
	if pretty {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	log.Logger = zerolog.New(out).With().Timestamp().Str("service", service).Logger()
}
