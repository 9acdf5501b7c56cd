package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"nester/config"
)

// New builds the process logger. Console output is meant for people
// watching a terminal; json for everything else.
func New(conf config.Log, out io.Writer) (zerolog.Logger, error) {
	if out == nil {
		out = os.Stderr
	}

	level := zerolog.InfoLevel
	if conf.Level != "" {
		l, err := zerolog.ParseLevel(strings.ToLower(conf.Level))
		if err != nil {
			return zerolog.Nop(), errors.Wrapf(err, "invalid log level %q", conf.Level)
		}
		level = l
	}

	switch conf.Format {
	case "", "console":
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly}
	case "json":
	default:
		return zerolog.Nop(), errors.Errorf("invalid log format %q", conf.Format)
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger(), nil
}
