package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Options selects where and how log lines are written.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // text or json
	File   string // empty logs to stdout only
	Out    io.Writer
}

// New builds the root logger. The returned closer releases the log file and
// is never nil.
func New(opts Options) (zerolog.Logger, io.Closer, error) {
	if err := SetLevel(opts.Level); err != nil {
		return zerolog.Nop(), nopCloser{}, err
	}

	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Nop(), nopCloser{}, fmt.Errorf("opening log file: %w", err)
		}
		closer = f
		out = io.MultiWriter(out, f)
	}

	switch opts.Format {
	case "", "text":
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
			NoColor:    opts.File != "",
		}
	case "json":
	default:
		_ = closer.Close()
		return zerolog.Nop(), nopCloser{}, fmt.Errorf("unknown log format: %s", opts.Format)
	}

	return zerolog.New(out).With().Timestamp().Logger(), closer, nil
}

// Scoped returns a child logger tagged with the component name.
func Scoped(l zerolog.Logger, scope string) zerolog.Logger {
	return l.With().Str("scope", scope).Logger()
}

// SetLevel changes the level of every logger built by New. It is safe to call
// while logging.
func SetLevel(level string) error {
	if level == "" {
		level = "info"
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("parsing log level: %w", err)
	}
	zerolog.SetGlobalLevel(lvl)
	return nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
