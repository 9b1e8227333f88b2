package logging

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	// Debug selects debug level and the human-readable text handler.
	Debug bool
	// File, when set, receives a copy of every line with size-based rotation.
	File string
	// Output defaults to os.Stdout.
	Output io.Writer
}

// New builds the process logger. The returned closer releases the log file
// and is safe to call when no file is configured.
func New(opts Options) (*slog.Logger, io.Closer) {
	var out io.Writer = os.Stdout
	if opts.Output != nil {
		out = opts.Output
	}
	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		lj := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}
		out = io.MultiWriter(out, lj)
		closer = lj
	}
	return newLogger(out, opts.Debug), closer
}

func newLogger(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if debug {
		handler = slog.NewTextHandler(w, handlerOpts)
	} else {
		handler = slog.NewJSONHandler(w, handlerOpts)
	}
	return slog.New(handler)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
