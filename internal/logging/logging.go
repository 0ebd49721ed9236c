// Package logging configures the process wide slog logger: a colored console
// handler plus an optional plain text log file.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/openmined/watchd/internal/utils"
)

const TimeFormat = "2006-01-02T15:04:05.000Z07:00"

type Options struct {
	Level slog.Level
	// Console defaults to stdout
	Console io.Writer
	// File is truncated on open. Empty disables file logging.
	File string
}

// ParseLevel accepts debug, info, warn and error.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

// New builds a logger from opts. The returned closer flushes and closes the
// log file and must be called before exit.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	console := opts.Console
	if console == nil {
		console = os.Stdout
	}

	noColor := true
	if f, ok := console.(*os.File); ok {
		noColor = !isatty.IsTerminal(f.Fd())
	}

	consoleHandler := tint.NewHandler(console, &tint.Options{
		Level:      opts.Level,
		TimeFormat: TimeFormat,
		NoColor:    noColor,
	})

	if opts.File == "" {
		return slog.New(consoleHandler), nopCloser{}, nil
	}

	if err := utils.EnsureParent(opts.File); err != nil {
		return nil, nil, fmt.Errorf("create log directory: %w", err)
	}
	file, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}

	lines := NewLineWriter(file)
	fileHandler := slog.NewTextHandler(lines, &slog.HandlerOptions{
		Level: opts.Level,
		// the line writer stamps time itself
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		},
	})

	logger := slog.New(NewFanoutHandler(consoleHandler, fileHandler))
	return logger, &fileCloser{lines: lines, file: file}, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

type fileCloser struct {
	lines *LineWriter
	file  *os.File
}

func (c *fileCloser) Close() error {
	flushErr := c.lines.Close()
	if err := c.file.Close(); err != nil {
		return err
	}
	return flushErr
}
