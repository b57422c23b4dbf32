package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	charmLog "github.com/charmbracelet/log"

	"github.com/erazemk/skupaj/internal/config"
)

// levelRouter is a slog.Handler that routes DEBUG/INFO/WARN to stdout and
// ERROR+ to stderr.
type levelRouter struct {
	stdout slog.Handler
	stderr slog.Handler
}

func (lr *levelRouter) Enabled(ctx context.Context, level slog.Level) bool {
	if level >= slog.LevelError {
		return lr.stderr.Enabled(ctx, level)
	}
	return lr.stdout.Enabled(ctx, level)
}

func (lr *levelRouter) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelError {
		return lr.stderr.Handle(ctx, r)
	}
	return lr.stdout.Handle(ctx, r)
}

func (lr *levelRouter) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelRouter{
		stdout: lr.stdout.WithAttrs(attrs),
		stderr: lr.stderr.WithAttrs(attrs),
	}
}

func (lr *levelRouter) WithGroup(name string) slog.Handler {
	return &levelRouter{
		stdout: lr.stdout.WithGroup(name),
		stderr: lr.stderr.WithGroup(name),
	}
}

var formatters = map[string]charmLog.Formatter{
	"text":   charmLog.TextFormatter,
	"json":   charmLog.JSONFormatter,
	"logfmt": charmLog.LogfmtFormatter,
}

// newLogHandler builds the process log handler. When cfg.File is set every
// level is also appended to that file. The returned cleanup closes it.
func newLogHandler(stdout, stderr io.Writer, cfg config.LoggingConfig) (slog.Handler, func(), error) {
	level, err := charmLog.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing log level %q: %w", cfg.Level, err)
	}
	formatter, ok := formatters[cfg.Format]
	if !ok {
		return nil, nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	cleanup := func() {}
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		cleanup = func() { f.Close() }
		stdout = io.MultiWriter(stdout, f)
		stderr = io.MultiWriter(stderr, f)
	}

	sink := func(w io.Writer) *charmLog.Logger {
		return charmLog.NewWithOptions(w, charmLog.Options{
			Level:           level,
			Prefix:          "skupaj",
			ReportTimestamp: true,
			TimeFormat:      time.RFC3339,
			Formatter:       formatter,
		})
	}
	return &levelRouter{stdout: sink(stdout), stderr: sink(stderr)}, cleanup, nil
}
