package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/samcharles93/boost/internal/logger"
	"github.com/urfave/cli/v3"
)

func setupLogging(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	applyLoggingConfig(cmd, LoadConfig())

	level := logger.ParseLevel(logLevel)
	if debug {
		level = slog.LevelDebug
	}
	format := logFormat
	if format == "auto" || format == "" {
		format = "text"
		if stderrIsTTY() {
			format = "pretty"
		}
	}
	log, err := logger.ForFormat(os.Stderr, format, level)
	if err != nil {
		return ctx, err
	}
	return logger.WithContext(ctx, log), nil
}

// stderrIsTTY is a small seam for tests.
var stderrIsTTY = func() bool { return isTerminal(os.Stderr) }
