package app

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/pflag"
)

var (
	logLevel  string
	logFormat string
)

func addLogFlags(flags *pflag.FlagSet) {
	flags.StringVar(&logLevel, "loglevel", "warn", "set the log level (debug, info, warn, error)")
	flags.StringVarP(&logFormat, "logformat", "f", "text", "set the log format (text, json)")
}

// newLogger builds the diagnostic logger from the global flags. Logs go to w
// (stderr) so they never mix with command output.
func newLogger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLogLevel(logLevel)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch logFormat {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		return nil, fmt.Errorf("invalid log format: %s", logFormat)
	}
	return slog.New(handler), nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelWarn, fmt.Errorf("invalid log level: %s", s)
	}
}
