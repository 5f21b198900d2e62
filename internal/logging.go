package internal

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// NewLogger builds the process logger. Debug level when verbose, warnings otherwise.
// With toFile set (or log_file configured) records go to a file in the cache
// directory, which keeps stdout clean for stdio transports.
func NewLogger(config *Config, name string, toFile bool) (*slog.Logger, io.Closer) {
	level := slog.LevelWarn
	if config.Verbose {
		level = slog.LevelDebug
	}

	var (
		out    io.Writer = os.Stderr
		closer io.Closer = io.NopCloser(nil)
	)

	path := config.LogFile
	if path == "" && toFile {
		path = filepath.Join(config.CacheDir, name+".log")
	}
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err == nil {
			if f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644); err == nil {
				out, closer = f, f
				if toFile {
					level = slog.LevelDebug
				}
			}
		}
	}

	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})).With(slog.String("component", name))
	return logger, closer
}

// discardLogger is used when no logger is supplied
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
