// Package logging configures the process-wide structured logger
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ayoisaiah/tally/internal/osutil"
)

// Options controls where and how much is logged.
type Options struct {
	Path       string
	Level      slog.Level
	MaxSize    int
	MaxBackups int
	// Verbose mirrors log records to Stderr.
	Verbose bool
	Stderr  io.Writer
}

// Setup installs a JSON slog handler writing to a rotating log file as the
// default logger. The returned closer flushes and closes the file.
func Setup(opts Options) (io.Closer, error) {
	err := os.MkdirAll(filepath.Dir(opts.Path), osutil.DirPermission)
	if err != nil {
		return nil, err
	}

	file := &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    opts.MaxSize,
		MaxBackups: opts.MaxBackups,
		Compress:   true,
	}

	var w io.Writer = file

	if opts.Verbose {
		stderr := opts.Stderr
		if stderr == nil {
			stderr = os.Stderr
		}

		w = io.MultiWriter(file, stderr)
	}

	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: opts.Level,
	}))

	slog.SetDefault(logger)

	return file, nil
}
