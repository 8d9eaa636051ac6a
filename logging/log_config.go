package logging

import (
	"io"

	"github.com/pkg/errors"
)

// Options describe how the process logger is built.
type Options struct {
	Level string
	// File is optional. An empty path logs to stdout only.
	File FileAppenderConfig
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// NewLoggerFromOptions builds a stdout logger at the requested level and, when a file path is set,
// tees into a rotated log file. The returned closer must be closed at shutdown.
func NewLoggerFromOptions(name string, opts Options) (Logger, io.Closer, error) {
	level, err := LevelFromString(opts.Level)
	if err != nil {
		return nil, nil, errors.Wrap(err, "invalid log level")
	}

	logger := NewLogger(name)
	logger.SetLevel(level)
	if opts.File.Path == "" {
		return logger, nopCloser{}, nil
	}

	appender, closer := NewFileAppender(opts.File)
	logger.AddAppender(appender)
	return logger, closer, nil
}
