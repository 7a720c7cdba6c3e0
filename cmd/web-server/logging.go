package main

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

type logOptions struct {
	level      string
	format     string
	file       string
	maxSizeMB  int
	maxBackups int
	maxAgeDays int
}

// newLogger builds the process logger. With a file set, output goes to a
// rotating file instead of stderr; the returned closer releases it.
func newLogger(opts logOptions) (*logrus.Logger, io.Closer, error) {
	logger := logrus.New()

	level, err := logrus.ParseLevel(opts.level)
	if err != nil {
		return nil, nil, fmt.Errorf("log level: %w", err)
	}
	logger.SetLevel(level)

	switch opts.format {
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, nil, fmt.Errorf("unknown log format %q", opts.format)
	}

	var closer io.Closer = nopCloser{}
	if opts.file != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.file,
			MaxSize:    opts.maxSizeMB,
			MaxBackups: opts.maxBackups,
			MaxAge:     opts.maxAgeDays,
			Compress:   true,
		}
		logger.SetOutput(rotator)
		closer = rotator
	} else {
		logger.SetOutput(os.Stderr)
	}
	return logger, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
