package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Options select the level, format and optional file of the global logger.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // text or json
	File   string
}

// ParseLevel accepts logrus level names; empty means info.
func ParseLevel(s string) (logrus.Level, error) {
	if strings.TrimSpace(s) == "" {
		return logrus.InfoLevel, nil
	}
	return logrus.ParseLevel(s)
}

// Setup configures the standard logrus logger. When a log file is given,
// entries go to both stderr and the file; if the file cannot be opened the
// logger stays on stderr and the failure is logged. The returned closer
// releases the file.
func Setup(opts Options) (io.Closer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nopCloser{}, fmt.Errorf("log level: %w", err)
	}
	return configure(logrus.StandardLogger(), level, opts.Format, opts.File)
}

func configure(l *logrus.Logger, level logrus.Level, format, filePath string) (io.Closer, error) {
	switch strings.ToLower(format) {
	case "", "text":
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nopCloser{}, fmt.Errorf("unknown log format %q", format)
	}
	l.SetLevel(level)

	if filePath == "" {
		l.SetOutput(os.Stderr)
		return nopCloser{}, nil
	}
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
	if err != nil {
		l.SetOutput(os.Stderr)
		l.WithError(err).Error("Could not create file for logging")
		return nopCloser{}, nil
	}
	l.SetOutput(io.MultiWriter(os.Stderr, file))
	return file, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
