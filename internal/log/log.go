// Package log sets up the logrus logger shared by the command line tools.
package log

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

// InitLogs returns a text logger writing to w at the given level
// ("debug", "info", "warn", "error").
func InitLogs(w io.Writer, level string) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	log := logrus.New()
	log.SetOutput(w)
	log.SetLevel(lvl)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	return log, nil
}

// WithFile returns a logger annotated with the record file being processed.
func WithFile(path string, inner logrus.FieldLogger) logrus.FieldLogger {
	return inner.WithField("path", path)
}

// Discard returns a logger that drops all entries. Useful in tests.
func Discard() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}
