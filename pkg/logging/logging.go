// Package logging configures the process-wide structured logger. Every
// component logs through a *logrus.Entry carrying a component field, so
// output from the buffer pool, the catalog, and the CLI can be told apart
// when it is interleaved.
package logging

import (
	"io"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// New builds a logger at the given level writing to out. Level strings are
// the usual logrus set: panic, fatal, error, warn, info, debug, trace.
func New(level string, out io.Writer) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, errors.Wrapf(err, "unknown log level %q", level)
	}
	l := logrus.New()
	l.SetLevel(lvl)
	l.SetOutput(out)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000",
	})
	return l, nil
}

// Component returns an entry tagged with the component's name.
func Component(l *logrus.Logger, name string) *logrus.Entry {
	return l.WithField("component", name)
}

// Discard returns an entry that drops everything, for tests and for
// callers that pass no logger.
func Discard() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}
