// Package logger builds the shared logrus logger for the daemon.
package logger

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// New constructs a logger writing to stdout at the given level. The
// returned entry is the root; components derive their own entries with
// WithField("component", ...).
func New(level string) (*logrus.Entry, error) {
	log := logrus.New()
	log.SetOutput(os.Stdout)
	log.Formatter = &logrus.TextFormatter{
		TimestampFormat:  "2006-01-02 15:04:05.0000",
		FullTimestamp:    true,
		QuoteEmptyFields: true,
	}

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	log.SetLevel(lvl)
	// Single stdout writer, no mutex needed.
	log.SetNoLock()

	return logrus.NewEntry(log), nil
}
