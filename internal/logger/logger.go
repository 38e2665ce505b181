package logger

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Format selects the logrus formatter.
type Format string

const (
	// FormatText is used for the command-line tool, where logs share stderr with user messages.
	FormatText Format = "text"
	// FormatJSON is used by the HTTP server.
	FormatJSON Format = "json"
)

// New creates a new logger instance writing to out
func New(level string, format Format, out io.Writer) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(out)

	switch format {
	case FormatJSON:
		log.SetFormatter(&logrus.JSONFormatter{})
	default:
		log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	}

	log.SetLevel(ParseLevel(level))
	return log
}

// ParseLevel maps a level name to a logrus level, defaulting to info.
func ParseLevel(level string) logrus.Level {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return logrus.InfoLevel
	}
	return parsed
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}
