package log

import (
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// NewPrintLogger returns a printf-style logger for client libraries that
// cannot take a slog.Logger, such as the sarama Kafka client.
func NewPrintLogger(module string) *logrus.Entry {
	return logrus.WithField("module", module)
}

// configureLogrus applies the same level and format rules as New to logger.
func configureLogrus(logger *logrus.Logger, w io.Writer, logLevel string, format string) {
	logger.SetOutput(w)

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}

	logger.SetLevel(level)

	if strings.EqualFold(format, FormatJSON) {
		logger.SetFormatter(&logrus.JSONFormatter{})

		return
	}

	logger.SetFormatter(&logrus.TextFormatter{DisableColors: true, FullTimestamp: true})
}
