package logger

import (
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// Setup configures the global logrus logger with JSON output. Domain
// packages log through logrus directly; this keeps their output consistent.
func Setup() {
	if os.Getenv("ENV") == "test" {
		logrus.SetOutput(io.Discard)
	}

	level, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	logrus.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyMsg:   "message",
			logrus.FieldKeyLevel: "level",
		},
	})
}
