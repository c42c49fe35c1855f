package utils

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var (
	InfoLogger  *logrus.Logger
	ErrorLogger *logrus.Logger
)

// InitLogger sets up InfoLogger on stdout and ErrorLogger on stderr.
// format is "text" or "json"; level is any logrus level name.
func InitLogger(level, format string) {
	InfoLogger = logrus.New()
	ErrorLogger = logrus.New()

	InfoLogger.SetOutput(os.Stdout)
	ErrorLogger.SetOutput(os.Stderr)

	var formatter logrus.Formatter = &logrus.TextFormatter{
		FullTimestamp: true,
	}
	if strings.EqualFold(format, "json") {
		formatter = &logrus.JSONFormatter{}
	}
	InfoLogger.SetFormatter(formatter)
	ErrorLogger.SetFormatter(formatter)

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	InfoLogger.SetLevel(lvl)
	ErrorLogger.SetLevel(logrus.ErrorLevel)
}

// Loggers are nil until InitLogger runs; tests and packages that log
// before main does fall back to a default setup.
func ensureLoggers() {
	if InfoLogger == nil || ErrorLogger == nil {
		InitLogger("info", "text")
	}
}

// Info returns an entry on InfoLogger with the given fields.
func Info(fields logrus.Fields) *logrus.Entry {
	ensureLoggers()
	return InfoLogger.WithFields(fields)
}

// Error returns an entry on ErrorLogger with the given fields.
func Error(fields logrus.Fields) *logrus.Entry {
	ensureLoggers()
	return ErrorLogger.WithFields(fields)
}
