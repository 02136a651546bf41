package main

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	baseLogger = logrus.New()
	loggers    = make(map[string]*logrus.Entry)
	loggersMu  sync.Mutex
)

// NewLogger returns the logger for a component. Entries are cached per
// component and share the base logger, so ConfigureLogging applies to all.
func NewLogger(component string) *logrus.Entry {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	if logger, exists := loggers[component]; exists {
		return logger
	}
	logger := baseLogger.WithField("component", component)
	loggers[component] = logger
	return logger
}

// ConfigureLogging applies the logging section. SPARKCLIENT_LOG_LEVEL wins over cfg.Level.
func ConfigureLogging(cfg LoggingConfig, out io.Writer) {
	levelStr := cfg.Level
	if env := os.Getenv("SPARKCLIENT_LOG_LEVEL"); env != "" {
		levelStr = env
	}
	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		level = logrus.InfoLevel
	}
	baseLogger.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "json":
		baseLogger.SetFormatter(&logrus.JSONFormatter{})
	default:
		baseLogger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if out != nil {
		baseLogger.SetOutput(out)
	}
}
