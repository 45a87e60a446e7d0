package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	logger *logrus.Logger
	mu     sync.Mutex
)

// Init replaces the process logger. format is "json" or "text".
func Init(level, format string) error {
	l := logrus.New()
	l.SetOutput(os.Stderr)

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	case "text":
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("logger: unknown format %q", format)
	}

	if strings.TrimSpace(level) == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	l.SetLevel(lvl)

	mu.Lock()
	logger = l
	mu.Unlock()
	return nil
}

func Get() *logrus.Logger {
	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetLevel(logrus.InfoLevel)
	}
	return logger
}

// Discard returns a logger that writes nowhere, for tests and the TUI.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
