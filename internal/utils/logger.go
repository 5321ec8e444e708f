// internal/utils/logger.go
package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"civitai-scraper/internal/config"

	"github.com/sirupsen/logrus"
)

// NewLogger builds the process logger from the logging section. When a log
// file is configured, output goes to both stdout and the file; the returned
// closer releases the file and is never nil.
func NewLogger(cfg config.LoggingConfig, debug bool) (*logrus.Logger, io.Closer, error) {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	level := logrus.InfoLevel
	if cfg.Level != "" {
		parsed, err := logrus.ParseLevel(cfg.Level)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		level = parsed
	}
	if debug {
		level = logrus.DebugLevel
	}
	logger.SetLevel(level)
	logger.SetOutput(os.Stdout)

	if cfg.File == "" {
		return logger, io.NopCloser(nil), nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	logger.SetOutput(io.MultiWriter(os.Stdout, file))
	return logger, file, nil
}
