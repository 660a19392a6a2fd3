// Package log wires up the agent's structured logger: a logrus instance
// writing a fixed %time/%level/%field/%msg/%caller pattern to stderr and,
// optionally, a lumberjack-rotated file.
package log

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Config controls the constructed logger. Verbose elevates the level to
// Debug (spec.md §6's `-v|--verbose` CLI flag); File, when non-empty, adds a
// rotating file appender alongside stderr.
type Config struct {
	Verbose bool
	File    string

	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

const defaultPattern = "%time [%level] %msg %field (%caller)"
const defaultTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// New builds a *logrus.Logger per cfg.
func New(cfg Config) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&patternFormatter{pattern: defaultPattern, time: defaultTimeLayout})
	logger.SetReportCaller(true)

	level := logrus.InfoLevel
	if cfg.Verbose {
		level = logrus.DebugLevel
	}
	logger.SetLevel(level)

	out := NewMultiWriter().Add(os.Stderr)
	if cfg.File != "" {
		out = out.AddFileAppender(FileAppenderOpt{
			Filename:   cfg.File,
			MaxSize:    orDefault(cfg.MaxSizeMB, 100),
			MaxBackups: orDefault(cfg.MaxBackups, 3),
			MaxAge:     orDefault(cfg.MaxAgeDays, 28),
			Compress:   cfg.Compress,
		})
	}
	logger.SetOutput(out)

	return logger
}

func orDefault(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}
