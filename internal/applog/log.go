// Package applog wires the engine's single logrus logger.
//
// Every component constructor takes a *logrus.Logger, the same threading
// discipline the application layer uses to hand one logger instance down
// into every long-lived component.
package applog

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Config controls the logger's output format and verbosity.
type Config struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // json|text
}

// New builds a logrus.Logger from Config, defaulting to info/json.
func New(cfg Config) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	return logger
}
