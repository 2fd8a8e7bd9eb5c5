package utils

import (
	"os"

	"github.com/sirupsen/logrus"
)

// NewLogger returns a component-tagged logrus entry. Every subsystem gets
// its own entry so log lines can be filtered by component.
func NewLogger(component string) *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	if os.Getenv("LOG_LEVEL") == "debug" {
		logger.SetLevel(logrus.DebugLevel)
	}
	return logger.WithField("component", component)
}
