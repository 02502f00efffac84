package observability

import (
	"os"

	"github.com/sirupsen/logrus"
)

// NewLogger creates the application logger. Level is one of debug, info,
// warn, error (defaulting to info); json selects the JSON formatter for
// structured log shipping.
func NewLogger(level string, json bool) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	log.SetLevel(parsed)

	if json {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}
