// internal/infra/logger/logger.go
package logger

import (
	"os"

	"partner_report_engine/internal/infra/config"

	"github.com/sirupsen/logrus"
)

const serviceName = "partner_report_engine"

// Log is the process-wide logger. Init configures it once at startup.
var Log = logrus.New()

var base = logrus.NewEntry(Log)

// Init applies level and format from cfg. Structured JSON is used outside development.
func Init(cfg *config.AppConfig) {
	Log.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		Log.WithField("log_level", cfg.LogLevel).Warn("Unknown log level, using info")
		level = logrus.InfoLevel
	}
	Log.SetLevel(level)

	switch cfg.Environment {
	case "production", "staging":
		Log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
			FieldMap:        logrus.FieldMap{logrus.FieldKeyMsg: "message"},
		})
	default:
		Log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	base = Log.WithFields(logrus.Fields{"service": serviceName, "env": cfg.Environment})
	base.WithField("level", level.String()).Debug("Logger configured")
}

// Base is the root entry every component logger derives from.
func Base() *logrus.Entry {
	return base
}

// Component returns Base tagged with the component name.
func Component(name string) *logrus.Entry {
	return base.WithField("component", name)
}
