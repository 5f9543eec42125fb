package config

import (
	"os"

	"github.com/sirupsen/logrus"
)

var logg *logrus.Logger

func init() {
	logg = logrus.New()
	logg.SetFormatter(&logrus.JSONFormatter{})
	logg.SetLevel(logrus.InfoLevel)
	logg.SetOutput(os.Stdout)
}

// GetLogger returns the process logger.
func GetLogger() *logrus.Logger {
	return logg
}

// SetLogLevel applies LOG_LEVEL. Unknown levels leave the current one.
func SetLogLevel(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		logg.Warnf("⚠️  unknown log level %q, keeping %s", level, logg.GetLevel())
		return
	}
	logg.SetLevel(lvl)
}

// ComponentLogger tags every entry with the component name.
func ComponentLogger(component string) *logrus.Entry {
	return logg.WithField("component", component)
}

// LogError logs err with the module, function and context it happened in.
func LogError(logger logrus.FieldLogger, moduleName string, funcName string, context string, data any, err error) {
	fields := logrus.Fields{
		"module":   moduleName,
		"funcName": funcName,
		"context":  context,
	}
	if data != nil {
		fields["data"] = data
	}
	logger.WithFields(fields).Error(err.Error())
}
