// Package logutil centralizes the logrus setup shared by every package's
// module-scoped logger, following the teacher's convention of a
// package-level `log` identifier formatted with logrus-easy-formatter.
package logutil

import (
	easy "git.fiblab.net/utils/logrus-easy-formatter"
	"github.com/sirupsen/logrus"
)

var configured bool

// Configure installs the shared formatter and level exactly once. Safe to
// call from multiple package init()s; idempotent.
func Configure(level logrus.Level) {
	if configured {
		logrus.SetLevel(level)
		return
	}
	logrus.SetFormatter(&easy.Formatter{
		TimestampFormat: "2006-01-02 15:04:05.0000",
		LogFormat:       "[%module%] [%time%] [%lvl%] %msg%\n",
	})
	logrus.SetLevel(level)
	configured = true
}

// For returns a module-tagged logger, e.g. logutil.For("floorfield").
func For(module string) logrus.FieldLogger {
	return logrus.WithField("module", module)
}
