package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/wardenops/warden/internal/version"
)

var _log = logrus.New()

// Init configures the process-wide logger. Development gets human-readable
// text at debug level; everything else ships JSON at info so log shippers
// can index the fields.
func Init(debug bool, out io.Writer) {
	if out == nil {
		out = os.Stdout
	}
	_log.SetOutput(out)
	if debug {
		_log.SetLevel(logrus.DebugLevel)
		_log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		return
	}
	_log.SetLevel(logrus.InfoLevel)
	_log.SetFormatter(&logrus.JSONFormatter{})
}

// Log returns an entry tagged with the service name.
func Log() *logrus.Entry {
	return _log.WithField("service", strings.ToLower(version.Name))
}

// WithFields returns a tagged entry carrying the provided fields.
func WithFields(fields logrus.Fields) *logrus.Entry {
	return Log().WithFields(fields)
}
