package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Init configures the standard logrus logger. format is "json" or "text".
func Init(level, format string) error {
	lvl, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logrus.SetLevel(lvl)
	logrus.SetOutput(os.Stdout)

	switch strings.ToLower(format) {
	case "", "json":
		logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	case "text":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("invalid log format %q", format)
	}
	return nil
}

// SetOutput redirects log output, mostly for tests.
func SetOutput(w io.Writer) {
	logrus.SetOutput(w)
}

// Audit logs a mutating action against a report.
func Audit(action, userID, reportID string, details map[string]interface{}) {
	fields := logrus.Fields{
		"audit":     true,
		"action":    action,
		"user_id":   userID,
		"report_id": reportID,
	}
	for k, v := range details {
		if _, reserved := fields[k]; !reserved {
			fields[k] = v
		}
	}
	logrus.WithFields(fields).Info("[AUDIT] " + action)
}
