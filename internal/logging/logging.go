// Package logging configures logrus and carries a request-scoped entry
// through context.Context.
package logging

import (
	"context"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// CorrelationHeader is read from incoming requests and echoed on responses.
const CorrelationHeader = "Correlation-ID"

type entryKey struct{}
type correlationKey struct{}

// Init sets the global logger.  format "json" selects the JSON formatter,
// anything else the text formatter.
func Init(level, format string) {
	logrus.SetOutput(os.Stdout)
	if strings.EqualFold(format, "json") {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logrus.SetLevel(lvl)
}

// WithEntry stores a logger entry in ctx.
func WithEntry(ctx context.Context, e *logrus.Entry) context.Context {
	return context.WithValue(ctx, entryKey{}, e)
}

// FromContext returns the entry stored in ctx, or a bare entry on the
// standard logger.  The correlation id is attached when present.
func FromContext(ctx context.Context) *logrus.Entry {
	if e, ok := ctx.Value(entryKey{}).(*logrus.Entry); ok {
		return e
	}
	e := logrus.NewEntry(logrus.StandardLogger())
	if id := CorrelationID(ctx); id != "" {
		e = e.WithField("correlation_id", id)
	}
	return e
}

func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}
