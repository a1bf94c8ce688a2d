// Package oceanlog provides the logging interface used internally by
// ocean's components. It mirrors the teacher's sql/log package: a small
// structured-logging surface that any backend can satisfy, with a
// Logrus adapter as the production implementation and a Discard
// implementation as the zero-configuration default.
package oceanlog

import "github.com/sirupsen/logrus"

type (
	// Logger is the logging interface used by ocean's internal
	// components. It is a subset of logrus.FieldLogger, so a Logrus
	// instance satisfies it directly via embedding.
	Logger interface {
		WithField(key string, value any) Logger
		WithFields(fields map[string]any) Logger
		WithError(err error) Logger
		Debug(args ...any)
		Info(args ...any)
		Warn(args ...any)
		Error(args ...any)
	}

	// Discard implements Logger as a no-op, so an *Engine is usable
	// without any logging configured.
	Discard struct{}

	// Logrus adapts a logrus.FieldLogger to Logger.
	Logrus struct{ logrus.FieldLogger }
)

var (
	_ Logger = Discard{}
	_ Logger = Logrus{}
)

func (Discard) WithField(string, any) Logger     { return Discard{} }
func (Discard) WithFields(map[string]any) Logger { return Discard{} }
func (Discard) WithError(error) Logger           { return Discard{} }
func (Discard) Debug(...any)                     {}
func (Discard) Info(...any)                      {}
func (Discard) Warn(...any)                      {}
func (Discard) Error(...any)                     {}

func (x Logrus) WithField(key string, value any) Logger {
	return Logrus{FieldLogger: x.FieldLogger.WithField(key, value)}
}

func (x Logrus) WithFields(fields map[string]any) Logger {
	return Logrus{FieldLogger: x.FieldLogger.WithFields(fields)}
}

func (x Logrus) WithError(err error) Logger {
	return Logrus{FieldLogger: x.FieldLogger.WithError(err)}
}

// NewLogrus wraps a *logrus.Logger (or any logrus.FieldLogger, such as
// an existing entry) as a Logger.
func NewLogrus(l logrus.FieldLogger) Logger {
	return Logrus{FieldLogger: l}
}
