// Package obslog provides the small structured-logging interface shared by
// every asyncbridge component. Components never import zap directly; they
// accept a Logger and default to a no-op one when the caller doesn't supply
// one.
package obslog

import "go.uber.org/zap"

// Logger is satisfied by anything that can log a message with key-value
// pairs. The shape matches a common VerboseLogger convention so callers
// already holding a similar adapter can reuse it directly.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type noop struct{}

func (noop) Debug(string, ...any) {}
func (noop) Warn(string, ...any)  {}
func (noop) Error(string, ...any) {}

// NoOp is the default Logger: silent.
var NoOp Logger = noop{}

// NewZap adapts a *zap.Logger into a Logger.
func NewZap(l *zap.Logger) Logger {
	return zapLogger{s: l.Sugar()}
}

type zapLogger struct{ s *zap.SugaredLogger }

func (z zapLogger) Debug(msg string, kv ...any) { z.s.Debugw(msg, kv...) }
func (z zapLogger) Warn(msg string, kv ...any)  { z.s.Warnw(msg, kv...) }
func (z zapLogger) Error(msg string, kv ...any) { z.s.Errorw(msg, kv...) }
