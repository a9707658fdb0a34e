// Package log carries a leveled logger through context.Context so the
// trust store, chain builder, revocation checker and verifier can report
// diagnostics without depending on a concrete logging backend.
package log

import "context"

type contextKey int

const loggerKey contextKey = iota

// Discard drops every message.
var Discard Logger = &discardLogger{}

// Logger is satisfied by most leveled loggers, for example
// go.uber.org/zap.SugaredLogger and github.com/sirupsen/logrus.Logger.
type Logger interface {
	// Debug logs a debug level message.
	Debug(args ...interface{})

	// Debugf logs a debug level message with format.
	Debugf(format string, args ...interface{})

	// Info logs an info level message.
	Info(args ...interface{})

	// Infof logs an info level message with format.
	Infof(format string, args ...interface{})

	// Warn logs a warn level message.
	Warn(args ...interface{})

	// Warnf logs a warn level message with format.
	Warnf(format string, args ...interface{})

	// Error logs an error level message.
	Error(args ...interface{})

	// Errorf logs an error level message with format.
	Errorf(format string, args ...interface{})
}

// WithLogger returns a copy of ctx carrying logger.
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// GetLogger returns the logger stored in ctx, or Discard.
func GetLogger(ctx context.Context) Logger {
	if ctx == nil {
		return Discard
	}
	if logger, ok := ctx.Value(loggerKey).(Logger); ok && logger != nil {
		return logger
	}
	return Discard
}

type discardLogger struct{}

func (dl *discardLogger) Debug(args ...interface{})                 {}
func (dl *discardLogger) Debugf(format string, args ...interface{}) {}
func (dl *discardLogger) Info(args ...interface{})                  {}
func (dl *discardLogger) Infof(format string, args ...interface{})  {}
func (dl *discardLogger) Warn(args ...interface{})                  {}
func (dl *discardLogger) Warnf(format string, args ...interface{})  {}
func (dl *discardLogger) Error(args ...interface{})                 {}
func (dl *discardLogger) Errorf(format string, args ...interface{}) {}
