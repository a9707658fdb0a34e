package log

import (
	"fmt"
	"io"
	stdlog "log"
)

// Level is the minimum severity a StdLogger writes.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel maps "debug", "info", "warn" and "error" to a Level.
func ParseLevel(s string) (Level, error) {
	switch s {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// StdLogger writes prefixed lines through the standard library logger.
type StdLogger struct {
	l     *stdlog.Logger
	level Level
}

// NewStdLogger returns a Logger writing to w at or above level.
func NewStdLogger(w io.Writer, level Level) *StdLogger {
	return &StdLogger{l: stdlog.New(w, "", stdlog.LstdFlags), level: level}
}

func (s *StdLogger) output(level Level, tag, msg string) {
	if level < s.level {
		return
	}
	_ = s.l.Output(3, tag+" "+msg)
}

func (s *StdLogger) Debug(args ...interface{}) { s.output(LevelDebug, "DEBUG", fmt.Sprint(args...)) }
func (s *StdLogger) Debugf(format string, args ...interface{}) {
	s.output(LevelDebug, "DEBUG", fmt.Sprintf(format, args...))
}
func (s *StdLogger) Info(args ...interface{}) { s.output(LevelInfo, "INFO", fmt.Sprint(args...)) }
func (s *StdLogger) Infof(format string, args ...interface{}) {
	s.output(LevelInfo, "INFO", fmt.Sprintf(format, args...))
}
func (s *StdLogger) Warn(args ...interface{}) { s.output(LevelWarn, "WARN", fmt.Sprint(args...)) }
func (s *StdLogger) Warnf(format string, args ...interface{}) {
	s.output(LevelWarn, "WARN", fmt.Sprintf(format, args...))
}
func (s *StdLogger) Error(args ...interface{}) { s.output(LevelError, "ERROR", fmt.Sprint(args...)) }
func (s *StdLogger) Errorf(format string, args ...interface{}) {
	s.output(LevelError, "ERROR", fmt.Sprintf(format, args...))
}
