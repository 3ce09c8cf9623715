// Package xlog wraps zap so every log line carries the bracket-prefixed
// tag an external dashboard can scrape: "[Core <id>] …", "[SYSTEM] …",
// "[MSG] Core X → Core Y: <TYPE>", "[LOAD BALANCER] …", "[SMP] …". The
// prefix is part of the message body, not a structured field, so it
// survives whatever encoder the caller configures.
package xlog

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Field re-exports zap's field constructors so call sites read the
// same way regardless of which field type they're attaching.
type Field = zap.Field

var (
	String  = zap.String
	Int     = zap.Int
	Int64   = zap.Int64
	Uint64  = zap.Uint64
	Float64 = zap.Float64
	Bool    = zap.Bool
	Err     = zap.Error
	Dur     = zap.Duration
)

// Logger is a thin façade over *zap.Logger that prepends the scrape
// prefixes the dashboard depends on.
type Logger struct {
	z *zap.Logger
}

// New builds a Logger. colorize/showCaller are not knobs here: zap's
// console encoder handles terminal formatting, and zap's development
// config already records caller info on every line.
func New(level zapcore.Level) *Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	z, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		// Build only fails on a malformed config; ours is static.
		panic(err)
	}
	return &Logger{z: z}
}

// Sync flushes any buffered log entries.
func (l *Logger) Sync() error { return l.z.Sync() }

// Core returns a logger whose messages are prefixed "[Core <id>]".
func (l *Logger) Core(id int) *ScopedLogger {
	return &ScopedLogger{l: l.z, prefix: fmt.Sprintf("[Core %d]", id)}
}

// System returns a logger whose messages are prefixed "[SYSTEM]".
func (l *Logger) System() *ScopedLogger {
	return &ScopedLogger{l: l.z, prefix: "[SYSTEM]"}
}

// LoadBalancer returns a logger whose messages are prefixed "[LOAD BALANCER]".
func (l *Logger) LoadBalancer() *ScopedLogger {
	return &ScopedLogger{l: l.z, prefix: "[LOAD BALANCER]"}
}

// SMP returns a logger whose messages are prefixed "[SMP]".
func (l *Logger) SMP() *ScopedLogger {
	return &ScopedLogger{l: l.z, prefix: "[SMP]"}
}

// Msg logs one "[MSG] Core X → Core Y: <TYPE>" line. This exact shape is
// load-bearing: the dashboard's scraper parses it verbatim.
func (l *Logger) Msg(src, dst int, msgType fmt.Stringer, fields ...Field) {
	l.z.Info(fmt.Sprintf("[MSG] Core %d → Core %d: %s", src, dst, msgType), fields...)
}

// ScopedLogger carries a fixed bracket prefix for one component.
type ScopedLogger struct {
	l      *zap.Logger
	prefix string
}

func (s *ScopedLogger) Debug(msg string, fields ...Field) { s.l.Debug(s.prefix+" "+msg, fields...) }
func (s *ScopedLogger) Info(msg string, fields ...Field)  { s.l.Info(s.prefix+" "+msg, fields...) }
func (s *ScopedLogger) Warn(msg string, fields ...Field)  { s.l.Warn(s.prefix+" "+msg, fields...) }
func (s *ScopedLogger) Error(msg string, fields ...Field) { s.l.Error(s.prefix+" "+msg, fields...) }
