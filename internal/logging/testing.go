package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// NewNop returns a logger that discards everything. For tests and as a
// default when callers pass nil.
func NewNop() *Logger {
	return &Logger{zap: zap.NewNop()}
}

// NewObserved returns a logger backed by an in-memory observer, for
// asserting on emitted log entries in tests.
func NewObserved(level zapcore.Level) (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return &Logger{zap: zap.New(core)}, logs
}
