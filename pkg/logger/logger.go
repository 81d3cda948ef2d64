// SPDX-FileCopyrightText: Copyright 2026 Podward Authors
// SPDX-License-Identifier: Apache-2.0

// Package logger provides structured logging for podward.
//
// The package exposes a process-wide logger with sugared helpers
// (Infow, Errorw, ...) so call sites stay terse. The logger is replaced
// once by Initialize in cmd; a sane default is installed at import time
// so library code never has to nil-check.
package logger

import (
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// singleton is the package-level logger. Accessed atomically so it is
// safe to swap while other goroutines are logging.
var singleton atomic.Pointer[zap.SugaredLogger]

func init() {
	// Default logger for callers that skip Initialize.
	singleton.Store(newLogger(false).Sugar())
}

func newLogger(debug bool) *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		cfg.Encoding = "console"
	}
	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		// zap only fails on invalid config, which is fixed above.
		panic(err)
	}
	return l
}

// Initialize sets up the process logger. debug enables debug-level,
// console-encoded output for local development.
func Initialize(debug bool) {
	singleton.Store(newLogger(debug).Sugar())
}

// Set replaces the singleton logger. Intended for tests that need to
// capture log output.
func Set(l *zap.Logger) {
	singleton.Store(l.WithOptions(zap.AddCallerSkip(1)).Sugar())
}

// Sync flushes any buffered log entries.
func Sync() error {
	return singleton.Load().Sync()
}

func get() *zap.SugaredLogger {
	return singleton.Load()
}

// Debug logs a message at debug level.
func Debug(msg string) { get().Debug(msg) }

// Debugf logs a formatted message at debug level.
func Debugf(msg string, args ...any) { get().Debugf(msg, args...) }

// Debugw logs a message at debug level with additional key-value pairs.
func Debugw(msg string, keysAndValues ...any) { get().Debugw(msg, keysAndValues...) }

// Info logs a message at info level.
func Info(msg string) { get().Info(msg) }

// Infof logs a formatted message at info level.
func Infof(msg string, args ...any) { get().Infof(msg, args...) }

// Infow logs a message at info level with additional key-value pairs.
func Infow(msg string, keysAndValues ...any) { get().Infow(msg, keysAndValues...) }

// Warn logs a message at warning level.
func Warn(msg string) { get().Warn(msg) }

// Warnf logs a formatted message at warning level.
func Warnf(msg string, args ...any) { get().Warnf(msg, args...) }

// Warnw logs a message at warning level with additional key-value pairs.
func Warnw(msg string, keysAndValues ...any) { get().Warnw(msg, keysAndValues...) }

// Error logs a message at error level.
func Error(msg string) { get().Error(msg) }

// Errorf logs a formatted message at error level.
func Errorf(msg string, args ...any) { get().Errorf(msg, args...) }

// Errorw logs a message at error level with additional key-value pairs.
func Errorw(msg string, keysAndValues ...any) { get().Errorw(msg, keysAndValues...) }
