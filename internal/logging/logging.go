// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package logging wraps luxfi/log so the rest of the relayer depends on an
// explicitly constructed logger handle instead of an ambient global.
package logging

import (
	"fmt"

	"github.com/luxfi/log"
)

// Logger is re-exported so callers never need to import luxfi/log directly.
type Logger = log.Logger

// Field is re-exported for structured logging call sites.
type Field = log.Field

// New builds a Logger for the given level name ("debug", "info" or "",
// "warn"/"warning", "error", "fatal"); an unrecognized name is rejected
// with an error.
func New(level string) (Logger, error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return nil, err
	}
	return log.NewTestLogger(lvl), nil
}

// NoOp returns a logger that discards everything, used in tests.
func NoOp() Logger {
	return log.NewNoOpLogger()
}

func parseLevel(level string) (log.Level, error) {
	switch level {
	case "", "info":
		return log.InfoLevel, nil
	case "debug":
		return log.DebugLevel, nil
	case "warn", "warning":
		return log.WarnLevel, nil
	case "error":
		return log.ErrorLevel, nil
	case "fatal":
		return log.FatalLevel, nil
	default:
		return log.InfoLevel, fmt.Errorf("logging: unknown level %q", level)
	}
}

// Err wraps an error as a structured field, grounded on the log.Err(err)
// call sites used throughout the consensus engine's notifier/poll packages.
func Err(err error) Field {
	return log.Err(err)
}

// String, Uint64, Int, and Uint32 re-export the structured field
// constructors used at every luxfi/log call site in the pack.
func String(key, value string) Field { return log.String(key, value) }
func Uint64(key string, value uint64) Field { return log.Uint64(key, value) }
func Int(key string, value int) Field { return log.Int(key, value) }
func Uint32(key string, value uint32) Field { return log.Uint32(key, value) }
func Bool(key string, value bool) Field { return log.Bool(key, value) }
