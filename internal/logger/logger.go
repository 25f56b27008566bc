// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed as part of the sysgenid project.
// Copyright 2016-present sysgenid authors.

// Package logger wraps zap so that business packages never import it
// directly, keeping the logging backend behind a small seam instead
// of scattering zap.New calls everywhere.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the sugared logging handle passed to every component.
type Logger = zap.SugaredLogger

// New builds a production-style (JSON-encoded) logger at the given level.
// Levels recognized: debug, info, warn, error; anything else falls
// back to info.
func New(level string) (*Logger, error) {
	lvl := parseLevel(level)

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return l.Sugar(), nil
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Nop returns a no-op logger, used by tests that don't care about
// log output.
func Nop() *Logger {
	return zap.NewNop().Sugar()
}
