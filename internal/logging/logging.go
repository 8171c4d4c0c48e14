/*
Copyright (c) Edgeless Systems GmbH

SPDX-License-Identifier: BUSL-1.1
*/

package logging

import (
	"io"
	"log"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the logger returned by [New].
type Options struct {
	// DevMode enables human readable output and stack traces for warnings.
	DevMode bool
	// Debug enables debug logs.
	Debug bool
	// File is an optional path logs are additionally written to. The file is rotated.
	File string
}

// New creates a new [*zap.Logger].
func New(opts Options) (*zap.Logger, error) {
	var cfg zap.Config
	if opts.DevMode {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.DisableStacktrace = true // Disable stacktraces in production
	}
	if opts.Debug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	if opts.File == "" {
		return logger, nil
	}

	rotating := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
	}
	fileCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		zapcore.AddSync(rotating),
		cfg.Level,
	)
	return logger.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return zapcore.NewTee(c, fileCore)
	})), nil
}

// NewWrapper creates a new [*log.Logger] that writes to the given [*zap.Logger].
func NewWrapper(zapLogger *zap.Logger) *log.Logger {
	return log.New(NewWriter(zapLogger, zapcore.ErrorLevel), "", 0)
}

// NewWriter returns an [io.Writer] that logs every line written to it at the given level.
func NewWriter(zapLogger *zap.Logger, lvl zapcore.Level) io.Writer {
	return logWrapper{Logger: zapLogger, lvl: lvl}
}

// logWrapper implements [io.Writer] by writing any data to the embedded [*zap.Logger].
type logWrapper struct {
	*zap.Logger
	lvl zapcore.Level
}

func (l logWrapper) Write(p []byte) (n int, err error) {
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		if line == "" {
			continue
		}
		l.Log(l.lvl, line)
	}
	return len(p), nil
}
