// Package logging builds the process-wide zap logger: one configured
// *zap.Logger constructed at startup, with an optional rolling file
// sink layered on top of stderr via a lumberjack-family writer
// (github.com/DeRuina/timberjack).
package logging

import (
	"os"

	"github.com/DeRuina/timberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options configures the logger.
type Options struct {
	// File, if non-empty, is a path to roll logs into in addition to
	// stderr.
	File   string
	RollMB int
	Debug  bool
}

// New builds the process logger per opts.
func New(opts Options) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if opts.Debug {
		level = zapcore.DebugLevel
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(encoderCfg)

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), level),
	}

	if opts.File != "" {
		rollMB := opts.RollMB
		if rollMB <= 0 {
			rollMB = 100
		}
		roller := &timberjack.Logger{
			Filename:   opts.File,
			MaxSize:    rollMB,
			MaxAge:     14,
			MaxBackups: 10,
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(roller), level))
	}

	core := zapcore.NewTee(cores...)
	return zap.New(core), nil
}
