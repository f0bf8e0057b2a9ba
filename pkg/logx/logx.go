// Package logx provides the calibration core's structured logging setup:
// zap for structured fields, lumberjack for log-file rotation.
package logx

import (
	"os"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls where and how calibration logs are written.
type Config struct {
	// FilePath is the log file path. Empty disables file output.
	FilePath string
	// MaxSizeMB is the max size in megabytes before rotation.
	MaxSizeMB int
	// MaxBackups is the number of rotated files to retain.
	MaxBackups int
	// MaxAgeDays is the max age in days of a rotated file.
	MaxAgeDays int
	// Level is the minimum enabled log level.
	Level zapcore.Level
	// Console, when true, also writes human-readable output to stderr.
	Console bool
}

// DefaultConfig returns sane defaults for a calibration session log.
func DefaultConfig() Config {
	return Config{
		FilePath:   "deltacal.log",
		MaxSizeMB:  10,
		MaxBackups: 3,
		MaxAgeDays: 28,
		Level:      zapcore.InfoLevel,
		Console:    true,
	}
}

// New builds a *zap.SugaredLogger per cfg. Passing the zero Config produces
// a console-only logger at info level.
func New(cfg Config) (*zap.SugaredLogger, error) {
	var cores []zapcore.Core

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	if cfg.FilePath != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    orDefault(cfg.MaxSizeMB, 10),
			MaxBackups: orDefault(cfg.MaxBackups, 3),
			MaxAge:     orDefault(cfg.MaxAgeDays, 28),
		}
		fileCore := zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderCfg),
			zapcore.AddSync(rotator),
			cfg.Level,
		)
		cores = append(cores, fileCore)
	}

	if cfg.Console || cfg.FilePath == "" {
		consoleCfg := encoderCfg
		consoleCore := zapcore.NewCore(
			zapcore.NewConsoleEncoder(consoleCfg),
			zapcore.Lock(zapcore.AddSync(os.Stderr)),
			cfg.Level,
		)
		cores = append(cores, consoleCore)
	}

	core := zapcore.NewTee(cores...)
	logger := zap.New(core, zap.AddCaller())
	return logger.Sugar(), nil
}

// Nop returns a logger that discards everything, for tests and callers that
// don't care about calibration logs.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
