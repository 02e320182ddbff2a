package logger

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

func parseLevel(level string) zapcore.Level {
	l, err := zapcore.ParseLevel(level)
	if err != nil {
		return zapcore.InfoLevel
	}
	return l
}

func NewLogger(level string) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(parseLevel(level))
	return config.Build()
}

// Rotation bounds the on-disk trade log.
type Rotation struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// NewFileLogger writes JSON to stderr and a human-readable, append-only copy to path.
// The file is rotated by lumberjack.
func NewFileLogger(path, level string, rot Rotation) (*zap.Logger, func(), error) {
	if path == "" {
		l, err := NewLogger(level)
		return l, func() { _ = l.Sync() }, err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
	}

	file := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    rot.MaxSizeMB,
		MaxBackups: rot.MaxBackups,
		MaxAge:     rot.MaxAgeDays,
	}

	lvl := zap.NewAtomicLevelAt(parseLevel(level))

	fileEnc := zap.NewDevelopmentEncoderConfig()
	fileEnc.EncodeTime = zapcore.ISO8601TimeEncoder
	fileEnc.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewTee(
		zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), zapcore.Lock(os.Stderr), lvl),
		zapcore.NewCore(zapcore.NewConsoleEncoder(fileEnc), zapcore.AddSync(file), lvl),
	)
	l := zap.New(core, zap.AddCaller())

	cleanup := func() {
		_ = l.Sync()
		_ = file.Close()
	}
	return l, cleanup, nil
}
