package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type options struct {
	level   zapcore.Level
	console bool
	file    string
}

type Option func(*options)

// WithLevel sets the minimum level ("debug", "info", "warn", "error").
func WithLevel(level string) Option {
	return func(o *options) {
		if level == "" {
			return
		}
		if l, err := zapcore.ParseLevel(level); err == nil {
			o.level = l
		}
	}
}

// WithConsole tees every entry to stderr in human-readable form.
func WithConsole(on bool) Option {
	return func(o *options) { o.console = on }
}

// WithFileName overrides the log file name inside logDir.
func WithFileName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.file = name
		}
	}
}

// NewLogger writes JSON lines to a rotating file under logDir.
func NewLogger(logDir string, opts ...Option) (*zap.Logger, error) {
	o := options{level: zap.InfoLevel, file: "uptimeboard.log"}
	for _, opt := range opts {
		opt(&o)
	}

	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	w := zapcore.AddSync(&lumberjack.Logger{
		Filename:   filepath.Join(logDir, o.file),
		MaxSize:    10, // MB
		MaxBackups: 5,
		MaxAge:     14, // days
		Compress:   true,
	})
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(cfg), w, o.level)

	if o.console {
		ccfg := zap.NewDevelopmentEncoderConfig()
		ccfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		core = zapcore.NewTee(core,
			zapcore.NewCore(zapcore.NewConsoleEncoder(ccfg), zapcore.Lock(os.Stderr), o.level))
	}
	return zap.New(core, zap.AddCaller()), nil
}
