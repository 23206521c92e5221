// Package logging wraps zap with filterstream's standardized configuration.
//
// Dependencies:
//   - go.uber.org/zap: structured logging
//   - gopkg.in/natefinch/lumberjack.v2: size-rotated log file sink
package logging

import (
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	maxLogSizeMB  = 2
	maxLogBackups = 10
)

// Logger wraps zap.Logger with standardized configuration.
type Logger struct {
	*zap.Logger
	config Config
}

// New creates a new logger with the provided configuration.
func New(cfg Config) (*Logger, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "filterstream"
	}
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	level := parseLogLevel(cfg.LogLevel)
	writer := outputWriter(cfg.LogFile)
	encoderConfig := encoderConfig(cfg.IsDevelopment())

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(writer),
		zapcore.Level(level),
	)

	opts := []zap.Option{
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
		zap.Fields(
			zap.String("service", cfg.ServiceName),
			zap.String("environment", cfg.Environment),
		),
	}

	logger := zap.New(core, opts...)

	return &Logger{Logger: logger, config: cfg}, nil
}

// MustNew creates a new logger and panics on error.
func MustNew(cfg Config) *Logger {
	logger, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return logger
}

// WithRunID returns a logger scoped to one subscription's run_id.
func (l *Logger) WithRunID(runID string) *zap.Logger {
	return l.Logger.With(zap.String("run_id", runID))
}

// WithComponent returns a logger scoped to one component name.
func (l *Logger) WithComponent(name string) *zap.Logger {
	return l.Logger.With(zap.String("component", name))
}

func parseLogLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func encoderConfig(development bool) zapcore.EncoderConfig {
	var cfg zapcore.EncoderConfig
	if development {
		cfg = zap.NewDevelopmentEncoderConfig()
	} else {
		cfg = zap.NewProductionEncoderConfig()
	}
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.LowercaseLevelEncoder
	return cfg
}

// outputWriter returns stdout, or a size-rotated file sink when path is set.
func outputWriter(path string) io.Writer {
	if path == "" {
		return os.Stdout
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxLogSizeMB,
		MaxBackups: maxLogBackups,
		Compress:   false,
	}
}
