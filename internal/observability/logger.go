// Package observability owns the process-wide zap logger.
package observability

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/jward/docket/internal/config"
)

var (
	globalLogger atomic.Pointer[zap.Logger]
	once         sync.Once
)

// Initialize builds the global logger from cfg, writing to consoleWriter
// and, when cfg.LogFile is set, to a rotating JSON file. Only the first
// call has an effect.
func Initialize(cfg config.LoggerConfig, consoleWriter zapcore.WriteSyncer) {
	once.Do(func() {
		level := zap.NewAtomicLevel()
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			level.SetLevel(zap.InfoLevel)
		}

		cores := []zapcore.Core{zapcore.NewCore(getEncoder(cfg.Format), consoleWriter, level)}
		if cfg.LogFile != "" {
			fileWriter := zapcore.AddSync(&lumberjack.Logger{
				Filename:   cfg.LogFile,
				MaxSize:    cfg.MaxSize,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAge,
				Compress:   cfg.Compress,
			})
			cores = append(cores, zapcore.NewCore(getEncoder("json"), fileWriter, level))
		}

		logger := zap.New(zapcore.NewTee(cores...), zap.AddStacktrace(zap.ErrorLevel))
		if cfg.ServiceName != "" {
			logger = logger.Named(cfg.ServiceName)
		}
		globalLogger.Store(logger)
		zap.ReplaceGlobals(logger)
	})
}

// ResetForTest clears the global logger so Initialize can run again.
func ResetForTest() {
	globalLogger.Store(nil)
	once = sync.Once{}
}

func getEncoder(format string) zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02T15:04:05.000Z07:00")
	if format == "console" {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoderConfig.EncodeName = func(name string, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString(name + ".")
		}
		return zapcore.NewConsoleEncoder(encoderConfig)
	}
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewJSONEncoder(encoderConfig)
}

// GetLogger returns the global logger, or a development logger when
// Initialize hasn't run.
func GetLogger() *zap.Logger {
	if logger := globalLogger.Load(); logger != nil {
		return logger
	}
	l, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return l.Named("fallback")
}

// Sync flushes buffered entries. Errors from syncing a terminal are
// ignored.
func Sync() {
	logger := globalLogger.Load()
	if logger == nil {
		return
	}
	if err := logger.Sync(); err != nil {
		msg := err.Error()
		if !strings.Contains(msg, "sync /dev/std") &&
			!strings.Contains(msg, "invalid argument") &&
			!strings.Contains(msg, "inappropriate ioctl") {
			fmt.Fprintln(os.Stderr, "docket: failed to sync logger:", err)
		}
	}
}
