package log

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const TimeFormat = "2006-01-02 15:04:05.999"

// AtomicLevel 运行时可调整的日志级别
var AtomicLevel = zap.NewAtomicLevel()

// GlobalLogger 进程级日志实例
var GlobalLogger = MustNewLogger()

// SetLevel 调整日志级别（debug/info/warn/error）
func SetLevel(level string) {
	if level == "" {
		return
	}
	if err := AtomicLevel.UnmarshalText([]byte(level)); err != nil {
		GlobalLogger.Warn("invalid log level", zap.String("level", level))
		return
	}
	GlobalLogger.Info("logger level updated", zap.String("level", level))
}

func MustNewLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.Encoding = "console"
	config.Level = AtomicLevel
	// level from env
	_ = AtomicLevel.UnmarshalText([]byte(os.Getenv("LOG_LEVEL")))
	config.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(TimeFormat)
	config.DisableStacktrace = true
	config.Sampling = nil
	logger, err := config.Build()
	if err != nil {
		panic(err)
	}
	return logger
}

// WithName 按模块区分日志
func WithName(name string) *zap.Logger {
	return GlobalLogger.Named(name)
}

func Infof(fmt string, v ...interface{}) {
	GlobalLogger.WithOptions(zap.AddCallerSkip(1)).Sugar().Infof(fmt, v...)
}

func Warnf(fmt string, v ...interface{}) {
	GlobalLogger.WithOptions(zap.AddCallerSkip(1)).Sugar().Warnf(fmt, v...)
}

func Errorf(fmt string, v ...interface{}) {
	GlobalLogger.WithOptions(zap.AddCallerSkip(1)).Sugar().Errorf(fmt, v...)
}

func Fatalf(fmt string, v ...interface{}) {
	GlobalLogger.WithOptions(zap.AddCallerSkip(1)).Sugar().Fatalf(fmt, v...)
}

// Error 记录带错误的结构化日志
func Error(err error, msg string, fields ...zap.Field) {
	GlobalLogger.WithOptions(zap.AddCallerSkip(1)).Error(msg, append(fields, zap.Error(err))...)
}

// Sync 退出前刷新缓冲
func Sync() {
	_ = GlobalLogger.Sync()
}
