package logger

import (
	"context"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Context 里链路字段的 key
const (
	TraceIdKey   = "trace_id"
	RequestIdKey = "request_id"
)

// Log 全局 Logger；Init 之前是 Nop，测试里不初始化也不会 panic
var Log = zap.NewNop()

// Init 只输出到控制台
func Init(serviceName string, level string) {
	build(serviceName, level, nil)
}

// InitWithFile 控制台 + 滚动文件，logFile 为空时用 logs/{serviceName}.log
func InitWithFile(serviceName string, level string, logFile string) {
	if logFile == "" {
		logFile = filepath.Join("logs", serviceName+".log")
	}
	var extra []zapcore.WriteSyncer
	// 目录建不出来就只打控制台，不中断启动
	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err == nil {
		extra = append(extra, zapcore.AddSync(&lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    100, // MB
			MaxBackups: 5,
			MaxAge:     14, // 天
			Compress:   true,
		}))
	}
	build(serviceName, level, extra)
}

func build(serviceName, level string, extra []zapcore.WriteSyncer) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zap.InfoLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderConfig.MessageKey = "msg"

	sinks := append([]zapcore.WriteSyncer{zapcore.AddSync(os.Stdout)}, extra...)
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.NewMultiWriteSyncer(sinks...),
		zapLevel,
	)

	// 封装了一层，CallerSkip 1 才能指到调用方
	Log = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).
		With(zap.String("service", serviceName))
}

func Info(ctx context.Context, msg string, fields ...zap.Field) {
	Log.Info(msg, withTrace(ctx, fields)...)
}

func Error(ctx context.Context, msg string, fields ...zap.Field) {
	Log.Error(msg, withTrace(ctx, fields)...)
}

func Warn(ctx context.Context, msg string, fields ...zap.Field) {
	Log.Warn(msg, withTrace(ctx, fields)...)
}

func Debug(ctx context.Context, msg string, fields ...zap.Field) {
	Log.Debug(msg, withTrace(ctx, fields)...)
}

// Fatal 会调用 os.Exit
func Fatal(ctx context.Context, msg string, fields ...zap.Field) {
	Log.Fatal(msg, withTrace(ctx, fields)...)
}

func withTrace(ctx context.Context, fields []zap.Field) []zap.Field {
	if ctx == nil {
		return fields
	}
	if v, ok := ctx.Value(TraceIdKey).(string); ok && v != "" {
		fields = append(fields, zap.String(TraceIdKey, v))
	}
	if v, ok := ctx.Value(RequestIdKey).(string); ok && v != "" {
		fields = append(fields, zap.String(RequestIdKey, v))
	}
	return fields
}

// Sync main 里 defer 调用
func Sync() {
	_ = Log.Sync()
}
