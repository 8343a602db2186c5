package logger

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// zapLogger zap 日志实现.
type zapLogger struct {
	logger *zap.Logger
	sugar  *zap.SugaredLogger
	files  []*os.File
}

func newZapLogger(config *Config) (Logger, error) {
	level := parseLevel(config.Level)
	encoder := buildEncoder(config)

	var (
		cores []zapcore.Core
		files []*os.File
	)

	if config.needsFileOutput() {
		if err := os.MkdirAll(filepath.Dir(config.FilePath), 0o755); err != nil {
			return nil, &ConfigError{Field: "file_path", Message: "failed to create log directory: " + err.Error()}
		}
		file, err := os.OpenFile(config.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, &ConfigError{Field: "file_path", Message: "failed to open log file: " + err.Error()}
		}
		files = append(files, file)
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(file), level))
	}

	if config.needsConsoleOutput() {
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level))
	}

	if len(cores) == 0 {
		return nil, &ConfigError{Field: "output", Message: "no valid output configured"}
	}

	var options []zap.Option
	if config.EnableCaller {
		options = append(options, zap.AddCaller(), zap.AddCallerSkip(1))
	}
	if config.EnableStacktrace {
		options = append(options, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	zapLog := zap.New(zapcore.NewTee(cores...), options...).
		With(zap.String("service", config.ServiceName))

	return &zapLogger{
		logger: zapLog,
		sugar:  zapLog.Sugar(),
		files:  files,
	}, nil
}

func newNopLogger() Logger {
	l := zap.NewNop()
	return &zapLogger{logger: l, sugar: l.Sugar()}
}

func buildEncoder(config *Config) zapcore.Encoder {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout(time.DateTime),
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	if strings.EqualFold(config.Format, FormatConsole) {
		return zapcore.NewConsoleEncoder(encoderConfig)
	}
	return zapcore.NewJSONEncoder(encoderConfig)
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn, "warning":
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	case LevelPanic:
		return zapcore.PanicLevel
	case LevelFatal:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

func (z *zapLogger) Debug(args ...any)                 { z.sugar.Debug(args...) }
func (z *zapLogger) Debugf(format string, args ...any) { z.sugar.Debugf(format, args...) }
func (z *zapLogger) Info(args ...any)                  { z.sugar.Info(args...) }
func (z *zapLogger) Infof(format string, args ...any)  { z.sugar.Infof(format, args...) }
func (z *zapLogger) Warn(args ...any)                  { z.sugar.Warn(args...) }
func (z *zapLogger) Warnf(format string, args ...any)  { z.sugar.Warnf(format, args...) }
func (z *zapLogger) Error(args ...any)                 { z.sugar.Error(args...) }
func (z *zapLogger) Errorf(format string, args ...any) { z.sugar.Errorf(format, args...) }
func (z *zapLogger) Fatal(args ...any)                 { z.sugar.Fatal(args...) }
func (z *zapLogger) Fatalf(format string, args ...any) { z.sugar.Fatalf(format, args...) }

// With 返回带有附加字段的 logger.
func (z *zapLogger) With(fields ...Field) Logger {
	zapFields := make([]zap.Field, len(fields))
	for i, f := range fields {
		zapFields[i] = toZapField(f)
	}

	newLogger := z.logger.With(zapFields...)
	return &zapLogger{
		logger: newLogger,
		sugar:  newLogger.Sugar(),
		files:  z.files,
	}
}

// toZapField 将 Field 转换为 zap.Field.
func toZapField(f Field) zap.Field {
	switch v := f.Value.(type) {
	case string:
		return zap.String(f.Key, v)
	case int:
		return zap.Int(f.Key, v)
	case int64:
		return zap.Int64(f.Key, v)
	case float64:
		return zap.Float64(f.Key, v)
	case bool:
		return zap.Bool(f.Key, v)
	case time.Duration:
		return zap.Duration(f.Key, v)
	case time.Time:
		return zap.Time(f.Key, v)
	case error:
		return zap.NamedError(f.Key, v)
	default:
		return zap.Reflect(f.Key, v)
	}
}

// WithContext 返回带有当前 span 信息的 logger.
//
// 从 context 中的 span 提取 traceId 和 spanId，没有有效 span 时返回当前 logger.
//
// 使用示例:
//
//	func handle(w http.ResponseWriter, r *http.Request) {
//	    log.WithContext(r.Context()).Info("处理请求")
//	    // 输出: {"msg":"处理请求","traceId":"4bf9...","spanId":"00f0..."}
//	}
func (z *zapLogger) WithContext(ctx context.Context) Logger {
	if ctx == nil {
		return z
	}

	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return z
	}

	return z.With(
		Field{Key: "traceId", Value: sc.TraceID().String()},
		Field{Key: "spanId", Value: sc.SpanID().String()},
	)
}

// Sync 同步日志缓冲区.
func (z *zapLogger) Sync() error {
	return z.logger.Sync()
}

// Close 关闭 logger 并释放文件句柄.
func (z *zapLogger) Close() error {
	// stdout 的 sync 错误可忽略: https://github.com/uber-go/zap/issues/328
	_ = z.logger.Sync()

	for _, f := range z.files {
		if err := f.Close(); err != nil {
			return err
		}
	}
	return nil
}

// String 创建字符串字段.
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

// Int 创建整数字段.
func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

// Float64 创建 float64 字段.
func Float64(key string, value float64) Field {
	return Field{Key: key, Value: value}
}

// Bool 创建布尔字段.
func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

// Duration 创建持续时间字段.
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value}
}

// Strings 创建字符串切片字段.
func Strings(key string, value []string) Field {
	return Field{Key: key, Value: value}
}

// Err 创建错误字段.
func Err(err error) Field {
	return Field{Key: "error", Value: err}
}

// Any 创建任意类型字段.
func Any(key string, value any) Field {
	return Field{Key: key, Value: value}
}
