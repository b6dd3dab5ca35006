// Package logger wraps zap behind a small interface so components can be
// handed a logger (or a no-op one in tests) without importing zap directly.
package logger

import (
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	With(fields ...Field) Logger
	Sync() error
}

// Field is a single structured log field.
type Field struct {
	zap.Field
}

type zapLogger struct {
	z *zap.Logger
}

// New builds a logger for the given environment. "dev" gets a console
// encoder, anything else JSON. Unknown levels fall back to info.
func New(environment, level, service string) (Logger, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zap.InfoLevel
	}

	var encoder zapcore.Encoder
	if environment == "dev" {
		encoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	} else {
		cfg := zap.NewProductionEncoderConfig()
		cfg.TimeKey = "time"
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.EncodeDuration = zapcore.MillisDurationEncoder
		cfg.EncodeLevel = zapcore.LowercaseLevelEncoder
		encoder = zapcore.NewJSONEncoder(cfg)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), zap.NewAtomicLevelAt(zapLevel))
	z := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1), zap.AddStacktrace(zap.ErrorLevel)).
		With(zap.String("service", service), zap.String("environment", environment))

	return &zapLogger{z: z}, nil
}

// NewNop returns a logger that discards everything.
func NewNop() Logger {
	return &zapLogger{z: zap.NewNop()}
}

// FromZap adapts an existing zap logger, e.g. one built with zaptest.
func FromZap(z *zap.Logger) Logger {
	return &zapLogger{z: z}
}

func (l *zapLogger) Debug(msg string, fields ...Field) { l.z.Debug(msg, unwrap(fields)...) }
func (l *zapLogger) Info(msg string, fields ...Field)  { l.z.Info(msg, unwrap(fields)...) }
func (l *zapLogger) Warn(msg string, fields ...Field)  { l.z.Warn(msg, unwrap(fields)...) }
func (l *zapLogger) Error(msg string, fields ...Field) { l.z.Error(msg, unwrap(fields)...) }

func (l *zapLogger) With(fields ...Field) Logger {
	return &zapLogger{z: l.z.With(unwrap(fields)...)}
}

func (l *zapLogger) Sync() error {
	return l.z.Sync()
}

func unwrap(fields []Field) []zap.Field {
	zf := make([]zap.Field, len(fields))
	for i, f := range fields {
		zf[i] = f.Field
	}
	return zf
}

func String(key, val string) Field {
	return Field{zap.String(key, val)}
}

func Int(key string, val int) Field {
	return Field{zap.Int(key, val)}
}

func Int64(key string, val int64) Field {
	return Field{zap.Int64(key, val)}
}

func Bool(key string, val bool) Field {
	return Field{zap.Bool(key, val)}
}

func Duration(key string, val time.Duration) Field {
	return Field{zap.Duration(key, val)}
}

func Error(err error) Field {
	return Field{zap.Error(err)}
}

func Any(key string, val any) Field {
	return Field{zap.Any(key, val)}
}
