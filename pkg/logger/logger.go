package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the structured logger handed to every component. Fields are
// alternating key/value pairs.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	With(fields ...interface{}) Logger
	Named(name string) Logger
	Sync() error
}

type zapLogger struct {
	logger *zap.SugaredLogger
}

type Config struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	AddCaller  bool   `mapstructure:"add_caller"`
	Stacktrace bool   `mapstructure:"stacktrace"`
}

func New(cfg Config) Logger {
	zc := zap.NewProductionConfig()

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	if cfg.Format == "console" {
		zc.Encoding = "console"
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zc.Encoding = "json"
		zc.EncoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	}

	switch cfg.Output {
	case "", "stdout":
		zc.OutputPaths = []string{"stdout"}
		zc.ErrorOutputPaths = []string{"stderr"}
	default:
		zc.OutputPaths = []string{cfg.Output}
		zc.ErrorOutputPaths = []string{cfg.Output}
	}

	zc.DisableCaller = !cfg.AddCaller
	if cfg.AddCaller {
		zc.EncoderConfig.CallerKey = "caller"
		zc.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	}

	if cfg.Stacktrace {
		zc.Development = true
	} else {
		zc.DisableStacktrace = true
	}

	// Skip this wrapper so caller points at the call site.
	l, err := zc.Build(zap.AddCallerSkip(1))
	if err != nil {
		l = zap.NewExample()
	}

	return &zapLogger{logger: l.Sugar()}
}

func NewDefault() Logger {
	return New(Config{
		Level:     "info",
		Format:    "json",
		Output:    "stdout",
		AddCaller: true,
	})
}

func NewNop() Logger {
	return &zapLogger{logger: zap.NewNop().Sugar()}
}

// NewFromZap wraps an existing zap logger, e.g. one built with zaptest/observer.
func NewFromZap(l *zap.Logger) Logger {
	return &zapLogger{logger: l.Sugar()}
}

func (l *zapLogger) Debug(msg string, fields ...interface{}) {
	l.logger.Debugw(msg, fields...)
}

func (l *zapLogger) Info(msg string, fields ...interface{}) {
	l.logger.Infow(msg, fields...)
}

func (l *zapLogger) Warn(msg string, fields ...interface{}) {
	l.logger.Warnw(msg, fields...)
}

func (l *zapLogger) Error(msg string, fields ...interface{}) {
	l.logger.Errorw(msg, fields...)
}

func (l *zapLogger) Fatal(msg string, fields ...interface{}) {
	l.logger.Errorw(msg, fields...)
	_ = l.logger.Sync()
	os.Exit(1)
}

func (l *zapLogger) With(fields ...interface{}) Logger {
	return &zapLogger{logger: l.logger.With(fields...)}
}

func (l *zapLogger) Named(name string) Logger {
	return &zapLogger{logger: l.logger.Named(name)}
}

func (l *zapLogger) Sync() error {
	return l.logger.Sync()
}
