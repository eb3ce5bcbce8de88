package log

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelError Level = "ERROR"
)

var (
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	logger = newLogger()
)

// newLogger builds the process-wide sugared logger. Output goes to stderr;
// the level is shared through the package atomic level so SetLevel keeps
// working after init.
func newLogger() *zap.SugaredLogger {
	cfg := zap.NewProductionConfig()
	cfg.Level = level
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder

	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		// The config above is static; Build only fails on bad sink paths.
		l = zap.NewNop()
	}
	return l.Sugar()
}

// SetLevel adjusts the shared level; zap's AtomicLevel makes this safe from
// any goroutine.
func SetLevel(l Level) {
	switch l {
	case LevelDebug:
		level.SetLevel(zapcore.DebugLevel)
	case LevelInfo:
		level.SetLevel(zapcore.InfoLevel)
	case LevelError:
		level.SetLevel(zapcore.ErrorLevel)
	}
}

func Debug(msg string, kv ...any) {
	logger.Debugw(msg, kv...)
}

func Info(msg string, kv ...any) {
	logger.Infow(msg, kv...)
}

// Error logs msg with err prepended to the key-value list; callers pass the
// error first and context key-values after.
func Error(msg string, err error, kv ...any) {
	extended := append([]any{"err", err}, kv...)
	logger.Errorw(msg, extended...)
}

// Sync flushes buffered log entries. Called once on shutdown.
func Sync() {
	_ = logger.Sync()
}
