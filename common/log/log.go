// Package log provides the structured logger used by every long-lived
// component of the coordinator and participant. It wraps a zap.SugaredLogger
// so call sites can pass loose key/value pairs without building zap.Field
// values by hand.
package log

import (
	"context"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the logging surface every package depends on instead of *zap.Logger
// directly, so tests can swap in a fake and production code can swap encoders.
type Logger interface {
	Debug(keyvals ...interface{})
	Info(keyvals ...interface{})
	Warn(keyvals ...interface{})
	Error(keyvals ...interface{})
	Fatal(keyvals ...interface{})
	Debugw(msg string, keyvals ...interface{})
	Infow(msg string, keyvals ...interface{})
	Warnw(msg string, keyvals ...interface{})
	Errorw(msg string, keyvals ...interface{})
	Fatalw(msg string, keyvals ...interface{})
	With(args ...interface{}) Logger
	Named(component string) Logger
}

type sugared struct {
	*zap.SugaredLogger
}

func (s *sugared) With(args ...interface{}) Logger { return &sugared{s.SugaredLogger.With(args...)} }
func (s *sugared) Named(component string) Logger   { return &sugared{s.SugaredLogger.Named(component)} }

const (
	DebugLevel = int(zapcore.DebugLevel)
	InfoLevel  = int(zapcore.InfoLevel)
	WarnLevel  = int(zapcore.WarnLevel)
	ErrorLevel = int(zapcore.ErrorLevel)
	FatalLevel = int(zapcore.FatalLevel)
)

// DefaultLevel is used by DefaultLogger. XAYNET_LOG_LEVEL=debug lowers it,
// handy when chasing a flaky round in a test run.
var DefaultLevel = InfoLevel

func init() {
	if os.Getenv("XAYNET_LOG_LEVEL") == "debug" {
		DefaultLevel = DebugLevel
	}
}

var defaultOnce sync.Once
var defaultLogger Logger

// DefaultLogger returns the process-wide logger, built once from DefaultLevel.
func DefaultLogger() Logger {
	defaultOnce.Do(func() {
		defaultLogger = New(os.Stderr, DefaultLevel, true)
	})
	return defaultLogger
}

// New builds a logger writing to output at the given level, JSON-encoded
// when isJSON is true and human-readable console format otherwise.
func New(output zapcore.WriteSyncer, level int, isJSON bool) Logger {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder

	encoder := zapcore.NewConsoleEncoder(cfg)
	if isJSON {
		encoder = zapcore.NewJSONEncoder(cfg)
	}
	if output == nil {
		output = os.Stderr
	}
	core := zapcore.NewCore(encoder, output, zapcore.Level(level))
	return &sugared{zap.New(core, zap.WithCaller(true)).Sugar()}
}

type ctxKey struct{}

// WithContext stashes a Logger on ctx so deep call chains don't need to
// thread it through every signature.
func WithContext(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger stashed by WithContext, or DefaultLogger
// if none was attached.
func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(ctxKey{}).(Logger); ok {
		return l
	}
	return DefaultLogger()
}
