// Package logging builds the process slog handler: a zap core bridged through
// logr, with OpenTelemetry trace correlation.
package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EnvPrefix is the prefix of console environment variables
const EnvPrefix = "BO_CONSOLE"

// GetLogLevel parses BO_CONSOLE_LOG_LEVEL and returns the corresponding slog.Level.
// Falls back to LOG_LEVEL, then to slog.LevelInfo.
func GetLogLevel() slog.Level {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	levelStr := v.GetString("LOG_LEVEL")
	if levelStr == "" {
		levelStr = os.Getenv("LOG_LEVEL")
	}
	return ParseLevel(levelStr)
}

// ParseLevel maps a level name to slog.Level, defaulting to info
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "info", "":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		slog.Warn("Invalid LOG_LEVEL, using INFO", "value", s)
		return slog.LevelInfo
	}
}

type options struct {
	level       slog.Level
	outputPaths []string
	development bool
}

// Option configures NewHandler
type Option func(*options)

// WithLevel sets the minimum level
func WithLevel(level slog.Level) Option {
	return func(o *options) {
		o.level = level
	}
}

// WithOutputPath writes logs to path instead of stderr. The interactive
// console uses this so log lines do not tear the screen.
func WithOutputPath(path string) Option {
	return func(o *options) {
		if path != "" {
			o.outputPaths = []string{path}
		}
	}
}

// WithDevelopment switches to the human-readable console encoder
func WithDevelopment() Option {
	return func(o *options) {
		o.development = true
	}
}

// zapLevel maps slog levels onto zap levels the way zapr does for records
func zapLevel(level slog.Level) zapcore.Level {
	switch {
	case level >= slog.LevelError:
		return zapcore.ErrorLevel
	case level >= slog.LevelWarn:
		return zapcore.WarnLevel
	case level >= slog.LevelInfo:
		return zapcore.InfoLevel
	default:
		return zapcore.Level(level)
	}
}

// NewHandler returns the process handler and a flush function
func NewHandler(opts ...Option) (slog.Handler, func() error, error) {
	o := &options{level: slog.LevelInfo, outputPaths: []string{"stderr"}}
	for _, opt := range opts {
		opt(o)
	}

	cfg := zap.NewProductionConfig()
	if o.development {
		cfg = zap.NewDevelopmentConfig()
	}
	// warn records reach zap through logr's V(0), so the core must keep info enabled
	cfg.Level = zap.NewAtomicLevelAt(zapLevel(min(o.level, slog.LevelInfo)))
	cfg.OutputPaths = o.outputPaths
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.Sampling = nil
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	zl, err := cfg.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build logger: %w", err)
	}
	handler := &traceHandler{Handler: logr.ToSlogHandler(zapr.NewLogger(zl)), level: o.level}
	return handler, zl.Sync, nil
}

// Setup installs the process-wide default logger
func Setup(opts ...Option) (func() error, error) {
	handler, sync, err := NewHandler(opts...)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(slog.New(handler))
	return sync, nil
}

// traceHandler wraps an slog.Handler to automatically inject OpenTelemetry
// trace_id and span_id into every log record, enabling log-trace correlation.
type traceHandler struct {
	slog.Handler
	level slog.Leveler
}

// NewTraceHandler wraps h with trace correlation
func NewTraceHandler(h slog.Handler) slog.Handler {
	return &traceHandler{Handler: h}
}

func (h *traceHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if h.level != nil && level < h.level.Level() {
		return false
	}
	return h.Handler.Enabled(ctx, level)
}

func (h *traceHandler) Handle(ctx context.Context, r slog.Record) error {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		r.AddAttrs(
			slog.String("trace_id", span.SpanContext().TraceID().String()),
			slog.String("span_id", span.SpanContext().SpanID().String()),
		)
	}
	return h.Handler.Handle(ctx, r)
}

func (h *traceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &traceHandler{Handler: h.Handler.WithAttrs(attrs), level: h.level}
}

func (h *traceHandler) WithGroup(name string) slog.Handler {
	return &traceHandler{Handler: h.Handler.WithGroup(name), level: h.level}
}
