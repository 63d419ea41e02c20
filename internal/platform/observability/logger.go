package observability

import (
	"context"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wantinglittle/patches/internal/platform/requestctx"
)

const defaultLogLevel = "info"

// NewLogger builds the process logger: JSON on stdout with Cloud Logging keys, level from
// LOG_LEVEL, every entry tagged with service.
func NewLogger(service string) (*zap.Logger, error) {
	logger, err := newLogger(os.Getenv("LOG_LEVEL"), []string{"stdout"})
	if err != nil {
		return nil, err
	}
	if service = strings.TrimSpace(service); service != "" {
		logger = logger.With(zap.String("service", service))
	}
	return logger, nil
}

func newLogger(rawLevel string, outputs []string) (*zap.Logger, error) {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(rawLevel)))); err != nil || strings.TrimSpace(rawLevel) == "" {
		_ = level.UnmarshalText([]byte(defaultLogLevel))
	}

	cfg := zap.Config{
		Level:    level,
		Encoding: "json",
		EncoderConfig: zapcore.EncoderConfig{
			MessageKey:     "message",
			TimeKey:        "timestamp",
			LevelKey:       "severity",
			NameKey:        "logger",
			CallerKey:      "caller",
			StacktraceKey:  "stacktrace",
			EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
			EncodeLevel:    zapcore.CapitalLevelEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: true,
	}
	return cfg.Build()
}

// WithLogger injects the logger into the provided context.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return requestctx.WithLogger(ctx, logger)
}

// EventLogger adapts a zap logger to the func(ctx, event, fields) hooks used by the payments
// and events packages. Events ending in a failure suffix are logged at warn level.
func EventLogger(logger *zap.Logger, message string) func(context.Context, string, map[string]any) {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields)+2)
		zFields = append(zFields, zap.String("event", event))
		if traceID := requestctx.TraceID(ctx); traceID != "" {
			zFields = append(zFields, zap.String("trace_id", traceID))
		}
		for _, k := range sortedFieldKeys(fields) {
			zFields = append(zFields, zap.Any(k, fields[k]))
		}
		if isFailureEvent(event) {
			logger.Warn(message, zFields...)
			return
		}
		logger.Info(message, zFields...)
	}
}

var failureSuffixes = []string{".failed", "_failed", ".dropped", ".failures"}

func isFailureEvent(event string) bool {
	for _, suffix := range failureSuffixes {
		if strings.HasSuffix(event, suffix) {
			return true
		}
	}
	return false
}

func sortedFieldKeys(fields map[string]any) []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
