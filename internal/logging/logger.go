// Package logging builds the structured JSON logger used across the
// pipeline: three sinks (main, debug, error), each rotated by size, with
// mandatory fields timestamp, level, trace_id, component, and event.
package logging

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type traceIDKey struct{}

// WithTraceID stores a run's trace ID on the context so every log call
// downstream can attach it without threading it through every signature.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, traceID)
}

// TraceIDFromContext extracts a trace ID previously stored by WithTraceID.
func TraceIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey{}).(string); ok {
		return v
	}
	return ""
}

// Config controls where and how the logger writes.
type Config struct {
	Dir              string
	Level            string
	RotationMaxMB    int
	RotationMaxFiles int
}

// Logger wraps zap with the pipeline's mandatory-field conventions and owns
// the three rotating sinks' file descriptors — the only process-global
// mutable state the design notes permit.
type Logger struct {
	base *zap.Logger

	mainSink  *rotatingFile
	debugSink *rotatingFile
	errorSink *rotatingFile
}

// New builds a Logger with main/debug/error sinks under cfg.Dir.
func New(cfg Config) (*Logger, error) {
	mainSink, err := newRotatingFile(cfg.Dir, "main.log", cfg.RotationMaxMB, cfg.RotationMaxFiles)
	if err != nil {
		return nil, fmt.Errorf("open main sink: %w", err)
	}
	debugSink, err := newRotatingFile(cfg.Dir, "debug.log", cfg.RotationMaxMB, cfg.RotationMaxFiles)
	if err != nil {
		return nil, fmt.Errorf("open debug sink: %w", err)
	}
	errorSink, err := newRotatingFile(cfg.Dir, "errors.log", cfg.RotationMaxMB, cfg.RotationMaxFiles)
	if err != nil {
		return nil, fmt.Errorf("open error sink: %w", err)
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(encoderCfg)

	minLevel := parseLevel(cfg.Level)

	core := zapcore.NewTee(
		zapcore.NewCore(encoder, zapcore.AddSync(mainSink), levelAtLeast(minLevel, zapcore.InfoLevel)),
		zapcore.NewCore(encoder, zapcore.AddSync(debugSink), minLevel),
		zapcore.NewCore(encoder, zapcore.AddSync(errorSink), levelAtLeast(minLevel, zapcore.ErrorLevel)),
	)

	base := zap.New(core, zap.AddCaller())

	return &Logger{
		base:      base,
		mainSink:  mainSink,
		debugSink: debugSink,
		errorSink: errorSink,
	}, nil
}

// Close flushes and closes every sink's file descriptor.
func (l *Logger) Close() error {
	_ = l.base.Sync()
	var firstErr error
	for _, s := range []*rotatingFile{l.mainSink, l.debugSink, l.errorSink} {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Event logs a single structured event with the mandatory fields plus any
// caller-supplied zap.Fields. component identifies the emitting subsystem
// (rate_limiter, retry_engine, circuit_breaker, ...); event is a short
// machine-stable name (retry.attempt, cache.put, dedup.match, ...).
func (l *Logger) Event(ctx context.Context, level zapcore.Level, component, event string, fields ...zap.Field) {
	all := append([]zap.Field{
		zap.String("trace_id", TraceIDFromContext(ctx)),
		zap.String("component", component),
		zap.String("event", event),
	}, fields...)
	l.base.Check(level, event).Write(all...)
}

// Span times an operation and logs it on completion with duration_ms set,
// mirroring the mandatory timed-span field from the logging contract.
func (l *Logger) Span(ctx context.Context, component, event string, fn func() error) error {
	start := time.Now()
	err := fn()
	fields := []zap.Field{zap.Int64("duration_ms", time.Since(start).Milliseconds())}
	level := zapcore.InfoLevel
	if err != nil {
		level = zapcore.ErrorLevel
		fields = append(fields, zap.Error(err))
	}
	l.Event(ctx, level, component, event, fields...)
	return err
}

// Raw exposes the underlying zap.Logger for call sites that want the full
// zap API directly (e.g. component constructors accepting *zap.Logger).
func (l *Logger) Raw() *zap.Logger {
	return l.base
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func levelAtLeast(configured, floor zapcore.Level) zapcore.LevelEnabler {
	effective := floor
	if configured > floor {
		effective = configured
	}
	return effective
}
