package telemetry

import (
	"context"
	"io"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// traceHook stamps trace and span IDs on entries logged with a traced
// context, and marks the span failed on error entries.
type traceHook struct{}

func (traceHook) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	ctx := e.GetCtx()
	if ctx == nil {
		return
	}

	span := trace.SpanFromContext(ctx)
	sc := span.SpanContext()
	if !sc.IsValid() {
		return
	}

	e.Str("trace_id", sc.TraceID().String())
	e.Str("span_id", sc.SpanID().String())

	if level == zerolog.ErrorLevel {
		span.SetStatus(codes.Error, msg)
	}
}

// Logger is the logger of one command run. Every entry carries the
// service and command names.
type Logger struct {
	zerolog.Logger
}

// NewLogger creates a logger writing to w for command.
func NewLogger(w io.Writer, service, command string) *Logger {
	logger := zerolog.New(w).
		With().
		Timestamp().
		Str("service", service).
		Str("command", command).
		Logger().
		Hook(traceHook{})

	return &Logger{Logger: logger}
}

func (l *Logger) withContext(ctx context.Context) *zerolog.Logger {
	logger := l.Logger.With().Ctx(ctx).Logger()
	return &logger
}

// Started logs the start of the command.
func (l *Logger) Started(ctx context.Context) {
	l.withContext(ctx).Debug().Msg("command started")
}

// Finished logs how the command ended. A failure is logged at error level,
// which also marks the command span failed.
func (l *Logger) Finished(ctx context.Context, elapsed time.Duration, err error) {
	logger := l.withContext(ctx)
	if err != nil {
		logger.Error().Err(err).Dur("elapsed", elapsed).Msg("command failed")
		return
	}
	logger.Debug().Dur("elapsed", elapsed).Msg("command finished")
}
