package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// createContextWithSpan creates a context with tracing span
func createContextWithSpan() context.Context {
	exporter := tracetest.NewInMemoryExporter()
	provider := trace.NewTracerProvider(
		trace.WithSyncer(exporter),
	)
	tracer := provider.Tracer("test")
	ctx, _ := tracer.Start(context.Background(), "test-span")
	return ctx
}

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestTraceHook_Run(t *testing.T) {
	tests := []struct {
		name        string
		ctx         context.Context
		expectTrace bool
	}{
		{"context without span", context.Background(), false},
		{"context with valid span", createContextWithSpan(), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := zerolog.New(&buf)

			event := logger.Info().Ctx(tt.ctx)
			traceHook{}.Run(event, zerolog.InfoLevel, "test message")
			event.Msg("test")

			if tt.expectTrace {
				assert.Contains(t, buf.String(), "trace_id")
				assert.Contains(t, buf.String(), "span_id")
			} else {
				assert.NotContains(t, buf.String(), "trace_id")
				assert.NotContains(t, buf.String(), "span_id")
			}
		})
	}
}

func TestNewLogger_StampsServiceAndCommand(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "awsutils", "public-ips")

	logger.Info().Msg("public ips formatted")

	entry := decodeEntry(t, &buf)
	assert.Equal(t, "awsutils", entry["service"])
	assert.Equal(t, "public-ips", entry["command"])
	assert.Equal(t, "public ips formatted", entry["message"])
}

func TestLogger_Started(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "awsutils", "costs")

	logger.Started(createContextWithSpan())

	entry := decodeEntry(t, &buf)
	assert.Equal(t, "command started", entry["message"])
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "costs", entry["command"])
	assert.NotEmpty(t, entry["trace_id"])
}

func TestLogger_Finished(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "awsutils", "costs")

	logger.Finished(context.Background(), 1500*time.Millisecond, nil)

	entry := decodeEntry(t, &buf)
	assert.Equal(t, "command finished", entry["message"])
	assert.Equal(t, "debug", entry["level"])
	assert.Contains(t, entry, "elapsed")
	assert.NotContains(t, entry, "error")
}

func TestLogger_FinishedFailureMarksSpan(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	provider := trace.NewTracerProvider(trace.WithSyncer(exporter))
	ctx, span := provider.Tracer("test").Start(context.Background(), "awsutils.kubeconfig")

	var buf bytes.Buffer
	logger := NewLogger(&buf, "awsutils", "kubeconfig")
	logger.Finished(ctx, time.Second, errors.New("assume role denied"))
	span.End()

	entry := decodeEntry(t, &buf)
	assert.Equal(t, "command failed", entry["message"])
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "assume role denied", entry["error"])
	assert.Equal(t, "kubeconfig", entry["command"])

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Equal(t, "command failed", spans[0].Status.Description)
}
