package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/yairfalse/awsutils/pkg/inventory"
)

func newTestTracer() (*tracetest.InMemoryExporter, *sdktrace.TracerProvider) {
	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithSyncer(exporter),
	)
	return exporter, provider
}

func attrMap(attrs []attribute.KeyValue) map[string]attribute.Value {
	m := make(map[string]attribute.Value, len(attrs))
	for _, a := range attrs {
		m[string(a.Key)] = a.Value
	}
	return m
}

func TestRecordExposureChangeEvent(t *testing.T) {
	exporter, provider := newTestTracer()
	_, span := provider.Tracer("test").Start(context.Background(), "test")

	ip := "9.9.9.9"
	RecordExposureChangeEvent(span, inventory.ExposureDiff{
		Type: inventory.DiffModified,
		Exposure: inventory.Exposure{
			Base: inventory.Base{
				AccountID:    "123456789012",
				ResourceID:   "eni-1",
				ResourceType: inventory.TypeNetworkInterface,
				Region:       "us-east-1",
			},
			Address: &inventory.Address{PublicIP: &ip},
		},
		Changes: map[string]inventory.Change{"publicIps": {Previous: "1.1.1.1", Current: "9.9.9.9"}},
	})
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	require.Len(t, spans[0].Events, 1)

	event := spans[0].Events[0]
	assert.Equal(t, "exposure.change.detected", event.Name)

	attrs := attrMap(event.Attributes)
	assert.Equal(t, "modified", attrs["change.type"].AsString())
	assert.Equal(t, "eni-1", attrs["resource.id"].AsString())
	assert.Equal(t, []string{"9.9.9.9"}, attrs["public_ips"].AsStringSlice())
	assert.Equal(t, "1.1.1.1", attrs["change.publicIps.from"].AsString())
	assert.Equal(t, "9.9.9.9", attrs["change.publicIps.to"].AsString())
}

func TestRecordFormatCompletedEvent(t *testing.T) {
	exporter, provider := newTestTracer()
	_, span := provider.Tracer("test").Start(context.Background(), "test")

	RecordFormatCompletedEvent(span, "aggregator", 10, 8, 1, 1.5)
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	require.Len(t, spans[0].Events, 1)

	attrs := attrMap(spans[0].Events[0].Attributes)
	assert.Equal(t, "aggregator", attrs["source"].AsString())
	assert.Equal(t, int64(10), attrs["records.read"].AsInt64())
	assert.Equal(t, int64(8), attrs["exposures"].AsInt64())
	assert.Equal(t, int64(1), attrs["records.skipped"].AsInt64())
}

func TestRecordEvents_NilSpan(t *testing.T) {
	// Should not panic
	RecordExposureChangeEvent(nil, inventory.ExposureDiff{})
	RecordFormatCompletedEvent(nil, "file", 0, 0, 0, 0)
}
