package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yairfalse/awsutils/pkg/inventory"
)

// RecordExposureChangeEvent adds a span event for an exposure that changed
// since the baseline run.
func RecordExposureChangeEvent(span trace.Span, diff inventory.ExposureDiff) {
	if span == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("event.type", "exposure.change.detected"),
		attribute.String("change.type", string(diff.Type)),
		attribute.String("resource.id", diff.Exposure.ResourceID),
		attribute.String("resource.type", diff.Exposure.ResourceType),
		attribute.String("account", diff.Exposure.AccountID),
		attribute.String("region", diff.Exposure.Region),
		attribute.StringSlice("public_ips", diff.Exposure.PublicIPs()),
	}

	for field, change := range diff.Changes {
		attrs = append(attrs,
			attribute.String("change."+field+".from", change.Previous),
			attribute.String("change."+field+".to", change.Current),
		)
	}

	span.AddEvent("exposure.change.detected", trace.WithAttributes(attrs...))
}

// RecordFormatCompletedEvent adds a span event summarising a format run.
func RecordFormatCompletedEvent(
	span trace.Span,
	source string,
	recordsRead int64,
	exposures int64,
	skipped int64,
	durationSeconds float64,
) {
	if span == nil {
		return
	}

	span.AddEvent("inventory.format.completed", trace.WithAttributes(
		attribute.String("event.type", "inventory.format.completed"),
		attribute.String("source", source),
		attribute.Int64("records.read", recordsRead),
		attribute.Int64("exposures", exposures),
		attribute.Int64("records.skipped", skipped),
		attribute.Float64("duration.seconds", durationSeconds),
	))
}
