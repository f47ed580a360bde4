package publicip

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Record outcomes.
const (
	outcomeDirect   = "direct"
	outcomeResolved = "resolved"
	outcomeDropped  = "dropped"
	outcomeIgnored  = "ignored"
	outcomeSkipped  = "skipped"
)

type formatterMetrics struct {
	lookups        metric.Int64Counter
	lookupDuration metric.Float64Histogram
	records        metric.Int64Counter
}

func newFormatterMetrics(provider metric.MeterProvider) (*formatterMetrics, error) {
	meter := provider.Meter("awsutils.publicip")

	lookups, err := meter.Int64Counter(
		"awsutils_dns_lookups_total",
		metric.WithDescription("DNS A record lookups performed for exposures"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, err
	}

	lookupDuration, err := meter.Float64Histogram(
		"awsutils_dns_lookup_duration_seconds",
		metric.WithDescription("Duration of individual DNS lookups"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	records, err := meter.Int64Counter(
		"awsutils_records_total",
		metric.WithDescription("Inventory records processed by outcome"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, err
	}

	return &formatterMetrics{
		lookups:        lookups,
		lookupDuration: lookupDuration,
		records:        records,
	}, nil
}

func (m *formatterMetrics) recordLookup(ctx context.Context, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	attrs := metric.WithAttributes(attribute.String("result", result))
	m.lookups.Add(ctx, 1, attrs)
	m.lookupDuration.Record(ctx, d.Seconds(), attrs)
}

func (m *formatterMetrics) recordOutcome(ctx context.Context, outcome, resourceType string) {
	m.records.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("resource.type", resourceType),
	))
}
