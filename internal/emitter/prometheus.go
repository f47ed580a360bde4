package emitter

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/yairfalse/awsutils/pkg/inventory"
)

// PrometheusEmitter records exposures as metrics via OTEL. Payloads that
// are not a list of exposures are ignored.
type PrometheusEmitter struct {
	meter metric.Meter

	// Metrics
	publicIPInfo         metric.Int64ObservableGauge
	exposuresTotal       metric.Int64Counter
	exposureChangesTotal metric.Int64Counter

	// State for observable gauge
	mu        sync.RWMutex
	exposures []inventory.Exposure

	// Diff tracking
	diffTracker *DiffTracker
}

// NewPrometheusEmitterWithProvider creates a Prometheus emitter on provider.
func NewPrometheusEmitterWithProvider(provider metric.MeterProvider) (*PrometheusEmitter, error) {
	e := &PrometheusEmitter{
		meter:       provider.Meter("awsutils.emitter"),
		exposures:   make([]inventory.Exposure, 0),
		diffTracker: NewDiffTracker(),
	}

	if err := e.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	return e, nil
}

func (e *PrometheusEmitter) initMetrics() error {
	var err error

	// Public IP info gauge - one series per exposed IP
	e.publicIPInfo, err = e.meter.Int64ObservableGauge(
		"awsutils_public_ip_info",
		metric.WithDescription("Publicly reachable IP address of a resource"),
		metric.WithInt64Callback(e.observeExposures),
	)
	if err != nil {
		return fmt.Errorf("create public_ip_info gauge: %w", err)
	}

	e.exposuresTotal, err = e.meter.Int64Counter(
		"awsutils_exposures_total",
		metric.WithDescription("Total exposures emitted"),
	)
	if err != nil {
		return fmt.Errorf("create exposures counter: %w", err)
	}

	e.exposureChangesTotal, err = e.meter.Int64Counter(
		"awsutils_exposure_changes_total",
		metric.WithDescription("Total exposure changes detected against the baseline"),
	)
	if err != nil {
		return fmt.Errorf("create exposure_changes counter: %w", err)
	}

	return nil
}

// SetBaseline sets the exposures of an earlier run. Subsequent emits are
// compared against it.
func (e *PrometheusEmitter) SetBaseline(exposures []inventory.Exposure) {
	e.diffTracker.Update(exposures)
}

// Emit records the exposures as metrics.
func (e *PrometheusEmitter) Emit(ctx context.Context, _ string, payload any) error {
	exposures, ok := payload.([]inventory.Exposure)
	if !ok {
		return nil
	}

	for _, ex := range exposures {
		e.exposuresTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("resource_type", ex.ResourceType),
			attribute.String("region", ex.Region),
		))
	}

	e.emitDiffs(ctx, exposures)

	// Update exposures for observable gauge
	e.mu.Lock()
	e.exposures = exposures
	e.mu.Unlock()

	e.diffTracker.Update(exposures)
	return nil
}

// Diffs returns the changes between the baseline and exposures without
// updating the baseline.
func (e *PrometheusEmitter) Diffs(exposures []inventory.Exposure) []inventory.ExposureDiff {
	return e.diffTracker.ComputeDiff(exposures)
}

// emitDiffs computes diffs and emits metrics/logs for changes.
func (e *PrometheusEmitter) emitDiffs(ctx context.Context, exposures []inventory.Exposure) {
	if !e.diffTracker.hasBaseline() {
		return
	}

	for _, diff := range e.diffTracker.ComputeDiff(exposures) {
		e.exposureChangesTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("resource_type", diff.Exposure.ResourceType),
			attribute.String("region", diff.Exposure.Region),
			attribute.String("change_type", string(diff.Type)),
		))

		logEvent := log.Info().
			Str("id", diff.Exposure.ResourceID).
			Str("type", diff.Exposure.ResourceType).
			Str("account", diff.Exposure.AccountID).
			Str("region", diff.Exposure.Region).
			Str("change", string(diff.Type))

		if diff.Type == inventory.DiffModified {
			for field, change := range diff.Changes {
				logEvent = logEvent.
					Str(field+".from", change.Previous).
					Str(field+".to", change.Current)
			}
		}

		logEvent.Msg("exposure changed")
	}
}

// observeExposures is the callback for the public_ip_info gauge.
func (e *PrometheusEmitter) observeExposures(_ context.Context, o metric.Int64Observer) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, ex := range e.exposures {
		for _, ip := range ex.PublicIPs() {
			attrs := []attribute.KeyValue{
				attribute.String("id", ex.ResourceID),
				attribute.String("type", ex.ResourceType),
				attribute.String("account", ex.AccountID),
				attribute.String("region", ex.Region),
				attribute.String("ip", ip),
			}
			if ex.ResourceName != "" {
				attrs = append(attrs, attribute.String("name", ex.ResourceName))
			}
			o.Observe(1, metric.WithAttributes(attrs...))
		}
	}

	return nil
}

// Close is a no-op for Prometheus emitter.
func (e *PrometheusEmitter) Close() error {
	return nil
}
