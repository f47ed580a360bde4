// Package publicip turns AWS Config inventory records into public exposures.
//
// Records whose public address is known are emitted directly. Records that are
// only reachable through a DNS name are held back, resolved together in one
// concurrent batch, and joined back onto their record by slot index.
package publicip

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/iter"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/yairfalse/awsutils/pkg/inventory"
)

// Defaults for the resolution batch.
const (
	DefaultTimeout     = 5 * time.Second
	DefaultConcurrency = 16
)

// Resolver resolves a hostname to its IPv4 addresses.
type Resolver interface {
	LookupA(ctx context.Context, host string) ([]string, error)
}

// Skipped describes an input record that could not be formatted.
type Skipped struct {
	Index      int
	ResourceID string
	Err        error
}

// Result is the output of one Format call.
type Result struct {
	Records []inventory.Exposure
	Skipped []Skipped
}

// pending is a record waiting for its hostname to resolve.
// slot indexes the batch results.
type pending struct {
	exposure inventory.Exposure
	hostname string
	slot     int
	typ      string
}

// Formatter formats inventory records into exposures.
type Formatter struct {
	resolver    Resolver
	timeout     time.Duration
	concurrency int

	meterProvider metric.MeterProvider
	tracer        trace.Tracer
	metrics       *formatterMetrics
}

// Option configures a Formatter.
type Option func(*Formatter)

// WithTimeout bounds the whole resolution batch. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(f *Formatter) { f.timeout = d }
}

// WithConcurrency caps concurrent lookups. Zero lets conc pick GOMAXPROCS.
func WithConcurrency(n int) Option {
	return func(f *Formatter) { f.concurrency = n }
}

// WithMeterProvider sets the meter provider used for formatter metrics.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(f *Formatter) { f.meterProvider = mp }
}

// WithTracer sets the tracer used for the format span.
func WithTracer(t trace.Tracer) Option {
	return func(f *Formatter) { f.tracer = t }
}

// New creates a Formatter that resolves hostnames with r.
func New(r Resolver, opts ...Option) (*Formatter, error) {
	f := &Formatter{
		resolver:      r,
		timeout:       DefaultTimeout,
		concurrency:   DefaultConcurrency,
		meterProvider: otel.GetMeterProvider(),
		tracer:        otel.Tracer("awsutils.publicip"),
	}
	for _, opt := range opts {
		opt(f)
	}

	m, err := newFormatterMetrics(f.meterProvider)
	if err != nil {
		return nil, err
	}
	f.metrics = m

	return f, nil
}

// Format classifies every record, resolves deferred hostnames as one batch,
// and returns direct exposures followed by resolved ones, each group in input order.
// A malformed record is skipped and reported; a failed lookup yields no IPs.
func (f *Formatter) Format(ctx context.Context, raw []string) Result {
	ctx, span := f.tracer.Start(ctx, "publicip.format",
		trace.WithAttributes(attribute.Int("records.input", len(raw))))
	defer span.End()

	result := Result{Records: make([]inventory.Exposure, 0, len(raw))}

	var (
		pendings  []pending
		hostnames []string
	)

	for i, entry := range raw {
		c, err := classify(entry)
		if err != nil {
			log.Warn().
				Err(err).
				Int("index", i).
				Str("resource_id", c.id).
				Str("resource_type", c.typ).
				Msg("skipping inventory record")
			f.metrics.recordOutcome(ctx, outcomeSkipped, c.typ)
			result.Skipped = append(result.Skipped, Skipped{Index: i, ResourceID: c.id, Err: err})
			continue
		}

		switch c.kind {
		case kindDirect:
			result.Records = append(result.Records, c.exposure)
			f.metrics.recordOutcome(ctx, outcomeDirect, c.typ)
		case kindPending:
			hostnames = append(hostnames, c.hostname)
			pendings = append(pendings, pending{
				exposure: c.exposure,
				hostname: c.hostname,
				slot:     len(hostnames) - 1,
				typ:      c.typ,
			})
		case kindDropped:
			f.metrics.recordOutcome(ctx, outcomeDropped, c.typ)
		default:
			f.metrics.recordOutcome(ctx, outcomeIgnored, c.typ)
		}
	}

	if len(pendings) == 0 {
		span.SetAttributes(attribute.Int("records.output", len(result.Records)))
		return result
	}

	resolved := f.resolveAll(ctx, hostnames)

	for _, p := range pendings {
		e := p.exposure
		e.Resolution = &inventory.Resolution{
			ResolvedIPs: resolved[p.slot],
			FQDN:        p.hostname,
		}
		result.Records = append(result.Records, e)
		f.metrics.recordOutcome(ctx, outcomeResolved, p.typ)
	}

	span.SetAttributes(
		attribute.Int("records.output", len(result.Records)),
		attribute.Int("dns.lookups", len(hostnames)),
	)
	log.Debug().
		Int("input", len(raw)).
		Int("output", len(result.Records)).
		Int("lookups", len(hostnames)).
		Int("skipped", len(result.Skipped)).
		Msg("formatted inventory records")

	return result
}

// resolveAll looks up every hostname concurrently and waits for all of them.
// results[i] belongs to hostnames[i].
func (f *Formatter) resolveAll(ctx context.Context, hostnames []string) [][]string {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	mapper := iter.Mapper[string, []string]{MaxGoroutines: f.concurrency}
	return mapper.Map(hostnames, func(host *string) []string {
		return f.resolve(ctx, *host)
	})
}

func (f *Formatter) resolve(ctx context.Context, host string) []string {
	start := time.Now()
	ips, err := f.resolver.LookupA(ctx, host)
	f.metrics.recordLookup(ctx, time.Since(start), err)

	if err != nil {
		log.Debug().Err(err).Str("fqdn", host).Msg("dns lookup failed")
		return []string{}
	}
	if ips == nil {
		return []string{}
	}
	return ips
}
