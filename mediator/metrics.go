package mediator

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/goliatone/go-cache-policy/policy"
)

// Metric names.
const (
	MetricLookups       = "cache.lookups"
	MetricProduceCalls  = "cache.produce.calls"
	MetricBackendErrors = "cache.backend.errors"
	MetricBypassed      = "cache.bypassed"
)

type metrics struct {
	lookups       metric.Int64Counter
	produceCalls  metric.Int64Counter
	backendErrors metric.Int64Counter
	bypassed      metric.Int64Counter
}

func newMetrics(meter metric.Meter) (*metrics, error) {
	lookups, err := meter.Int64Counter(
		MetricLookups,
		metric.WithDescription("Cache lookups by result"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, err
	}

	produceCalls, err := meter.Int64Counter(
		MetricProduceCalls,
		metric.WithDescription("Calls to the wrapped operation caused by cache misses"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	backendErrors, err := meter.Int64Counter(
		MetricBackendErrors,
		metric.WithDescription("Cache failures that were logged and suppressed"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	bypassed, err := meter.Int64Counter(
		MetricBypassed,
		metric.WithDescription("Calls run uncached because no key could be derived"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	return &metrics{
		lookups:       lookups,
		produceCalls:  produceCalls,
		backendErrors: backendErrors,
		bypassed:      bypassed,
	}, nil
}

func policyAttrs(d *policy.Descriptor, extra ...attribute.KeyValue) metric.MeasurementOption {
	attrs := append([]attribute.KeyValue{
		attribute.String("cache.policy", d.Name()),
		attribute.String("cache.namespace", d.Namespace()),
	}, extra...)
	return metric.WithAttributes(attrs...)
}

func (m *metrics) hits(ctx context.Context, d *policy.Descriptor, n int) {
	if n > 0 {
		m.lookups.Add(ctx, int64(n), policyAttrs(d, attribute.String("result", "hit")))
	}
}

func (m *metrics) misses(ctx context.Context, d *policy.Descriptor, n int) {
	if n > 0 {
		m.lookups.Add(ctx, int64(n), policyAttrs(d, attribute.String("result", "miss")))
	}
}

func (m *metrics) produced(ctx context.Context, d *policy.Descriptor) {
	m.produceCalls.Add(ctx, 1, policyAttrs(d))
}

func (m *metrics) backendError(ctx context.Context, d *policy.Descriptor, op string) {
	m.backendErrors.Add(ctx, 1, policyAttrs(d, attribute.String("op", op)))
}

func (m *metrics) bypass(ctx context.Context, d *policy.Descriptor) {
	m.bypassed.Add(ctx, 1, policyAttrs(d))
}
