package mediator

import (
	"context"

	"github.com/felixgeelhaar/bolt/v3"
	goerrors "github.com/goliatone/go-errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/goliatone/go-cache-policy/cache"
	"github.com/goliatone/go-cache-policy/identity"
	"github.com/goliatone/go-cache-policy/internal/logging"
	"github.com/goliatone/go-cache-policy/policy"
)

const instrumentationName = "github.com/goliatone/go-cache-policy/mediator"

// Mediator runs wrapped operations against a cache according to their
// policy. It holds no per-call state and is safe for concurrent use.
type Mediator struct {
	client  cache.Client
	deriver *identity.Deriver
	codec   cache.Codec
	logger  *bolt.Logger
	tracer  trace.Tracer
	metrics *metrics
}

type options struct {
	deriver        *identity.Deriver
	codec          cache.Codec
	logger         *bolt.Logger
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
}

// Option configures a Mediator.
type Option func(*options)

// WithLogger sets the logger used to report swallowed cache failures.
func WithLogger(logger *bolt.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithDeriver sets the identity deriver. Defaults to identity.Default.
func WithDeriver(d *identity.Deriver) Option {
	return func(o *options) {
		if d != nil {
			o.deriver = d
		}
	}
}

// WithCodec sets the value codec. Defaults to cache.MsgpackCodec.
func WithCodec(c cache.Codec) Option {
	return func(o *options) {
		if c != nil {
			o.codec = c
		}
	}
}

// WithMeterProvider enables metrics.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		if mp != nil {
			o.meterProvider = mp
		}
	}
}

// WithTracerProvider enables tracing.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		if tp != nil {
			o.tracerProvider = tp
		}
	}
}

// New returns a Mediator talking to client.
func New(client cache.Client, opts ...Option) (*Mediator, error) {
	if client == nil {
		return nil, goerrors.New("cache client is required", goerrors.CategoryBadInput)
	}

	o := options{
		deriver:        identity.Default,
		codec:          cache.MsgpackCodec,
		meterProvider:  metricnoop.NewMeterProvider(),
		tracerProvider: tracenoop.NewTracerProvider(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.Default()
	}

	m, err := newMetrics(o.meterProvider.Meter(instrumentationName))
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "create cache metrics")
	}

	return &Mediator{
		client:  client,
		deriver: o.deriver,
		codec:   o.codec,
		logger:  o.logger,
		tracer:  o.tracerProvider.Tracer(instrumentationName),
		metrics: m,
	}, nil
}

// MustNew is New for wiring code. It panics on error.
func MustNew(client cache.Client, opts ...Option) *Mediator {
	m, err := New(client, opts...)
	if err != nil {
		panic(err)
	}
	return m
}

// Client returns the backend the mediator writes to.
func (m *Mediator) Client() cache.Client {
	return m.client
}

// Deriver returns the identity deriver used to build keys.
func (m *Mediator) Deriver() *identity.Deriver {
	return m.deriver
}

func (m *Mediator) startSpan(ctx context.Context, name string, d *policy.Descriptor) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, name,
		trace.WithAttributes(
			attribute.String("cache.policy", d.Name()),
			attribute.String("cache.namespace", d.Namespace()),
			attribute.String("cache.mode", string(d.Mode())),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// suppress reports a caching step failure that does not change the result.
func (m *Mediator) suppress(ctx context.Context, d *policy.Descriptor, op string, err error) {
	m.metrics.backendError(ctx, d, op)
	trace.SpanFromContext(ctx).AddEvent("cache.suppressed_error",
		trace.WithAttributes(attribute.String("cache.op", op), attribute.String("error", err.Error())))

	m.logger.Warn().
		Str("policy", d.Name()).
		Str("namespace", d.Namespace()).
		Str("op", op).
		Err(err).
		Msg("cache operation failed, continuing without cache")
}

// bypassed reports a key that could not be derived for this call. Such a
// call runs uncached.
func (m *Mediator) bypassed(ctx context.Context, d *policy.Descriptor, err error) {
	m.metrics.bypass(ctx, d)
	m.logger.Debug().
		Str("policy", d.Name()).
		Str("namespace", d.Namespace()).
		Err(err).
		Msg("cache key unavailable, calling through")
}

// fatal reports whether a key derivation error must reach the caller. A nil
// or blank identity only affects the current call; anything else is a
// configuration error.
func fatal(err error) bool {
	return cache.IsInvalidPolicy(err) && !identity.IsEmptyIdentity(err)
}

func requirePolicy(d *policy.Descriptor, action policy.Action, modes ...policy.Mode) error {
	if d == nil {
		return cache.NewInvalidPolicy(cache.CodeInvalidDescriptor, "cache policy is required")
	}
	if d.Action() != action {
		return cache.NewInvalidPolicy(cache.CodeUnsupportedOperation,
			"policy "+d.String()+" is not a "+string(action)+" policy")
	}
	for _, mode := range modes {
		if d.Mode() == mode {
			return nil
		}
	}
	return cache.NewInvalidPolicy(cache.CodeUnsupportedOperation,
		"policy "+d.String()+" cannot be used in "+string(d.Mode())+" mode here")
}
