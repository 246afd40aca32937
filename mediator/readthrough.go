package mediator

import (
	"context"

	"github.com/goliatone/go-cache-policy/cache"
	"github.com/goliatone/go-cache-policy/policy"
)

// ReadThrough serves a single value from the cache, calling proceed on a
// miss and storing its result. The key comes from args[d.KeyIndex()], or
// from the assigned key of an assign policy.
//
// A null result is cached as absent and served as the zero value of V on
// later calls. Errors from proceed are returned unchanged. Cache failures
// never change the result.
func ReadThrough[V any](ctx context.Context, m *Mediator, d *policy.Descriptor, args []any, proceed func(context.Context) (V, error)) (result V, err error) {
	if err := requirePolicy(d, policy.ActionReadThrough, policy.ModeSingle, policy.ModeAssign); err != nil {
		return result, err
	}

	ctx, span := m.startSpan(ctx, "cache.read_through", d)
	defer func() { endSpan(span, err) }()

	key, err := m.singleKey(d, args)
	if err != nil {
		if fatal(err) {
			return result, err
		}
		m.bypassed(ctx, d, err)
		return proceed(ctx)
	}

	if data, hit := m.lookup(ctx, d, key); hit {
		m.metrics.hits(ctx, d, 1)
		return decodeOrFill(ctx, m, d, key, data, proceed)
	}
	m.metrics.misses(ctx, d, 1)

	return fill(ctx, m, d, key, proceed)
}

// singleKey derives the key of a single or assign policy from its args.
func (m *Mediator) singleKey(d *policy.Descriptor, args []any) (string, error) {
	if d.Mode() == policy.ModeAssign {
		return m.keyOf(d, nil)
	}
	arg, err := argAt(d, args)
	if err != nil {
		return "", err
	}
	return m.keyOf(d, arg)
}

// lookup fetches key, treating a backend failure as a miss.
func (m *Mediator) lookup(ctx context.Context, d *policy.Descriptor, key string) ([]byte, bool) {
	data, ok, err := m.client.Get(ctx, key)
	if err != nil {
		m.suppress(ctx, d, "get", err)
		return nil, false
	}
	return data, ok
}

// decodeOrFill returns the cached value, or refills the entry when it
// cannot be decoded.
func decodeOrFill[V any](ctx context.Context, m *Mediator, d *policy.Descriptor, key string, data []byte, proceed func(context.Context) (V, error)) (V, error) {
	entry, err := cache.DecodeEntry[V](m.codec, data)
	if err == nil {
		return entry.Unwrap(), nil
	}
	m.suppress(ctx, d, "decode", err)
	return fill(ctx, m, d, key, proceed)
}

// fill calls proceed and stores what it returned under key.
func fill[V any](ctx context.Context, m *Mediator, d *policy.Descriptor, key string, proceed func(context.Context) (V, error)) (V, error) {
	m.metrics.produced(ctx, d)
	v, err := proceed(ctx)
	if err != nil {
		return v, err
	}
	storeOne(ctx, m, d, key, cache.EntryOf(v))
	return v, nil
}

// storeOne writes a single entry, suppressing failures.
func storeOne[V any](ctx context.Context, m *Mediator, d *policy.Descriptor, key string, entry cache.Entry[V]) {
	data, err := cache.EncodeEntry(m.codec, entry)
	if err != nil {
		m.suppress(ctx, d, "encode", err)
		return
	}
	if err := m.client.Set(ctx, key, data, d.Expiration()); err != nil {
		m.suppress(ctx, d, "set", err)
	}
}
