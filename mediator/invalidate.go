package mediator

import (
	"context"

	"github.com/goliatone/go-cache-policy/policy"
)

// Invalidate runs proceed and then deletes the cache entry it made stale.
// With a key index the key is derived from the arguments before the call;
// with policy.KeyFromResult it is derived from the result afterwards. The
// delete only happens when proceed succeeds, and its failure never reaches
// the caller.
func Invalidate[V any](ctx context.Context, m *Mediator, d *policy.Descriptor, args []any, proceed func(context.Context) (V, error)) (result V, err error) {
	if err := requirePolicy(d, policy.ActionInvalidate, policy.ModeSingle, policy.ModeAssign); err != nil {
		return result, err
	}

	ctx, span := m.startSpan(ctx, "cache.invalidate", d)
	defer func() { endSpan(span, err) }()

	call, err := prepareSingle[V](m, d, args)
	if err != nil {
		return result, err
	}

	result, err = proceed(ctx)
	if err != nil {
		return result, err
	}

	key, ok, err := call.key(ctx, m, d, result)
	if err != nil || !ok {
		return result, err
	}

	if derr := m.client.Delete(ctx, key); derr != nil {
		m.suppress(ctx, d, "delete", derr)
	}
	return result, nil
}

// InvalidateMulti is Invalidate for a list of keys, removed with one bulk
// delete. Keys come from the list at args[d.KeyIndex()] or from each result
// element.
func InvalidateMulti[V any](ctx context.Context, m *Mediator, d *policy.Descriptor, args []any, proceed func(context.Context) ([]V, error)) (results []V, err error) {
	if err := requirePolicy(d, policy.ActionInvalidate, policy.ModeMulti); err != nil {
		return nil, err
	}

	ctx, span := m.startSpan(ctx, "cache.invalidate_multi", d)
	defer func() { endSpan(span, err) }()

	call, err := prepareMulti[V](m, d, args)
	if err != nil {
		return nil, err
	}

	results, err = proceed(ctx)
	if err != nil {
		return results, err
	}

	// Deletes do not pair keys with values, so the result may have any
	// length when keys come from the arguments.
	var keys []string
	if call.useResult {
		keys, _, err = batchKeys(ctx, m, d, call, results)
		if err != nil {
			return results, err
		}
	} else if call.argErr != nil {
		m.bypassed(ctx, d, call.argErr)
	} else {
		keys = call.argKeys
	}

	keys = dedupe(keys)
	if len(keys) == 0 {
		return results, nil
	}
	if derr := m.client.DeleteMany(ctx, keys); derr != nil {
		m.suppress(ctx, d, "delete_many", derr)
	}
	return results, nil
}

func dedupe(keys []string) []string {
	if len(keys) < 2 {
		return keys
	}
	seen := make(map[string]struct{}, len(keys))
	out := keys[:0:0]
	for _, key := range keys {
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}
