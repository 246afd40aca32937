package mediator

import (
	"context"
	"fmt"

	"github.com/goliatone/go-cache-policy/cache"
	"github.com/goliatone/go-cache-policy/policy"
)

// Update runs proceed and writes its result to the cache, so the next read
// sees the fresh value. The key comes from args[d.KeyIndex()], from the
// result when the policy uses policy.KeyFromResult, or from the assigned
// key. A null result is stored as absent.
//
// The result of proceed is always returned. Cache failures are logged.
func Update[V any](ctx context.Context, m *Mediator, d *policy.Descriptor, args []any, proceed func(context.Context) (V, error)) (result V, err error) {
	if err := requirePolicy(d, policy.ActionUpdate, policy.ModeSingle, policy.ModeAssign); err != nil {
		return result, err
	}

	ctx, span := m.startSpan(ctx, "cache.update", d)
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

	storeOne(ctx, m, d, key, cache.EntryOf(result))
	return result, nil
}

// UpdateMulti runs proceed and writes every element of its result in one
// bulk set. Keys come from the list at args[d.KeyIndex()], or from each
// result element with policy.KeyFromResult. When keys come from the
// arguments the result must have the same length; otherwise the results are
// returned together with an InvalidPolicy error and nothing is written.
func UpdateMulti[V any](ctx context.Context, m *Mediator, d *policy.Descriptor, args []any, proceed func(context.Context) ([]V, error)) (results []V, err error) {
	if err := requirePolicy(d, policy.ActionUpdate, policy.ModeMulti); err != nil {
		return nil, err
	}

	ctx, span := m.startSpan(ctx, "cache.update_multi", d)
	defer func() { endSpan(span, err) }()

	call, err := prepareMulti[V](m, d, args)
	if err != nil {
		return nil, err
	}

	results, err = proceed(ctx)
	if err != nil {
		return results, err
	}

	keys, positions, err := batchKeys(ctx, m, d, call, results)
	if err != nil || keys == nil {
		return results, err
	}

	items := make(map[string][]byte, len(keys))
	for i, key := range keys {
		data, eerr := cache.EncodeEntry(m.codec, cache.EntryOf(results[positions[i]]))
		if eerr != nil {
			m.suppress(ctx, d, "encode", eerr)
			continue
		}
		items[key] = data
	}
	if len(items) == 0 {
		return results, nil
	}

	if serr := m.client.SetMany(ctx, items, d.Expiration()); serr != nil {
		m.suppress(ctx, d, "set_many", serr)
	}
	return results, nil
}

// UpdateOrInvalidate dispatches a single or assign policy to Update or
// Invalidate according to its action.
func UpdateOrInvalidate[V any](ctx context.Context, m *Mediator, d *policy.Descriptor, args []any, proceed func(context.Context) (V, error)) (V, error) {
	if d != nil && d.Action() == policy.ActionInvalidate {
		return Invalidate(ctx, m, d, args, proceed)
	}
	return Update(ctx, m, d, args, proceed)
}

// UpdateOrInvalidateMulti is UpdateOrInvalidate for multi policies.
func UpdateOrInvalidateMulti[V any](ctx context.Context, m *Mediator, d *policy.Descriptor, args []any, proceed func(context.Context) ([]V, error)) ([]V, error) {
	if d != nil && d.Action() == policy.ActionInvalidate {
		return InvalidateMulti(ctx, m, d, args, proceed)
	}
	return UpdateMulti(ctx, m, d, args, proceed)
}

// singleCall holds what was known about a single key before proceed ran.
type singleCall struct {
	argKey    string
	argErr    error
	useResult bool
}

// prepareSingle derives the key from the arguments before the wrapped
// operation runs. Configuration errors are returned; a missing identity is
// kept for after the call, which then runs uncached.
func prepareSingle[V any](m *Mediator, d *policy.Descriptor, args []any) (singleCall, error) {
	if d.KeyFromResult() {
		return singleCall{useResult: true}, resolveResult[V](m, d)
	}

	key, err := m.singleKey(d, args)
	if err != nil && fatal(err) {
		return singleCall{}, err
	}
	return singleCall{argKey: key, argErr: err}, nil
}

// key returns the cache key for the finished call. ok is false when the
// call must not touch the cache.
func (c singleCall) key(ctx context.Context, m *Mediator, d *policy.Descriptor, result any) (string, bool, error) {
	if !c.useResult {
		if c.argErr != nil {
			m.bypassed(ctx, d, c.argErr)
			return "", false, nil
		}
		return c.argKey, true, nil
	}

	key, err := m.keyOf(d, result)
	if err != nil {
		if fatal(err) {
			return "", false, err
		}
		m.bypassed(ctx, d, err)
		return "", false, nil
	}
	return key, true, nil
}

// multiCall holds the keys derived from a list argument before proceed ran.
type multiCall struct {
	argKeys   []string
	argErr    error
	useResult bool
}

func prepareMulti[V any](m *Mediator, d *policy.Descriptor, args []any) (multiCall, error) {
	if d.KeyFromResult() {
		return multiCall{useResult: true}, resolveResult[V](m, d)
	}

	list, err := sliceArg(d, args)
	if err != nil {
		return multiCall{}, err
	}
	keys, err := m.keysOf(d, list.Len(), func(i int) any { return list.Index(i).Interface() })
	if err != nil && fatal(err) {
		return multiCall{}, err
	}
	return multiCall{argKeys: keys, argErr: err}, nil
}

// batchKeys returns the cache keys of a finished batch call and, for each
// key, the result position it belongs to. A nil key slice means the cache
// is left alone. Result elements without an identity are skipped.
func batchKeys[V any](ctx context.Context, m *Mediator, d *policy.Descriptor, c multiCall, results []V) ([]string, []int, error) {
	if !c.useResult {
		if c.argErr != nil {
			m.bypassed(ctx, d, c.argErr)
			return nil, nil, nil
		}
		if len(results) != len(c.argKeys) {
			return nil, nil, shapeMismatch(d,
				fmt.Sprintf("operation returned %d values for %d keys", len(results), len(c.argKeys)))
		}
		positions := make([]int, len(c.argKeys))
		for i := range positions {
			positions[i] = i
		}
		return c.argKeys, positions, nil
	}

	out := make([]string, 0, len(results))
	positions := make([]int, 0, len(results))
	for i, r := range results {
		key, err := m.keyOf(d, r)
		if err != nil {
			if fatal(err) {
				return nil, nil, err
			}
			continue
		}
		out = append(out, key)
		positions = append(positions, i)
	}
	return out, positions, nil
}
