package mediator

import (
	"context"
	"fmt"
	"reflect"

	"github.com/goliatone/go-cache-policy/cache"
	"github.com/goliatone/go-cache-policy/policy"
)

// ReadThroughMulti resolves keys against the cache and calls produce once
// with the distinct keys that missed. The result is aligned with keys:
// same length, same order, duplicates included.
//
// Keys produce leaves out of its map are cached as absent and returned as
// the zero value of V. A failed bulk read counts every key as a miss. A
// produce error is returned unchanged. Write-back failures are logged and
// the reconciled result is still returned.
func ReadThroughMulti[K comparable, V any](ctx context.Context, m *Mediator, d *policy.Descriptor, keys []K, produce func(ctx context.Context, missing []K) (map[K]V, error)) ([]V, error) {
	if err := requirePolicy(d, policy.ActionReadThrough, policy.ModeMulti); err != nil {
		return nil, err
	}

	byPosition := func(ctx context.Context, positions []int) (map[int]V, error) {
		missing := make([]K, 0, len(positions))
		seen := make(map[K]struct{}, len(positions))
		for _, pos := range positions {
			if _, dup := seen[keys[pos]]; dup {
				continue
			}
			seen[keys[pos]] = struct{}{}
			missing = append(missing, keys[pos])
		}

		values, err := produce(ctx, missing)
		if err != nil {
			return nil, err
		}

		out := make(map[int]V, len(positions))
		for _, pos := range positions {
			if v, ok := values[keys[pos]]; ok {
				out[pos] = v
			}
		}
		return out, nil
	}

	return reconcile(ctx, m, d, len(keys), func(i int) any { return keys[i] }, byPosition)
}

// InvokeMulti is ReadThroughMulti for operations that take their keys as a
// list argument and return a list aligned with it. args[d.KeyIndex()] is
// replaced with the distinct missing keys, in a slice of the same type,
// before proceed runs. A result list whose length differs from the keys it
// was called with is an InvalidPolicy error.
func InvokeMulti[V any](ctx context.Context, m *Mediator, d *policy.Descriptor, args []any, proceed func(ctx context.Context, args []any) ([]V, error)) ([]V, error) {
	if err := requirePolicy(d, policy.ActionReadThrough, policy.ModeMulti); err != nil {
		return nil, err
	}

	list, err := sliceArg(d, args)
	if err != nil {
		return nil, err
	}

	byPosition := func(ctx context.Context, positions []int) (map[int]V, error) {
		subset := reflect.MakeSlice(reflect.SliceOf(list.Type().Elem()), len(positions), len(positions))
		for j, pos := range positions {
			subset.Index(j).Set(list.Index(pos))
		}

		callArgs := make([]any, len(args))
		copy(callArgs, args)
		callArgs[d.KeyIndex()] = subset.Interface()

		values, err := proceed(ctx, callArgs)
		if err != nil {
			return nil, err
		}
		if len(values) != len(positions) {
			return nil, shapeMismatch(d,
				fmt.Sprintf("operation returned %d values for %d keys", len(values), len(positions)))
		}

		out := make(map[int]V, len(positions))
		for j, pos := range positions {
			out[pos] = values[j]
		}
		return out, nil
	}

	return reconcile(ctx, m, d, list.Len(), func(i int) any { return list.Index(i).Interface() }, byPosition)
}

// reconcile is the batch read-through shared by the multi entry points.
// Items are addressed by position; produce receives the first position of
// every distinct missing key and returns values keyed by those positions.
func reconcile[V any](ctx context.Context, m *Mediator, d *policy.Descriptor, n int, itemAt func(int) any, produce func(context.Context, []int) (map[int]V, error)) (result []V, err error) {
	if n == 0 {
		return []V{}, nil
	}

	ctx, span := m.startSpan(ctx, "cache.read_through_multi", d)
	defer func() { endSpan(span, err) }()

	keys, err := m.keysOf(d, n, itemAt)
	if err != nil {
		if fatal(err) {
			return nil, err
		}
		m.bypassed(ctx, d, err)
		return produceAll(ctx, m, d, n, produce)
	}

	// first maps each distinct key to the first position requesting it.
	first := make(map[string]int, n)
	distinct := make([]string, 0, n)
	for i, key := range keys {
		if _, ok := first[key]; !ok {
			first[key] = i
			distinct = append(distinct, key)
		}
	}

	resolved := make(map[string]V, len(distinct))
	found, err := m.client.GetMany(ctx, distinct)
	if err != nil {
		m.suppress(ctx, d, "get_many", err)
		found = nil
	}
	for key, data := range found {
		if _, requested := first[key]; !requested {
			continue
		}
		entry, derr := cache.DecodeEntry[V](m.codec, data)
		if derr != nil {
			m.suppress(ctx, d, "decode", derr)
			continue
		}
		resolved[key] = entry.Unwrap()
	}

	var missing []int
	for _, key := range distinct {
		if _, hit := resolved[key]; !hit {
			missing = append(missing, first[key])
		}
	}
	m.metrics.hits(ctx, d, len(distinct)-len(missing))
	m.metrics.misses(ctx, d, len(missing))

	if len(missing) > 0 {
		m.metrics.produced(ctx, d)
		values, err := produce(ctx, missing)
		if err != nil {
			return nil, err
		}

		items := make(map[string][]byte, len(missing))
		for _, pos := range missing {
			key := keys[pos]
			entry := cache.Absent[V]()
			if v, ok := values[pos]; ok {
				entry = cache.EntryOf(v)
			}
			resolved[key] = entry.Unwrap()

			data, eerr := cache.EncodeEntry(m.codec, entry)
			if eerr != nil {
				m.suppress(ctx, d, "encode", eerr)
				continue
			}
			items[key] = data
		}

		if len(items) > 0 {
			if serr := m.client.SetMany(ctx, items, d.Expiration()); serr != nil {
				m.suppress(ctx, d, "set_many", serr)
			}
		}
	}

	result = make([]V, n)
	for i, key := range keys {
		result[i] = resolved[key]
	}
	return result, nil
}

// produceAll runs produce for every position without touching the cache.
func produceAll[V any](ctx context.Context, m *Mediator, d *policy.Descriptor, n int, produce func(context.Context, []int) (map[int]V, error)) ([]V, error) {
	positions := make([]int, n)
	for i := range positions {
		positions[i] = i
	}

	m.metrics.produced(ctx, d)
	values, err := produce(ctx, positions)
	if err != nil {
		return nil, err
	}

	result := make([]V, n)
	for i := range result {
		result[i] = values[i]
	}
	return result, nil
}
