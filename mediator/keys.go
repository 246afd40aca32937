package mediator

import (
	"fmt"
	"reflect"

	"github.com/goliatone/go-cache-policy/cache"
	"github.com/goliatone/go-cache-policy/policy"
)

// keyOf builds the cache key of v under d. Assign policies ignore v.
func (m *Mediator) keyOf(d *policy.Descriptor, v any) (string, error) {
	if d.Mode() == policy.ModeAssign {
		return cache.BuildKey(d.AssignedKey(), d.Namespace())
	}
	id, err := m.deriver.Derive(v)
	if err != nil {
		return "", err
	}
	return cache.BuildKey(id, d.Namespace())
}

// keysOf builds one key per element of items.
func (m *Mediator) keysOf(d *policy.Descriptor, n int, itemAt func(int) any) ([]string, error) {
	keys := make([]string, n)
	for i := range n {
		key, err := m.keyOf(d, itemAt(i))
		if err != nil {
			return nil, err
		}
		keys[i] = key
	}
	return keys, nil
}

// argAt returns the argument the policy identifies.
func argAt(d *policy.Descriptor, args []any) (any, error) {
	i := d.KeyIndex()
	if i < 0 || i >= len(args) {
		return nil, cache.NewInvalidPolicy(cache.CodeKeyIndexOutOfRange,
			fmt.Sprintf("policy %s: key index %d out of range for %d arguments", d.Name(), i, len(args))).
			WithMetadata(map[string]any{"key_index": i, "args": len(args)})
	}
	return args[i], nil
}

// sliceArg returns the list argument of a multi policy.
func sliceArg(d *policy.Descriptor, args []any) (reflect.Value, error) {
	arg, err := argAt(d, args)
	if err != nil {
		return reflect.Value{}, err
	}
	rv := reflect.ValueOf(arg)
	if rv.Kind() != reflect.Slice {
		return reflect.Value{}, shapeMismatch(d,
			fmt.Sprintf("argument %d must be a list, got %T", d.KeyIndex(), arg))
	}
	return rv, nil
}

// resolveResult checks ahead of the call that results of type V can yield
// an identity. Interface types are checked per value instead.
func resolveResult[V any](m *Mediator, d *policy.Descriptor) error {
	if !d.KeyFromResult() {
		return nil
	}
	t := reflect.TypeFor[V]()
	if t.Kind() == reflect.Interface {
		return nil
	}
	return m.deriver.Resolve(t)
}

func shapeMismatch(d *policy.Descriptor, msg string) error {
	return cache.NewInvalidPolicy(cache.CodeShapeMismatch, "policy "+d.Name()+": "+msg)
}
