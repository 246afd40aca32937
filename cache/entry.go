package cache

import (
	"reflect"

	goerrors "github.com/goliatone/go-errors"
	"github.com/vmihailenco/msgpack/v5"
)

// Entry is what a cache slot holds: either a value, or the record that the
// underlying operation produced nothing for that key. An absent entry is a
// cache hit, it only stands in for a null result.
type Entry[V any] struct {
	value   V
	present bool
}

// Present wraps a produced value.
func Present[V any](v V) Entry[V] {
	return Entry[V]{value: v, present: true}
}

// Absent returns the negative cache marker.
func Absent[V any]() Entry[V] {
	return Entry[V]{}
}

// EntryOf returns Absent for null values and Present otherwise.
func EntryOf[V any](v V) Entry[V] {
	if IsNull(v) {
		return Absent[V]()
	}
	return Present(v)
}

// Value returns the stored value and whether the entry is present. Absent
// entries yield the zero value of V.
func (e Entry[V]) Value() (V, bool) {
	return e.value, e.present
}

// Unwrap returns the value, or the zero value of V for absent entries.
func (e Entry[V]) Unwrap() V {
	return e.value
}

// IsAbsent reports whether e is the negative cache marker.
func (e Entry[V]) IsAbsent() bool {
	return !e.present
}

// IsNull reports whether v is a nil interface or a nil pointer, map, slice,
// func or chan.
func IsNull(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

// Codec turns entries into bytes for the backend and back.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

type msgpackCodec struct{}

// MsgpackCodec is the default value codec.
var MsgpackCodec Codec = msgpackCodec{}

func (msgpackCodec) Marshal(v any) ([]byte, error)      { return msgpack.Marshal(v) }
func (msgpackCodec) Unmarshal(data []byte, v any) error { return msgpack.Unmarshal(data, v) }

// envelope is the stored form of an Entry. Absent entries carry no value.
type envelope struct {
	Present bool               `msgpack:"p"`
	Value   msgpack.RawMessage `msgpack:"v,omitempty"`
}

// EncodeEntry serializes e with codec. A nil codec selects MsgpackCodec.
func EncodeEntry[V any](codec Codec, e Entry[V]) ([]byte, error) {
	if codec == nil {
		codec = MsgpackCodec
	}

	env := envelope{Present: e.present}
	if e.present {
		raw, err := codec.Marshal(e.value)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "encode cache entry")
		}
		env.Value = raw
	}

	data, err := msgpack.Marshal(&env)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "encode cache envelope")
	}
	return data, nil
}

// DecodeEntry reverses EncodeEntry.
func DecodeEntry[V any](codec Codec, data []byte) (Entry[V], error) {
	if codec == nil {
		codec = MsgpackCodec
	}

	var env envelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return Entry[V]{}, goerrors.Wrap(err, goerrors.CategoryInternal, "decode cache envelope")
	}
	if !env.Present {
		return Absent[V](), nil
	}

	var v V
	if err := codec.Unmarshal(env.Value, &v); err != nil {
		return Entry[V]{}, goerrors.Wrap(err, goerrors.CategoryInternal, "decode cache entry")
	}
	return Present(v), nil
}
