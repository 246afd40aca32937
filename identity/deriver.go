package identity

import (
	"reflect"
	"strconv"
	"strings"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/goliatone/go-cache-policy/cache"
)

const (
	// MethodName is the method a type declares to supply its own identity.
	MethodName = "CacheKey"

	// TagName and TagValue mark the struct field that holds the identity.
	TagName  = "cache"
	TagValue = "key"
)

// Identifier is implemented by values that know their own cache identity.
type Identifier interface {
	CacheKey() string
}

type resolutionKind int

const (
	kindMethod resolutionKind = iota + 1
	kindField
	kindRaw
)

// resolution is the outcome of inspecting one type. Failed inspections are
// stored too, so every later call for that type reports the same error.
type resolution struct {
	kind       resolutionKind
	method     reflect.Method
	viaPointer bool
	fieldIndex []int
	err        error
}

// Deriver maps values to the string identity used as the object id of a
// cache key. Capability lookups are cached per type and safe for concurrent
// use.
type Deriver struct {
	resolutions *xsync.MapOf[reflect.Type, *resolution]
}

// NewDeriver returns a Deriver with an empty type cache.
func NewDeriver() *Deriver {
	return &Deriver{resolutions: xsync.NewMapOf[reflect.Type, *resolution]()}
}

// Default is the process wide Deriver.
var Default = NewDeriver()

// Derive returns the identity of v using Default.
func Derive(v any) (string, error) {
	return Default.Derive(v)
}

// Derive returns the identity of v.
//
// A type supplies its identity through exactly one of: a CacheKey() string
// method, or a single struct field tagged `cache:"key"` holding a string or
// an integer. Strings, booleans, and integers without either capability are
// their own identity. Any other type, a type with more than one capability,
// and a capability with the wrong shape are InvalidPolicy errors. A nil value
// or an identity that is blank after trimming is reported with
// cache.CodeEmptyIdentity.
func (d *Deriver) Derive(v any) (string, error) {
	if v == nil {
		return "", emptyIdentity("<nil>")
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr && rv.IsNil() {
		return "", emptyIdentity(rv.Type().String())
	}

	res := d.resolve(rv.Type())
	if res.err != nil {
		return "", res.err
	}

	var id string
	switch res.kind {
	case kindMethod:
		if identifier, ok := v.(Identifier); ok {
			id = identifier.CacheKey()
			break
		}
		id = callMethod(res, rv)
	case kindField:
		id = formatScalar(reflect.Indirect(rv).FieldByIndex(res.fieldIndex))
	case kindRaw:
		id = formatScalar(reflect.Indirect(rv))
	}

	if strings.TrimSpace(id) == "" {
		return "", emptyIdentity(rv.Type().String())
	}
	return id, nil
}

// Resolve reports whether values of type t can produce an identity, without
// needing a value. The result is cached like Derive.
func (d *Deriver) Resolve(t reflect.Type) error {
	if t == nil {
		return emptyIdentity("<nil>")
	}
	return d.resolve(t).err
}

// Len returns the number of types inspected so far.
func (d *Deriver) Len() int {
	return d.resolutions.Size()
}

func (d *Deriver) resolve(t reflect.Type) *resolution {
	res, _ := d.resolutions.LoadOrCompute(t, func() *resolution {
		return inspect(t)
	})
	return res
}

func inspect(t reflect.Type) *resolution {
	typeName := t.String()

	method, hasMethod := t.MethodByName(MethodName)
	viaPointer := false
	if !hasMethod && t.Kind() != reflect.Ptr && t.Kind() != reflect.Interface {
		method, hasMethod = reflect.PointerTo(t).MethodByName(MethodName)
		viaPointer = hasMethod
	}

	fields := taggedFields(t)

	candidates := len(fields)
	if hasMethod {
		candidates++
	}

	if candidates > 1 {
		return &resolution{err: cache.NewInvalidPolicy(cache.CodeKeyMethodAmbiguous,
			"type "+typeName+" declares more than one cache identity").
			WithMetadata(map[string]any{"type": typeName, "candidates": candidates})}
	}

	if hasMethod {
		mt := method.Type
		if mt.NumIn() != 1 {
			return signatureError(typeName, MethodName+" must take 0 arguments")
		}
		if mt.NumOut() != 1 || mt.Out(0).Kind() != reflect.String {
			return signatureError(typeName, MethodName+" must return a single String")
		}
		return &resolution{kind: kindMethod, method: method, viaPointer: viaPointer}
	}

	if len(fields) == 1 {
		if !isTextual(fields[0].Type.Kind()) {
			return signatureError(typeName, "field "+fields[0].Name+" tagged as cache key must be a string or an integer")
		}
		return &resolution{kind: kindField, fieldIndex: fields[0].Index}
	}

	base := t
	if base.Kind() == reflect.Ptr {
		base = base.Elem()
	}
	if isTextual(base.Kind()) || base.Kind() == reflect.Bool {
		return &resolution{kind: kindRaw}
	}

	return &resolution{err: cache.NewInvalidPolicy(cache.CodeKeyMethodMissing,
		"type "+typeName+" has no "+MethodName+" method and no field tagged `"+TagName+":\""+TagValue+"\"`").
		WithMetadata(map[string]any{"type": typeName})}
}

func taggedFields(t reflect.Type) []reflect.StructField {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}

	var fields []reflect.StructField
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Tag.Get(TagName) == TagValue {
			fields = append(fields, f)
		}
	}
	return fields
}

func callMethod(res *resolution, rv reflect.Value) string {
	recv := rv
	if res.viaPointer {
		recv = reflect.New(rv.Type())
		recv.Elem().Set(rv)
	}
	out := res.method.Func.Call([]reflect.Value{recv})
	return out[0].String()
}

func isTextual(k reflect.Kind) bool {
	switch k {
	case reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

func formatScalar(v reflect.Value) string {
	switch v.Kind() {
	case reflect.String:
		return v.String()
	case reflect.Bool:
		return strconv.FormatBool(v.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(v.Uint(), 10)
	}
	return ""
}

func signatureError(typeName, message string) *resolution {
	return &resolution{err: cache.NewInvalidPolicy(cache.CodeKeyMethodSignature,
		"type "+typeName+": "+message).
		WithMetadata(map[string]any{"type": typeName})}
}

func emptyIdentity(typeName string) error {
	return cache.NewInvalidPolicy(cache.CodeEmptyIdentity, "empty key value for "+typeName)
}

// IsEmptyIdentity reports whether err was caused by a nil value or a blank
// identity rather than by the shape of a type.
func IsEmptyIdentity(err error) bool {
	return cache.HasCode(err, cache.CodeEmptyIdentity)
}
