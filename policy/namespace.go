package policy

import (
	"reflect"
	"strings"
	"unicode"
)

// NamespaceOf derives a namespace from the name of T: pointers are
// dereferenced, the package qualifier and any type arguments are dropped, and
// the rest is converted to snake_case. NamespaceOf[*billing.InvoiceLine]()
// returns "invoice_line".
func NamespaceOf[T any]() string {
	return NamespaceFor(reflect.TypeOf((*T)(nil)).Elem())
}

// NamespaceFor is NamespaceOf for a reflected type.
func NamespaceFor(t reflect.Type) string {
	if t == nil {
		return ""
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	name := t.Name()
	if name == "" {
		name = t.String()
	}
	if i := strings.IndexByte(name, '['); i > 0 {
		name = name[:i]
	}
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	return toSnake(name)
}

// toSnake converts s to snake_case using ASCII-aware rules. Runs of
// punctuation or spaces collapse into one underscore, and leading or
// trailing underscores are trimmed, so the result never contains the key
// separator.
func toSnake(s string) string {
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(runes) + len(runes)/2)

	pendingBreak := false
	emit := func(r rune) {
		if pendingBreak && b.Len() > 0 {
			b.WriteByte('_')
		}
		pendingBreak = false
		b.WriteRune(r)
	}

	for i, r := range runes {
		switch {
		case unicode.IsUpper(r):
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					pendingBreak = true
				}
			}
			emit(unicode.ToLower(r))
		case unicode.IsDigit(r):
			if i > 0 && !unicode.IsDigit(runes[i-1]) {
				pendingBreak = true
			}
			emit(r)
		case unicode.IsLower(r):
			emit(r)
		default:
			pendingBreak = true
		}
	}

	return b.String()
}
