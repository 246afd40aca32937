package identity

import (
	"reflect"
	"sync"
	"testing"

	"github.com/goliatone/go-cache-policy/cache"
)

type account struct {
	ID string
}

func (a account) CacheKey() string { return "acct-" + a.ID }

type session struct {
	token string
}

func (s *session) CacheKey() string { return s.token }

type order struct {
	Number int64 `cache:"key"`
	Note   string
}

type hiddenKey struct {
	code string `cache:"key"`
}

type twoTags struct {
	A string `cache:"key"`
	B string `cache:"key"`
}

type methodAndTag struct {
	ID string `cache:"key"`
}

func (m methodAndTag) CacheKey() string { return m.ID }

type keyWithArgs struct{}

func (keyWithArgs) CacheKey(prefix string) string { return prefix }

type keyReturnsInt struct{}

func (keyReturnsInt) CacheKey() int { return 1 }

type floatTag struct {
	Score float64 `cache:"key"`
}

type plain struct {
	Name string
}

type userID string

type taggedName struct {
	Name string `cache:"key"`
}

func TestDeriver_Derive(t *testing.T) {
	tests := []struct {
		name     string
		value    any
		expected string
		wantCode string
	}{
		{name: "value receiver method", value: account{ID: "7"}, expected: "acct-7"},
		{name: "value receiver method via pointer", value: &account{ID: "8"}, expected: "acct-8"},
		{name: "pointer receiver method", value: &session{token: "tok"}, expected: "tok"},
		{name: "pointer receiver method on value", value: session{token: "tok2"}, expected: "tok2"},
		{name: "tagged integer field", value: order{Number: 42}, expected: "42"},
		{name: "tagged field via pointer", value: &order{Number: 43}, expected: "43"},
		{name: "unexported tagged field", value: hiddenKey{code: "h1"}, expected: "h1"},
		{name: "raw string", value: "abc", expected: "abc"},
		{name: "raw int", value: 12, expected: "12"},
		{name: "raw uint", value: uint8(3), expected: "3"},
		{name: "raw bool", value: true, expected: "true"},
		{name: "named string type", value: userID("u1"), expected: "u1"},
		{name: "two tagged fields", value: twoTags{A: "a", B: "b"}, wantCode: cache.CodeKeyMethodAmbiguous},
		{name: "method and tagged field", value: methodAndTag{ID: "x"}, wantCode: cache.CodeKeyMethodAmbiguous},
		{name: "method with arguments", value: keyWithArgs{}, wantCode: cache.CodeKeyMethodSignature},
		{name: "method returning int", value: keyReturnsInt{}, wantCode: cache.CodeKeyMethodSignature},
		{name: "tagged float field", value: floatTag{Score: 1.5}, wantCode: cache.CodeKeyMethodSignature},
		{name: "struct without capability", value: plain{Name: "n"}, wantCode: cache.CodeKeyMethodMissing},
		{name: "float is not an identity", value: 1.5, wantCode: cache.CodeKeyMethodMissing},
		{name: "slice is not an identity", value: []string{"a"}, wantCode: cache.CodeKeyMethodMissing},
		{name: "nil", value: nil, wantCode: cache.CodeEmptyIdentity},
		{name: "nil pointer", value: (*account)(nil), wantCode: cache.CodeEmptyIdentity},
		{name: "empty string", value: "", wantCode: cache.CodeEmptyIdentity},
		{name: "method returning empty string", value: &session{}, wantCode: cache.CodeEmptyIdentity},
		{name: "blank string", value: "  \t", wantCode: cache.CodeEmptyIdentity},
		{name: "method returning blank", value: &session{token: "   "}, wantCode: cache.CodeEmptyIdentity},
		{name: "tagged blank field", value: &taggedName{Name: " "}, wantCode: cache.CodeEmptyIdentity},
		{name: "padded identity is kept as is", value: " x ", expected: " x "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDeriver()
			got, err := d.Derive(tt.value)

			if tt.wantCode != "" {
				if err == nil {
					t.Fatalf("expected %s error, got identity %q", tt.wantCode, got)
				}
				if !cache.IsInvalidPolicy(err) {
					t.Errorf("expected InvalidPolicy, got %v", err)
				}
				if !cache.HasCode(err, tt.wantCode) {
					t.Errorf("expected code %s, got %v", tt.wantCode, err)
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestDeriver_CachesPerType(t *testing.T) {
	d := NewDeriver()

	for _, id := range []string{"1", "2", "3"} {
		if _, err := d.Derive(account{ID: id}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if d.Len() != 1 {
		t.Errorf("expected one cached type, got %d", d.Len())
	}

	_, _ = d.Derive(order{Number: 1})
	if d.Len() != 2 {
		t.Errorf("expected two cached types, got %d", d.Len())
	}
}

func TestDeriver_ErrorsAreCached(t *testing.T) {
	d := NewDeriver()

	_, first := d.Derive(plain{Name: "a"})
	_, second := d.Derive(plain{Name: "b"})

	if first == nil || second == nil {
		t.Fatal("expected errors for type without capability")
	}
	if first != second {
		t.Error("expected the same cached error for repeated calls")
	}
	if d.Len() != 1 {
		t.Errorf("expected failing type to be cached, got %d entries", d.Len())
	}
}

func TestDeriver_Resolve(t *testing.T) {
	d := NewDeriver()

	if err := d.Resolve(reflect.TypeOf(account{})); err != nil {
		t.Errorf("expected account to resolve, got %v", err)
	}
	if err := d.Resolve(reflect.TypeOf(plain{})); !cache.HasCode(err, cache.CodeKeyMethodMissing) {
		t.Errorf("expected KEY_METHOD_MISSING, got %v", err)
	}
	if err := d.Resolve(nil); !IsEmptyIdentity(err) {
		t.Errorf("expected empty identity for nil type, got %v", err)
	}
}

func TestDeriver_ConcurrentUse(t *testing.T) {
	d := NewDeriver()

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var v any = account{ID: "a"}
			if i%2 == 0 {
				v = order{Number: int64(i + 1)}
			}
			if _, err := d.Derive(v); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("unexpected error: %v", err)
	}
	if d.Len() != 2 {
		t.Errorf("expected 2 cached types, got %d", d.Len())
	}
}

func TestDerive_UsesDefault(t *testing.T) {
	got, err := Derive(account{ID: "9"})
	if err != nil || got != "acct-9" {
		t.Errorf("Derive() = %q, %v", got, err)
	}
}

func TestIsEmptyIdentity(t *testing.T) {
	_, err := NewDeriver().Derive(nil)
	if !IsEmptyIdentity(err) {
		t.Errorf("expected empty identity, got %v", err)
	}

	_, err = NewDeriver().Derive(plain{})
	if IsEmptyIdentity(err) {
		t.Error("missing capability must not report as empty identity")
	}
}
