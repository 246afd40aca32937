package mediator

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/goliatone/go-cache-policy/cache"
	"github.com/goliatone/go-cache-policy/pkg/testsupport"
	"github.com/goliatone/go-cache-policy/policy"
)

// producer records every call and serves values from a fixed table.
type producer struct {
	values map[int]string
	calls  [][]int
	err    error
}

func (p *producer) produce(_ context.Context, missing []int) (map[int]string, error) {
	p.calls = append(p.calls, append([]int(nil), missing...))
	if p.err != nil {
		return nil, p.err
	}
	out := make(map[int]string, len(missing))
	for _, k := range missing {
		if v, ok := p.values[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func letters() *producer {
	return &producer{values: map[int]string{1: "A", 2: "B", 3: "C", 4: "D"}}
}

func TestReadThroughMulti_EndToEnd(t *testing.T) {
	ctx := context.Background()
	client := testsupport.NewRecordingClient()
	m := newTestMediator(t, client)
	p := letters()

	got, err := ReadThroughMulti(ctx, m, usersGetMany, []int{1, 2, 3}, p.produce)
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	if want := []string{"A", "B", "C"}; !reflect.DeepEqual(got, want) {
		t.Errorf("first call = %v, want %v", got, want)
	}
	if want := [][]int{{1, 2, 3}}; !reflect.DeepEqual(p.calls, want) {
		t.Errorf("produce calls = %v, want %v", p.calls, want)
	}

	got, err = ReadThroughMulti(ctx, m, usersGetMany, []int{3, 1, 3, 2}, p.produce)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if want := []string{"C", "A", "C", "B"}; !reflect.DeepEqual(got, want) {
		t.Errorf("second call = %v, want %v", got, want)
	}
	if len(p.calls) != 1 {
		t.Errorf("expected no further produce calls, got %v", p.calls)
	}

	gets := client.CallsTo(testsupport.OpGetMany)
	if len(gets) != 2 {
		t.Fatalf("expected one bulk get per call, got %d", len(gets))
	}
	if want := []string{"users::3", "users::1", "users::2"}; !reflect.DeepEqual(gets[1].Keys, want) {
		t.Errorf("bulk get keys = %v, want %v", gets[1].Keys, want)
	}

	sets := client.CallsTo(testsupport.OpSetMany)
	if len(sets) != 1 || sets[0].TTL != usersGetMany.Expiration() {
		t.Errorf("expected one bulk set with the policy ttl, got %+v", sets)
	}
}

func TestReadThroughMulti_Reconciliation(t *testing.T) {
	tests := []struct {
		name        string
		cached      []int
		keys        []int
		want        []string
		wantProduce [][]int
	}{
		{
			name:        "empty cache keeps input order",
			keys:        []int{3, 1, 2},
			want:        []string{"C", "A", "B"},
			wantProduce: [][]int{{3, 1, 2}},
		},
		{
			name:        "duplicates are produced once",
			keys:        []int{2, 2, 1, 2},
			want:        []string{"B", "B", "A", "B"},
			wantProduce: [][]int{{2, 1}},
		},
		{
			name:        "partial hit produces only the misses",
			cached:      []int{1, 2},
			keys:        []int{2, 3, 1, 4},
			want:        []string{"B", "C", "A", "D"},
			wantProduce: [][]int{{3, 4}},
		},
		{
			name:   "full hit never produces",
			cached: []int{1, 2, 3},
			keys:   []int{3, 3, 1},
			want:   []string{"C", "C", "A"},
		},
		{
			name:        "subset of cached keys",
			cached:      []int{1, 2, 3, 4},
			keys:        []int{4},
			want:        []string{"D"},
			wantProduce: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			m := newTestMediator(t, testsupport.NewRecordingClient())
			p := letters()

			if len(tt.cached) > 0 {
				if _, err := ReadThroughMulti(ctx, m, usersGetMany, tt.cached, p.produce); err != nil {
					t.Fatalf("priming: %v", err)
				}
				p.calls = nil
			}

			got, err := ReadThroughMulti(ctx, m, usersGetMany, tt.keys, p.produce)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
			if !reflect.DeepEqual(p.calls, tt.wantProduce) {
				t.Errorf("produce calls = %v, want %v", p.calls, tt.wantProduce)
			}
		})
	}
}

func TestReadThroughMulti_Idempotent(t *testing.T) {
	ctx := context.Background()
	m := newTestMediator(t, testsupport.NewRecordingClient())
	p := letters()
	keys := []int{4, 2, 4}

	first, err := ReadThroughMulti(ctx, m, usersGetMany, keys, p.produce)
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	second, err := ReadThroughMulti(ctx, m, usersGetMany, keys, p.produce)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Errorf("results differ: %v vs %v", first, second)
	}
	if len(p.calls) != 1 {
		t.Errorf("expected a single produce call, got %v", p.calls)
	}
}

func TestReadThroughMulti_NegativeCaching(t *testing.T) {
	ctx := context.Background()
	client := testsupport.NewRecordingClient()
	m := newTestMediator(t, client)

	var calls int
	produce := func(_ context.Context, missing []string) (map[string]*user, error) {
		calls++
		out := map[string]*user{}
		for _, id := range missing {
			if id == "u1" {
				out[id] = &user{ID: id, Name: "Ada"}
			}
			if id == "u3" {
				out[id] = nil
			}
		}
		return out, nil
	}

	for round := range 2 {
		got, err := ReadThroughMulti(ctx, m, usersGetMany, []string{"u1", "u2", "u3"}, produce)
		if err != nil {
			t.Fatalf("round %d: %v", round, err)
		}
		if len(got) != 3 || got[0] == nil || got[0].Name != "Ada" {
			t.Fatalf("round %d: unexpected result %v", round, got)
		}
		if got[1] != nil || got[2] != nil {
			t.Errorf("round %d: expected nil for u2 and u3, got %v %v", round, got[1], got[2])
		}
	}
	if calls != 1 {
		t.Errorf("absent entries must be hits, produce ran %d times", calls)
	}

	for _, id := range []string{"u2", "u3"} {
		found, _ := client.GetMany(ctx, []string{"users::" + id})
		entry, err := cache.DecodeEntry[*user](nil, found["users::"+id])
		if err != nil {
			t.Fatalf("decode %s: %v", id, err)
		}
		if !entry.IsAbsent() {
			t.Errorf("expected %s to be cached as absent", id)
		}
	}
}

func TestReadThroughMulti_BulkGetFailure(t *testing.T) {
	ctx := context.Background()
	client := testsupport.NewRecordingClient()
	m := newTestMediator(t, client)
	p := letters()

	if _, err := ReadThroughMulti(ctx, m, usersGetMany, []int{1, 2}, p.produce); err != nil {
		t.Fatalf("priming: %v", err)
	}
	p.calls = nil

	client.FailOn(testsupport.OpGetMany, cache.WrapUnavailable(errors.New("connection refused"), "get_many"))

	got, err := ReadThroughMulti(ctx, m, usersGetMany, []int{2, 1, 2, 3}, p.produce)
	if err != nil {
		t.Fatalf("backend failures must not surface: %v", err)
	}
	if want := []string{"B", "A", "B", "C"}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if want := [][]int{{2, 1, 3}}; !reflect.DeepEqual(p.calls, want) {
		t.Errorf("expected every distinct key to be produced, got %v", p.calls)
	}
}

func TestReadThroughMulti_ProduceError(t *testing.T) {
	ctx := context.Background()
	client := testsupport.NewRecordingClient()
	m := newTestMediator(t, client)

	boom := errors.New("database down")
	p := &producer{err: boom}

	got, err := ReadThroughMulti(ctx, m, usersGetMany, []int{1, 2}, p.produce)
	if err != boom {
		t.Fatalf("expected the produce error unchanged, got %v", err)
	}
	if got != nil {
		t.Errorf("expected no result, got %v", got)
	}
	if len(client.CallsTo(testsupport.OpSetMany)) != 0 {
		t.Error("nothing may be written after a failed produce")
	}
}

func TestReadThroughMulti_WriteBackFailure(t *testing.T) {
	ctx := context.Background()
	client := testsupport.NewRecordingClient()
	client.FailOn(testsupport.OpSetMany, errors.New("read only replica"))
	m := newTestMediator(t, client)
	p := letters()

	got, err := ReadThroughMulti(ctx, m, usersGetMany, []int{1, 2}, p.produce)
	if err != nil {
		t.Fatalf("write-back failures must be swallowed: %v", err)
	}
	if want := []string{"A", "B"}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if len(client.Keys()) != 0 {
		t.Errorf("expected nothing stored, got %v", client.Keys())
	}
}

func TestReadThroughMulti_CorruptEntryIsMiss(t *testing.T) {
	ctx := context.Background()
	client := testsupport.NewRecordingClient()
	client.Put("users::1", []byte{0xc1})
	m := newTestMediator(t, client)
	p := letters()

	got, err := ReadThroughMulti(ctx, m, usersGetMany, []int{1}, p.produce)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"A"}) {
		t.Errorf("got %v", got)
	}
	if want := [][]int{{1}}; !reflect.DeepEqual(p.calls, want) {
		t.Errorf("expected the corrupt key to be produced, got %v", p.calls)
	}
}

func TestReadThroughMulti_EmptyInput(t *testing.T) {
	client := testsupport.NewRecordingClient()
	m := newTestMediator(t, client)
	p := letters()

	got, err := ReadThroughMulti(context.Background(), m, usersGetMany, nil, p.produce)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("expected an empty, non-nil result, got %#v", got)
	}
	if len(p.calls) != 0 || len(client.Calls()) != 0 {
		t.Error("empty input must not reach the cache or the operation")
	}
}

func TestReadThroughMulti_InvalidPolicy(t *testing.T) {
	ctx := context.Background()
	client := testsupport.NewRecordingClient()
	m := newTestMediator(t, client)

	t.Run("single policy", func(t *testing.T) {
		p := letters()
		_, err := ReadThroughMulti(ctx, m, usersGet, []int{1}, p.produce)
		if !cache.HasCode(err, cache.CodeUnsupportedOperation) {
			t.Errorf("expected UNSUPPORTED_OPERATION, got %v", err)
		}
	})

	t.Run("keys without identity", func(t *testing.T) {
		called := false
		_, err := ReadThroughMulti(ctx, m, usersGetMany, []opaque{{}}, func(context.Context, []opaque) (map[opaque]string, error) {
			called = true
			return nil, nil
		})
		if !cache.HasCode(err, cache.CodeKeyMethodMissing) {
			t.Errorf("expected KEY_METHOD_MISSING, got %v", err)
		}
		if called {
			t.Error("configuration errors must surface before the operation runs")
		}
	})

	if len(client.Calls()) != 0 {
		t.Errorf("expected no backend calls, got %+v", client.Calls())
	}
}

func TestReadThroughMulti_EmptyIdentityBypassesCache(t *testing.T) {
	ctx := context.Background()
	client := testsupport.NewRecordingClient()
	m := newTestMediator(t, client)

	var calls [][]string
	produce := func(_ context.Context, missing []string) (map[string]int, error) {
		calls = append(calls, missing)
		out := map[string]int{}
		for _, k := range missing {
			out[k] = len(k)
		}
		return out, nil
	}

	got, err := ReadThroughMulti(ctx, m, usersGetMany, []string{"abc", "", "abc"}, produce)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := []int{3, 0, 3}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if want := [][]string{{"abc", ""}}; !reflect.DeepEqual(calls, want) {
		t.Errorf("produce calls = %v, want %v", calls, want)
	}
	if len(client.Calls()) != 0 {
		t.Errorf("bypassed calls must not touch the cache, got %+v", client.Calls())
	}
}

func TestInvokeMulti(t *testing.T) {
	ctx := context.Background()
	client := testsupport.NewRecordingClient()
	m := newTestMediator(t, client)

	byTenant := policy.MustNew(policy.Spec{
		Name:      "users.by_ids",
		Mode:      policy.ModeMulti,
		Namespace: "users",
		KeyIndex:  1,
	})

	var seen [][]any
	proceed := func(_ context.Context, args []any) ([]string, error) {
		seen = append(seen, args)
		ids := args[1].([]int)
		out := make([]string, len(ids))
		for i, id := range ids {
			out[i] = fmt.Sprintf("%s-%d", args[0], id)
		}
		return out, nil
	}

	got, err := InvokeMulti(ctx, m, byTenant, []any{"acme", []int{1, 2, 1}}, proceed)
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	if want := []string{"acme-1", "acme-2", "acme-1"}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}

	got, err = InvokeMulti(ctx, m, byTenant, []any{"acme", []int{3, 2}}, proceed)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if want := []string{"acme-3", "acme-2"}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}

	if len(seen) != 2 {
		t.Fatalf("expected 2 proceed calls, got %d", len(seen))
	}
	if want := []int{1, 2}; !reflect.DeepEqual(seen[0][1], want) {
		t.Errorf("first call keys = %v, want %v", seen[0][1], want)
	}
	if want := []int{3}; !reflect.DeepEqual(seen[1][1], want) {
		t.Errorf("second call keys = %v, want %v", seen[1][1], want)
	}
	if seen[1][0] != "acme" {
		t.Errorf("other arguments must pass through, got %v", seen[1][0])
	}
}

func TestInvokeMulti_Errors(t *testing.T) {
	ctx := context.Background()
	m := newTestMediator(t, testsupport.NewRecordingClient())

	aligned := func(_ context.Context, args []any) ([]string, error) {
		return make([]string, len(args[0].([]int))), nil
	}

	tests := []struct {
		name     string
		args     []any
		proceed  func(context.Context, []any) ([]string, error)
		wantCode string
	}{
		{
			name: "short result",
			args: []any{[]int{1, 2}},
			proceed: func(context.Context, []any) ([]string, error) {
				return []string{"only one"}, nil
			},
			wantCode: cache.CodeShapeMismatch,
		},
		{
			name:     "argument is not a list",
			args:     []any{42},
			proceed:  aligned,
			wantCode: cache.CodeShapeMismatch,
		},
		{
			name:     "key index out of range",
			args:     []any{},
			proceed:  aligned,
			wantCode: cache.CodeKeyIndexOutOfRange,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := InvokeMulti(ctx, m, usersGetMany, tt.args, tt.proceed)
			if !cache.IsInvalidPolicy(err) {
				t.Fatalf("expected InvalidPolicy, got %v", err)
			}
			if !cache.HasCode(err, tt.wantCode) {
				t.Errorf("expected %s, got %v", tt.wantCode, err)
			}
		})
	}
}

func TestInvokeMulti_ProceedErrorUnchanged(t *testing.T) {
	m := newTestMediator(t, testsupport.NewRecordingClient())
	boom := errors.New("timeout")

	_, err := InvokeMulti(context.Background(), m, usersGetMany, []any{[]int{1}}, func(context.Context, []any) ([]string, error) {
		return nil, boom
	})
	if err != boom {
		t.Errorf("expected the proceed error unchanged, got %v", err)
	}
}
