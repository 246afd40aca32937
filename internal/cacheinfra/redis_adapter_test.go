package cacheinfra

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisClient(t *testing.T, prefix string) (*RedisClient, *miniredis.Miniredis) {
	t.Helper()

	server := miniredis.RunT(t)

	cfg := DefaultRedisConfig()
	cfg.Address = server.Addr()
	cfg.KeyPrefix = prefix

	client, err := NewRedisClient(cfg)
	if err != nil {
		t.Fatalf("NewRedisClient() failed: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	return client, server
}

func TestRedisConfig_Validate(t *testing.T) {
	tests := []struct {
		name  string
		mod   func(*RedisConfig)
		field string
	}{
		{name: "valid default", mod: func(*RedisConfig) {}},
		{name: "empty address", mod: func(c *RedisConfig) { c.Address = "" }, field: "Address"},
		{name: "negative db", mod: func(c *RedisConfig) { c.DB = -1 }, field: "DB"},
		{name: "negative retries", mod: func(c *RedisConfig) { c.MaxRetries = -1 }, field: "MaxRetries"},
		{name: "zero dial timeout", mod: func(c *RedisConfig) { c.DialTimeout = 0 }, field: "DialTimeout"},
		{name: "negative pool", mod: func(c *RedisConfig) { c.PoolSize = -2 }, field: "PoolSize"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultRedisConfig()
			tt.mod(&cfg)

			err := cfg.Validate()
			if tt.field == "" {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}

			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected *ConfigError, got %v", err)
			}
			if cfgErr.Field != tt.field {
				t.Errorf("expected field %q, got %q", tt.field, cfgErr.Field)
			}
		})
	}
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	server := miniredis.RunT(t)
	addr := server.Addr()
	server.Close()

	cfg := DefaultRedisConfig()
	cfg.Address = addr
	cfg.DialTimeout = 200 * time.Millisecond
	cfg.MaxRetries = 0

	if _, err := NewRedisClient(cfg); err == nil {
		t.Fatal("expected error connecting to a closed server")
	}
}

func TestRedisClient_GetSet(t *testing.T) {
	ctx := context.Background()
	client, server := newTestRedisClient(t, "app:")

	if _, ok, err := client.Get(ctx, "users::1"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}

	if err := client.Set(ctx, "users::1", []byte("alice"), time.Minute); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}

	if !server.Exists("app:users::1") {
		t.Fatal("expected key to be stored with prefix")
	}
	if ttl := server.TTL("app:users::1"); ttl != time.Minute {
		t.Errorf("expected ttl of 1m, got %v", ttl)
	}

	data, ok, err := client.Get(ctx, "users::1")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if string(data) != "alice" {
		t.Errorf("expected alice, got %q", data)
	}

	server.FastForward(2 * time.Minute)
	if _, ok, _ := client.Get(ctx, "users::1"); ok {
		t.Error("expected key to expire")
	}
}

func TestRedisClient_SetWithoutTTL(t *testing.T) {
	ctx := context.Background()
	client, server := newTestRedisClient(t, "")

	if err := client.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	if ttl := server.TTL("k"); ttl != 0 {
		t.Errorf("expected no ttl, got %v", ttl)
	}
}

func TestRedisClient_ManyOperations(t *testing.T) {
	ctx := context.Background()
	client, server := newTestRedisClient(t, "app:")

	err := client.SetMany(ctx, map[string][]byte{
		"users::1": []byte("a"),
		"users::2": []byte("b"),
	}, 30*time.Second)
	if err != nil {
		t.Fatalf("SetMany() failed: %v", err)
	}
	if ttl := server.TTL("app:users::2"); ttl != 30*time.Second {
		t.Errorf("expected pipelined ttl of 30s, got %v", ttl)
	}

	found, err := client.GetMany(ctx, []string{"users::1", "users::9", "users::2"})
	if err != nil {
		t.Fatalf("GetMany() failed: %v", err)
	}
	if len(found) != 2 || string(found["users::1"]) != "a" || string(found["users::2"]) != "b" {
		t.Errorf("unexpected GetMany() result: %v", found)
	}

	if err := client.DeleteMany(ctx, []string{"users::1", "users::2"}); err != nil {
		t.Fatalf("DeleteMany() failed: %v", err)
	}
	if server.Exists("app:users::1") || server.Exists("app:users::2") {
		t.Error("expected keys to be deleted")
	}
}

func TestRedisClient_DeleteByPrefix(t *testing.T) {
	ctx := context.Background()
	client, server := newTestRedisClient(t, "app:")

	items := map[string][]byte{
		"users::a*b":          []byte("glob"),
		"users.identifier::x": []byte("i"),
		"orders::1":           []byte("o"),
	}
	for i := range scanBatch + 10 {
		items[fmt.Sprintf("users::%d", i)] = []byte("u")
	}
	if err := client.SetMany(ctx, items, 0); err != nil {
		t.Fatalf("SetMany() failed: %v", err)
	}
	if err := server.Set("users::outside-prefix", "x"); err != nil {
		t.Fatal(err)
	}

	removed, err := client.DeleteByPrefix(ctx, "users::")
	if err != nil {
		t.Fatalf("DeleteByPrefix() failed: %v", err)
	}
	if want := scanBatch + 11; removed != want {
		t.Errorf("removed %d keys, want %d", removed, want)
	}
	for _, key := range []string{"app:users.identifier::x", "app:orders::1", "users::outside-prefix"} {
		if !server.Exists(key) {
			t.Errorf("expected %s to survive", key)
		}
	}

	_ = client.SetMany(ctx, map[string][]byte{"users::a*b": []byte("glob"), "users::ab": []byte("plain")}, 0)
	removed, err = client.DeleteByPrefix(ctx, "users::a*")
	if err != nil || removed != 1 {
		t.Errorf("DeleteByPrefix() = %d, %v; want 1, nil", removed, err)
	}
	if !server.Exists("app:users::ab") {
		t.Error("glob characters in the prefix must match literally")
	}
}

func TestRedisClient_EmptyBatches(t *testing.T) {
	ctx := context.Background()
	client, _ := newTestRedisClient(t, "")

	found, err := client.GetMany(ctx, nil)
	if err != nil || len(found) != 0 {
		t.Errorf("expected empty result, got %v err=%v", found, err)
	}
	if err := client.SetMany(ctx, nil, time.Minute); err != nil {
		t.Errorf("SetMany(nil) failed: %v", err)
	}
	if err := client.DeleteMany(ctx, nil); err != nil {
		t.Errorf("DeleteMany(nil) failed: %v", err)
	}
}

func TestRedisClient_BackendDown(t *testing.T) {
	ctx := context.Background()
	server := miniredis.RunT(t)

	raw := redis.NewClient(&redis.Options{Addr: server.Addr(), MaxRetries: -1})
	client := NewRedisClientFrom(raw, "")
	t.Cleanup(func() { _ = client.Close() })

	server.Close()

	if _, err := client.GetMany(ctx, []string{"a"}); err == nil {
		t.Error("expected error from GetMany with server down")
	}
	if err := client.Set(ctx, "a", []byte("b"), 0); err == nil {
		t.Error("expected error from Set with server down")
	}
}
