package cacheinfra

import (
	"context"
	"strings"
	"time"

	"github.com/viccon/sturdyc"
)

// memoryItem is what the sturdyc client stores. sturdyc applies one ttl to
// the whole client, so the per write deadline travels with the bytes.
type memoryItem struct {
	data      []byte
	expiresAt time.Time
}

func (i memoryItem) expired(now time.Time) bool {
	return !i.expiresAt.IsZero() && !now.Before(i.expiresAt)
}

// MemoryClient is an in-process backend built on a sturdyc client.
type MemoryClient struct {
	client *sturdyc.Client[memoryItem]
	now    func() time.Time
}

// NewMemoryClient validates cfg and builds a sturdyc backed client.
//
// Capacity, NumShards, TTL, EvictionPercentage are passed to sturdyc.New(),
// other options are applied via ToSturdycOptions().
func NewMemoryClient(cfg Config) (*MemoryClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := sturdyc.New[memoryItem](
		cfg.Capacity,
		cfg.NumShards,
		cfg.TTL,
		cfg.EvictionPercentage,
		cfg.ToSturdycOptions()...,
	)

	return &MemoryClient{client: client, now: time.Now}, nil
}

func (m *MemoryClient) lookup(key string) ([]byte, bool) {
	item, ok := m.client.Get(key)
	if !ok {
		return nil, false
	}
	if item.expired(m.now()) {
		m.client.Delete(key)
		return nil, false
	}
	return item.data, true
}

func (m *MemoryClient) store(key string, value []byte, ttl time.Duration) {
	item := memoryItem{data: append([]byte(nil), value...)}
	if ttl > 0 {
		item.expiresAt = m.now().Add(ttl)
	}
	m.client.Set(key, item)
}

// Get returns the bytes stored under key.
func (m *MemoryClient) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	data, ok := m.lookup(key)
	return data, ok, nil
}

// GetMany returns the subset of keys currently stored.
func (m *MemoryClient) GetMany(ctx context.Context, keys []string) (map[string][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	found := make(map[string][]byte, len(keys))
	for _, key := range keys {
		if data, ok := m.lookup(key); ok {
			found[key] = data
		}
	}
	return found, nil
}

// Set stores value under key. A zero ttl keeps the entry until the client
// level TTL evicts it.
func (m *MemoryClient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.store(key, value, ttl)
	return nil
}

// SetMany stores every item with the same ttl.
func (m *MemoryClient) SetMany(ctx context.Context, items map[string][]byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for key, value := range items {
		m.store(key, value, ttl)
	}
	return nil
}

// Delete removes a single entry.
func (m *MemoryClient) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.client.Delete(key)
	return nil
}

// DeleteMany removes every listed entry.
func (m *MemoryClient) DeleteMany(ctx context.Context, keys []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, key := range keys {
		m.client.Delete(key)
	}
	return nil
}

// DeleteByPrefix removes all entries whose key starts with prefix, for
// example every key of one namespace.
func (m *MemoryClient) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	removed := 0
	for _, key := range m.client.ScanKeys() {
		if strings.HasPrefix(key, prefix) {
			m.client.Delete(key)
			removed++
		}
	}
	return removed, nil
}

// Size returns the number of stored entries, expired ones included until
// they are read or evicted.
func (m *MemoryClient) Size() int {
	return m.client.Size()
}
