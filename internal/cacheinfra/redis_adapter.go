package cacheinfra

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient is a backend built on go-redis.
type RedisClient struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisClient connects to Redis and verifies the connection with PING.
func NewRedisClient(cfg RedisConfig) (*RedisClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return &RedisClient{client: client, keyPrefix: cfg.KeyPrefix}, nil
}

// NewRedisClientFrom wraps an existing go-redis client.
func NewRedisClientFrom(client redis.UniversalClient, keyPrefix string) *RedisClient {
	return &RedisClient{client: client, keyPrefix: keyPrefix}
}

func (r *RedisClient) prefixKey(key string) string {
	return r.keyPrefix + key
}

func (r *RedisClient) prefixKeys(keys []string) []string {
	out := make([]string, len(keys))
	for i, key := range keys {
		out[i] = r.prefixKey(key)
	}
	return out
}

// Get returns the bytes stored under key.
func (r *RedisClient) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := r.client.Get(ctx, r.prefixKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

// GetMany issues a single MGET for all keys.
func (r *RedisClient) GetMany(ctx context.Context, keys []string) (map[string][]byte, error) {
	if len(keys) == 0 {
		return map[string][]byte{}, nil
	}

	values, err := r.client.MGet(ctx, r.prefixKeys(keys)...).Result()
	if err != nil {
		return nil, err
	}

	found := make(map[string][]byte, len(keys))
	for i, v := range values {
		switch data := v.(type) {
		case string:
			found[keys[i]] = []byte(data)
		case []byte:
			found[keys[i]] = data
		}
	}
	return found, nil
}

// Set stores value under key. A zero ttl stores the key without expiration.
func (r *RedisClient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, r.prefixKey(key), value, ttl).Err()
}

// SetMany pipelines one SET per item.
func (r *RedisClient) SetMany(ctx context.Context, items map[string][]byte, ttl time.Duration) error {
	if len(items) == 0 {
		return nil
	}

	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for key, value := range items {
			pipe.Set(ctx, r.prefixKey(key), value, ttl)
		}
		return nil
	})
	return err
}

// Delete removes a single key.
func (r *RedisClient) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.prefixKey(key)).Err()
}

// DeleteMany removes all keys with one DEL.
func (r *RedisClient) DeleteMany(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, r.prefixKeys(keys)...).Err()
}

// scanBatch is the COUNT hint for SCAN and the size of each DEL issued by
// DeleteByPrefix.
const scanBatch = 500

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

// DeleteByPrefix removes every key starting with prefix. Keys are found with
// SCAN, so the call walks the keyspace without blocking the server.
func (r *RedisClient) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	pattern := globEscaper.Replace(r.prefixKey(prefix)) + "*"
	iter := r.client.Scan(ctx, 0, pattern, scanBatch).Iterator()

	removed := 0
	batch := make([]string, 0, scanBatch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := r.client.Del(ctx, batch...).Result()
		removed += int(n)
		batch = batch[:0]
		return err
	}

	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatch {
			if err := flush(); err != nil {
				return removed, err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return removed, err
	}
	return removed, flush()
}

// Ping checks the connection.
func (r *RedisClient) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the underlying connection pool.
func (r *RedisClient) Close() error {
	return r.client.Close()
}
