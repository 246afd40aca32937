package cache

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// Client is the key/value backend the mediators talk to.
//
// GetMany returns only the keys that were found. A ttl of zero means the
// entry never expires. Implementations must be safe for concurrent use.
type Client interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	GetMany(ctx context.Context, keys []string) (map[string][]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	SetMany(ctx context.Context, items map[string][]byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeleteMany(ctx context.Context, keys []string) error
}

// Closer is implemented by clients holding network resources.
type Closer interface {
	Close() error
}

// PrefixDeleter is implemented by clients that can remove every key sharing
// a prefix, such as all keys of one namespace.
type PrefixDeleter interface {
	DeleteByPrefix(ctx context.Context, prefix string) (int, error)
}

// AsPrefixDeleter returns c as a PrefixDeleter when its backend supports
// prefix deletes, looking through WithUnavailableErrors.
func AsPrefixDeleter(c Client) (PrefixDeleter, bool) {
	if cc, ok := c.(*categorizedClient); ok {
		if _, ok := cc.inner.(PrefixDeleter); !ok {
			return nil, false
		}
		return cc, true
	}
	pd, ok := c.(PrefixDeleter)
	return pd, ok
}

// categorizedClient tags every backend error with CategoryCacheUnavailable.
type categorizedClient struct {
	inner Client
}

// WithUnavailableErrors wraps c so the errors it returns satisfy
// IsCacheUnavailable.
func WithUnavailableErrors(c Client) Client {
	if c == nil {
		return nil
	}
	if _, ok := c.(*categorizedClient); ok {
		return c
	}
	return &categorizedClient{inner: c}
}

func (c *categorizedClient) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, ok, err := c.inner.Get(ctx, key)
	return data, ok, WrapUnavailable(err, "get")
}

func (c *categorizedClient) GetMany(ctx context.Context, keys []string) (map[string][]byte, error) {
	found, err := c.inner.GetMany(ctx, keys)
	return found, WrapUnavailable(err, "get_many")
}

func (c *categorizedClient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return WrapUnavailable(c.inner.Set(ctx, key, value, ttl), "set")
}

func (c *categorizedClient) SetMany(ctx context.Context, items map[string][]byte, ttl time.Duration) error {
	return WrapUnavailable(c.inner.SetMany(ctx, items, ttl), "set_many")
}

func (c *categorizedClient) Delete(ctx context.Context, key string) error {
	return WrapUnavailable(c.inner.Delete(ctx, key), "delete")
}

func (c *categorizedClient) DeleteMany(ctx context.Context, keys []string) error {
	return WrapUnavailable(c.inner.DeleteMany(ctx, keys), "delete_many")
}

// DeleteByPrefix forwards to the wrapped client. Use AsPrefixDeleter to
// check support first.
func (c *categorizedClient) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	pd, ok := c.inner.(PrefixDeleter)
	if !ok {
		return 0, goerrors.New("backend does not support prefix deletes", goerrors.CategoryOperation)
	}
	removed, err := pd.DeleteByPrefix(ctx, prefix)
	return removed, WrapUnavailable(err, "delete_by_prefix")
}

// Close closes the wrapped client when it holds resources.
func (c *categorizedClient) Close() error {
	if closer, ok := c.inner.(Closer); ok {
		return closer.Close()
	}
	return nil
}
