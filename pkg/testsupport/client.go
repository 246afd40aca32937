package testsupport

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/goliatone/go-cache-policy/cache"
)

// Operation names recorded by RecordingClient.
const (
	OpGet        = "get"
	OpGetMany    = "get_many"
	OpSet        = "set"
	OpSetMany    = "set_many"
	OpDelete     = "delete"
	OpDeleteMany = "delete_many"
)

// Call is one recorded backend call.
type Call struct {
	Op   string
	Keys []string
	TTL  time.Duration
}

// RecordingClient is an in-memory cache.Client that records every call and
// can be told to fail specific operations. Entries never expire; the ttl of
// each write is recorded instead.
type RecordingClient struct {
	mu    sync.Mutex
	data  map[string][]byte
	ttls  map[string]time.Duration
	calls []Call
	fail  map[string]error
}

var _ cache.Client = (*RecordingClient)(nil)

// NewRecordingClient returns an empty RecordingClient.
func NewRecordingClient() *RecordingClient {
	return &RecordingClient{
		data: make(map[string][]byte),
		ttls: make(map[string]time.Duration),
		fail: make(map[string]error),
	}
}

// FailOn makes every later call to op return err. A nil err clears it.
func (c *RecordingClient) FailOn(op string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.fail, op)
		return
	}
	c.fail[op] = err
}

// Calls returns a copy of the recorded calls.
func (c *RecordingClient) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.calls...)
}

// CallsTo returns the recorded calls to op.
func (c *RecordingClient) CallsTo(op string) []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Call
	for _, call := range c.calls {
		if call.Op == op {
			out = append(out, call)
		}
	}
	return out
}

// ResetCalls forgets the recorded calls but keeps the stored entries.
func (c *RecordingClient) ResetCalls() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = nil
}

// Keys returns the stored keys in sorted order.
func (c *RecordingClient) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.data))
	for k := range c.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// TTL returns the ttl of the last write to key.
func (c *RecordingClient) TTL(key string) (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ttl, ok := c.ttls[key]
	return ttl, ok
}

// Put stores raw bytes without recording a call.
func (c *RecordingClient) Put(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = append([]byte(nil), data...)
}

func (c *RecordingClient) record(op string, keys []string, ttl time.Duration) error {
	c.calls = append(c.calls, Call{Op: op, Keys: keys, TTL: ttl})
	return c.fail[op]
}

func (c *RecordingClient) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record(OpGet, []string{key}, 0); err != nil {
		return nil, false, err
	}
	data, ok := c.data[key]
	return append([]byte(nil), data...), ok, nil
}

func (c *RecordingClient) GetMany(_ context.Context, keys []string) (map[string][]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record(OpGetMany, append([]string(nil), keys...), 0); err != nil {
		return nil, err
	}
	found := make(map[string][]byte, len(keys))
	for _, key := range keys {
		if data, ok := c.data[key]; ok {
			found[key] = append([]byte(nil), data...)
		}
	}
	return found, nil
}

func (c *RecordingClient) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record(OpSet, []string{key}, ttl); err != nil {
		return err
	}
	c.data[key] = append([]byte(nil), value...)
	c.ttls[key] = ttl
	return nil
}

func (c *RecordingClient) SetMany(_ context.Context, items map[string][]byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if err := c.record(OpSetMany, keys, ttl); err != nil {
		return err
	}
	for k, v := range items {
		c.data[k] = append([]byte(nil), v...)
		c.ttls[k] = ttl
	}
	return nil
}

func (c *RecordingClient) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record(OpDelete, []string{key}, 0); err != nil {
		return err
	}
	delete(c.data, key)
	delete(c.ttls, key)
	return nil
}

func (c *RecordingClient) DeleteMany(_ context.Context, keys []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.record(OpDeleteMany, append([]string(nil), keys...), 0); err != nil {
		return err
	}
	for _, key := range keys {
		delete(c.data, key)
		delete(c.ttls, key)
	}
	return nil
}
