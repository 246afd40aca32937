package repositorycache

import (
	"github.com/puzpuzpuz/xsync/v3"
)

// DefaultTrackingLimit is the number of keys a decorator remembers per key
// set before it flushes them.
const DefaultTrackingLimit = 4096

// keySet is a bounded set of cache keys a decorator may have written.
type keySet struct {
	keys  *xsync.MapOf[string, struct{}]
	limit int
}

func newKeySet(limit int) *keySet {
	if limit <= 0 {
		limit = DefaultTrackingLimit
	}
	return &keySet{keys: xsync.NewMapOf[string, struct{}](), limit: limit}
}

// add stores keys and reports whether the set went over its limit.
func (s *keySet) add(keys ...string) bool {
	for _, key := range keys {
		s.keys.Store(key, struct{}{})
	}
	return s.keys.Size() > s.limit
}

func (s *keySet) remove(keys ...string) {
	for _, key := range keys {
		s.keys.Delete(key)
	}
}

// drain empties the set and returns what it held. Keys added while draining
// stay for the next call.
func (s *keySet) drain() []string {
	var keys []string
	s.keys.Range(func(key string, _ struct{}) bool {
		keys = append(keys, key)
		return true
	})
	s.remove(keys...)
	return keys
}

func (s *keySet) size() int {
	return s.keys.Size()
}
