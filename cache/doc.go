// Package cache provides the backend contract, key construction, and stored
// entry format shared by the cache policy mediators.
//
// # Overview
//
// This package exports the building blocks the mediator package composes:
//
//   - Client: a key/value backend with single and bulk operations
//   - BuildKey: turns an object id and a namespace into a cache key
//   - Entry: a tagged value that distinguishes "produced nothing" from "not cached"
//   - Config and NewClient: select and configure a backend
//
// # Keys
//
// Keys have the form namespace + "::" + objectID:
//
//	key, err := cache.BuildKey("42", "users") // "users::42"
//
// Both parts must be non-empty; an empty part is an InvalidPolicy error.
// Keys longer than MaxKeyLength keep their namespace and replace the object
// id with a 64-bit xxhash digest, so the same id always maps to the same key
// in every process.
//
// # Negative Caching
//
// Operations that produce nothing for a key are cached too. The stored entry
// is Absent and decodes back to the zero value of the element type:
//
//	data, _ := cache.EncodeEntry(nil, cache.Absent[*User]())
//	entry, _ := cache.DecodeEntry[*User](nil, data)
//	entry.IsAbsent() // true
//
// An absent entry is a hit. It is never confused with a key that is not in
// the cache at all.
//
// # Backends
//
// NewClient builds either an in-process sturdyc backend or a Redis backend:
//
//	cfg := cache.DefaultConfig()
//	cfg.Backend = cache.BackendRedis
//	cfg.Redis.Address = "localhost:6379"
//	client, err := cache.NewClient(cfg)
//
// Every error returned by such a client satisfies IsCacheUnavailable.
//
// # Error Handling
//
// Errors are go-errors values. Configuration mistakes carry
// CategoryInvalidPolicy and a text code (CodeEmptyNamespace, CodeKeyMethodMissing
// and so on); backend failures carry CategoryCacheUnavailable.
package cache
