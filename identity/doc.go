// Package identity derives the object id part of a cache key from a value.
//
// A type opts in by implementing Identifier:
//
//	func (u User) CacheKey() string { return u.ID }
//
// or by tagging one field:
//
//	type Order struct {
//		Number int64 `cache:"key"`
//	}
//
// Strings, booleans, and integers are their own identity. The capability of
// each type is inspected once and remembered, including failures.
package identity
