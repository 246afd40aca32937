// Package repositorycache provides a cached repository decorator for go-repository-bun.
//
// # Overview
//
// CachedRepository wraps a base repository and drives the mediator package
// with a fixed set of policies (see Policies). It satisfies
// repository.Repository[T], so it is a drop-in replacement for the base.
//
//	m, _ := mediator.New(client)
//	cached, err := repositorycache.New[User](base, m,
//		repositorycache.WithExpiration(5*time.Minute))
//
//	user, err := cached.GetByID(ctx, "user-123")
//	users, err := cached.GetByIDs(ctx, []string{"user-1", "user-2"})
//
// Record types must expose a cache identity, usually a CacheKey() string
// method returning the record ID.
//
// # Cached Operations
//
//   - GetByID and GetByIdentifier are read-through when called without criteria
//   - GetByIDs reads every ID in one bulk call and loads the misses with a single List
//   - Create, Update, Upsert, GetOrCreate and their Many variants write the result back
//   - Delete and ForceDelete invalidate the record's entry
//
// Transactional writes (*Tx methods) invalidate instead of writing back,
// since the transaction may still roll back. Criteria deletes (DeleteMany,
// DeleteWhere) cannot name the affected records, so they drop every key the
// decorator has cached. Identifier entries are dropped after any write.
//
// Get, List, Count, Raw and the transactional reads go straight to the base
// repository.
//
// # Error Handling
//
// Errors from the base repository are returned unchanged and nothing is
// cached for failed calls. Cache backend failures are logged and never
// returned.
package repositorycache
