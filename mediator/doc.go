// Package mediator applies cache policies around wrapped operations.
//
// # Overview
//
// Every entry point takes the policy, the call's arguments, and a proceed
// function that runs the real operation. The mediator returns exactly what
// proceed would have returned; the cache only changes how often proceed
// runs.
//
//	m, _ := mediator.New(client, mediator.WithLogger(logger))
//
//	user, err := mediator.ReadThrough(ctx, m, getUser, []any{id},
//		func(ctx context.Context) (*User, error) {
//			return repo.GetByID(ctx, id)
//		})
//
// # Batches
//
// ReadThroughMulti splits the requested keys into hits and misses with one
// bulk read, calls produce once with the distinct misses, writes them back
// with one bulk set, and returns values in request order with duplicates
// repeated:
//
//	users, err := mediator.ReadThroughMulti(ctx, m, getUsers, ids,
//		func(ctx context.Context, missing []string) (map[string]*User, error) {
//			return repo.FindByIDs(ctx, missing)
//		})
//
// Keys produce does not return are cached as absent, so the next call
// serves them as nil without calling produce again.
//
// # Updates and invalidation
//
// Update and UpdateMulti write the operation's result after it succeeds.
// Invalidate and InvalidateMulti delete the affected entries after it
// succeeds. Keys come from an argument, from the result (policy.KeyFromResult)
// or from a policy's assigned key.
//
// # Errors
//
// Errors from proceed are returned unchanged. Cache failures are logged at
// warn, counted, and never returned. A policy that does not fit the call
// (wrong action or mode, a key index past the arguments, a type without an
// identity, a result list that does not line up with its keys) is an
// InvalidPolicy error. A nil or blank identity only skips the cache for
// that call.
package mediator
