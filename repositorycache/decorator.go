package repositorycache

import (
	"context"
	"reflect"
	"time"

	"github.com/felixgeelhaar/bolt/v3"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-cache-policy/cache"
	"github.com/goliatone/go-cache-policy/internal/logging"
	"github.com/goliatone/go-cache-policy/mediator"
	"github.com/goliatone/go-cache-policy/policy"
)

// Interface assertion to ensure CachedRepository implements Repository[T]
var _ repository.Repository[any] = (*CachedRepository[any])(nil)

// CachedRepository decorates a base repository with cache policies. Reads by
// ID or identifier are served read-through, writes refresh the affected
// entries, and deletes invalidate them.
type CachedRepository[T any] struct {
	base     repository.Repository[T]
	mediator *mediator.Mediator
	policies Policies
	logger   *bolt.Logger

	// prefixes is set when the backend can drop a whole namespace.
	prefixes    cache.PrefixDeleter
	// identifiers holds cached identifier keys. A write cannot tell which
	// identifiers resolve to its records, so every write drops them all.
	identifiers *keySet
	// ids holds cached ID keys for criteria deletes. It is nil when
	// prefixes is set.
	ids         *keySet
}

// Option configures a CachedRepository.
type Option func(*config)

type config struct {
	namespace     string
	expiration    time.Duration
	logger        *bolt.Logger
	registry      *policy.Registry
	trackingLimit int
}

// WithNamespace overrides the key namespace, which defaults to the snake
// case name of T.
func WithNamespace(ns string) Option {
	return func(c *config) { c.namespace = ns }
}

// WithExpiration sets the ttl of cached records. Zero means no expiry.
func WithExpiration(ttl time.Duration) Option {
	return func(c *config) { c.expiration = ttl }
}

// WithLogger sets the logger used for failed bulk invalidations.
func WithLogger(logger *bolt.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// WithRegistry registers the decorator's policies in r.
func WithRegistry(r *policy.Registry) Option {
	return func(c *config) { c.registry = r }
}

// WithTrackingLimit caps each set of keys the decorator remembers for later
// invalidation. A full set is invalidated and emptied. Defaults to
// DefaultTrackingLimit.
func WithTrackingLimit(n int) Option {
	return func(c *config) { c.trackingLimit = n }
}

// New wraps base. Records of type T must expose a cache identity (see the
// identity package), otherwise New returns an InvalidPolicy error.
func New[T any](base repository.Repository[T], m *mediator.Mediator, opts ...Option) (*CachedRepository[T], error) {
	cfg := config{namespace: policy.NamespaceOf[T]()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logging.Default()
	}

	if err := m.Deriver().Resolve(reflect.TypeFor[T]()); err != nil {
		return nil, err
	}

	policies, err := NewPolicies(cfg.namespace, cfg.expiration)
	if err != nil {
		return nil, err
	}
	if cfg.registry != nil {
		if err := policies.register(cfg.registry); err != nil {
			return nil, err
		}
	}

	cached := &CachedRepository[T]{
		base:        base,
		mediator:    m,
		policies:    policies,
		logger:      cfg.logger,
		identifiers: newKeySet(cfg.trackingLimit),
	}
	if pd, ok := cache.AsPrefixDeleter(m.Client()); ok {
		cached.prefixes = pd
	} else {
		cached.ids = newKeySet(cfg.trackingLimit)
	}
	return cached, nil
}

// Policies returns the descriptors the decorator applies.
func (c *CachedRepository[T]) Policies() Policies {
	return c.policies
}

// Get retrieves a single record using the provided criteria. Criteria
// queries are not cached.
func (c *CachedRepository[T]) Get(ctx context.Context, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.Get(ctx, criteria...)
}

// GetByID retrieves a record by ID, read-through. Calls with criteria go
// straight to the base repository since criteria change the result.
func (c *CachedRepository[T]) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (T, error) {
	if len(criteria) > 0 {
		return c.base.GetByID(ctx, id, criteria...)
	}
	c.track(ctx, c.ids, c.policies.GetByID, id)
	return mediator.ReadThrough(ctx, c.mediator, c.policies.GetByID, []any{id}, func(ctx context.Context) (T, error) {
		return c.base.GetByID(ctx, id)
	})
}

// GetByIDs returns the records with the given IDs in request order. Cached
// records are served from the cache and the rest are loaded with a single
// List call. IDs without a record yield the zero value of T.
func (c *CachedRepository[T]) GetByIDs(ctx context.Context, ids []string) ([]T, error) {
	c.track(ctx, c.ids, c.policies.GetByIDs, ids...)
	return mediator.ReadThroughMulti(ctx, c.mediator, c.policies.GetByIDs, ids, func(ctx context.Context, missing []string) (map[string]T, error) {
		records, _, err := c.base.List(ctx, idIn(missing))
		if err != nil {
			return nil, err
		}

		out := make(map[string]T, len(records))
		for _, record := range records {
			id, err := c.mediator.Deriver().Derive(record)
			if err != nil {
				continue
			}
			out[id] = record
		}
		return out, nil
	})
}

func idIn(ids []string) repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.id IN (?)", bun.In(ids))
	}
}

// List retrieves multiple records using the provided criteria (not cached).
func (c *CachedRepository[T]) List(ctx context.Context, criteria ...repository.SelectCriteria) ([]T, int, error) {
	return c.base.List(ctx, criteria...)
}

// Count returns the number of records matching the criteria (not cached).
func (c *CachedRepository[T]) Count(ctx context.Context, criteria ...repository.SelectCriteria) (int, error) {
	return c.base.Count(ctx, criteria...)
}

// GetByIdentifier retrieves a record by identifier, read-through. Identifier
// entries cannot be keyed from a record, so every write drops them.
func (c *CachedRepository[T]) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (T, error) {
	if len(criteria) > 0 {
		return c.base.GetByIdentifier(ctx, identifier, criteria...)
	}
	c.track(ctx, c.identifiers, c.policies.GetByIdentifier, identifier)
	return mediator.ReadThrough(ctx, c.mediator, c.policies.GetByIdentifier, []any{identifier}, func(ctx context.Context) (T, error) {
		return c.base.GetByIdentifier(ctx, identifier)
	})
}

// Create creates a new record and caches it.
func (c *CachedRepository[T]) Create(ctx context.Context, record T, criteria ...repository.InsertCriteria) (T, error) {
	return c.save(ctx, func(ctx context.Context) (T, error) {
		return c.base.Create(ctx, record, criteria...)
	})
}

// CreateTx creates a new record within a transaction. The entry is dropped
// rather than written, since the transaction may still roll back.
func (c *CachedRepository[T]) CreateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.InsertCriteria) (T, error) {
	return c.evict(ctx, func(ctx context.Context) (T, error) {
		return c.base.CreateTx(ctx, tx, record, criteria...)
	})
}

// CreateMany creates multiple records and caches them.
func (c *CachedRepository[T]) CreateMany(ctx context.Context, records []T, criteria ...repository.InsertCriteria) ([]T, error) {
	return c.saveMany(ctx, func(ctx context.Context) ([]T, error) {
		return c.base.CreateMany(ctx, records, criteria...)
	})
}

// CreateManyTx creates multiple records within a transaction
func (c *CachedRepository[T]) CreateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.InsertCriteria) ([]T, error) {
	return c.evictMany(ctx, func(ctx context.Context) ([]T, error) {
		return c.base.CreateManyTx(ctx, tx, records, criteria...)
	})
}

// GetOrCreate gets a record or creates it if it doesn't exist
func (c *CachedRepository[T]) GetOrCreate(ctx context.Context, record T) (T, error) {
	return c.save(ctx, func(ctx context.Context) (T, error) {
		return c.base.GetOrCreate(ctx, record)
	})
}

// GetOrCreateTx gets a record or creates it if it doesn't exist within a transaction
func (c *CachedRepository[T]) GetOrCreateTx(ctx context.Context, tx bun.IDB, record T) (T, error) {
	return c.evict(ctx, func(ctx context.Context) (T, error) {
		return c.base.GetOrCreateTx(ctx, tx, record)
	})
}

// Update updates a record and writes the result to the cache.
func (c *CachedRepository[T]) Update(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	return c.save(ctx, func(ctx context.Context) (T, error) {
		return c.base.Update(ctx, record, criteria...)
	})
}

// UpdateTx updates a record within a transaction
func (c *CachedRepository[T]) UpdateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	return c.evict(ctx, func(ctx context.Context) (T, error) {
		return c.base.UpdateTx(ctx, tx, record, criteria...)
	})
}

// UpdateMany updates multiple records
func (c *CachedRepository[T]) UpdateMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	return c.saveMany(ctx, func(ctx context.Context) ([]T, error) {
		return c.base.UpdateMany(ctx, records, criteria...)
	})
}

// UpdateManyTx updates multiple records within a transaction
func (c *CachedRepository[T]) UpdateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	return c.evictMany(ctx, func(ctx context.Context) ([]T, error) {
		return c.base.UpdateManyTx(ctx, tx, records, criteria...)
	})
}

// Upsert inserts or updates a record
func (c *CachedRepository[T]) Upsert(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	return c.save(ctx, func(ctx context.Context) (T, error) {
		return c.base.Upsert(ctx, record, criteria...)
	})
}

// UpsertTx inserts or updates a record within a transaction
func (c *CachedRepository[T]) UpsertTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	return c.evict(ctx, func(ctx context.Context) (T, error) {
		return c.base.UpsertTx(ctx, tx, record, criteria...)
	})
}

// UpsertMany inserts or updates multiple records
func (c *CachedRepository[T]) UpsertMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	return c.saveMany(ctx, func(ctx context.Context) ([]T, error) {
		return c.base.UpsertMany(ctx, records, criteria...)
	})
}

// UpsertManyTx inserts or updates multiple records within a transaction
func (c *CachedRepository[T]) UpsertManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	return c.evictMany(ctx, func(ctx context.Context) ([]T, error) {
		return c.base.UpsertManyTx(ctx, tx, records, criteria...)
	})
}

// Delete deletes a record and invalidates its entry.
func (c *CachedRepository[T]) Delete(ctx context.Context, record T) error {
	return c.remove(ctx, record, func(ctx context.Context) error {
		return c.base.Delete(ctx, record)
	})
}

// DeleteTx deletes a record within a transaction
func (c *CachedRepository[T]) DeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	return c.remove(ctx, record, func(ctx context.Context) error {
		return c.base.DeleteTx(ctx, tx, record)
	})
}

// DeleteMany deletes multiple records based on criteria. The affected
// records are unknown, so every entry of the namespace is dropped.
func (c *CachedRepository[T]) DeleteMany(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	err := c.base.DeleteMany(ctx, criteria...)
	if err == nil {
		c.invalidateAll(ctx)
	}
	return err
}

// DeleteManyTx deletes multiple records based on criteria within a transaction
func (c *CachedRepository[T]) DeleteManyTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	err := c.base.DeleteManyTx(ctx, tx, criteria...)
	if err == nil {
		c.invalidateAll(ctx)
	}
	return err
}

// DeleteWhere deletes records based on criteria
func (c *CachedRepository[T]) DeleteWhere(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	err := c.base.DeleteWhere(ctx, criteria...)
	if err == nil {
		c.invalidateAll(ctx)
	}
	return err
}

// DeleteWhereTx deletes records based on criteria within a transaction
func (c *CachedRepository[T]) DeleteWhereTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	err := c.base.DeleteWhereTx(ctx, tx, criteria...)
	if err == nil {
		c.invalidateAll(ctx)
	}
	return err
}

// ForceDelete force deletes a record (bypassing soft delete)
func (c *CachedRepository[T]) ForceDelete(ctx context.Context, record T) error {
	return c.remove(ctx, record, func(ctx context.Context) error {
		return c.base.ForceDelete(ctx, record)
	})
}

// ForceDeleteTx force deletes a record within a transaction (bypassing soft delete)
func (c *CachedRepository[T]) ForceDeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	return c.remove(ctx, record, func(ctx context.Context) error {
		return c.base.ForceDeleteTx(ctx, tx, record)
	})
}

// GetTx retrieves a single record using the provided criteria within a transaction
func (c *CachedRepository[T]) GetTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.GetTx(ctx, tx, criteria...)
}

// GetByIDTx retrieves a record by ID with optional criteria within a transaction
func (c *CachedRepository[T]) GetByIDTx(ctx context.Context, tx bun.IDB, id string, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.GetByIDTx(ctx, tx, id, criteria...)
}

// ListTx retrieves multiple records using the provided criteria within a transaction
func (c *CachedRepository[T]) ListTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) ([]T, int, error) {
	return c.base.ListTx(ctx, tx, criteria...)
}

// CountTx returns the number of records matching the criteria within a transaction
func (c *CachedRepository[T]) CountTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (int, error) {
	return c.base.CountTx(ctx, tx, criteria...)
}

// GetByIdentifierTx retrieves a record by identifier with optional criteria within a transaction
func (c *CachedRepository[T]) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.GetByIdentifierTx(ctx, tx, identifier, criteria...)
}

// Raw executes a raw SQL query and returns the results
func (c *CachedRepository[T]) Raw(ctx context.Context, sql string, args ...any) ([]T, error) {
	return c.base.Raw(ctx, sql, args...)
}

// RawTx executes a raw SQL query within a transaction and returns the results
func (c *CachedRepository[T]) RawTx(ctx context.Context, tx bun.IDB, sql string, args ...any) ([]T, error) {
	return c.base.RawTx(ctx, tx, sql, args...)
}

// Handlers returns the model handlers from the base repository
func (c *CachedRepository[T]) Handlers() repository.ModelHandlers[T] {
	return c.base.Handlers()
}

func (c *CachedRepository[T]) save(ctx context.Context, write func(context.Context) (T, error)) (T, error) {
	result, err := mediator.Update(ctx, c.mediator, c.policies.Save, nil, write)
	if err == nil {
		c.trackRecords(ctx, c.policies.Save, result)
		c.invalidateIdentifiers(ctx)
	}
	return result, err
}

func (c *CachedRepository[T]) saveMany(ctx context.Context, write func(context.Context) ([]T, error)) ([]T, error) {
	results, err := mediator.UpdateMulti(ctx, c.mediator, c.policies.SaveMany, nil, write)
	if err == nil {
		c.trackRecords(ctx, c.policies.SaveMany, results...)
		c.invalidateIdentifiers(ctx)
	}
	return results, err
}

func (c *CachedRepository[T]) evict(ctx context.Context, write func(context.Context) (T, error)) (T, error) {
	result, err := mediator.Invalidate(ctx, c.mediator, c.policies.Evict, nil, write)
	if err == nil {
		c.untrackRecords(c.policies.Evict, result)
		c.invalidateIdentifiers(ctx)
	}
	return result, err
}

func (c *CachedRepository[T]) evictMany(ctx context.Context, write func(context.Context) ([]T, error)) ([]T, error) {
	results, err := mediator.InvalidateMulti(ctx, c.mediator, c.policies.EvictMany, nil, write)
	if err == nil {
		c.untrackRecords(c.policies.EvictMany, results...)
		c.invalidateIdentifiers(ctx)
	}
	return results, err
}

func (c *CachedRepository[T]) remove(ctx context.Context, record T, del func(context.Context) error) error {
	_, err := mediator.Invalidate(ctx, c.mediator, c.policies.Delete, []any{record}, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, del(ctx)
	})
	if err == nil {
		c.untrackRecords(c.policies.Delete, record)
		c.invalidateIdentifiers(ctx)
	}
	return err
}

// track registers the keys of ids under d's namespace in set. A full set is
// flushed first, so it stays bounded and still holds the keys about to be
// written.
func (c *CachedRepository[T]) track(ctx context.Context, set *keySet, d *policy.Descriptor, ids ...string) {
	if set == nil {
		return
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		if key, err := cache.BuildKey(id, d.Namespace()); err == nil {
			keys = append(keys, key)
		}
	}
	if set.add(keys...) {
		c.flush(ctx, set)
		set.add(keys...)
	}
}

func (c *CachedRepository[T]) trackRecords(ctx context.Context, d *policy.Descriptor, records ...T) {
	if c.ids == nil {
		return
	}
	c.track(ctx, c.ids, d, c.recordIDs(records)...)
}

// untrackRecords forgets the keys of records whose entries were just removed.
func (c *CachedRepository[T]) untrackRecords(d *policy.Descriptor, records ...T) {
	if c.ids == nil {
		return
	}
	for _, id := range c.recordIDs(records) {
		if key, err := cache.BuildKey(id, d.Namespace()); err == nil {
			c.ids.remove(key)
		}
	}
}

func (c *CachedRepository[T]) recordIDs(records []T) []string {
	ids := make([]string, 0, len(records))
	for _, record := range records {
		if id, err := c.mediator.Deriver().Derive(record); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

func (c *CachedRepository[T]) invalidateIdentifiers(ctx context.Context) {
	c.flush(ctx, c.identifiers)
}

// invalidateAll drops every entry the decorator may have written. Backends
// with prefix deletes drop the ID namespace as a whole.
func (c *CachedRepository[T]) invalidateAll(ctx context.Context) {
	c.flush(ctx, c.identifiers)
	if c.prefixes == nil {
		c.flush(ctx, c.ids)
		return
	}

	prefix := c.policies.GetByID.Namespace() + cache.KeySeparator
	if _, err := c.prefixes.DeleteByPrefix(ctx, prefix); err != nil {
		c.logger.Warn().
			Str("prefix", prefix).
			Err(err).
			Msg("cache namespace invalidation failed")
	}
}

// flush empties set and deletes its keys with one bulk call.
func (c *CachedRepository[T]) flush(ctx context.Context, set *keySet) {
	if set == nil {
		return
	}
	keys := set.drain()
	if len(keys) == 0 {
		return
	}

	if err := c.mediator.Client().DeleteMany(ctx, keys); err != nil {
		c.logger.Warn().
			Str("namespace", c.policies.GetByID.Namespace()).
			Int("keys", len(keys)).
			Err(err).
			Msg("cache bulk invalidation failed")
	}
}
