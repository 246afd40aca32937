package di

import (
	"github.com/felixgeelhaar/bolt/v3"
	repository "github.com/goliatone/go-repository-bun"

	"github.com/goliatone/go-cache-policy/cache"
	"github.com/goliatone/go-cache-policy/internal/logging"
	"github.com/goliatone/go-cache-policy/mediator"
	"github.com/goliatone/go-cache-policy/policy"
	"github.com/goliatone/go-cache-policy/repositorycache"
)

// Container provides dependency injection for cache related components.
// It owns a single cache client, the mediator built on it and the policy
// registry shared by every cached repository it creates.
type Container struct {
	client   cache.Client
	mediator *mediator.Mediator
	registry *policy.Registry
	config   cache.Config
	logger   *bolt.Logger
}

// Option configures a Container.
type Option func(*options)

type options struct {
	logger       *bolt.Logger
	mediatorOpts []mediator.Option
	policyFiles  []string
}

// WithLogger sets the logger handed to the mediator and cached repositories.
func WithLogger(logger *bolt.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMediatorOptions forwards options to mediator.New, for example meter
// and tracer providers.
func WithMediatorOptions(opts ...mediator.Option) Option {
	return func(o *options) { o.mediatorOpts = append(o.mediatorOpts, opts...) }
}

// WithPolicyFile loads the YAML policy file at path into the registry.
func WithPolicyFile(path string) Option {
	return func(o *options) { o.policyFiles = append(o.policyFiles, path) }
}

// NewContainer creates a new DI container with the provided cache configuration.
// The backend is selected by config.Backend.
func NewContainer(config cache.Config, opts ...Option) (*Container, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.Default()
	}

	client, err := cache.NewClient(config)
	if err != nil {
		return nil, err
	}

	m, err := mediator.New(client, append([]mediator.Option{mediator.WithLogger(o.logger)}, o.mediatorOpts...)...)
	if err != nil {
		closeClient(client)
		return nil, err
	}

	registry := policy.NewRegistry()
	for _, path := range o.policyFiles {
		if _, err := registry.LoadFile(path); err != nil {
			closeClient(client)
			return nil, err
		}
	}

	return &Container{
		client:   client,
		mediator: m,
		registry: registry,
		config:   config,
		logger:   o.logger,
	}, nil
}

// NewContainerWithDefaults creates a new DI container using default configuration.
// This is a convenience constructor for typical use cases where custom configuration
// is not required.
func NewContainerWithDefaults(opts ...Option) (*Container, error) {
	return NewContainer(cache.DefaultConfig(), opts...)
}

// Client returns the singleton cache client.
func (c *Container) Client() cache.Client {
	return c.client
}

// Mediator returns the singleton mediator.
func (c *Container) Mediator() *mediator.Mediator {
	return c.mediator
}

// Registry returns the policy registry. Cached repositories created by the
// container register their policies here.
func (c *Container) Registry() *policy.Registry {
	return c.registry
}

// Config returns a copy of the cache configuration used by this container.
// This is useful for debugging and monitoring purposes.
func (c *Container) Config() cache.Config {
	return c.config
}

// Close releases the cache backend.
func (c *Container) Close() error {
	if closer, ok := c.client.(cache.Closer); ok {
		return closer.Close()
	}
	return nil
}

// NewCachedRepository creates a new cached repository that wraps the provided base repository.
// Its policies are registered in the container's registry, so two
// repositories for the same namespace cannot be created from one container.
//
// Since Go methods cannot have type parameters, this is provided as a package-level function.
// Example: NewCachedRepository[User](container, baseUserRepository)
func NewCachedRepository[T any](container *Container, base repository.Repository[T], opts ...repositorycache.Option) (*repositorycache.CachedRepository[T], error) {
	opts = append([]repositorycache.Option{
		repositorycache.WithLogger(container.logger),
		repositorycache.WithRegistry(container.registry),
	}, opts...)
	return repositorycache.New(base, container.mediator, opts...)
}

func closeClient(client cache.Client) {
	if closer, ok := client.(cache.Closer); ok {
		_ = closer.Close()
	}
}
