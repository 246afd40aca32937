package cache

import (
	"bytes"
	"os"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-cache-policy/internal/cacheinfra"
)

// Backend selects the Client implementation built by NewClient.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendRedis  Backend = "redis"
)

// Config exposes backend configuration options for consumers of the cache package.
type Config struct {
	Backend Backend      `yaml:"backend"`
	Memory  MemoryConfig `yaml:"memory"`
	Redis   RedisConfig  `yaml:"redis"`
}

// MemoryConfig configures the in-process backend.
type MemoryConfig struct {
	Capacity           int           `yaml:"capacity"`
	NumShards          int           `yaml:"num_shards"`
	TTL                time.Duration `yaml:"ttl"`
	EvictionPercentage int           `yaml:"eviction_percentage"`
	EvictionInterval   time.Duration `yaml:"eviction_interval"`
}

// RedisConfig configures the Redis backend.
type RedisConfig struct {
	Address      string        `yaml:"address"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	MaxRetries   int           `yaml:"max_retries"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	KeyPrefix    string        `yaml:"key_prefix"`
}

// DefaultConfig returns a Config populated with sensible defaults. The
// memory backend is selected.
func DefaultConfig() Config {
	return Config{
		Backend: BackendMemory,
		Memory:  convertMemoryFromInternal(cacheinfra.DefaultConfig()),
		Redis:   convertRedisFromInternal(cacheinfra.DefaultRedisConfig()),
	}
}

// Validate checks whether the configuration values are valid for the
// selected backend.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Backend, validation.Required, validation.In(BackendMemory, BackendRedis)),
	)
	if err != nil {
		return goerrors.FromOzzoValidation(err, "invalid cache configuration")
	}

	switch c.Backend {
	case BackendRedis:
		return c.Redis.toInternal().Validate()
	default:
		return c.Memory.toInternal().Validate()
	}
}

// NewClient constructs the backend selected by cfg. Errors returned by the
// client satisfy IsCacheUnavailable.
func NewClient(cfg Config) (Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Backend {
	case BackendRedis:
		client, err := cacheinfra.NewRedisClient(cfg.Redis.toInternal())
		if err != nil {
			return nil, WrapUnavailable(err, "connect")
		}
		return WithUnavailableErrors(client), nil
	default:
		client, err := cacheinfra.NewMemoryClient(cfg.Memory.toInternal())
		if err != nil {
			return nil, err
		}
		return WithUnavailableErrors(client), nil
	}
}

// LoadConfig reads a YAML file on top of DefaultConfig.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, goerrors.Wrap(err, goerrors.CategoryInternal, "read cache config")
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML on top of DefaultConfig and validates the result.
// Durations use Go syntax, for example "5m" or "250ms".
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, goerrors.Wrap(err, goerrors.CategoryBadInput, "decode cache config")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c MemoryConfig) toInternal() cacheinfra.Config {
	return cacheinfra.Config{
		Capacity:           c.Capacity,
		NumShards:          c.NumShards,
		TTL:                c.TTL,
		EvictionPercentage: c.EvictionPercentage,
		EvictionInterval:   c.EvictionInterval,
	}
}

func convertMemoryFromInternal(cfg cacheinfra.Config) MemoryConfig {
	return MemoryConfig{
		Capacity:           cfg.Capacity,
		NumShards:          cfg.NumShards,
		TTL:                cfg.TTL,
		EvictionPercentage: cfg.EvictionPercentage,
		EvictionInterval:   cfg.EvictionInterval,
	}
}

func (c RedisConfig) toInternal() cacheinfra.RedisConfig {
	return cacheinfra.RedisConfig{
		Address:      c.Address,
		Password:     c.Password,
		DB:           c.DB,
		MaxRetries:   c.MaxRetries,
		DialTimeout:  c.DialTimeout,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
		KeyPrefix:    c.KeyPrefix,
	}
}

func convertRedisFromInternal(cfg cacheinfra.RedisConfig) RedisConfig {
	return RedisConfig{
		Address:      cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		KeyPrefix:    cfg.KeyPrefix,
	}
}

var (
	_ Client = (*cacheinfra.MemoryClient)(nil)
	_ Client = (*cacheinfra.RedisClient)(nil)
)
