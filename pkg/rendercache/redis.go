package rendercache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	backend "github.com/redis/go-redis/v9"
)

// RedisCache keeps rendered output in Redis under a common key prefix.
type RedisCache struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

type Option func(*RedisCache)

// WithTTL sets the expiration of cached entries. Zero keeps them forever.
// Default: 1h
func WithTTL(ttl time.Duration) Option {
	return func(c *RedisCache) {
		c.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
// Default: "bbmark:render:"
func WithPrefix(prefix string) Option {
	return func(c *RedisCache) {
		c.prefix = prefix
	}
}

// WithLogger sets the logger backend failures are reported to.
func WithLogger(logger *slog.Logger) Option {
	return func(c *RedisCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewRedis creates a cache on a new client for the given server.
func NewRedis(address, password string, db int, opts ...Option) *RedisCache {
	return NewFromClient(backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	}), opts...)
}

// NewFromClient creates a cache on an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *RedisCache {
	c := &RedisCache{
		client: client,
		prefix: "bbmark:render:",
		ttl:    time.Hour,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *RedisCache) key(k string) string {
	return c.prefix + k
}

// Ping checks that the server is reachable.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool) {
	val, err := c.client.Get(ctx, c.key(key)).Result()
	if err != nil {
		if !errors.Is(err, backend.Nil) {
			c.logger.WarnContext(ctx, "Render cache read failed", slog.String("error", err.Error()))
		}
		return "", false
	}
	return val, true
}

func (c *RedisCache) Set(ctx context.Context, key, output string) {
	if err := c.client.Set(ctx, c.key(key), output, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "Render cache write failed", slog.String("error", err.Error()))
	}
}

// Close closes the underlying client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
