package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderdesk/internal/config"
)

// Store holds cached order pages and the counters that version them.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// Incr atomically adds one to the counter at key and refreshes its ttl.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// ErrCacheMiss indicates the key is absent from the cache.
var ErrCacheMiss = errors.New("cache miss")

var errEmptyKey = errors.New("cache key is required")

var Module = fx.Provide(NewStore)

// NewStore returns the store named by cfg.Cache.Driver.
func NewStore(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Cache.Driver {
	case "noop":
		logger.Info("order page cache disabled")
		return noopStore{}, nil
	case "redis":
		return newRedisStore(lc, cfg.Cache, logger.Named("cache")), nil
	default:
		return nil, fmt.Errorf("unsupported cache driver: %s", cfg.Cache.Driver)
	}
}

// noopStore misses every read, so callers always go to the database.
type noopStore struct{}

func (noopStore) Get(context.Context, string) ([]byte, error) { return nil, ErrCacheMiss }

func (noopStore) Set(context.Context, string, []byte, time.Duration) error { return nil }

func (noopStore) Delete(context.Context, string) error { return nil }

func (noopStore) Incr(context.Context, string, time.Duration) (int64, error) { return 0, nil }

type redisStore struct {
	client     *goredis.Client
	defaultTTL time.Duration
	prefix     string
}

func newRedisStore(lc fx.Lifecycle, cfg config.Cache, logger *zap.Logger) *redisStore {
	store := &redisStore{
		client: goredis.NewClient(&goredis.Options{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			ClientName: "orderdesk",
		}),
		defaultTTL: cfg.DefaultTTL,
		prefix:     cfg.KeyPrefix,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := store.client.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("ping redis %s: %w", cfg.Redis.Addr, err)
			}
			logger.Info("order page cache connected",
				zap.String("addr", cfg.Redis.Addr),
				zap.Int("db", cfg.Redis.DB),
				zap.String("prefix", cfg.KeyPrefix),
				zap.Duration("default_ttl", cfg.DefaultTTL),
			)
			return nil
		},
		OnStop: func(context.Context) error {
			return store.client.Close()
		},
	})
	return store
}

func (s *redisStore) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, ErrCacheMiss
	}
	res, err := s.client.Get(ctx, s.key(key)).Bytes()
	switch {
	case errors.Is(err, goredis.Nil):
		return nil, ErrCacheMiss
	case err != nil:
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return res, nil
}

func (s *redisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return errEmptyKey
	}
	return s.client.Set(ctx, s.key(key), value, s.ttl(ttl)).Err()
}

func (s *redisStore) Delete(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	return s.client.Del(ctx, s.key(key)).Err()
}

func (s *redisStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if key == "" {
		return 0, errEmptyKey
	}
	var incr *goredis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		incr = pipe.Incr(ctx, s.key(key))
		pipe.Expire(ctx, s.key(key), s.ttl(ttl))
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis incr %s: %w", key, err)
	}
	return incr.Val(), nil
}

func (s *redisStore) ttl(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return s.defaultTTL
	}
	return ttl
}

// key namespaces keys so several deployments can share one redis database.
func (s *redisStore) key(k string) string {
	return s.prefix + k
}
