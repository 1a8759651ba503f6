package recovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStoreOptions configures a Redis-backed ledger.
type RedisStoreOptions struct {
	// URL is the Redis connection string (e.g., "redis://localhost:6379")
	URL string

	// Prefix namespaces ledger keys. Default: "resilience:ledger"
	Prefix string

	// TTL expires idle entries. Each increment refreshes it. Zero keeps
	// entries until a successful recovery deletes them.
	TTL time.Duration

	// ConnectTimeout bounds connection establishment. Default: 5s
	ConnectTimeout time.Duration
}

// RedisStore is a LedgerStore shared across processes through Redis.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	owned  bool
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(opts RedisStoreOptions) (*RedisStore, error) {
	if opts.URL == "" {
		opts.URL = "redis://localhost:6379"
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	redisOpts.DialTimeout = opts.ConnectTimeout

	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	s := NewRedisStoreFromClient(client, opts.Prefix, opts.TTL)
	s.owned = true
	return s, nil
}

// NewRedisStoreFromClient wraps an existing client. Close leaves it open.
func NewRedisStoreFromClient(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "resilience:ledger"
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) key(k string) string {
	return s.prefix + ":" + k
}

func (s *RedisStore) Get(ctx context.Context, key string) (int, bool, error) {
	n, err := s.client.Get(ctx, s.key(key)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read ledger entry %s: %w", key, err)
	}
	return n, true, nil
}

func (s *RedisStore) Increment(ctx context.Context, key string) (int, error) {
	var incr *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, s.key(key))
		if s.ttl > 0 {
			pipe.Expire(ctx, s.key(key), s.ttl)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to increment ledger entry %s: %w", key, err)
	}
	return int(incr.Val()), nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete ledger entry %s: %w", key, err)
	}
	return nil
}

// Ping checks the connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the connection if the store created it.
func (s *RedisStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}
