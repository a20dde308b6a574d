package localstate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces console keys in a shared redis
const DefaultRedisPrefix = "bo-console:"

const defaultConnectAttempts = 5

// redisClient is the subset of the go-redis client used by RedisStore
type redisClient interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Close() error
}

// RedisOptions configures NewRedisStore
type RedisOptions struct {
	Address  string
	Password string
	DB       int
	Prefix   string
	// Attempts bounds the connect retries, default 5
	Attempts uint
}

// RedisStore keeps values in redis, shared between consoles on a team
type RedisStore struct {
	client redisClient
	prefix string
}

// NewRedisStore connects and pings the server, retrying with exponential backoff
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	if opts.Address == "" {
		return nil, errors.New("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Address,
		Password: opts.Password,
		DB:       opts.DB,
	})
	store := newRedisStore(client, opts.Prefix)
	if err := store.connect(ctx, opts.Attempts); err != nil {
		_ = client.Close()
		return nil, err
	}
	return store, nil
}

func newRedisStore(client redisClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) connect(ctx context.Context, attempts uint) error {
	if attempts == 0 {
		attempts = defaultConnectAttempts
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxInterval = 2 * time.Second

	_, err := backoff.Retry(ctx, func() (string, error) {
		return s.client.Ping(ctx).Result()
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(attempts))
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	return nil
}

// Get returns the stored value or ErrNotFound
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read local state '%s' from redis: %w", key, err)
	}
	return data, nil
}

// Put stores value without expiry
func (s *RedisStore) Put(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("failed to write local state '%s' to redis: %w", key, err)
	}
	return nil
}

// Delete removes key
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete local state '%s' from redis: %w", key, err)
	}
	return nil
}

// Close closes the client
func (s *RedisStore) Close() error {
	return s.client.Close()
}
