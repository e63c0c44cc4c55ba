package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds connection settings for a Redis-backed store.
type RedisConfig struct {
	ConnectionURL  string        `env:"FLAGSYNC_REDIS_URL" envDefault:"redis://localhost:6379/0"` // Format "redis://:password@localhost:6379/0"
	RetryAttempts  int           `env:"FLAGSYNC_REDIS_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval  time.Duration `env:"FLAGSYNC_REDIS_RETRY_INTERVAL" envDefault:"5s"`
	ConnectTimeout time.Duration `env:"FLAGSYNC_REDIS_CONNECT_TIMEOUT" envDefault:"30s"`
}

var (
	// ErrInvalidRedisURL indicates the connection URL could not be parsed.
	ErrInvalidRedisURL = errors.New("invalid redis connection URL")
	// ErrRedisNotReady indicates the server did not answer a ping within the
	// configured retry budget.
	ErrRedisNotReady = errors.New("redis did not become ready within the given time period")
)

// RedisStore keeps all keys in a single Redis hash so MSet is atomic.
// Durability is delegated to the Redis server's own persistence settings.
type RedisStore struct {
	client       redis.Cmdable
	hashKey      string
	mu           sync.RWMutex
	bootstrapped bool
}

// NewRedisStore connects to Redis using cfg and returns a store whose keys
// live under the hash "flagsync:<name>". Connection attempts are retried up
// to cfg.RetryAttempts with cfg.RetryInterval between them.
func NewRedisStore(ctx context.Context, name string, cfg RedisConfig) (*RedisStore, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	opt, err := redis.ParseURL(cfg.ConnectionURL)
	if err != nil {
		return nil, errors.Join(ErrInvalidRedisURL, err)
	}

	attempts := cfg.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		client := redis.NewClient(opt)
		if err := client.Ping(ctx).Err(); err == nil {
			return NewRedisStoreWithClient(client, name), nil
		}
		_ = client.Close()

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrRedisNotReady, ctx.Err())
		case <-time.After(cfg.RetryInterval):
		}
	}
	return nil, ErrRedisNotReady
}

// NewRedisStoreWithClient wraps an existing client. Useful for sharing a
// connection pool with the host application or for tests.
func NewRedisStoreWithClient(client redis.Cmdable, name string) *RedisStore {
	return &RedisStore{
		client:  client,
		hashKey: "flagsync:" + name,
	}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.HGet(ctx, s.hashKey, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Join(ErrStoreUnavailable, err)
	}
	return v, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := s.client.HSet(ctx, s.hashKey, key, value).Err(); err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStore) MSet(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	// HSET with multiple field/value pairs is a single command, so readers
	// never observe a partial update.
	args := make([]any, 0, len(values)*2)
	for k, v := range values {
		args = append(args, k, v)
	}
	if err := s.client.HSet(ctx, s.hashKey, args...).Err(); err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := s.client.HExists(ctx, s.hashKey, key).Result()
	if err != nil {
		return false, errors.Join(ErrStoreUnavailable, err)
	}
	return ok, nil
}

func (s *RedisStore) Destroy(ctx context.Context) error {
	if err := s.client.Del(ctx, s.hashKey).Err(); err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Bootstrapped() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bootstrapped
}

func (s *RedisStore) MarkBootstrapped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bootstrapped = true
}
