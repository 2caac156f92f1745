package store

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// RedisStore keeps each key as a plain redis string without expiry.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore accepts either a redis:// URL or a bare host:port address.
func NewRedisStore(redisAddr string) *RedisStore {
	opts, err := redis.ParseURL(redisAddr)
	if err != nil {
		opts = &redis.Options{
			Addr:         redisAddr,
			MinIdleConns: 1,
			MaxRetries:   3,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			PoolSize:     10,
		}
	}
	return NewRedisStoreWithClient(redis.NewClient(opts))
}

func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Initialize pings redis with exponential backoff until it answers or
// attempts run out.
func (r *RedisStore) Initialize(ctx context.Context, attempts int, log logrus.FieldLogger) error {
	for i := 0; i < attempts; i++ {
		if r.Ping(ctx) {
			return nil
		}

		backoff := time.Duration(250*(1<<uint(i))) * time.Millisecond
		if backoff > 10*time.Second {
			backoff = 10 * time.Second
		}
		log.WithField("attempt", i+1).Warnf("redis ping failed, retrying in %v", backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return errors.Errorf("redis not reachable after %d attempts", attempts)
}

func (r *RedisStore) Ping(ctx context.Context) bool {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return r.client.Ping(pingCtx).Err() == nil
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "redis GET %q", key)
	}
	return val, nil
}

func (r *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, key, value, 0).Err(); err != nil {
		return errors.Wrapf(err, "redis SET %q", key)
	}
	return nil
}

func (r *RedisStore) Close() error { return r.client.Close() }
