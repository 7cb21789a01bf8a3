package session

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisTTL is how long an idle session survives in Redis.
const DefaultRedisTTL = 24 * time.Hour

// Redis keeps each session in a hash, refreshing its expiry on every write.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis connects to the Redis server at addr.
func NewRedis(addr, password string, db int, ttl time.Duration) *Redis {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewRedisClient(rdb, ttl)
}

// NewRedisClient wraps an existing client.
func NewRedisClient(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultRedisTTL
	}
	return &Redis{client: client, prefix: "unitview:session:", ttl: ttl}
}

func (r *Redis) key(sid string) string { return r.prefix + sid }

func (r *Redis) Get(ctx context.Context, sid, key string) (string, error) {
	v, err := r.client.HGet(ctx, r.key(sid), key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	return v, err
}

func (r *Redis) Set(ctx context.Context, sid, key, value string) error {
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, r.key(sid), key, value)
	pipe.Expire(ctx, r.key(sid), r.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *Redis) Remove(ctx context.Context, sid, key string) error {
	return r.client.HDel(ctx, r.key(sid), key).Err()
}

func (r *Redis) Clear(ctx context.Context, sid string) error {
	return r.client.Del(ctx, r.key(sid)).Err()
}

// Ping checks the connection.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.client.Close()
}
