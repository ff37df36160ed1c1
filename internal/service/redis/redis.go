package redis

import (
	"context"

	"github.com/redis/go-redis/v9"
)

type (
	RedisService struct {
		rdb *redis.Client
	}
)

// Nil is returned by HGet when the field does not exist.
const Nil = redis.Nil

func NewRedis(rdb *redis.Client) *RedisService {
	return &RedisService{
		rdb: rdb,
	}
}

func (r *RedisService) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

func (r *RedisService) HSet(ctx context.Context, key, field string, value any) error {
	return r.rdb.HSet(ctx, key, field, value).Err()
}

func (r *RedisService) HGet(ctx context.Context, key, field string) (string, error) {
	return r.rdb.HGet(ctx, key, field).Result()
}

func (r *RedisService) HDel(ctx context.Context, key, field string) (bool, error) {
	n, err := r.rdb.HDel(ctx, key, field).Result()
	return n > 0, err
}

func (r *RedisService) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return r.rdb.HGetAll(ctx, key).Result()
}

// PushCapped appends vals to the list at key and keeps only its last max entries.
func (r *RedisService) PushCapped(ctx context.Context, key string, max int64, vals ...any) error {
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, vals...)
		pipe.LTrim(ctx, key, -max, -1)
		return nil
	})
	return err
}

// LRange returns the last n entries of the list at key, oldest first.
func (r *RedisService) LRange(ctx context.Context, key string, n int64) ([]string, error) {
	return r.rdb.LRange(ctx, key, -n, -1).Result()
}

func (r *RedisService) Del(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, key).Err()
}

func (r *RedisService) Close() error {
	return r.rdb.Close()
}
