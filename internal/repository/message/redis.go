package message

import (
	"context"
	"encoding/json"
	"fmt"

	"tofu_chat/internal/model"
	"tofu_chat/internal/service/redis"
)

// RedisRepo keeps one capped list per user holding every packet that user
// sent or received.
type RedisRepo struct {
	redisService *redis.RedisService
	max          int
}

func NewRedisRepo(redisSvc *redis.RedisService, max int) *RedisRepo {
	return &RedisRepo{
		redisService: redisSvc,
		max:          max,
	}
}

func historyKey(username string) string {
	return fmt.Sprintf("history: %s", username)
}

func (r *RedisRepo) Insert(ctx context.Context, packet *model.Packet) error {
	data, err := json.Marshal(packet)
	if err != nil {
		return err
	}

	if err := r.redisService.PushCapped(ctx, historyKey(packet.From), int64(r.max), data); err != nil {
		return err
	}
	if packet.To == packet.From {
		return nil
	}
	return r.redisService.PushCapped(ctx, historyKey(packet.To), int64(r.max), data)
}

func (r *RedisRepo) History(ctx context.Context, username string, limit int) ([]*model.Packet, error) {
	vals, err := r.redisService.LRange(ctx, historyKey(username), int64(limit))
	if err != nil {
		return nil, err
	}

	res := make([]*model.Packet, 0, len(vals))
	for _, v := range vals {
		var p model.Packet
		if err := json.Unmarshal([]byte(v), &p); err != nil {
			return nil, err
		}
		res = append(res, &p)
	}
	return res, nil
}

var _ Repository = (*RedisRepo)(nil)
