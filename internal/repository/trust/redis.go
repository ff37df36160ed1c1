package trust

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"tofu_chat/internal/model"
	"tofu_chat/internal/service/redis"
)

// RedisStore keeps the ledger of one identity in the hash "trusted: <owner>",
// one JSON encoded record per peer field.
type RedisStore struct {
	redisService *redis.RedisService
	key          string
}

func NewRedisStore(redisService *redis.RedisService, owner string) *RedisStore {
	return &RedisStore{
		redisService: redisService,
		key:          fmt.Sprintf("trusted: %s", owner),
	}
}

func (s *RedisStore) Get(ctx context.Context, peer string) (*model.TrustRecord, error) {
	v, err := s.redisService.HGet(ctx, s.key, peer)
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var rec model.TrustRecord
	if err := json.Unmarshal([]byte(v), &rec); err != nil {
		return nil, fmt.Errorf("decode trust record %q: %w", peer, err)
	}
	return &rec, nil
}

func (s *RedisStore) Put(ctx context.Context, record *model.TrustRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return s.redisService.HSet(ctx, s.key, record.Peer, data)
}

func (s *RedisStore) Delete(ctx context.Context, peer string) (bool, error) {
	return s.redisService.HDel(ctx, s.key, peer)
}

func (s *RedisStore) List(ctx context.Context) ([]*model.TrustRecord, error) {
	vals, err := s.redisService.HGetAll(ctx, s.key)
	if err != nil {
		return nil, err
	}

	out := make([]*model.TrustRecord, 0, len(vals))
	for peer, v := range vals {
		var rec model.TrustRecord
		if err := json.Unmarshal([]byte(v), &rec); err != nil {
			return nil, fmt.Errorf("decode trust record %q: %w", peer, err)
		}
		out = append(out, &rec)
	}
	sortByPeer(out)
	return out, nil
}

var _ Repository = (*RedisStore)(nil)
