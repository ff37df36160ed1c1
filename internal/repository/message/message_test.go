package message

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"tofu_chat/internal/model"
	"tofu_chat/internal/service/redis"
)

func packet(from, to string, n int) *model.Packet {
	ts := time.Date(2025, 1, 1, 0, 0, n, 0, time.UTC)
	return &model.Packet{
		From:       from,
		To:         to,
		IV:         []byte(fmt.Sprintf("iv-%d", n)),
		Ciphertext: []byte(fmt.Sprintf("ct-%d", n)),
		EncKeyTo:   []byte("kt"),
		EncKeyFrom: []byte("kf"),
		CreatedAt:  &ts,
	}
}

func newRedisRepo(t *testing.T, max int) *RedisRepo {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewRedisRepo(redis.NewRedis(rdb), max)
}

func TestHistory(t *testing.T) {
	backends := map[string]func(t *testing.T) Repository{
		"memory": func(*testing.T) Repository { return NewMemoryRepo() },
		"redis":  func(t *testing.T) Repository { return newRedisRepo(t, 3) },
	}

	for name, mk := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			r := mk(t)

			seq := []*model.Packet{
				packet("alice", "bob", 1),
				packet("carol", "dave", 2),
				packet("bob", "alice", 3),
				packet("alice", "alice", 4),
				packet("alice", "carol", 5),
			}
			for _, p := range seq {
				if err := r.Insert(ctx, p); err != nil {
					t.Fatalf("Insert: %v", err)
				}
			}

			got, err := r.History(ctx, "alice", 3)
			if err != nil {
				t.Fatalf("History: %v", err)
			}
			want := []string{"ct-3", "ct-4", "ct-5"}
			if len(got) != len(want) {
				t.Fatalf("got %d packets, want %d", len(got), len(want))
			}
			for i, p := range got {
				if string(p.Ciphertext) != want[i] {
					t.Errorf("packet %d = %s, want %s", i, p.Ciphertext, want[i])
				}
			}

			got, err = r.History(ctx, "dave", 3)
			if err != nil {
				t.Fatalf("History: %v", err)
			}
			if len(got) != 1 || got[0].From != "carol" {
				t.Fatalf("dave history = %+v", got)
			}

			got, err = r.History(ctx, "nobody", 3)
			if err != nil || len(got) != 0 {
				t.Fatalf("nobody history = %+v, %v", got, err)
			}
		})
	}
}

func TestRedisSelfMessageStoredOnce(t *testing.T) {
	ctx := context.Background()
	r := newRedisRepo(t, 10)
	if err := r.Insert(ctx, packet("alice", "alice", 1)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	got, err := r.History(ctx, "alice", 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("self message stored %d times", len(got))
	}
}
