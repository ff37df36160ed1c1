package message

import (
	"context"
	"sync"

	"tofu_chat/internal/model"
)

type MemoryRepo struct {
	mu      sync.RWMutex
	packets []*model.Packet
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{}
}

func (r *MemoryRepo) Insert(_ context.Context, packet *model.Packet) error {
	p := *packet
	r.mu.Lock()
	defer r.mu.Unlock()
	r.packets = append(r.packets, &p)
	return nil
}

func (r *MemoryRepo) History(_ context.Context, username string, limit int) ([]*model.Packet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*model.Packet
	for i := len(r.packets) - 1; i >= 0 && len(out) < limit; i-- {
		if r.packets[i].Involves(username) {
			p := *r.packets[i]
			out = append(out, &p)
		}
	}
	reverse(out)
	return out, nil
}

func reverse(packets []*model.Packet) {
	for i, j := 0, len(packets)-1; i < j; i, j = i+1, j-1 {
		packets[i], packets[j] = packets[j], packets[i]
	}
}

var _ Repository = (*MemoryRepo)(nil)
