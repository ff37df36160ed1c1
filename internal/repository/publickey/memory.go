package publickey

import (
	"context"
	"sync"

	"tofu_chat/internal/model"
)

type MemoryRepo struct {
	mu      sync.RWMutex
	records map[string]model.PublicKeyRecord
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{records: make(map[string]model.PublicKeyRecord)}
}

func (r *MemoryRepo) Get(_ context.Context, username string) (*model.PublicKeyRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[username]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (r *MemoryRepo) Put(_ context.Context, record *model.PublicKeyRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[record.Username] = *record
	return nil
}

var _ Repository = (*MemoryRepo)(nil)
