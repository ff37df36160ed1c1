package identity

import (
	"context"
	"sync"

	"tofu_chat/internal/model"
)

type MemoryRepo struct {
	mu      sync.RWMutex
	records map[string]model.IdentityRecord
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{records: make(map[string]model.IdentityRecord)}
}

func (r *MemoryRepo) Get(_ context.Context, username string) (*model.IdentityRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[username]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (r *MemoryRepo) Create(_ context.Context, record *model.IdentityRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[record.Username]; ok {
		return ErrExists
	}
	r.records[record.Username] = *record
	return nil
}

var _ Repository = (*MemoryRepo)(nil)
