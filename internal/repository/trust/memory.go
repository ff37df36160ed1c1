package trust

import (
	"context"
	"sort"
	"sync"

	"tofu_chat/internal/model"
)

type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]model.TrustRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]model.TrustRecord)}
}

func (s *MemoryStore) Get(_ context.Context, peer string) (*model.TrustRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[peer]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *MemoryStore) Put(_ context.Context, record *model.TrustRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.Peer] = *record
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, peer string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[peer]
	delete(s.records, peer)
	return ok, nil
}

func (s *MemoryStore) List(_ context.Context) ([]*model.TrustRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.TrustRecord, 0, len(s.records))
	for _, rec := range s.records {
		rec := rec
		out = append(out, &rec)
	}
	sortByPeer(out)
	return out, nil
}

func sortByPeer(recs []*model.TrustRecord) {
	sort.Slice(recs, func(i, j int) bool { return recs[i].Peer < recs[j].Peer })
}

var _ Repository = (*MemoryStore)(nil)
