package trust

import (
	"context"
	"path/filepath"
	"sync"

	"tofu_chat/internal/model"
	"tofu_chat/internal/utils/fileio"
)

// FileStore keeps the ledger of one identity in <dir>/trusted/<owner>.json.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(dir, owner string) (*FileStore, error) {
	if err := fileio.CheckName(owner); err != nil {
		return nil, err
	}
	return &FileStore{path: filepath.Join(dir, "trusted", owner+".json")}, nil
}

func (s *FileStore) load() (map[string]model.TrustRecord, error) {
	m := make(map[string]model.TrustRecord)
	if _, err := fileio.ReadJSON(s.path, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *FileStore) Get(_ context.Context, peer string) (*model.TrustRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.load()
	if err != nil {
		return nil, err
	}
	rec, ok := m[peer]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *FileStore) Put(_ context.Context, record *model.TrustRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.load()
	if err != nil {
		return err
	}
	m[record.Peer] = *record
	return fileio.WriteJSON(s.path, m, 0o600)
}

func (s *FileStore) Delete(_ context.Context, peer string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.load()
	if err != nil {
		return false, err
	}
	if _, ok := m[peer]; !ok {
		return false, nil
	}
	delete(m, peer)
	return true, fileio.WriteJSON(s.path, m, 0o600)
}

func (s *FileStore) List(_ context.Context) ([]*model.TrustRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]*model.TrustRecord, 0, len(m))
	for _, rec := range m {
		rec := rec
		out = append(out, &rec)
	}
	sortByPeer(out)
	return out, nil
}

var _ Repository = (*FileStore)(nil)
