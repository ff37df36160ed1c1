package identity

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"tofu_chat/internal/model"
	"tofu_chat/internal/utils/fileio"
)

// FileRepo stores each identity in <dir>/keys/<username>.json with mode 0600.
type FileRepo struct {
	dir string
	mu  sync.Mutex
}

func NewFileRepo(dir string) *FileRepo {
	return &FileRepo{dir: filepath.Join(dir, "keys")}
}

func (r *FileRepo) path(username string) (string, error) {
	if err := fileio.CheckName(username); err != nil {
		return "", err
	}
	return filepath.Join(r.dir, username+".json"), nil
}

func (r *FileRepo) Get(_ context.Context, username string) (*model.IdentityRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	path, err := r.path(username)
	if err != nil {
		return nil, err
	}
	var rec model.IdentityRecord
	found, err := fileio.ReadJSON(path, &rec)
	if err != nil || !found {
		return nil, err
	}
	return &rec, nil
}

func (r *FileRepo) Create(_ context.Context, record *model.IdentityRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	path, err := r.path(record.Username)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		return ErrExists
	}
	return fileio.WriteJSON(path, record, 0o600)
}

var _ Repository = (*FileRepo)(nil)
