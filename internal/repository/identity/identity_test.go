package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"tofu_chat/internal/model"
	"tofu_chat/internal/utils/fileio"
)

func TestRepositoryCreateOnce(t *testing.T) {
	ctx := context.Background()
	repos := map[string]Repository{
		"memory": NewMemoryRepo(),
		"file":   NewFileRepo(t.TempDir()),
	}

	for name, repo := range repos {
		t.Run(name, func(t *testing.T) {
			rec, err := repo.Get(ctx, "alice")
			if err != nil || rec != nil {
				t.Fatalf("Get on empty repo: %+v, %v", rec, err)
			}

			first := &model.IdentityRecord{
				Username:         "alice",
				PublicKeyPEM:     "-----BEGIN PUBLIC KEY-----\n...",
				SealedPrivateKey: []byte{1, 2, 3},
				CreatedAt:        time.Now().UTC().Truncate(time.Second),
			}
			if err := repo.Create(ctx, first); err != nil {
				t.Fatalf("Create: %v", err)
			}

			second := *first
			second.SealedPrivateKey = []byte{9}
			if err := repo.Create(ctx, &second); !errors.Is(err, ErrExists) {
				t.Fatalf("second Create: want ErrExists, got %v", err)
			}

			rec, err = repo.Get(ctx, "alice")
			if err != nil || rec == nil {
				t.Fatalf("Get: %+v, %v", rec, err)
			}
			if !rec.Complete() || rec.SealedPrivateKey[0] != 1 || !rec.CreatedAt.Equal(first.CreatedAt) {
				t.Fatalf("unexpected record %+v", rec)
			}
		})
	}
}

func TestFileRepoRejectsPathUsernames(t *testing.T) {
	ctx := context.Background()
	repo := NewFileRepo(t.TempDir())

	if err := repo.Create(ctx, &model.IdentityRecord{Username: "alice", SealedPrivateKey: []byte{1}}); err != nil {
		t.Fatalf("Create alice: %v", err)
	}

	for _, name := range []string{"x/alice", "../keys/alice", ".."} {
		if _, err := repo.Get(ctx, name); !errors.Is(err, fileio.ErrInvalidName) {
			t.Errorf("Get(%q) = %v, want ErrInvalidName", name, err)
		}
		if err := repo.Create(ctx, &model.IdentityRecord{Username: name}); !errors.Is(err, fileio.ErrInvalidName) {
			t.Errorf("Create(%q) = %v, want ErrInvalidName", name, err)
		}
	}
}
