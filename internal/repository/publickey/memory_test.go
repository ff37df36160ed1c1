package publickey

import (
	"context"
	"testing"

	"tofu_chat/internal/model"
)

func TestMemoryRepo(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepo()

	rec, err := r.Get(ctx, "alice")
	if err != nil || rec != nil {
		t.Fatalf("Get absent = %+v, %v", rec, err)
	}

	if err := r.Put(ctx, &model.PublicKeyRecord{Username: "alice", PublicKeyPEM: "k1", Fingerprint: "AA"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := r.Put(ctx, &model.PublicKeyRecord{Username: "alice", PublicKeyPEM: "k2", Fingerprint: "BB"}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	rec, err = r.Get(ctx, "alice")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.PublicKeyPEM != "k2" || rec.Fingerprint != "BB" {
		t.Fatalf("re-registration not applied: %+v", rec)
	}
}
