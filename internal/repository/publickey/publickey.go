// Package publickey stores the directory's username to public key mapping.
package publickey

import (
	"context"

	"tofu_chat/internal/model"
)

// Repository is the directory's key table. Get returns nil, nil when the
// username was never registered. Put replaces any previous key.
type Repository interface {
	Get(ctx context.Context, username string) (*model.PublicKeyRecord, error)
	Put(ctx context.Context, record *model.PublicKeyRecord) error
}
