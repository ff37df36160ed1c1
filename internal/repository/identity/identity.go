// Package identity persists the local identity keypair.
package identity

import (
	"context"
	"errors"

	"tofu_chat/internal/model"
)

// ErrExists is returned by Create when a record for the username is present.
var ErrExists = errors.New("identity already exists")

// Repository stores at most one record per username. Records are never
// overwritten: regenerating a key is a separate, explicit operation.
type Repository interface {
	// Get returns nil, nil when no record exists.
	Get(ctx context.Context, username string) (*model.IdentityRecord, error)
	Create(ctx context.Context, record *model.IdentityRecord) error
}
