// Package trust persists the TOFU ledger, one record per peer, for a single
// local identity.
package trust

import (
	"context"

	"tofu_chat/internal/model"
)

// Repository is the full ledger contract. The core only needs Get and Put;
// Delete and List back the explicit trust list/reset commands.
type Repository interface {
	Get(ctx context.Context, peer string) (*model.TrustRecord, error)
	Put(ctx context.Context, record *model.TrustRecord) error
	Delete(ctx context.Context, peer string) (bool, error)
	List(ctx context.Context) ([]*model.TrustRecord, error)
}
