// Package message is the relay's packet log. The relay stores ciphertext only.
package message

import (
	"context"

	"tofu_chat/internal/model"
)

// Repository appends packets and returns the recent history of a user.
// History returns at most limit packets sent by or to username, oldest first.
type Repository interface {
	Insert(ctx context.Context, packet *model.Packet) error
	History(ctx context.Context, username string, limit int) ([]*model.Packet, error)
}
