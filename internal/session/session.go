package session

import (
	"context"

	"docchat/internal/models"
)

// Store is conversational memory keyed by a chat/user identity. Sessions
// are created lazily on first access and never leak across identities.
// The interface is the persistence boundary: the default implementation
// is in-memory, durable backends can be swapped in without touching the
// answer engine.
type Store interface {
	History(ctx context.Context, sessionID string) ([]models.Turn, error)
	Append(ctx context.Context, sessionID string, turn models.Turn) error
}
