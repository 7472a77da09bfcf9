package chat

import (
	"context"

	"github.com/google/uuid"
)

type MessageRepository interface {
	Create(ctx context.Context, m *Message) error
	// ListBetween returns the full history between the two users,
	// ordered by creation time ascending.
	ListBetween(ctx context.Context, a, b uuid.UUID) ([]*Message, error)
	// MarkConversationRead flips every unread message in the pair
	// addressed to receiver, in one batch. Returns the rows changed.
	MarkConversationRead(ctx context.Context, receiver, peer uuid.UUID) (int64, error)
	MarkRead(ctx context.Context, id uuid.UUID) error
	CountUnread(ctx context.Context, receiver uuid.UUID) (int, error)
}
