package chat

import (
	"time"

	"github.com/google/uuid"
)

// Message is one persisted chat line between two users. Read starts
// false and flips exactly once, when the message reaches the
// receiver's live connection or the receiver joins and replays history.
type Message struct {
	ID         uuid.UUID `json:"id"`
	SenderID   uuid.UUID `json:"sender_id"`
	ReceiverID uuid.UUID `json:"receiver_id"`
	Content    string    `json:"content"`
	Read       bool      `json:"read"`
	CreatedAt  time.Time `json:"created_at"`
}

// PairID canonicalizes a two-party conversation id. Both participants
// compute the same channel identity regardless of who initiates.
func PairID(a, b uuid.UUID) string {
	as, bs := a.String(), b.String()
	if as < bs {
		return as + ":" + bs
	}
	return bs + ":" + as
}

// Event is the wire form of a message delivered over a channel.
type Event struct {
	Type       string    `json:"type"`
	MessageID  uuid.UUID `json:"message_id"`
	SenderID   uuid.UUID `json:"sender_id"`
	ReceiverID uuid.UUID `json:"receiver_id"`
	Content    string    `json:"content"`
	Read       bool      `json:"read"`
	CreatedAt  time.Time `json:"created_at"`
}

const EventTypeMessage = "message"

func eventFrom(m *Message) Event {
	return Event{
		Type:       EventTypeMessage,
		MessageID:  m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Content:    m.Content,
		Read:       m.Read,
		CreatedAt:  m.CreatedAt,
	}
}
