package chat

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/smilehealth/smilehealth/internal/platform/db"
)

type Service struct {
	repo   MessageRepository
	hub    *Hub
	tx     db.Runner
	logger zerolog.Logger
}

func NewService(repo MessageRepository, hub *Hub, tx db.Runner, logger zerolog.Logger) *Service {
	return &Service{repo: repo, hub: hub, tx: tx, logger: logger}
}

// Join registers the client into the pair channel and returns the full
// history for replay to that client, oldest first. History load and the
// batch mark-read of messages addressed to the joining user run in one
// transaction, so a concurrently arriving message cannot be marked read
// before it was ever delivered. Registration happens before the history
// read; anything sent during the replay reaches the client through its
// live channel.
func (s *Service) Join(ctx context.Context, userID, peerID uuid.UUID, client *Client) ([]Event, error) {
	pairID := PairID(userID, peerID)
	s.hub.Register(pairID, client)

	var history []Event
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		msgs, err := s.repo.ListBetween(ctx, userID, peerID)
		if err != nil {
			return err
		}
		marked, err := s.repo.MarkConversationRead(ctx, userID, peerID)
		if err != nil {
			return err
		}
		if marked > 0 {
			s.logger.Debug().Int64("count", marked).Str("pair", pairID).Msg("chat: history marked read on join")
		}

		history = make([]Event, 0, len(msgs))
		for _, m := range msgs {
			if m.ReceiverID == userID {
				m.Read = true
			}
			history = append(history, eventFrom(m))
		}
		return nil
	})
	if err != nil {
		s.hub.Unregister(pairID, client)
		return nil, err
	}
	client.markReplayed(history)
	return history, nil
}

func (s *Service) Leave(userID, peerID uuid.UUID, client *Client) {
	s.hub.Unregister(PairID(userID, peerID), client)
}

// Send persists the message and fans it out to every connection joined
// to the pair. Persistence happens-before broadcast, so no peer can
// observe a message that is not durable. Whitespace-only content is
// silently dropped; the returned event is nil in that case.
func (s *Service) Send(ctx context.Context, senderID, receiverID uuid.UUID, content string) (*Event, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, nil
	}

	m := &Message{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		Read:       false,
	}
	if err := s.repo.Create(ctx, m); err != nil {
		return nil, err
	}

	ev := eventFrom(m)
	s.hub.Broadcast(PairID(senderID, receiverID), ev)
	return &ev, nil
}

// MarkDelivered flips one message read the instant it reaches the
// receiving side's live connection.
func (s *Service) MarkDelivered(ctx context.Context, messageID uuid.UUID) {
	if err := s.repo.MarkRead(ctx, messageID); err != nil {
		s.logger.Error().Err(err).Str("message_id", messageID.String()).Msg("chat: mark delivered failed")
	}
}

// History returns the conversation without side effects, for the REST
// surface; join-time replay is what marks messages read.
func (s *Service) History(ctx context.Context, userID, peerID uuid.UUID) ([]*Message, error) {
	return s.repo.ListBetween(ctx, userID, peerID)
}

func (s *Service) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.repo.CountUnread(ctx, userID)
}
