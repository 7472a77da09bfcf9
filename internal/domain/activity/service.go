package activity

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Recorder is the write side other domains depend on.
type Recorder interface {
	Record(ctx context.Context, actorID uuid.UUID, action, targetType string, targetID uuid.UUID, targetLabel, details string)
}

type Service struct {
	repo   Repository
	logger zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Record appends an entry. It joins any transaction already on the
// context, so an action and its log line commit or roll back together.
// Failures are logged and swallowed: the log must never break the
// operation it describes.
func (s *Service) Record(ctx context.Context, actorID uuid.UUID, action, targetType string, targetID uuid.UUID, targetLabel, details string) {
	e := &Entry{
		Action:      action,
		TargetType:  targetType,
		TargetID:    targetID,
		TargetLabel: targetLabel,
		Details:     details,
	}
	if actorID != uuid.Nil {
		e.ActorID = &actorID
	}
	if err := s.repo.Create(ctx, e); err != nil {
		s.logger.Error().Err(err).
			Str("action", action).
			Str("target_type", targetType).
			Str("target_id", targetID.String()).
			Msg("activity: record failed")
	}
}

func (s *Service) Search(ctx context.Context, params SearchParams, limit, offset int) ([]*Entry, int, error) {
	return s.repo.Search(ctx, params, limit, offset)
}
