package activity

import (
	"context"

	"github.com/google/uuid"
)

// SearchParams filter the activity list. Zero values mean no filter.
type SearchParams struct {
	ActorID    uuid.UUID
	Action     string
	TargetType string
	TargetID   uuid.UUID
}

type Repository interface {
	Create(ctx context.Context, e *Entry) error
	Search(ctx context.Context, params SearchParams, limit, offset int) ([]*Entry, int, error)
}
