package casegroup

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, g *CaseGroup) error
	// GetByID returns the group with SharedWith populated.
	GetByID(ctx context.Context, id uuid.UUID) (*CaseGroup, error)
	Update(ctx context.Context, g *CaseGroup) error
	Delete(ctx context.Context, id uuid.UUID) error
	// ListVisible returns only groups the user may view: own groups,
	// organization-public groups and groups shared with the user.
	ListVisible(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*CaseGroup, int, error)
	// ListAll ignores visibility; for admins.
	ListAll(ctx context.Context, limit, offset int) ([]*CaseGroup, int, error)
	ReplaceShares(ctx context.Context, groupID uuid.UUID, userIDs []uuid.UUID) error
	ClearShares(ctx context.Context, groupID uuid.UUID) error
}
