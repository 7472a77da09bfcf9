package patient

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, p *Patient) error
	// GetByID returns the patient with SharedWith populated.
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, id uuid.UUID) error
	// ListVisible returns patients the user may view, computed as one
	// filter: ungrouped records by their own visibility, grouped
	// records by the group's rules.
	ListVisible(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Patient, int, error)
	ListAll(ctx context.Context, limit, offset int) ([]*Patient, int, error)
	ListByGroup(ctx context.Context, groupID uuid.UUID, limit, offset int) ([]*Patient, int, error)
	ReplaceShares(ctx context.Context, patientID uuid.UUID, userIDs []uuid.UUID) error
	ClearShares(ctx context.Context, patientID uuid.UUID) error
	// CountSharedWith tallies patients reachable through a share grant.
	// Organization-public records are excluded from the tally.
	CountSharedWith(ctx context.Context, userID uuid.UUID) (int, error)
}

type CommentRepository interface {
	Create(ctx context.Context, c *Comment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Comment, error)
	ListForPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Comment, int, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
