package media

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, m *Media) error
	GetByID(ctx context.Context, id uuid.UUID) (*Media, error)
	// ListForPatient filters by kind when kind is non-empty.
	ListForPatient(ctx context.Context, patientID uuid.UUID, kind Kind, limit, offset int) ([]*Media, int, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
