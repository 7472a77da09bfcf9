package patient

import (
	"time"

	"github.com/google/uuid"

	"github.com/smilehealth/smilehealth/internal/domain/visibility"
)

// Patient is an owned clinical record. When GroupID is set, access is
// governed by the parent case group and the record's own Visibility
// and SharedWith fields are ignored.
type Patient struct {
	ID            uuid.UUID             `json:"id"`
	FirstName     string                `json:"first_name"`
	LastName      string                `json:"last_name"`
	BirthDate     *time.Time            `json:"birth_date"`
	OwnerID       uuid.UUID             `json:"owner_id"`
	GroupID       *uuid.UUID            `json:"group_id"`
	Visibility    visibility.Visibility `json:"visibility"`
	SharedWith    []uuid.UUID           `json:"shared_with,omitempty"`
	ThumbnailPath *string               `json:"thumbnail_path"`
	CreatedAt     time.Time             `json:"created_at"`
	UpdatedAt     time.Time             `json:"updated_at"`
}

// View maps the record onto the access-rule input. The caller supplies
// the resolved group view, nil for ungrouped patients.
func (p *Patient) View(group *visibility.Group) *visibility.Patient {
	return &visibility.Patient{
		ID:         p.ID,
		OwnerID:    p.OwnerID,
		Group:      group,
		Visibility: p.Visibility,
		SharedWith: p.SharedWith,
	}
}

func (p *Patient) Label() string {
	return p.FirstName + " " + p.LastName
}

// MaxCommentLength bounds comment bodies.
const MaxCommentLength = 2000

// Comment is an immutable note on a patient record. AuthorID is nil
// when the author has since been deleted.
type Comment struct {
	ID        uuid.UUID  `json:"id"`
	PatientID uuid.UUID  `json:"patient_id"`
	AuthorID  *uuid.UUID `json:"author_id"`
	Body      string     `json:"body"`
	CreatedAt time.Time  `json:"created_at"`
}
