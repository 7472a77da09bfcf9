package casegroup

import (
	"time"

	"github.com/google/uuid"

	"github.com/smilehealth/smilehealth/internal/domain/visibility"
)

// CaseGroup is a named collection of patient records with its own
// visibility that overrides the visibility of every patient inside it.
type CaseGroup struct {
	ID          uuid.UUID             `json:"id"`
	Name        string                `json:"name"`
	Description string                `json:"description"`
	CreatedBy   uuid.UUID             `json:"created_by"`
	Visibility  visibility.Visibility `json:"visibility"`
	SharedWith  []uuid.UUID           `json:"shared_with,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

// View maps the group onto the access-rule input.
func (g *CaseGroup) View() *visibility.Group {
	return &visibility.Group{
		ID:         g.ID,
		CreatedBy:  g.CreatedBy,
		Visibility: g.Visibility,
		SharedWith: g.SharedWith,
	}
}
