package activity

import (
	"time"

	"github.com/google/uuid"
)

// Actions recorded in the activity log.
const (
	ActionCreate           = "CREATE"
	ActionUpdate           = "UPDATE"
	ActionDelete           = "DELETE"
	ActionShare            = "SHARE"
	ActionUnshare          = "UNSHARE"
	ActionVisibilityChange = "VISIBILITY_CHANGE"
	ActionUpload           = "UPLOAD"
	ActionLogin            = "LOGIN"
)

// Target types referenced by log entries.
const (
	TargetPatient   = "patient"
	TargetCaseGroup = "case_group"
	TargetMedia     = "media"
	TargetComment   = "comment"
	TargetUser      = "user"
)

// Entry is one append-only activity log record. ActorID is nil when
// the acting user has since been deleted.
type Entry struct {
	ID          uuid.UUID  `json:"id"`
	ActorID     *uuid.UUID `json:"actor_id"`
	Action      string     `json:"action"`
	TargetType  string     `json:"target_type"`
	TargetID    uuid.UUID  `json:"target_id"`
	TargetLabel string     `json:"target_label"`
	Details     string     `json:"details,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
