package identity

import (
	"time"

	"github.com/google/uuid"

	"github.com/smilehealth/smilehealth/internal/domain/visibility"
)

// User is a practitioner account.
type User struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	Email        string    `db:"email" json:"email"`
	FirstName    string    `db:"first_name" json:"first_name"`
	LastName     string    `db:"last_name" json:"last_name"`
	PasswordHash string    `db:"password_hash" json:"-"`
	IsActive     bool      `db:"is_active" json:"is_active"`
	IsAdmin      bool      `db:"is_admin" json:"is_admin"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Profile carries the practice-facing part of an account. Every user has
// exactly one, created in the same transaction as the user itself.
type Profile struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	UserID      uuid.UUID       `db:"user_id" json:"user_id"`
	Role        visibility.Role `db:"role" json:"role"`
	Gender      *string         `db:"gender" json:"gender,omitempty"`
	Description *string         `db:"description" json:"description,omitempty"`
	AvatarPath  *string         `db:"avatar_path" json:"avatar_path,omitempty"`
	Branches    []Branch        `db:"-" json:"branches,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// Branch is a flat organizational tag; profiles may belong to several.
type Branch struct {
	ID   uuid.UUID `db:"id" json:"id"`
	Name string    `db:"name" json:"name"`
}

// Actor returns the visibility-engine view of this account.
func (u *User) Actor(p *Profile) visibility.Actor {
	role := visibility.Role("")
	if p != nil {
		role = p.Role
	}
	return visibility.NewActor(u.ID, u.IsAdmin, role)
}
