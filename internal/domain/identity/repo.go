package identity

import (
	"context"

	"github.com/google/uuid"
)

type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	Update(ctx context.Context, u *User) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*User, int, error)
}

type ProfileRepository interface {
	Create(ctx context.Context, p *Profile) error
	GetByUserID(ctx context.Context, userID uuid.UUID) (*Profile, error)
	Update(ctx context.Context, p *Profile) error
	SetBranches(ctx context.Context, profileID uuid.UUID, branchIDs []uuid.UUID) error
	ListBranches(ctx context.Context, profileID uuid.UUID) ([]Branch, error)
}

type BranchRepository interface {
	Create(ctx context.Context, b *Branch) error
	GetByName(ctx context.Context, name string) (*Branch, error)
	List(ctx context.Context) ([]Branch, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
