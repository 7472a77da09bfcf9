package identity

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/smilehealth/smilehealth/internal/domain/visibility"
	"github.com/smilehealth/smilehealth/internal/platform/db"
)

var (
	ErrInvalidCredentials = fmt.Errorf("invalid username or password")
	ErrInactiveAccount    = fmt.Errorf("account is deactivated")
)

type Service struct {
	users    UserRepository
	profiles ProfileRepository
	branches BranchRepository
	tx       db.Runner
}

func NewService(users UserRepository, profiles ProfileRepository, branches BranchRepository, tx db.Runner) *Service {
	return &Service{users: users, profiles: profiles, branches: branches, tx: tx}
}

// CreateUserParams carries everything needed to provision an account.
type CreateUserParams struct {
	Username  string
	Email     string
	FirstName string
	LastName  string
	Password  string
	Role      visibility.Role
	IsAdmin   bool
	Branches  []uuid.UUID
}

// CreateUser provisions a user together with its profile in one transaction.
// A profile never exists without its user and vice versa.
func (s *Service) CreateUser(ctx context.Context, params CreateUserParams) (*User, error) {
	if params.Username == "" {
		return nil, fmt.Errorf("username is required")
	}
	if params.Password == "" {
		return nil, fmt.Errorf("password is required")
	}
	if params.Role == "" {
		params.Role = visibility.RoleViewer
	}
	if !visibility.ValidRole(params.Role) {
		return nil, fmt.Errorf("invalid role: %s", params.Role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(params.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &User{
		Username:     params.Username,
		Email:        params.Email,
		FirstName:    params.FirstName,
		LastName:     params.LastName,
		PasswordHash: string(hash),
		IsActive:     true,
		IsAdmin:      params.IsAdmin,
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.users.Create(ctx, user); err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		profile := &Profile{UserID: user.ID, Role: params.Role}
		if err := s.profiles.Create(ctx, profile); err != nil {
			return fmt.Errorf("create profile: %w", err)
		}
		if len(params.Branches) > 0 {
			if err := s.profiles.SetBranches(ctx, profile.ID, params.Branches); err != nil {
				return fmt.Errorf("set branches: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Authenticate verifies credentials and returns the user and profile.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*User, *Profile, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, nil, ErrInactiveAccount
	}
	profile, err := s.profiles.GetByUserID(ctx, user.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("load profile: %w", err)
	}
	return user, profile, nil
}

func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.users.GetByID(ctx, id)
}

// GetProfile loads a profile with its branch memberships.
func (s *Service) GetProfile(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	profile, err := s.profiles.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	branches, err := s.profiles.ListBranches(ctx, profile.ID)
	if err != nil {
		return nil, err
	}
	profile.Branches = branches
	return profile, nil
}

// ActorFor resolves the visibility actor for a user id.
func (s *Service) ActorFor(ctx context.Context, userID uuid.UUID) (visibility.Actor, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return visibility.Actor{}, err
	}
	profile, err := s.profiles.GetByUserID(ctx, userID)
	if err != nil {
		return visibility.Actor{}, err
	}
	return user.Actor(profile), nil
}

// UpdateProfileParams are the caller-editable profile fields.
type UpdateProfileParams struct {
	Email       *string
	FirstName   *string
	LastName    *string
	Gender      *string
	Description *string
	Branches    []uuid.UUID
}

func (s *Service) UpdateProfile(ctx context.Context, userID uuid.UUID, params UpdateProfileParams) error {
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		user, err := s.users.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		if params.Email != nil {
			user.Email = *params.Email
		}
		if params.FirstName != nil {
			user.FirstName = *params.FirstName
		}
		if params.LastName != nil {
			user.LastName = *params.LastName
		}
		if err := s.users.Update(ctx, user); err != nil {
			return err
		}

		profile, err := s.profiles.GetByUserID(ctx, userID)
		if err != nil {
			return err
		}
		if params.Gender != nil {
			profile.Gender = params.Gender
		}
		if params.Description != nil {
			profile.Description = params.Description
		}
		if err := s.profiles.Update(ctx, profile); err != nil {
			return err
		}
		if params.Branches != nil {
			if err := s.profiles.SetBranches(ctx, profile.ID, params.Branches); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Service) ChangePassword(ctx context.Context, userID uuid.UUID, current, next string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)); err != nil {
		return ErrInvalidCredentials
	}
	if next == "" {
		return fmt.Errorf("new password is required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	user.PasswordHash = string(hash)
	return s.users.Update(ctx, user)
}

func (s *Service) SetAvatar(ctx context.Context, userID uuid.UUID, avatarPath string) error {
	profile, err := s.profiles.GetByUserID(ctx, userID)
	if err != nil {
		return err
	}
	profile.AvatarPath = &avatarPath
	return s.profiles.Update(ctx, profile)
}

func (s *Service) DeleteUser(ctx context.Context, id uuid.UUID) error {
	return s.users.Delete(ctx, id)
}

func (s *Service) ListUsers(ctx context.Context, limit, offset int) ([]*User, int, error) {
	return s.users.List(ctx, limit, offset)
}

// -- Branches --

func (s *Service) CreateBranch(ctx context.Context, name string) (*Branch, error) {
	if name == "" {
		return nil, fmt.Errorf("branch name is required")
	}
	b := &Branch{Name: name}
	if err := s.branches.Create(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *Service) ListBranches(ctx context.Context) ([]Branch, error) {
	return s.branches.List(ctx)
}

func (s *Service) DeleteBranch(ctx context.Context, id uuid.UUID) error {
	return s.branches.Delete(ctx, id)
}
