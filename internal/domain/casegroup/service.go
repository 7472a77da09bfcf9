package casegroup

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/smilehealth/smilehealth/internal/domain/activity"
	"github.com/smilehealth/smilehealth/internal/domain/visibility"
	"github.com/smilehealth/smilehealth/internal/platform/db"
)

var (
	ErrNotFound  = fmt.Errorf("case group not found")
	ErrForbidden = fmt.Errorf("not allowed")
)

type Service struct {
	repo     Repository
	recorder activity.Recorder
	tx       db.Runner
}

func NewService(repo Repository, recorder activity.Recorder, tx db.Runner) *Service {
	return &Service{repo: repo, recorder: recorder, tx: tx}
}

type CreateParams struct {
	Name        string
	Description string
	Visibility  visibility.Visibility
}

func (s *Service) Create(ctx context.Context, actor visibility.Actor, params CreateParams) (*CaseGroup, error) {
	if !actor.Authenticated {
		return nil, ErrForbidden
	}
	if params.Name == "" {
		return nil, fmt.Errorf("name is required")
	}
	if params.Visibility == "" {
		params.Visibility = visibility.Private
	}
	if !visibility.ValidGroupVisibility(params.Visibility) {
		return nil, fmt.Errorf("invalid visibility: %s", params.Visibility)
	}

	g := &CaseGroup{
		Name:        params.Name,
		Description: params.Description,
		CreatedBy:   actor.ID,
		Visibility:  params.Visibility,
	}
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, g); err != nil {
			return err
		}
		s.recorder.Record(ctx, actor.ID, activity.ActionCreate, activity.TargetCaseGroup, g.ID, g.Name, "")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

func (s *Service) Get(ctx context.Context, actor visibility.Actor, id uuid.UUID) (*CaseGroup, error) {
	g, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, ErrNotFound
	}
	if !visibility.CanViewGroup(actor, g.View()) {
		return nil, ErrForbidden
	}
	return g, nil
}

type UpdateParams struct {
	Name        *string
	Description *string
}

func (s *Service) Update(ctx context.Context, actor visibility.Actor, id uuid.UUID, params UpdateParams) (*CaseGroup, error) {
	g, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, ErrNotFound
	}
	if !visibility.CanManageGroup(actor, g.View()) {
		return nil, ErrForbidden
	}
	if params.Name != nil {
		if *params.Name == "" {
			return nil, fmt.Errorf("name is required")
		}
		g.Name = *params.Name
	}
	if params.Description != nil {
		g.Description = *params.Description
	}
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Update(ctx, g); err != nil {
			return err
		}
		s.recorder.Record(ctx, actor.ID, activity.ActionUpdate, activity.TargetCaseGroup, g.ID, g.Name, "")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

// SetVisibility changes the group visibility. Switching to PRIVATE
// revokes all shares in the same transaction so no stale grant can
// survive the change.
func (s *Service) SetVisibility(ctx context.Context, actor visibility.Actor, id uuid.UUID, v visibility.Visibility) (*CaseGroup, error) {
	if !visibility.ValidGroupVisibility(v) {
		return nil, fmt.Errorf("invalid visibility: %s", v)
	}
	g, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, ErrNotFound
	}
	if !visibility.CanManageGroup(actor, g.View()) {
		return nil, ErrForbidden
	}

	prev := g.Visibility
	g.Visibility = v
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Update(ctx, g); err != nil {
			return err
		}
		if v == visibility.Private {
			if err := s.repo.ClearShares(ctx, g.ID); err != nil {
				return err
			}
			g.SharedWith = nil
		}
		s.recorder.Record(ctx, actor.ID, activity.ActionVisibilityChange, activity.TargetCaseGroup, g.ID, g.Name,
			fmt.Sprintf("%s -> %s", prev, v))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

// ReplaceShares sets the full share list at once. The owner is dropped
// from the list; sharing with yourself is a no-op, not an error.
func (s *Service) ReplaceShares(ctx context.Context, actor visibility.Actor, id uuid.UUID, userIDs []uuid.UUID) (*CaseGroup, error) {
	g, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, ErrNotFound
	}
	if !visibility.CanManageGroup(actor, g.View()) {
		return nil, ErrForbidden
	}

	var filtered []uuid.UUID
	for _, uid := range userIDs {
		if uid == g.CreatedBy || uid == uuid.Nil {
			continue
		}
		filtered = append(filtered, uid)
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.repo.ReplaceShares(ctx, g.ID, filtered); err != nil {
			return err
		}
		s.recorder.Record(ctx, actor.ID, activity.ActionShare, activity.TargetCaseGroup, g.ID, g.Name,
			fmt.Sprintf("shared with %d users", len(filtered)))
		return nil
	})
	if err != nil {
		return nil, err
	}
	g.SharedWith = filtered
	return g, nil
}

func (s *Service) Delete(ctx context.Context, actor visibility.Actor, id uuid.UUID) error {
	g, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return ErrNotFound
	}
	if !visibility.CanManageGroup(actor, g.View()) {
		return ErrForbidden
	}
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Delete(ctx, g.ID); err != nil {
			return err
		}
		s.recorder.Record(ctx, actor.ID, activity.ActionDelete, activity.TargetCaseGroup, g.ID, g.Name, "")
		return nil
	})
}

func (s *Service) List(ctx context.Context, actor visibility.Actor, limit, offset int) ([]*CaseGroup, int, error) {
	if actor.Admin {
		return s.repo.ListAll(ctx, limit, offset)
	}
	return s.repo.ListVisible(ctx, actor.ID, limit, offset)
}

// ViewFor resolves the group access view for other domains. A nil id
// yields a nil view.
func (s *Service) ViewFor(ctx context.Context, id uuid.UUID) (*visibility.Group, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	g, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, ErrNotFound
	}
	return g.View(), nil
}
