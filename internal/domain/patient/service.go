package patient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/smilehealth/smilehealth/internal/domain/activity"
	"github.com/smilehealth/smilehealth/internal/domain/visibility"
	"github.com/smilehealth/smilehealth/internal/platform/blobstore"
	"github.com/smilehealth/smilehealth/internal/platform/db"
)

var (
	ErrNotFound  = fmt.Errorf("patient not found")
	ErrForbidden = fmt.Errorf("not allowed")
)

// GroupSource resolves the access view of a case group. A nil group id
// resolves to a nil view.
type GroupSource interface {
	ViewFor(ctx context.Context, id uuid.UUID) (*visibility.Group, error)
}

// MediaSource lists the stored blob paths attached to a patient so a
// record delete can purge them.
type MediaSource interface {
	PathsForPatient(ctx context.Context, patientID uuid.UUID) ([]string, error)
}

type Service struct {
	repo     Repository
	comments CommentRepository
	groups   GroupSource
	media    MediaSource
	blobs    blobstore.BlobStore
	recorder activity.Recorder
	tx       db.Runner
	logger   zerolog.Logger
}

func NewService(repo Repository, comments CommentRepository, groups GroupSource, media MediaSource, blobs blobstore.BlobStore, recorder activity.Recorder, tx db.Runner, logger zerolog.Logger) *Service {
	return &Service{repo: repo, comments: comments, groups: groups, media: media, blobs: blobs, recorder: recorder, tx: tx, logger: logger}
}

// load fetches the patient and its resolved group view.
func (s *Service) load(ctx context.Context, id uuid.UUID) (*Patient, *visibility.Group, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, ErrNotFound
	}
	var group *visibility.Group
	if p.GroupID != nil {
		group, err = s.groups.ViewFor(ctx, *p.GroupID)
		if err != nil {
			return nil, nil, err
		}
	}
	return p, group, nil
}

// AccessView resolves the record's access-rule view and display label
// for other domains that attach content to a patient.
func (s *Service) AccessView(ctx context.Context, id uuid.UUID) (*visibility.Patient, string, error) {
	p, group, err := s.load(ctx, id)
	if err != nil {
		return nil, "", err
	}
	return p.View(group), p.Label(), nil
}

type CreateParams struct {
	FirstName  string
	LastName   string
	BirthDate  *time.Time
	GroupID    *uuid.UUID
	Visibility visibility.Visibility
}

func (s *Service) Create(ctx context.Context, actor visibility.Actor, params CreateParams) (*Patient, error) {
	if !actor.Authenticated {
		return nil, ErrForbidden
	}
	if strings.TrimSpace(params.FirstName) == "" || strings.TrimSpace(params.LastName) == "" {
		return nil, fmt.Errorf("first and last name are required")
	}
	if params.Visibility == "" {
		params.Visibility = visibility.Private
	}
	if !visibility.ValidPatientVisibility(params.Visibility) {
		return nil, fmt.Errorf("invalid visibility: %s", params.Visibility)
	}

	// Adding under a group needs group access; the check runs before
	// any row is written.
	if params.GroupID != nil {
		group, err := s.groups.ViewFor(ctx, *params.GroupID)
		if err != nil {
			return nil, err
		}
		if !visibility.CanCreateInGroup(actor, group) {
			return nil, ErrForbidden
		}
	}

	p := &Patient{
		FirstName:  params.FirstName,
		LastName:   params.LastName,
		BirthDate:  params.BirthDate,
		OwnerID:    actor.ID,
		GroupID:    params.GroupID,
		Visibility: params.Visibility,
	}
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, p); err != nil {
			return err
		}
		s.recorder.Record(ctx, actor.ID, activity.ActionCreate, activity.TargetPatient, p.ID, p.Label(), "")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) Get(ctx context.Context, actor visibility.Actor, id uuid.UUID) (*Patient, error) {
	p, group, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !visibility.CanViewPatient(actor, p.View(group)) {
		return nil, ErrForbidden
	}
	return p, nil
}

type UpdateParams struct {
	FirstName *string
	LastName  *string
	BirthDate *time.Time
}

func (s *Service) Update(ctx context.Context, actor visibility.Actor, id uuid.UUID, params UpdateParams) (*Patient, error) {
	p, group, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !visibility.CanEditPatient(actor, p.View(group)) {
		return nil, ErrForbidden
	}
	if params.FirstName != nil {
		p.FirstName = *params.FirstName
	}
	if params.LastName != nil {
		p.LastName = *params.LastName
	}
	if params.BirthDate != nil {
		p.BirthDate = params.BirthDate
	}
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Update(ctx, p); err != nil {
			return err
		}
		s.recorder.Record(ctx, actor.ID, activity.ActionUpdate, activity.TargetPatient, p.ID, p.Label(), "")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// SetVisibility changes the record's own tier. Switching to PRIVATE
// clears the share set in the same transaction; applying PRIVATE twice
// is idempotent.
func (s *Service) SetVisibility(ctx context.Context, actor visibility.Actor, id uuid.UUID, v visibility.Visibility) (*Patient, error) {
	if !visibility.ValidPatientVisibility(v) {
		return nil, fmt.Errorf("invalid visibility: %s", v)
	}
	p, group, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !visibility.CanEditPatient(actor, p.View(group)) {
		return nil, ErrForbidden
	}

	prev := p.Visibility
	p.Visibility = v
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Update(ctx, p); err != nil {
			return err
		}
		if v == visibility.Private {
			if err := s.repo.ClearShares(ctx, p.ID); err != nil {
				return err
			}
			p.SharedWith = nil
		}
		s.recorder.Record(ctx, actor.ID, activity.ActionVisibilityChange, activity.TargetPatient, p.ID, p.Label(),
			fmt.Sprintf("%s -> %s", prev, v))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ReplaceShares swaps the full share set atomically. The owner is
// dropped from the list.
func (s *Service) ReplaceShares(ctx context.Context, actor visibility.Actor, id uuid.UUID, userIDs []uuid.UUID) (*Patient, error) {
	p, group, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !visibility.CanEditPatient(actor, p.View(group)) {
		return nil, ErrForbidden
	}

	var filtered []uuid.UUID
	for _, uid := range userIDs {
		if uid == p.OwnerID || uid == uuid.Nil {
			continue
		}
		filtered = append(filtered, uid)
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.repo.ReplaceShares(ctx, p.ID, filtered); err != nil {
			return err
		}
		s.recorder.Record(ctx, actor.ID, activity.ActionShare, activity.TargetPatient, p.ID, p.Label(),
			fmt.Sprintf("shared with %d users", len(filtered)))
		return nil
	})
	if err != nil {
		return nil, err
	}
	p.SharedWith = filtered
	return p, nil
}

// AssignGroup moves the record into a group, or out of any group when
// groupID is nil. Moving in requires create access on the target group.
func (s *Service) AssignGroup(ctx context.Context, actor visibility.Actor, id uuid.UUID, groupID *uuid.UUID) (*Patient, error) {
	p, group, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !visibility.CanEditPatient(actor, p.View(group)) {
		return nil, ErrForbidden
	}
	if groupID != nil {
		target, err := s.groups.ViewFor(ctx, *groupID)
		if err != nil {
			return nil, err
		}
		if !visibility.CanCreateInGroup(actor, target) {
			return nil, ErrForbidden
		}
	}

	p.GroupID = groupID
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Update(ctx, p); err != nil {
			return err
		}
		s.recorder.Record(ctx, actor.ID, activity.ActionUpdate, activity.TargetPatient, p.ID, p.Label(), "group assignment changed")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// SetThumbnail stores the new thumbnail and points the record at it.
// The edit predicate runs before any byte lands in storage, and a
// replaced thumbnail's old blob is removed once the row is updated.
func (s *Service) SetThumbnail(ctx context.Context, actor visibility.Actor, id uuid.UUID, filename string, body io.Reader) (*Patient, error) {
	p, group, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !visibility.CanEditPatient(actor, p.View(group)) {
		return nil, ErrForbidden
	}

	dest := path.Join("thumbnails", id.String()+path.Ext(filename))
	stored, _, err := s.blobs.Save(ctx, dest, body)
	if err != nil {
		return nil, fmt.Errorf("store thumbnail: %w", err)
	}

	old := p.ThumbnailPath
	p.ThumbnailPath = &stored
	if err := s.repo.Update(ctx, p); err != nil {
		if old == nil || *old != stored {
			s.deleteBlob(ctx, stored)
		}
		return nil, err
	}
	if old != nil && *old != stored {
		s.deleteBlob(ctx, *old)
	}
	return p, nil
}

// deleteBlob removes one stored file, tolerating deferred cleanup. The
// owning row is already consistent by the time this runs.
func (s *Service) deleteBlob(ctx context.Context, target string) {
	if err := s.blobs.Delete(ctx, target); err != nil {
		if errors.Is(err, blobstore.ErrDeleteDeferred) {
			s.logger.Warn().Str("path", target).Msg("patient: blob delete deferred to background cleanup")
			return
		}
		if !errors.Is(err, blobstore.ErrBlobNotFound) {
			s.logger.Error().Err(err).Str("path", target).Msg("patient: blob delete failed")
		}
	}
}

func (s *Service) Delete(ctx context.Context, actor visibility.Actor, id uuid.UUID) error {
	p, group, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if !visibility.CanEditPatient(actor, p.View(group)) {
		return ErrForbidden
	}

	// Collect blob paths before the row cascade wipes the media rows.
	paths, err := s.media.PathsForPatient(ctx, p.ID)
	if err != nil {
		return err
	}
	if p.ThumbnailPath != nil {
		paths = append(paths, *p.ThumbnailPath)
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Delete(ctx, p.ID); err != nil {
			return err
		}
		s.recorder.Record(ctx, actor.ID, activity.ActionDelete, activity.TargetPatient, p.ID, p.Label(), "")
		return nil
	})
	if err != nil {
		return err
	}
	for _, target := range paths {
		s.deleteBlob(ctx, target)
	}
	return nil
}

func (s *Service) List(ctx context.Context, actor visibility.Actor, limit, offset int) ([]*Patient, int, error) {
	if actor.Admin {
		return s.repo.ListAll(ctx, limit, offset)
	}
	return s.repo.ListVisible(ctx, actor.ID, limit, offset)
}

// ListByGroup lists the patients of one group; the group itself must be
// viewable.
func (s *Service) ListByGroup(ctx context.Context, actor visibility.Actor, groupID uuid.UUID, limit, offset int) ([]*Patient, int, error) {
	group, err := s.groups.ViewFor(ctx, groupID)
	if err != nil {
		return nil, 0, err
	}
	if !visibility.CanViewGroup(actor, group) {
		return nil, 0, ErrForbidden
	}
	return s.repo.ListByGroup(ctx, groupID, limit, offset)
}

func (s *Service) CountSharedWith(ctx context.Context, actor visibility.Actor) (int, error) {
	if !actor.Authenticated {
		return 0, ErrForbidden
	}
	return s.repo.CountSharedWith(ctx, actor.ID)
}

// -- Comments --

// AddComment requires view access only: shared and group viewers may
// comment even though they cannot mutate the record.
func (s *Service) AddComment(ctx context.Context, actor visibility.Actor, patientID uuid.UUID, body string) (*Comment, error) {
	p, group, err := s.load(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if !visibility.CanViewPatient(actor, p.View(group)) {
		return nil, ErrForbidden
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, fmt.Errorf("comment body is required")
	}
	if len(body) > MaxCommentLength {
		return nil, fmt.Errorf("comment exceeds %d characters", MaxCommentLength)
	}

	authorID := actor.ID
	c := &Comment{PatientID: p.ID, AuthorID: &authorID, Body: body}
	if err := s.comments.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) ListComments(ctx context.Context, actor visibility.Actor, patientID uuid.UUID, limit, offset int) ([]*Comment, int, error) {
	p, group, err := s.load(ctx, patientID)
	if err != nil {
		return nil, 0, err
	}
	if !visibility.CanViewPatient(actor, p.View(group)) {
		return nil, 0, ErrForbidden
	}
	return s.comments.ListForPatient(ctx, patientID, limit, offset)
}

// DeleteComment is restricted to the author and administrators.
func (s *Service) DeleteComment(ctx context.Context, actor visibility.Actor, commentID uuid.UUID) error {
	c, err := s.comments.GetByID(ctx, commentID)
	if err != nil {
		return fmt.Errorf("comment not found")
	}
	if !actor.Admin && (c.AuthorID == nil || *c.AuthorID != actor.ID) {
		return ErrForbidden
	}
	return s.comments.Delete(ctx, commentID)
}
