package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/smilehealth/smilehealth/internal/domain/activity"
	"github.com/smilehealth/smilehealth/internal/domain/visibility"
	"github.com/smilehealth/smilehealth/internal/platform/blobstore"
	"github.com/smilehealth/smilehealth/internal/platform/db"
)

var (
	ErrNotFound  = fmt.Errorf("media not found")
	ErrForbidden = fmt.Errorf("not allowed")
)

// PatientSource resolves the owning patient's access view and label.
type PatientSource interface {
	AccessView(ctx context.Context, id uuid.UUID) (*visibility.Patient, string, error)
}

type Service struct {
	repo     Repository
	patients PatientSource
	blobs    blobstore.BlobStore
	recorder activity.Recorder
	tx       db.Runner
	logger   zerolog.Logger
}

func NewService(repo Repository, patients PatientSource, blobs blobstore.BlobStore, recorder activity.Recorder, tx db.Runner, logger zerolog.Logger) *Service {
	return &Service{repo: repo, patients: patients, blobs: blobs, recorder: recorder, tx: tx, logger: logger}
}

type UploadParams struct {
	PatientID   uuid.UUID
	Kind        Kind
	FileName    string
	ContentType string
	Body        io.Reader
}

// Upload stores the blob first, then the row. A failed insert removes
// the just-written blob so storage and database stay consistent.
func (s *Service) Upload(ctx context.Context, actor visibility.Actor, params UploadParams) (*Media, error) {
	if !ValidKind(params.Kind) {
		return nil, fmt.Errorf("invalid media kind: %s", params.Kind)
	}
	if err := ValidateFilename(params.Kind, params.FileName); err != nil {
		return nil, err
	}

	view, label, err := s.patients.AccessView(ctx, params.PatientID)
	if err != nil {
		return nil, ErrNotFound
	}
	if !visibility.CanEditPatient(actor, view) {
		return nil, ErrForbidden
	}

	dest := path.Join("patients", params.PatientID.String(), string(params.Kind),
		uuid.NewString()+path.Ext(params.FileName))
	stored, size, err := s.blobs.Save(ctx, dest, params.Body)
	if err != nil {
		return nil, fmt.Errorf("store file: %w", err)
	}

	uploaderID := actor.ID
	m := &Media{
		PatientID:   params.PatientID,
		UploadedBy:  &uploaderID,
		Kind:        params.Kind,
		FileName:    params.FileName,
		Path:        stored,
		Size:        size,
		ContentType: params.ContentType,
	}
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, m); err != nil {
			return err
		}
		s.recorder.Record(ctx, actor.ID, activity.ActionUpload, activity.TargetMedia, m.ID, label, m.FileName)
		return nil
	})
	if err != nil {
		if delErr := s.blobs.Delete(ctx, stored); delErr != nil && !errors.Is(delErr, blobstore.ErrDeleteDeferred) {
			s.logger.Warn().Err(delErr).Str("path", stored).Msg("media: orphaned blob after failed insert")
		}
		return nil, err
	}
	return m, nil
}

func (s *Service) Get(ctx context.Context, actor visibility.Actor, id uuid.UUID) (*Media, error) {
	m, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, ErrNotFound
	}
	view, _, err := s.patients.AccessView(ctx, m.PatientID)
	if err != nil {
		return nil, ErrNotFound
	}
	if !visibility.CanViewPatient(actor, view) {
		return nil, ErrForbidden
	}
	return m, nil
}

// Open returns the media row and its content stream.
func (s *Service) Open(ctx context.Context, actor visibility.Actor, id uuid.UUID) (*Media, io.ReadCloser, error) {
	m, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.blobs.Open(ctx, m.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open file: %w", err)
	}
	return m, rc, nil
}

func (s *Service) ListForPatient(ctx context.Context, actor visibility.Actor, patientID uuid.UUID, kind Kind, limit, offset int) ([]*Media, int, error) {
	if kind != "" && !ValidKind(kind) {
		return nil, 0, fmt.Errorf("invalid media kind: %s", kind)
	}
	view, _, err := s.patients.AccessView(ctx, patientID)
	if err != nil {
		return nil, 0, ErrNotFound
	}
	if !visibility.CanViewPatient(actor, view) {
		return nil, 0, ErrForbidden
	}
	return s.repo.ListForPatient(ctx, patientID, kind, limit, offset)
}

// Delete removes the row first, then the blob. A deferred blob delete
// is reported as success: the row is gone and cleanup is queued in the
// background, so the user never waits on a locked file.
func (s *Service) Delete(ctx context.Context, actor visibility.Actor, id uuid.UUID) error {
	m, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return ErrNotFound
	}
	view, label, err := s.patients.AccessView(ctx, m.PatientID)
	if err != nil {
		return ErrNotFound
	}
	if !visibility.CanEditPatient(actor, view) {
		return ErrForbidden
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Delete(ctx, m.ID); err != nil {
			return err
		}
		s.recorder.Record(ctx, actor.ID, activity.ActionDelete, activity.TargetMedia, m.ID, label, m.FileName)
		return nil
	})
	if err != nil {
		return err
	}

	if err := s.blobs.Delete(ctx, m.Path); err != nil {
		if errors.Is(err, blobstore.ErrDeleteDeferred) {
			s.logger.Warn().Str("path", m.Path).Msg("media: blob delete deferred to background cleanup")
			return nil
		}
		s.logger.Error().Err(err).Str("path", m.Path).Msg("media: blob delete failed")
	}
	return nil
}
