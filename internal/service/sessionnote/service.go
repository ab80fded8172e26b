package sessionnote

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/therapyassist/therapy-api/internal/model"
	"github.com/therapyassist/therapy-api/internal/repository"
	apperrors "github.com/therapyassist/therapy-api/pkg/errors"
	"github.com/therapyassist/therapy-api/pkg/logger"
)

type Service struct {
	tx       repository.Transactor
	repo     repository.SessionNoteRepository
	patients repository.PatientRepository
	logger   *logger.Logger
}

func NewService(tx repository.Transactor, repo repository.SessionNoteRepository, patients repository.PatientRepository, logger *logger.Logger) *Service {
	return &Service{tx: tx, repo: repo, patients: patients, logger: logger}
}

func (s *Service) Create(ctx context.Context, req *model.CreateSessionNoteRequest) (*model.SessionNote, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, apperrors.Validation("content is required")
	}

	note := &model.SessionNote{
		Base:      model.Base{ID: uuid.New()},
		PatientID: req.PatientID,
		Content:   req.Content,
	}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		exists, err := s.patients.Exists(ctx, req.PatientID)
		if err != nil {
			return err
		}
		if !exists {
			return apperrors.NotFound("patient", nil)
		}
		return s.repo.Create(ctx, note)
	})
	if err != nil {
		return nil, err
	}
	return note, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.SessionNote, error) {
	note, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	return note, nil
}

func (s *Service) List(ctx context.Context, filter *model.SessionNoteFilter) ([]*model.SessionNote, error) {
	filter.Pagination = filter.Pagination.Normalize()
	return s.repo.List(ctx, filter)
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, req *model.UpdateSessionNoteRequest) (*model.SessionNote, error) {
	if req.Content != nil && strings.TrimSpace(*req.Content) == "" {
		return nil, apperrors.Validation("content must not be empty")
	}

	var updated *model.SessionNote
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		note, err := s.repo.Get(ctx, id)
		if err != nil {
			return notFound(err)
		}
		if req.Content != nil {
			note.Content = *req.Content
		}
		if err := s.repo.Update(ctx, note); err != nil {
			return notFound(err)
		}
		updated = note
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes the note. Appointments that referenced it keep existing with
// no note attached.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := notFound(s.repo.Delete(ctx, id)); err != nil {
		return err
	}
	s.logger.Debug("session note deleted", "session_note_id", id.String())
	return nil
}

func notFound(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NotFound("session note", err)
	}
	return err
}
