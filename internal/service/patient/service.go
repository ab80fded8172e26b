package patient

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/therapyassist/therapy-api/internal/model"
	"github.com/therapyassist/therapy-api/internal/repository"
	"github.com/therapyassist/therapy-api/internal/service/event"
	apperrors "github.com/therapyassist/therapy-api/pkg/errors"
	"github.com/therapyassist/therapy-api/pkg/logger"
)

// StatisticsInvalidator drops cached aggregates that a cascade delete makes stale.
type StatisticsInvalidator interface {
	InvalidateStatistics()
}

type Service struct {
	tx           repository.Transactor
	repo         repository.PatientRepository
	appointments repository.AppointmentRepository
	payments     repository.PaymentRepository
	events       event.Emitter
	stats        StatisticsInvalidator
	logger       *logger.Logger
}

func NewService(
	tx repository.Transactor,
	repo repository.PatientRepository,
	appointments repository.AppointmentRepository,
	payments repository.PaymentRepository,
	events event.Emitter,
	stats StatisticsInvalidator,
	logger *logger.Logger,
) *Service {
	return &Service{
		tx:           tx,
		repo:         repo,
		appointments: appointments,
		payments:     payments,
		events:       events,
		stats:        stats,
		logger:       logger,
	}
}

func (s *Service) Create(ctx context.Context, req *model.CreatePatientRequest) (*model.Patient, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperrors.Validation("name is required")
	}

	patient := &model.Patient{
		Base:  model.Base{ID: uuid.New()},
		Name:  name,
		Phone: req.Phone,
		Email: req.Email,
		Notes: req.Notes,
	}
	if err := s.repo.Create(ctx, patient); err != nil {
		return nil, err
	}

	s.logger.Info("patient created", "patient_id", patient.ID.String())
	return patient, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Patient, error) {
	patient, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	return patient, nil
}

func (s *Service) List(ctx context.Context, filter *model.PatientFilter) ([]*model.Patient, error) {
	filter.Search = strings.TrimSpace(filter.Search)
	filter.Pagination = filter.Pagination.Normalize()
	return s.repo.List(ctx, filter)
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, req *model.UpdatePatientRequest) (*model.Patient, error) {
	var updated *model.Patient
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		patient, err := s.repo.Get(ctx, id)
		if err != nil {
			return notFound(err)
		}
		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				return apperrors.Validation("name must not be empty")
			}
			patient.Name = name
		}
		if req.Phone != nil {
			patient.Phone = req.Phone
		}
		if req.Email != nil {
			patient.Email = req.Email
		}
		if req.Notes != nil {
			patient.Notes = req.Notes
		}
		if err := s.repo.Update(ctx, patient); err != nil {
			return notFound(err)
		}
		updated = patient
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes the patient together with their appointments, payments and notes.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		exists, err := s.repo.Exists(ctx, id)
		if err != nil {
			return err
		}
		if !exists {
			return apperrors.NotFound("patient", nil)
		}
		if err := s.emitCascade(ctx, id); err != nil {
			return err
		}
		return notFound(s.repo.Delete(ctx, id))
	})
	if err != nil {
		return err
	}

	if s.stats != nil {
		s.stats.InvalidateStatistics()
	}
	s.logger.Info("patient deleted", "patient_id", id.String())
	return nil
}

// emitCascade records a deleted event for every payment and appointment the
// patient delete removes, so subscribers see the same events as for direct deletes.
func (s *Service) emitCascade(ctx context.Context, patientID uuid.UUID) error {
	payments, err := s.payments.Filter(ctx, &model.PaymentFilter{PatientID: &patientID})
	if err != nil {
		return err
	}
	for _, p := range payments {
		full, err := s.payments.GetWithAppointments(ctx, p.ID)
		if err != nil {
			return err
		}
		if err := s.events.Emit(ctx, model.EventPaymentDeleted, model.NewPaymentEvent(full, full.AppointmentIDs())); err != nil {
			return err
		}
	}

	appointments, err := s.appointments.ListByPatient(ctx, patientID)
	if err != nil {
		return err
	}
	for _, a := range appointments {
		if err := s.events.Emit(ctx, model.EventAppointmentDeleted, model.NewAppointmentEvent(a)); err != nil {
			return err
		}
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NotFound("patient", err)
	}
	return err
}
