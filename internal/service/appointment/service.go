package appointment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/therapyassist/therapy-api/internal/model"
	"github.com/therapyassist/therapy-api/internal/repository"
	"github.com/therapyassist/therapy-api/internal/service/event"
	apperrors "github.com/therapyassist/therapy-api/pkg/errors"
	"github.com/therapyassist/therapy-api/pkg/logger"
	"github.com/therapyassist/therapy-api/pkg/metrics"
)

// Service is the scheduling guard: every write that places an appointment in
// time is checked against the single shared calendar.
type Service struct {
	tx       repository.Transactor
	repo     repository.AppointmentRepository
	patients repository.PatientRepository
	notes    repository.SessionNoteRepository
	events   event.Emitter
	metrics  *metrics.Metrics
	logger   *logger.Logger
}

func NewService(
	tx repository.Transactor,
	repo repository.AppointmentRepository,
	patients repository.PatientRepository,
	notes repository.SessionNoteRepository,
	events event.Emitter,
	metrics *metrics.Metrics,
	logger *logger.Logger,
) *Service {
	return &Service{
		tx:       tx,
		repo:     repo,
		patients: patients,
		notes:    notes,
		events:   events,
		metrics:  metrics,
		logger:   logger,
	}
}

// CheckOverlap reports whether [start, end) on date intersects any stored
// appointment other than excludeID. The scan covers every patient.
func (s *Service) CheckOverlap(ctx context.Context, date model.Date, start, end model.ClockTime, excludeID *uuid.UUID) (bool, error) {
	conflict, err := s.findConflict(ctx, model.TimeSlot{Date: date, Start: start, End: end}, excludeID)
	if err != nil {
		return false, err
	}
	return conflict != nil, nil
}

func (s *Service) findConflict(ctx context.Context, slot model.TimeSlot, excludeID *uuid.UUID) (*model.Appointment, error) {
	existing, err := s.repo.FindByDate(ctx, slot.Date)
	if err != nil {
		return nil, err
	}
	for _, a := range existing {
		if excludeID != nil && a.ID == *excludeID {
			continue
		}
		if a.Slot().Overlaps(slot) {
			return a, nil
		}
	}
	return nil, nil
}

// guard rejects slot when it overlaps another appointment. Callers hold the date lock.
func (s *Service) guard(ctx context.Context, slot model.TimeSlot, excludeID *uuid.UUID) error {
	conflict, err := s.findConflict(ctx, slot, excludeID)
	if err != nil {
		return err
	}
	if conflict == nil {
		return nil
	}

	s.metrics.SchedulingConflicts.Inc()
	return apperrors.Conflict(fmt.Sprintf("scheduling conflict: %s overlaps existing appointment %s", slot, conflict.Slot())).
		WithDetail("conflicting_appointment_id", conflict.ID).
		WithDetail("conflicting_window", conflict.Slot())
}

func (s *Service) Create(ctx context.Context, req *model.CreateAppointmentRequest) (*model.Appointment, error) {
	slot := model.TimeSlot{Date: req.Date, Start: req.StartTime, End: req.EndTime}
	appointment := &model.Appointment{
		Base:      model.Base{ID: uuid.New()},
		PatientID: req.PatientID,
		Date:      req.Date,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Price:     req.Price,
		IsPaid:    false,
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.requirePatient(ctx, req.PatientID); err != nil {
			return err
		}
		if err := validateSlot(slot); err != nil {
			return err
		}
		if err := validatePrice(req.Price); err != nil {
			return err
		}
		if err := s.repo.LockDate(ctx, slot.Date); err != nil {
			return err
		}
		if err := s.guard(ctx, slot, nil); err != nil {
			return err
		}
		if err := s.repo.Create(ctx, appointment); err != nil {
			return err
		}
		return s.events.Emit(ctx, model.EventAppointmentCreated, model.NewAppointmentEvent(appointment))
	})
	if err != nil {
		return nil, err
	}

	s.metrics.AppointmentsScheduled.Inc()
	s.logger.Info("appointment scheduled",
		"appointment_id", appointment.ID.String(),
		"patient_id", appointment.PatientID.String(),
		"slot", slot.String())
	return appointment, nil
}

// Update applies a partial update. The overlap check only runs when the update
// touches date, start or end, and then uses the merged values.
func (s *Service) Update(ctx context.Context, id uuid.UUID, req *model.UpdateAppointmentRequest) (*model.Appointment, error) {
	if req.Price != nil {
		if err := validatePrice(*req.Price); err != nil {
			return nil, err
		}
	}

	var updated *model.Appointment
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		// Locked so a concurrent payment cannot mark it paid between the
		// is_paid check below and the write.
		current, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return notFound("appointment", err)
		}

		merged := *current
		if req.PatientID != nil && *req.PatientID != current.PatientID {
			if err := s.requirePatient(ctx, *req.PatientID); err != nil {
				return err
			}
			if current.IsPaid {
				return apperrors.Conflict("a paid appointment cannot be moved to another patient")
			}
			merged.PatientID = *req.PatientID
		}
		if req.Date != nil {
			merged.Date = *req.Date
		}
		if req.StartTime != nil {
			merged.StartTime = *req.StartTime
		}
		if req.EndTime != nil {
			merged.EndTime = *req.EndTime
		}
		if req.Price != nil {
			merged.Price = *req.Price
		}
		if req.SessionNoteID.Set {
			if req.SessionNoteID.Value != nil {
				if _, err := s.notes.Get(ctx, *req.SessionNoteID.Value); err != nil {
					return notFound("session note", err)
				}
			}
			merged.SessionNoteID = req.SessionNoteID.Value
		}

		if req.TouchesSchedule() {
			if err := validateSlot(merged.Slot()); err != nil {
				return err
			}
			if err := s.lockDates(ctx, current.Date, merged.Date); err != nil {
				return err
			}
			if err := s.guard(ctx, merged.Slot(), &id); err != nil {
				return err
			}
		}

		if err := s.repo.Update(ctx, &merged); err != nil {
			return notFound("appointment", err)
		}
		updated = &merged
		return s.events.Emit(ctx, model.EventAppointmentUpdated, model.NewAppointmentEvent(updated))
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// lockDates locks each distinct date in ascending order so two moves between
// the same pair of dates cannot deadlock.
func (s *Service) lockDates(ctx context.Context, a, b model.Date) error {
	if b.Before(a) {
		a, b = b, a
	}
	if err := s.repo.LockDate(ctx, a); err != nil {
		return err
	}
	if a == b {
		return nil
	}
	return s.repo.LockDate(ctx, b)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	appointment, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, notFound("appointment", err)
	}
	return appointment, nil
}

func (s *Service) List(ctx context.Context, filter *model.AppointmentFilter) ([]*model.Appointment, error) {
	if filter.DateFrom != nil && filter.DateTo != nil && filter.DateTo.Before(*filter.DateFrom) {
		return nil, apperrors.Validation("date_to must not be before date_from")
	}
	filter.Pagination = filter.Pagination.Normalize()
	return s.repo.List(ctx, filter)
}

// Delete removes the appointment. Payments that covered it keep existing.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		appointment, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := s.repo.Delete(ctx, id); err != nil {
			return notFound("appointment", err)
		}
		return s.events.Emit(ctx, model.EventAppointmentDeleted, model.NewAppointmentEvent(appointment))
	})
}

func (s *Service) requirePatient(ctx context.Context, id uuid.UUID) error {
	exists, err := s.patients.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return apperrors.NotFound("patient", nil)
	}
	return nil
}

func validateSlot(slot model.TimeSlot) error {
	if slot.Date.IsZero() {
		return apperrors.Validation("date is required")
	}
	if !slot.Valid() {
		return apperrors.Validation(fmt.Sprintf("start_time %s must be before end_time %s", slot.Start, slot.End))
	}
	return nil
}

func validatePrice(price decimal.Decimal) error {
	if !price.IsPositive() {
		return apperrors.Validation("price must be greater than zero")
	}
	if !model.ValidMoneyScale(price) {
		return apperrors.Validation("price must have at most two decimal places")
	}
	return nil
}

func notFound(resource string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NotFound(resource, err)
	}
	return err
}
