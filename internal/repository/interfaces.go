package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/therapyassist/therapy-api/internal/model"
)

type (
	// Transactor runs fn inside a unit of work. Repository calls made with the
	// context passed to fn join that unit of work; nested calls reuse it.
	Transactor interface {
		WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
	}

	PatientRepository interface {
		Create(ctx context.Context, patient *model.Patient) error
		Get(ctx context.Context, id uuid.UUID) (*model.Patient, error)
		Exists(ctx context.Context, id uuid.UUID) (bool, error)
		List(ctx context.Context, filter *model.PatientFilter) ([]*model.Patient, error)
		Update(ctx context.Context, patient *model.Patient) error
		// Delete removes the patient with its payments, appointments and session notes.
		Delete(ctx context.Context, id uuid.UUID) error
	}

	AppointmentRepository interface {
		Create(ctx context.Context, appointment *model.Appointment) error
		Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
		// GetForUpdate reads the appointment and locks it until the transaction ends.
		GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
		List(ctx context.Context, filter *model.AppointmentFilter) ([]*model.Appointment, error)
		FindByDate(ctx context.Context, date model.Date) ([]*model.Appointment, error)
		// ListByPatient returns every appointment of the patient, unpaginated.
		ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.Appointment, error)
		// FindByIDsForPatient returns the subset of ids that exist and belong to
		// patientID, locking them for the rest of the transaction.
		FindByIDsForPatient(ctx context.Context, ids []uuid.UUID, patientID uuid.UUID) ([]*model.Appointment, error)
		ListUnpaidIDs(ctx context.Context, patientID uuid.UUID) ([]uuid.UUID, error)
		Update(ctx context.Context, appointment *model.Appointment) error
		Delete(ctx context.Context, id uuid.UUID) error
		// LockDate serializes scheduling on date until the transaction ends.
		LockDate(ctx context.Context, date model.Date) error
	}

	PaymentRepository interface {
		Create(ctx context.Context, payment *model.Payment) error
		Get(ctx context.Context, id uuid.UUID) (*model.Payment, error)
		GetWithAppointments(ctx context.Context, id uuid.UUID) (*model.Payment, error)
		// List returns one page ordered by payment_date desc, plus the total match count.
		List(ctx context.Context, filter *model.PaymentFilter) ([]*model.Payment, int, error)
		// Filter returns every match, ignoring pagination.
		Filter(ctx context.Context, filter *model.PaymentFilter) ([]*model.Payment, error)
		Update(ctx context.Context, payment *model.Payment) error
		Delete(ctx context.Context, id uuid.UUID) error
		// LinkAppointments attaches ids to the payment and marks them paid.
		LinkAppointments(ctx context.Context, paymentID uuid.UUID, ids []uuid.UUID) error
		// UnlinkAppointments detaches every appointment from the payment and
		// recomputes is_paid from the links that remain. Returns the detached ids.
		UnlinkAppointments(ctx context.Context, paymentID uuid.UUID) ([]uuid.UUID, error)
	}

	SessionNoteRepository interface {
		Create(ctx context.Context, note *model.SessionNote) error
		Get(ctx context.Context, id uuid.UUID) (*model.SessionNote, error)
		List(ctx context.Context, filter *model.SessionNoteFilter) ([]*model.SessionNote, error)
		Update(ctx context.Context, note *model.SessionNote) error
		Delete(ctx context.Context, id uuid.UUID) error
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		// GetPendingEventsWithLock claims due events; call it inside WithinTx.
		GetPendingEventsWithLock(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
		MarkProcessed(ctx context.Context, id uuid.UUID) error
		MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, retryAt *time.Time) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}

	// Pinger reports store reachability for readiness checks.
	Pinger interface {
		Ping(ctx context.Context) error
	}
)
