package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/therapyassist/therapy-api/internal/model"
	"github.com/therapyassist/therapy-api/internal/repository"
)

// schedulingLockNamespace is the first key of the two-key advisory lock taken per date.
const schedulingLockNamespace = 0x7468

const appointmentColumns = `id, patient_id, date, start_time, end_time, price, is_paid, session_note_id, created_at, updated_at`

type appointmentRepository struct {
	*BaseRepository
}

func NewAppointmentRepository(base *BaseRepository) repository.AppointmentRepository {
	return &appointmentRepository{BaseRepository: base}
}

func (r *appointmentRepository) Create(ctx context.Context, appointment *model.Appointment) error {
	query := `
		INSERT INTO appointments (
			id, patient_id, date, start_time, end_time, price, is_paid, session_note_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	now := time.Now().UTC()
	appointment.CreatedAt, appointment.UpdatedAt = now, now

	_, err := r.conn(ctx).ExecContext(ctx, query,
		appointment.ID,
		appointment.PatientID,
		appointment.Date,
		appointment.StartTime,
		appointment.EndTime,
		appointment.Price,
		appointment.IsPaid,
		appointment.SessionNoteID,
		appointment.CreatedAt,
		appointment.UpdatedAt,
	)
	return wrapErr("create appointment", err)
}

func (r *appointmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`
	var appointment model.Appointment
	if err := r.conn(ctx).GetContext(ctx, &appointment, query, id); err != nil {
		return nil, wrapErr("get appointment", err)
	}
	return &appointment, nil
}

func (r *appointmentRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1 FOR UPDATE`
	var appointment model.Appointment
	if err := r.conn(ctx).GetContext(ctx, &appointment, query, id); err != nil {
		return nil, wrapErr("get appointment for update", err)
	}
	return &appointment, nil
}

func (r *appointmentRepository) List(ctx context.Context, filter *model.AppointmentFilter) ([]*model.Appointment, error) {
	page := filter.Pagination.Normalize()
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE ($1::uuid IS NULL OR patient_id = $1)
		  AND ($2::date IS NULL OR date >= $2)
		  AND ($3::date IS NULL OR date <= $3)
		  AND ($4::boolean IS NULL OR is_paid = $4)
		ORDER BY date, start_time, id
		OFFSET $5 LIMIT $6
	`
	appointments := []*model.Appointment{}
	err := r.conn(ctx).SelectContext(ctx, &appointments, query,
		filter.PatientID, filter.DateFrom, filter.DateTo, filter.IsPaid, page.Skip, page.Limit)
	if err != nil {
		return nil, wrapErr("list appointments", err)
	}
	return appointments, nil
}

func (r *appointmentRepository) FindByDate(ctx context.Context, date model.Date) ([]*model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE date = $1 ORDER BY start_time`
	appointments := []*model.Appointment{}
	if err := r.conn(ctx).SelectContext(ctx, &appointments, query, date); err != nil {
		return nil, wrapErr("find appointments by date", err)
	}
	return appointments, nil
}

func (r *appointmentRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE patient_id = $1 ORDER BY date, start_time`
	appointments := []*model.Appointment{}
	if err := r.conn(ctx).SelectContext(ctx, &appointments, query, patientID); err != nil {
		return nil, wrapErr("list appointments by patient", err)
	}
	return appointments, nil
}

func (r *appointmentRepository) FindByIDsForPatient(ctx context.Context, ids []uuid.UUID, patientID uuid.UUID) ([]*model.Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE id = ANY($1::uuid[]) AND patient_id = $2
		ORDER BY date, start_time
		FOR UPDATE
	`
	appointments := []*model.Appointment{}
	if err := r.conn(ctx).SelectContext(ctx, &appointments, query, uuidArray(ids), patientID); err != nil {
		return nil, wrapErr("find appointments by ids", err)
	}
	return appointments, nil
}

func (r *appointmentRepository) ListUnpaidIDs(ctx context.Context, patientID uuid.UUID) ([]uuid.UUID, error) {
	query := `
		SELECT id FROM appointments
		WHERE patient_id = $1 AND is_paid = false
		ORDER BY date, start_time, id
	`
	ids := []uuid.UUID{}
	if err := r.conn(ctx).SelectContext(ctx, &ids, query, patientID); err != nil {
		return nil, wrapErr("list unpaid appointments", err)
	}
	return ids, nil
}

// Update writes every field except is_paid, which only the payment links control.
func (r *appointmentRepository) Update(ctx context.Context, appointment *model.Appointment) error {
	query := `
		UPDATE appointments
		SET patient_id = $1, date = $2, start_time = $3, end_time = $4,
		    price = $5, session_note_id = $6, updated_at = $7
		WHERE id = $8
		RETURNING is_paid, created_at, updated_at
	`
	row := r.conn(ctx).QueryRowxContext(ctx, query,
		appointment.PatientID,
		appointment.Date,
		appointment.StartTime,
		appointment.EndTime,
		appointment.Price,
		appointment.SessionNoteID,
		time.Now().UTC(),
		appointment.ID,
	)
	err := row.Scan(&appointment.IsPaid, &appointment.CreatedAt, &appointment.UpdatedAt)
	return wrapErr("update appointment", err)
}

func (r *appointmentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	q := r.conn(ctx)
	if _, err := q.ExecContext(ctx, `DELETE FROM payment_appointments WHERE appointment_id = $1`, id); err != nil {
		return wrapErr("unlink appointment", err)
	}
	res, err := q.ExecContext(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return wrapErr("delete appointment", err)
	}
	return requireAffected("delete appointment", res)
}

// LockDate takes a transaction-scoped advisory lock keyed by the date, so the
// overlap check and the following write run one at a time per date.
func (r *appointmentRepository) LockDate(ctx context.Context, date model.Date) error {
	_, err := r.conn(ctx).ExecContext(ctx,
		`SELECT pg_advisory_xact_lock($1::int, $2::int)`,
		schedulingLockNamespace, date.DaysSinceEpoch())
	return wrapErr("lock schedule date", err)
}
