package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/therapyassist/therapy-api/internal/model"
	"github.com/therapyassist/therapy-api/internal/repository"
)

type patientRepository struct {
	*BaseRepository
}

func NewPatientRepository(base *BaseRepository) repository.PatientRepository {
	return &patientRepository{BaseRepository: base}
}

const patientColumns = `id, name, phone, email, notes, created_at, updated_at`

func (r *patientRepository) Create(ctx context.Context, patient *model.Patient) error {
	query := `
		INSERT INTO patients (id, name, phone, email, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	now := time.Now().UTC()
	patient.CreatedAt, patient.UpdatedAt = now, now

	_, err := r.conn(ctx).ExecContext(ctx, query,
		patient.ID,
		patient.Name,
		patient.Phone,
		patient.Email,
		patient.Notes,
		patient.CreatedAt,
		patient.UpdatedAt,
	)
	return wrapErr("create patient", err)
}

func (r *patientRepository) Get(ctx context.Context, id uuid.UUID) (*model.Patient, error) {
	query := `SELECT ` + patientColumns + ` FROM patients WHERE id = $1`
	var patient model.Patient
	if err := r.conn(ctx).GetContext(ctx, &patient, query, id); err != nil {
		return nil, wrapErr("get patient", err)
	}
	return &patient, nil
}

func (r *patientRepository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM patients WHERE id = $1)`, id)
	if err != nil {
		return false, wrapErr("check patient", err)
	}
	return exists, nil
}

func (r *patientRepository) List(ctx context.Context, filter *model.PatientFilter) ([]*model.Patient, error) {
	page := filter.Pagination.Normalize()
	query := `
		SELECT ` + patientColumns + `
		FROM patients
		WHERE ($1 = '' OR name ILIKE '%' || $1 || '%')
		ORDER BY name, created_at
		OFFSET $2 LIMIT $3
	`
	patients := []*model.Patient{}
	if err := r.conn(ctx).SelectContext(ctx, &patients, query, filter.Search, page.Skip, page.Limit); err != nil {
		return nil, wrapErr("list patients", err)
	}
	return patients, nil
}

func (r *patientRepository) Update(ctx context.Context, patient *model.Patient) error {
	query := `
		UPDATE patients
		SET name = $1, phone = $2, email = $3, notes = $4, updated_at = $5
		WHERE id = $6
		RETURNING created_at, updated_at
	`
	row := r.conn(ctx).QueryRowxContext(ctx, query,
		patient.Name, patient.Phone, patient.Email, patient.Notes, time.Now().UTC(), patient.ID)
	return wrapErr("update patient", row.Scan(&patient.CreatedAt, &patient.UpdatedAt))
}

// Delete cascades through the patient's payments, appointments and notes. Run it inside WithinTx.
func (r *patientRepository) Delete(ctx context.Context, id uuid.UUID) error {
	q := r.conn(ctx)
	statements := []struct {
		op    string
		query string
	}{
		{"unlink patient payments", `DELETE FROM payment_appointments WHERE payment_id IN (SELECT id FROM payments WHERE patient_id = $1)`},
		{"delete patient payments", `DELETE FROM payments WHERE patient_id = $1`},
		{"delete patient appointments", `DELETE FROM appointments WHERE patient_id = $1`},
		{"delete patient session notes", `DELETE FROM session_notes WHERE patient_id = $1`},
	}
	for _, s := range statements {
		if _, err := q.ExecContext(ctx, s.query, id); err != nil {
			return wrapErr(s.op, err)
		}
	}

	res, err := q.ExecContext(ctx, `DELETE FROM patients WHERE id = $1`, id)
	if err != nil {
		return wrapErr("delete patient", err)
	}
	return requireAffected("delete patient", res)
}
