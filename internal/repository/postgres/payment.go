package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/therapyassist/therapy-api/internal/model"
	"github.com/therapyassist/therapy-api/internal/repository"
)

const paymentColumns = `p.id, p.patient_id, p.amount, p.payment_date, p.payment_method, p.description, p.created_at, p.updated_at`

// paymentFilterClause binds $1..$4 to patient, date window and method. The
// window is [date_from 00:00, date_to + 1 day 00:00).
const paymentFilterClause = `
	WHERE ($1::uuid IS NULL OR p.patient_id = $1)
	  AND ($2::date IS NULL OR p.payment_date >= $2::date)
	  AND ($3::date IS NULL OR p.payment_date < $3::date + 1)
	  AND ($4::text IS NULL OR p.payment_method = $4)
`

type paymentRepository struct {
	*BaseRepository
}

func NewPaymentRepository(base *BaseRepository) repository.PaymentRepository {
	return &paymentRepository{BaseRepository: base}
}

type paymentRow struct {
	model.Payment
	PatientName  sql.NullString `db:"patient_name"`
	PatientEmail *string        `db:"patient_email"`
	PatientPhone *string        `db:"patient_phone"`
}

func (row *paymentRow) toModel() *model.Payment {
	p := row.Payment
	if row.PatientName.Valid {
		p.Patient = &model.PatientSummary{
			ID:    p.PatientID,
			Name:  row.PatientName.String,
			Email: row.PatientEmail,
			Phone: row.PatientPhone,
		}
	}
	return &p
}

func filterArgs(filter *model.PaymentFilter) []interface{} {
	var method *string
	if filter.Method != nil {
		m := string(*filter.Method)
		method = &m
	}
	return []interface{}{filter.PatientID, filter.DateFrom, filter.DateTo, method}
}

func (r *paymentRepository) Create(ctx context.Context, payment *model.Payment) error {
	query := `
		INSERT INTO payments (
			id, patient_id, amount, payment_date, payment_method, description, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	now := time.Now().UTC()
	payment.CreatedAt, payment.UpdatedAt = now, now

	_, err := r.conn(ctx).ExecContext(ctx, query,
		payment.ID,
		payment.PatientID,
		payment.Amount,
		payment.PaymentDate,
		string(payment.Method),
		payment.Description,
		payment.CreatedAt,
		payment.UpdatedAt,
	)
	return wrapErr("create payment", err)
}

func (r *paymentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `,
		       pt.name AS patient_name, pt.email AS patient_email, pt.phone AS patient_phone
		FROM payments p
		LEFT JOIN patients pt ON pt.id = p.patient_id
		WHERE p.id = $1
	`
	var row paymentRow
	if err := r.conn(ctx).GetContext(ctx, &row, query, id); err != nil {
		return nil, wrapErr("get payment", err)
	}
	return row.toModel(), nil
}

func (r *paymentRepository) GetWithAppointments(ctx context.Context, id uuid.UUID) (*model.Payment, error) {
	payment, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT ` + prefixed("a", appointmentColumns) + `
		FROM appointments a
		JOIN payment_appointments pa ON pa.appointment_id = a.id
		WHERE pa.payment_id = $1
		ORDER BY a.date, a.start_time
	`
	payment.Appointments = []*model.Appointment{}
	if err := r.conn(ctx).SelectContext(ctx, &payment.Appointments, query, id); err != nil {
		return nil, wrapErr("load payment appointments", err)
	}
	return payment, nil
}

func (r *paymentRepository) List(ctx context.Context, filter *model.PaymentFilter) ([]*model.Payment, int, error) {
	q := r.conn(ctx)
	args := filterArgs(filter)

	var total int
	if err := q.GetContext(ctx, &total, `SELECT COUNT(*) FROM payments p`+paymentFilterClause, args...); err != nil {
		return nil, 0, wrapErr("count payments", err)
	}

	page := filter.Pagination.Normalize()
	query := `
		SELECT ` + paymentColumns + `,
		       pt.name AS patient_name, pt.email AS patient_email, pt.phone AS patient_phone
		FROM payments p
		LEFT JOIN patients pt ON pt.id = p.patient_id
	` + paymentFilterClause + `
		ORDER BY p.payment_date DESC, p.id
		OFFSET $5 LIMIT $6
	`
	var rows []paymentRow
	if err := q.SelectContext(ctx, &rows, query, append(args, page.Skip, page.Limit)...); err != nil {
		return nil, 0, wrapErr("list payments", err)
	}

	payments := make([]*model.Payment, 0, len(rows))
	for i := range rows {
		payments = append(payments, rows[i].toModel())
	}
	return payments, total, nil
}

func (r *paymentRepository) Filter(ctx context.Context, filter *model.PaymentFilter) ([]*model.Payment, error) {
	payments := []*model.Payment{}
	query := `SELECT ` + paymentColumns + ` FROM payments p` + paymentFilterClause
	if err := r.conn(ctx).SelectContext(ctx, &payments, query, filterArgs(filter)...); err != nil {
		return nil, wrapErr("filter payments", err)
	}
	return payments, nil
}

func (r *paymentRepository) Update(ctx context.Context, payment *model.Payment) error {
	query := `
		UPDATE payments
		SET amount = $1, payment_method = $2, description = $3, payment_date = $4, updated_at = $5
		WHERE id = $6
		RETURNING created_at, updated_at
	`
	row := r.conn(ctx).QueryRowxContext(ctx, query,
		payment.Amount,
		string(payment.Method),
		payment.Description,
		payment.PaymentDate,
		time.Now().UTC(),
		payment.ID,
	)
	return wrapErr("update payment", row.Scan(&payment.CreatedAt, &payment.UpdatedAt))
}

func (r *paymentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	q := r.conn(ctx)
	if _, err := q.ExecContext(ctx, `DELETE FROM payment_appointments WHERE payment_id = $1`, id); err != nil {
		return wrapErr("unlink payment", err)
	}
	res, err := q.ExecContext(ctx, `DELETE FROM payments WHERE id = $1`, id)
	if err != nil {
		return wrapErr("delete payment", err)
	}
	return requireAffected("delete payment", res)
}

// LinkAppointments inserts the join rows and sets is_paid in the same unit of work.
func (r *paymentRepository) LinkAppointments(ctx context.Context, paymentID uuid.UUID, ids []uuid.UUID) error {
	q := r.conn(ctx)
	link := `
		INSERT INTO payment_appointments (payment_id, appointment_id)
		SELECT $1, unnest($2::uuid[])
	`
	if _, err := q.ExecContext(ctx, link, paymentID, uuidArray(ids)); err != nil {
		return wrapErr("link payment appointments", err)
	}

	res, err := q.ExecContext(ctx,
		`UPDATE appointments SET is_paid = true, updated_at = $2 WHERE id = ANY($1::uuid[])`,
		uuidArray(ids), time.Now().UTC())
	if err != nil {
		return wrapErr("mark appointments paid", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapErr("mark appointments paid", err)
	}
	if int(n) != len(ids) {
		return repository.ErrNotFound
	}
	return nil
}

// UnlinkAppointments removes the join rows, then derives is_paid from whatever links survive.
func (r *paymentRepository) UnlinkAppointments(ctx context.Context, paymentID uuid.UUID) ([]uuid.UUID, error) {
	q := r.conn(ctx)

	ids := []uuid.UUID{}
	err := q.SelectContext(ctx, &ids,
		`DELETE FROM payment_appointments WHERE payment_id = $1 RETURNING appointment_id`, paymentID)
	if err != nil {
		return nil, wrapErr("unlink payment appointments", err)
	}
	if len(ids) == 0 {
		return ids, nil
	}

	sync := `
		UPDATE appointments a
		SET is_paid = EXISTS (SELECT 1 FROM payment_appointments pa WHERE pa.appointment_id = a.id),
		    updated_at = $2
		WHERE a.id = ANY($1::uuid[])
	`
	if _, err := q.ExecContext(ctx, sync, uuidArray(ids), time.Now().UTC()); err != nil {
		return nil, wrapErr("sync appointment paid flags", err)
	}
	return ids, nil
}
