package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/therapyassist/therapy-api/internal/model"
	"github.com/therapyassist/therapy-api/internal/repository"
)

type appointmentRepository struct {
	store *Store
}

func NewAppointmentRepository(store *Store) repository.AppointmentRepository {
	return &appointmentRepository{store: store}
}

func (r *appointmentRepository) Create(ctx context.Context, appointment *model.Appointment) error {
	defer r.store.lock(ctx)()

	now := r.store.now()
	appointment.CreatedAt, appointment.UpdatedAt = now, now
	r.store.state.appointments[appointment.ID] = *appointment
	return nil
}

func (r *appointmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	defer r.store.lock(ctx)()

	a, ok := r.store.state.appointments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &a, nil
}

// GetForUpdate is Get: the store lock already serializes transactions.
func (r *appointmentRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	return r.Get(ctx, id)
}

func (r *appointmentRepository) List(ctx context.Context, filter *model.AppointmentFilter) ([]*model.Appointment, error) {
	defer r.store.lock(ctx)()

	result := r.selectWhere(func(a *model.Appointment) bool {
		if filter.PatientID != nil && a.PatientID != *filter.PatientID {
			return false
		}
		if filter.DateFrom != nil && a.Date.Before(*filter.DateFrom) {
			return false
		}
		if filter.DateTo != nil && a.Date.After(*filter.DateTo) {
			return false
		}
		if filter.IsPaid != nil && a.IsPaid != *filter.IsPaid {
			return false
		}
		return true
	})
	return paginate(result, filter.Pagination), nil
}

func (r *appointmentRepository) FindByDate(ctx context.Context, date model.Date) ([]*model.Appointment, error) {
	defer r.store.lock(ctx)()

	return r.selectWhere(func(a *model.Appointment) bool { return a.Date == date }), nil
}

func (r *appointmentRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.Appointment, error) {
	defer r.store.lock(ctx)()

	return r.selectWhere(func(a *model.Appointment) bool { return a.PatientID == patientID }), nil
}

func (r *appointmentRepository) FindByIDsForPatient(ctx context.Context, ids []uuid.UUID, patientID uuid.UUID) ([]*model.Appointment, error) {
	defer r.store.lock(ctx)()

	wanted := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	return r.selectWhere(func(a *model.Appointment) bool {
		_, ok := wanted[a.ID]
		return ok && a.PatientID == patientID
	}), nil
}

func (r *appointmentRepository) ListUnpaidIDs(ctx context.Context, patientID uuid.UUID) ([]uuid.UUID, error) {
	defer r.store.lock(ctx)()

	unpaid := r.selectWhere(func(a *model.Appointment) bool {
		return a.PatientID == patientID && !a.IsPaid
	})
	ids := make([]uuid.UUID, 0, len(unpaid))
	for _, a := range unpaid {
		ids = append(ids, a.ID)
	}
	return ids, nil
}

func (r *appointmentRepository) Update(ctx context.Context, appointment *model.Appointment) error {
	defer r.store.lock(ctx)()

	existing, ok := r.store.state.appointments[appointment.ID]
	if !ok {
		return repository.ErrNotFound
	}
	appointment.CreatedAt = existing.CreatedAt
	appointment.UpdatedAt = r.store.now()
	appointment.IsPaid = existing.IsPaid
	r.store.state.appointments[appointment.ID] = *appointment
	return nil
}

func (r *appointmentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	defer r.store.lock(ctx)()

	st := r.store.state
	if _, ok := st.appointments[id]; !ok {
		return repository.ErrNotFound
	}
	for _, set := range st.links {
		delete(set, id)
	}
	delete(st.appointments, id)
	return nil
}

// LockDate is a no-op: the store mutex already serializes every transaction.
func (r *appointmentRepository) LockDate(ctx context.Context, date model.Date) error {
	return nil
}

// selectWhere returns copies ordered by (date, start_time). Callers hold the lock.
func (r *appointmentRepository) selectWhere(keep func(*model.Appointment) bool) []*model.Appointment {
	var result []*model.Appointment
	for _, a := range r.store.state.appointments {
		a := a
		if keep(&a) {
			result = append(result, &a)
		}
	}
	sortAppointments(result)
	return result
}

func sortAppointments(list []*model.Appointment) {
	sort.Slice(list, func(i, j int) bool {
		if c := list[i].Date.Compare(list[j].Date); c != 0 {
			return c < 0
		}
		if c := list[i].StartTime.Compare(list[j].StartTime); c != 0 {
			return c < 0
		}
		return list[i].ID.String() < list[j].ID.String()
	})
}
