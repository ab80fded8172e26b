package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/therapyassist/therapy-api/internal/model"
	"github.com/therapyassist/therapy-api/internal/repository"
)

type paymentRepository struct {
	store *Store
}

func NewPaymentRepository(store *Store) repository.PaymentRepository {
	return &paymentRepository{store: store}
}

func (r *paymentRepository) Create(ctx context.Context, payment *model.Payment) error {
	defer r.store.lock(ctx)()

	now := r.store.now()
	payment.CreatedAt, payment.UpdatedAt = now, now
	stored := *payment
	stored.Patient, stored.Appointments = nil, nil
	r.store.state.payments[payment.ID] = stored
	return nil
}

func (r *paymentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Payment, error) {
	defer r.store.lock(ctx)()

	p, ok := r.store.state.payments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	r.attachPatient(&p)
	return &p, nil
}

func (r *paymentRepository) GetWithAppointments(ctx context.Context, id uuid.UUID) (*model.Payment, error) {
	defer r.store.lock(ctx)()

	st := r.store.state
	p, ok := st.payments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	r.attachPatient(&p)
	p.Appointments = []*model.Appointment{}
	for aid := range st.links[id] {
		if a, ok := st.appointments[aid]; ok {
			a := a
			p.Appointments = append(p.Appointments, &a)
		}
	}
	sortAppointments(p.Appointments)
	return &p, nil
}

func (r *paymentRepository) List(ctx context.Context, filter *model.PaymentFilter) ([]*model.Payment, int, error) {
	defer r.store.lock(ctx)()

	var result []*model.Payment
	for _, p := range r.store.state.payments {
		p := p
		if !matchesPaymentFilter(&p, filter) {
			continue
		}
		r.attachPatient(&p)
		result = append(result, &p)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].PaymentDate.Equal(result[j].PaymentDate) {
			return result[i].PaymentDate.After(result[j].PaymentDate)
		}
		return result[i].ID.String() < result[j].ID.String()
	})

	return paginate(result, filter.Pagination), len(result), nil
}

func (r *paymentRepository) Filter(ctx context.Context, filter *model.PaymentFilter) ([]*model.Payment, error) {
	defer r.store.lock(ctx)()

	var result []*model.Payment
	for _, p := range r.store.state.payments {
		p := p
		if matchesPaymentFilter(&p, filter) {
			result = append(result, &p)
		}
	}
	return result, nil
}

func matchesPaymentFilter(p *model.Payment, filter *model.PaymentFilter) bool {
	if filter.PatientID != nil && p.PatientID != *filter.PatientID {
		return false
	}
	if filter.Method != nil && p.Method != *filter.Method {
		return false
	}
	if filter.DateFrom != nil && p.PaymentDate.Before(filter.DateFrom.Midnight(time.UTC)) {
		return false
	}
	if filter.DateTo != nil && !p.PaymentDate.Before(filter.DateTo.AddDays(1).Midnight(time.UTC)) {
		return false
	}
	return true
}

func (r *paymentRepository) Update(ctx context.Context, payment *model.Payment) error {
	defer r.store.lock(ctx)()

	existing, ok := r.store.state.payments[payment.ID]
	if !ok {
		return repository.ErrNotFound
	}
	existing.Amount = payment.Amount
	existing.Method = payment.Method
	existing.Description = payment.Description
	existing.PaymentDate = payment.PaymentDate
	existing.UpdatedAt = r.store.now()
	r.store.state.payments[payment.ID] = existing

	payment.CreatedAt, payment.UpdatedAt = existing.CreatedAt, existing.UpdatedAt
	return nil
}

func (r *paymentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	defer r.store.lock(ctx)()

	st := r.store.state
	if _, ok := st.payments[id]; !ok {
		return repository.ErrNotFound
	}
	delete(st.links, id)
	delete(st.payments, id)
	return nil
}

func (r *paymentRepository) LinkAppointments(ctx context.Context, paymentID uuid.UUID, ids []uuid.UUID) error {
	defer r.store.lock(ctx)()

	st := r.store.state
	if _, ok := st.payments[paymentID]; !ok {
		return repository.ErrNotFound
	}
	set, ok := st.links[paymentID]
	if !ok {
		set = make(map[uuid.UUID]struct{}, len(ids))
		st.links[paymentID] = set
	}
	for _, id := range ids {
		a, ok := st.appointments[id]
		if !ok {
			return repository.ErrNotFound
		}
		set[id] = struct{}{}
		a.IsPaid = true
		st.appointments[id] = a
	}
	return nil
}

func (r *paymentRepository) UnlinkAppointments(ctx context.Context, paymentID uuid.UUID) ([]uuid.UUID, error) {
	defer r.store.lock(ctx)()

	st := r.store.state
	set := st.links[paymentID]
	delete(st.links, paymentID)

	ids := make([]uuid.UUID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
		if a, ok := st.appointments[id]; ok {
			a.IsPaid = st.isPaid(id)
			st.appointments[id] = a
		}
	}
	return ids, nil
}

// attachPatient fills the contact summary. Callers hold the lock.
func (r *paymentRepository) attachPatient(p *model.Payment) {
	if patient, ok := r.store.state.patients[p.PatientID]; ok {
		p.Patient = patient.Summary()
	}
}
