package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/therapyassist/therapy-api/internal/model"
	"github.com/therapyassist/therapy-api/internal/repository"
)

type patientRepository struct {
	store *Store
}

func NewPatientRepository(store *Store) repository.PatientRepository {
	return &patientRepository{store: store}
}

func (r *patientRepository) Create(ctx context.Context, patient *model.Patient) error {
	defer r.store.lock(ctx)()

	now := r.store.now()
	patient.CreatedAt, patient.UpdatedAt = now, now
	r.store.state.patients[patient.ID] = *patient
	return nil
}

func (r *patientRepository) Get(ctx context.Context, id uuid.UUID) (*model.Patient, error) {
	defer r.store.lock(ctx)()

	p, ok := r.store.state.patients[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (r *patientRepository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	defer r.store.lock(ctx)()

	_, ok := r.store.state.patients[id]
	return ok, nil
}

func (r *patientRepository) List(ctx context.Context, filter *model.PatientFilter) ([]*model.Patient, error) {
	defer r.store.lock(ctx)()

	search := strings.ToLower(filter.Search)
	var patients []*model.Patient
	for _, p := range r.store.state.patients {
		if search != "" && !strings.Contains(strings.ToLower(p.Name), search) {
			continue
		}
		p := p
		patients = append(patients, &p)
	}
	sort.Slice(patients, func(i, j int) bool {
		if patients[i].Name != patients[j].Name {
			return patients[i].Name < patients[j].Name
		}
		return patients[i].CreatedAt.Before(patients[j].CreatedAt)
	})
	return paginate(patients, filter.Pagination), nil
}

func (r *patientRepository) Update(ctx context.Context, patient *model.Patient) error {
	defer r.store.lock(ctx)()

	existing, ok := r.store.state.patients[patient.ID]
	if !ok {
		return repository.ErrNotFound
	}
	patient.CreatedAt = existing.CreatedAt
	patient.UpdatedAt = r.store.now()
	r.store.state.patients[patient.ID] = *patient
	return nil
}

func (r *patientRepository) Delete(ctx context.Context, id uuid.UUID) error {
	defer r.store.lock(ctx)()

	st := r.store.state
	if _, ok := st.patients[id]; !ok {
		return repository.ErrNotFound
	}
	for pid, p := range st.payments {
		if p.PatientID == id {
			delete(st.links, pid)
			delete(st.payments, pid)
		}
	}
	for aid, a := range st.appointments {
		if a.PatientID == id {
			delete(st.appointments, aid)
		}
	}
	for nid, n := range st.notes {
		if n.PatientID == id {
			delete(st.notes, nid)
		}
	}
	delete(st.patients, id)
	return nil
}

func paginate[T any](items []T, p model.Pagination) []T {
	p = p.Normalize()
	if p.Skip >= len(items) {
		return []T{}
	}
	end := p.Skip + p.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[p.Skip:end]
}
