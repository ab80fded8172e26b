package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/therapyassist/therapy-api/internal/model"
	"github.com/therapyassist/therapy-api/internal/repository"
)

type sessionNoteRepository struct {
	store *Store
}

func NewSessionNoteRepository(store *Store) repository.SessionNoteRepository {
	return &sessionNoteRepository{store: store}
}

func (r *sessionNoteRepository) Create(ctx context.Context, note *model.SessionNote) error {
	defer r.store.lock(ctx)()

	now := r.store.now()
	note.CreatedAt, note.UpdatedAt = now, now
	r.store.state.notes[note.ID] = *note
	return nil
}

func (r *sessionNoteRepository) Get(ctx context.Context, id uuid.UUID) (*model.SessionNote, error) {
	defer r.store.lock(ctx)()

	n, ok := r.store.state.notes[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &n, nil
}

func (r *sessionNoteRepository) List(ctx context.Context, filter *model.SessionNoteFilter) ([]*model.SessionNote, error) {
	defer r.store.lock(ctx)()

	var notes []*model.SessionNote
	for _, n := range r.store.state.notes {
		n := n
		if filter.PatientID != nil && n.PatientID != *filter.PatientID {
			continue
		}
		notes = append(notes, &n)
	}
	sort.Slice(notes, func(i, j int) bool {
		return notes[i].CreatedAt.After(notes[j].CreatedAt)
	})
	return paginate(notes, filter.Pagination), nil
}

func (r *sessionNoteRepository) Update(ctx context.Context, note *model.SessionNote) error {
	defer r.store.lock(ctx)()

	existing, ok := r.store.state.notes[note.ID]
	if !ok {
		return repository.ErrNotFound
	}
	note.CreatedAt = existing.CreatedAt
	note.UpdatedAt = r.store.now()
	r.store.state.notes[note.ID] = *note
	return nil
}

func (r *sessionNoteRepository) Delete(ctx context.Context, id uuid.UUID) error {
	defer r.store.lock(ctx)()

	st := r.store.state
	if _, ok := st.notes[id]; !ok {
		return repository.ErrNotFound
	}
	for aid, a := range st.appointments {
		if a.SessionNoteID != nil && *a.SessionNoteID == id {
			a.SessionNoteID = nil
			st.appointments[aid] = a
		}
	}
	delete(st.notes, id)
	return nil
}
