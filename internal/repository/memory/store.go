// Package memory is an in-process implementation of the repository interfaces.
// A single mutex is the transaction boundary: WithinTx holds it for the whole
// unit of work and restores a snapshot when the work fails.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/therapyassist/therapy-api/internal/model"
	"github.com/therapyassist/therapy-api/internal/repository"
)

type txKey struct{}

type Store struct {
	mu    sync.Mutex
	state *state
	now   func() time.Time
}

type state struct {
	patients     map[uuid.UUID]model.Patient
	appointments map[uuid.UUID]model.Appointment
	payments     map[uuid.UUID]model.Payment
	links        map[uuid.UUID]map[uuid.UUID]struct{}
	notes        map[uuid.UUID]model.SessionNote
	outbox       map[uuid.UUID]model.OutboxEvent
}

func newState() *state {
	return &state{
		patients:     make(map[uuid.UUID]model.Patient),
		appointments: make(map[uuid.UUID]model.Appointment),
		payments:     make(map[uuid.UUID]model.Payment),
		links:        make(map[uuid.UUID]map[uuid.UUID]struct{}),
		notes:        make(map[uuid.UUID]model.SessionNote),
		outbox:       make(map[uuid.UUID]model.OutboxEvent),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.patients {
		c.patients[k] = v
	}
	for k, v := range s.appointments {
		c.appointments[k] = v
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	for k, set := range s.links {
		cp := make(map[uuid.UUID]struct{}, len(set))
		for id := range set {
			cp[id] = struct{}{}
		}
		c.links[k] = cp
	}
	for k, v := range s.notes {
		c.notes[k] = v
	}
	for k, v := range s.outbox {
		c.outbox[k] = v
	}
	return c
}

func NewStore() *Store {
	return &Store{
		state: newState(),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// lock acquires the store unless ctx already runs inside one of its transactions.
func (s *Store) lock(ctx context.Context) func() {
	if ctx.Value(txKey{}) == s {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if ctx.Value(txKey{}) == s {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state.clone()
	defer func() {
		if p := recover(); p != nil {
			s.state = snapshot
			panic(p)
		}
		if err != nil {
			s.state = snapshot
		}
	}()

	return fn(context.WithValue(ctx, txKey{}, s))
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// isPaid derives the flag from the link table.
func (s *state) isPaid(appointmentID uuid.UUID) bool {
	for _, set := range s.links {
		if _, ok := set[appointmentID]; ok {
			return true
		}
	}
	return false
}

var (
	_ repository.Transactor = (*Store)(nil)
	_ repository.Pinger     = (*Store)(nil)
)
