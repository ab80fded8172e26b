package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/therapyassist/therapy-api/internal/model"
	"github.com/therapyassist/therapy-api/internal/repository"
)

type outboxRepository struct {
	store *Store
}

func NewOutboxRepository(store *Store) repository.OutboxRepository {
	return &outboxRepository{store: store}
}

func (r *outboxRepository) Create(ctx context.Context, event *model.OutboxEvent) error {
	defer r.store.lock(ctx)()

	now := r.store.now()
	event.CreatedAt, event.UpdatedAt = now, now
	if event.Status == "" {
		event.Status = model.OutboxStatusPending
	}
	r.store.state.outbox[event.ID] = *event
	return nil
}

func (r *outboxRepository) GetPendingEventsWithLock(ctx context.Context, limit int) ([]*model.OutboxEvent, error) {
	defer r.store.lock(ctx)()

	now := r.store.now()
	var events []*model.OutboxEvent
	for _, e := range r.store.state.outbox {
		e := e
		due := e.Status == model.OutboxStatusPending ||
			(e.Status == model.OutboxStatusFailed && e.RetryAt != nil && !e.RetryAt.After(now))
		if due {
			events = append(events, &e)
		}
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].CreatedAt.Before(events[j].CreatedAt)
	})
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

func (r *outboxRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	defer r.store.lock(ctx)()

	e, ok := r.store.state.outbox[id]
	if !ok {
		return repository.ErrNotFound
	}
	now := r.store.now()
	e.Status = model.OutboxStatusProcessed
	e.ProcessedAt = &now
	e.UpdatedAt = now
	e.ErrorMessage = nil
	e.RetryAt = nil
	r.store.state.outbox[id] = e
	return nil
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, retryAt *time.Time) error {
	defer r.store.lock(ctx)()

	e, ok := r.store.state.outbox[id]
	if !ok {
		return repository.ErrNotFound
	}
	e.Status = model.OutboxStatusFailed
	e.ErrorMessage = &errMsg
	e.RetryCount++
	e.RetryAt = retryAt
	e.UpdatedAt = r.store.now()
	r.store.state.outbox[id] = e
	return nil
}

func (r *outboxRepository) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	defer r.store.lock(ctx)()

	var n int64
	for id, e := range r.store.state.outbox {
		if e.Status == model.OutboxStatusProcessed && e.ProcessedAt != nil && e.ProcessedAt.Before(before) {
			delete(r.store.state.outbox, id)
			n++
		}
	}
	return n, nil
}
