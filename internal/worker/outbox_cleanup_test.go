package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/therapyassist/therapy-api/internal/model"
	"github.com/therapyassist/therapy-api/internal/repository/memory"
	"github.com/therapyassist/therapy-api/pkg/logger"
	"github.com/therapyassist/therapy-api/pkg/metrics"
)

func TestCleanupRemovesOnlyProcessedEvents(t *testing.T) {
	store := memory.NewStore()
	repo := memory.NewOutboxRepository(store)
	ctx := context.Background()

	processed, pending := uuid.New(), uuid.New()
	for _, id := range []uuid.UUID{processed, pending} {
		require.NoError(t, repo.Create(ctx, &model.OutboxEvent{ID: id, EventType: model.EventPaymentCreated, Payload: json.RawMessage(`{}`)}))
	}
	require.NoError(t, repo.MarkProcessed(ctx, processed))

	// Zero retention makes every processed event eligible.
	w := NewOutboxCleanupWorker(repo, 0, time.Hour, logger.Nop(), metrics.NewNop())
	time.Sleep(time.Millisecond)

	n, err := w.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	remaining, err := repo.GetPendingEventsWithLock(ctx, 10)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, pending, remaining[0].ID)
}
