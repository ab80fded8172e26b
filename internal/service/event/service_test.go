package event

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/therapyassist/therapy-api/internal/model"
	"github.com/therapyassist/therapy-api/internal/repository/memory"
)

func TestEmitStoresPendingEvent(t *testing.T) {
	store := memory.NewStore()
	outbox := memory.NewOutboxRepository(store)
	svc := NewService(outbox)
	ctx := context.Background()

	paymentID := uuid.New()
	require.NoError(t, svc.Emit(ctx, model.EventPaymentDeleted, map[string]string{"payment_id": paymentID.String()}))

	events, err := outbox.GetPendingEventsWithLock(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventPaymentDeleted, events[0].EventType)
	assert.Equal(t, model.OutboxStatusPending, events[0].Status)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(events[0].Payload, &payload))
	assert.Equal(t, paymentID.String(), payload["payment_id"])
}

func TestEmitRollsBackWithTransaction(t *testing.T) {
	store := memory.NewStore()
	outbox := memory.NewOutboxRepository(store)
	svc := NewService(outbox)
	ctx := context.Background()

	err := store.WithinTx(ctx, func(ctx context.Context) error {
		require.NoError(t, svc.Emit(ctx, model.EventAppointmentCreated, map[string]string{}))
		return errors.New("write failed")
	})
	require.Error(t, err)

	events, err := outbox.GetPendingEventsWithLock(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}
