package notification

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/therapyassist/therapy-api/internal/email"
	"github.com/therapyassist/therapy-api/internal/model"
	"github.com/therapyassist/therapy-api/internal/receipt"
	"github.com/therapyassist/therapy-api/internal/repository"
	"github.com/therapyassist/therapy-api/internal/repository/memory"
	"github.com/therapyassist/therapy-api/pkg/logger"
	"github.com/therapyassist/therapy-api/pkg/metrics"
)

type outbox struct {
	sent []*email.Message
}

func (o *outbox) Send(_ context.Context, msg *email.Message) error {
	o.sent = append(o.sent, msg)
	return nil
}

func seedPayment(t *testing.T, store *memory.Store, patientEmail *string) (repository.PaymentRepository, *model.Payment) {
	t.Helper()
	ctx := context.Background()
	patientID := uuid.New()
	require.NoError(t, memory.NewPatientRepository(store).Create(ctx, &model.Patient{
		Base:  model.Base{ID: patientID},
		Name:  "Ada",
		Email: patientEmail,
	}))

	payments := memory.NewPaymentRepository(store)
	p := &model.Payment{
		Base:        model.Base{ID: uuid.New()},
		PatientID:   patientID,
		Amount:      decimal.RequireFromString("150.00"),
		PaymentDate: time.Now().UTC(),
		Method:      model.PaymentMethodCash,
	}
	require.NoError(t, payments.Create(ctx, p))
	return payments, p
}

func eventPayload(t *testing.T, p *model.Payment) []byte {
	t.Helper()
	raw, err := json.Marshal(model.NewPaymentEvent(p, nil))
	require.NoError(t, err)
	return raw
}

func TestHandleSendsReceipt(t *testing.T) {
	store := memory.NewStore()
	addr := "ada@example.com"
	payments, p := seedPayment(t, store, &addr)
	mail := &outbox{}
	n := NewReceiptNotifier(payments, receipt.NewRenderer("Quiet Room"), mail, "Quiet Room", logger.Nop(), metrics.NewNop())

	require.NoError(t, n.Handle(context.Background(), eventPayload(t, p)))
	require.Len(t, mail.sent, 1)
	assert.Equal(t, addr, mail.sent[0].To)
	assert.Contains(t, mail.sent[0].Body, "150.00")
	require.Len(t, mail.sent[0].Attachments, 1)
	assert.Equal(t, receipt.Filename(p), mail.sent[0].Attachments[0].Name)
}

func TestHandleSkipsWithoutEmailOrPayment(t *testing.T) {
	store := memory.NewStore()
	payments, p := seedPayment(t, store, nil)
	mail := &outbox{}
	n := NewReceiptNotifier(payments, receipt.NewRenderer("Quiet Room"), mail, "Quiet Room", logger.Nop(), metrics.NewNop())
	ctx := context.Background()

	require.NoError(t, n.Handle(ctx, eventPayload(t, p)))

	missing := &model.Payment{Base: model.Base{ID: uuid.New()}}
	require.NoError(t, n.Handle(ctx, eventPayload(t, missing)))
	assert.Empty(t, mail.sent)

	assert.Error(t, n.Handle(ctx, []byte("not json")))
}
