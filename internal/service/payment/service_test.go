package payment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/therapyassist/therapy-api/internal/model"
	"github.com/therapyassist/therapy-api/internal/repository"
	"github.com/therapyassist/therapy-api/internal/repository/memory"
	"github.com/therapyassist/therapy-api/internal/service/event"
	apperrors "github.com/therapyassist/therapy-api/pkg/errors"
	"github.com/therapyassist/therapy-api/pkg/logger"
	"github.com/therapyassist/therapy-api/pkg/metrics"
)

type stubRenderer struct {
	rendered []uuid.UUID
	err      error
}

func (r *stubRenderer) Render(p *model.Payment) ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.rendered = append(r.rendered, p.ID)
	return []byte("%PDF-stub"), nil
}

type fixture struct {
	svc          *Service
	store        *memory.Store
	patients     repository.PatientRepository
	appointments repository.AppointmentRepository
	payments     repository.PaymentRepository
	outbox       repository.OutboxRepository
	renderer     *stubRenderer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, nil)
}

// newFixtureWith lets a test wrap the payment repository the service sees.
func newFixtureWith(t *testing.T, wrap func(repository.PaymentRepository) repository.PaymentRepository) *fixture {
	t.Helper()
	store := memory.NewStore()
	f := &fixture{
		store:        store,
		patients:     memory.NewPatientRepository(store),
		appointments: memory.NewAppointmentRepository(store),
		payments:     memory.NewPaymentRepository(store),
		outbox:       memory.NewOutboxRepository(store),
		renderer:     &stubRenderer{},
	}
	payments := f.payments
	if wrap != nil {
		payments = wrap(payments)
	}
	f.svc = NewService(
		store,
		payments,
		f.appointments,
		f.patients,
		event.NewService(f.outbox),
		cache.New(time.Minute, time.Minute),
		f.renderer,
		metrics.NewNop(),
		logger.Nop(),
	)
	return f
}

func (f *fixture) patient(t *testing.T) uuid.UUID {
	t.Helper()
	id := uuid.New()
	email := "patient@example.com"
	require.NoError(t, f.patients.Create(context.Background(), &model.Patient{
		Base:  model.Base{ID: id},
		Name:  "Patient " + id.String()[:4],
		Email: &email,
	}))
	return id
}

func (f *fixture) appointment(t *testing.T, patientID uuid.UUID, date, start string) uuid.UUID {
	t.Helper()
	startTime := model.MustParseClockTime(start)
	a := &model.Appointment{
		Base:      model.Base{ID: uuid.New()},
		PatientID: patientID,
		Date:      model.MustParseDate(date),
		StartTime: startTime,
		EndTime:   model.ClockTime{Hour: startTime.Hour + 1},
		Price:     decimal.RequireFromString("150.00"),
	}
	require.NoError(t, f.appointments.Create(context.Background(), a))
	return a.ID
}

func (f *fixture) isPaid(t *testing.T, id uuid.UUID) bool {
	t.Helper()
	a, err := f.appointments.Get(context.Background(), id)
	require.NoError(t, err)
	return a.IsPaid
}

func paymentRequest(patientID uuid.UUID, amount string, method model.PaymentMethod, ids ...uuid.UUID) *model.CreatePaymentRequest {
	return &model.CreatePaymentRequest{
		PatientID:      patientID,
		Amount:         decimal.RequireFromString(amount),
		Method:         method,
		AppointmentIDs: ids,
	}
}

func TestCreateMarksAppointmentsPaid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.patient(t)
	a1 := f.appointment(t, p, "2024-06-01", "10:00")
	a2 := f.appointment(t, p, "2024-06-02", "10:00")
	a3 := f.appointment(t, p, "2024-06-03", "10:00")

	payment, err := f.svc.Create(ctx, paymentRequest(p, "300.00", model.PaymentMethodCash, a1, a2))
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{a1, a2}, payment.AppointmentIDs())
	require.NotNil(t, payment.Patient)
	assert.Equal(t, p, payment.Patient.ID)
	assert.False(t, payment.PaymentDate.IsZero())

	assert.True(t, f.isPaid(t, a1))
	assert.True(t, f.isPaid(t, a2))
	assert.False(t, f.isPaid(t, a3))

	unpaid, err := f.svc.ListUnpaidAppointments(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{a3}, unpaid)

	events, err := f.outbox.GetPendingEventsWithLock(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventPaymentCreated, events[0].EventType)
}

func TestCreateRejectsAlreadyPaidAppointment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.patient(t)
	a1 := f.appointment(t, p, "2024-06-01", "10:00")
	a2 := f.appointment(t, p, "2024-06-02", "10:00")

	_, err := f.svc.Create(ctx, paymentRequest(p, "150.00", model.PaymentMethodCash, a1))
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, paymentRequest(p, "300.00", model.PaymentMethodTransfer, a1, a2))
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))
	assert.Contains(t, err.Error(), a1.String())

	// The rejected payment must not have touched a2.
	assert.False(t, f.isPaid(t, a2))

	list, err := f.svc.List(ctx, &model.PaymentFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, list.Total)
}

func TestCreateRejectsForeignAndMissingAppointments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.patient(t)
	other := f.patient(t)
	own := f.appointment(t, p, "2024-06-01", "10:00")
	foreign := f.appointment(t, other, "2024-06-01", "12:00")

	_, err := f.svc.Create(ctx, paymentRequest(p, "300.00", model.PaymentMethodCash, own, foreign))
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, []uuid.UUID{foreign}, appErr.Details["appointment_ids"])

	_, err = f.svc.Create(ctx, paymentRequest(p, "150.00", model.PaymentMethodCash, uuid.New()))
	assert.True(t, apperrors.IsNotFound(err))

	assert.False(t, f.isPaid(t, own))
	assert.False(t, f.isPaid(t, foreign))
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.patient(t)
	a := f.appointment(t, p, "2024-06-01", "10:00")

	cases := []struct {
		name string
		req  *model.CreatePaymentRequest
	}{
		{"zero amount", paymentRequest(p, "0", model.PaymentMethodCash, a)},
		{"negative amount", paymentRequest(p, "-10.00", model.PaymentMethodCash, a)},
		{"three decimals", paymentRequest(p, "10.005", model.PaymentMethodCash, a)},
		{"unknown method", paymentRequest(p, "10.00", model.PaymentMethod("CARD"), a)},
		{"no appointments", paymentRequest(p, "10.00", model.PaymentMethodCash)},
		{"duplicate appointments", paymentRequest(p, "10.00", model.PaymentMethodCash, a, a)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, tc.req)
			require.Error(t, err)
			assert.True(t, apperrors.IsValidation(err))
		})
	}
	assert.False(t, f.isPaid(t, a))
}

func TestCreateUnknownPatient(t *testing.T) {
	f := newFixture(t)
	p := f.patient(t)
	a := f.appointment(t, p, "2024-06-01", "10:00")

	_, err := f.svc.Create(context.Background(), paymentRequest(uuid.New(), "150.00", model.PaymentMethodCash, a))
	assert.True(t, apperrors.IsNotFound(err))
}

func TestDeleteClearsPaidFlags(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.patient(t)
	a1 := f.appointment(t, p, "2024-06-01", "10:00")
	a2 := f.appointment(t, p, "2024-06-02", "10:00")

	payment, err := f.svc.Create(ctx, paymentRequest(p, "300.00", model.PaymentMethodCash, a1, a2))
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, payment.ID))
	assert.False(t, f.isPaid(t, a1))
	assert.False(t, f.isPaid(t, a2))

	_, err = f.svc.Get(ctx, payment.ID)
	assert.True(t, apperrors.IsNotFound(err))

	assert.True(t, apperrors.IsNotFound(f.svc.Delete(ctx, payment.ID)))

	// Freed appointments can be paid again.
	_, err = f.svc.Create(ctx, paymentRequest(p, "300.00", model.PaymentMethodTransfer, a1, a2))
	require.NoError(t, err)
}

func TestUpdateLeavesLinksAlone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.patient(t)
	a := f.appointment(t, p, "2024-06-01", "10:00")

	payment, err := f.svc.Create(ctx, paymentRequest(p, "150.00", model.PaymentMethodCash, a))
	require.NoError(t, err)

	amount := decimal.RequireFromString("140.00")
	method := model.PaymentMethodTransfer
	updated, err := f.svc.Update(ctx, payment.ID, &model.UpdatePaymentRequest{Amount: &amount, Method: &method})
	require.NoError(t, err)
	assert.True(t, amount.Equal(updated.Amount))
	assert.Equal(t, model.PaymentMethodTransfer, updated.Method)
	assert.Equal(t, []uuid.UUID{a}, updated.AppointmentIDs())
	assert.True(t, f.isPaid(t, a))

	bad := decimal.RequireFromString("1.234")
	_, err = f.svc.Update(ctx, payment.ID, &model.UpdatePaymentRequest{Amount: &bad})
	assert.True(t, apperrors.IsValidation(err))

	_, err = f.svc.Update(ctx, uuid.New(), &model.UpdatePaymentRequest{Amount: &amount})
	assert.True(t, apperrors.IsNotFound(err))
}

func TestListUnpaidUnknownPatient(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ListUnpaidAppointments(context.Background(), uuid.New())
	assert.True(t, apperrors.IsNotFound(err))
}

func TestListFiltersAndOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.patient(t)
	other := f.patient(t)

	day := func(d int) *time.Time {
		ts := time.Date(2024, 6, d, 12, 0, 0, 0, time.UTC)
		return &ts
	}
	for i, d := range []int{1, 3, 2} {
		req := paymentRequest(p, "100.00", model.PaymentMethodCash, f.appointment(t, p, "2024-06-01", []string{"08:00", "10:00", "12:00"}[i]))
		req.PaymentDate = day(d)
		_, err := f.svc.Create(ctx, req)
		require.NoError(t, err)
	}
	req := paymentRequest(other, "50.00", model.PaymentMethodTransfer, f.appointment(t, other, "2024-06-01", "14:00"))
	req.PaymentDate = day(2)
	_, err := f.svc.Create(ctx, req)
	require.NoError(t, err)

	list, err := f.svc.List(ctx, &model.PaymentFilter{PatientID: &p})
	require.NoError(t, err)
	assert.Equal(t, 3, list.Total)
	require.Len(t, list.Payments, 3)
	assert.Equal(t, 3, list.Payments[0].PaymentDate.Day())
	assert.Equal(t, 1, list.Payments[2].PaymentDate.Day())

	page, err := f.svc.List(ctx, &model.PaymentFilter{Pagination: model.Pagination{Skip: 1, Limit: 2}})
	require.NoError(t, err)
	assert.Equal(t, 4, page.Total)
	assert.Len(t, page.Payments, 2)

	from, to := model.MustParseDate("2024-06-02"), model.MustParseDate("2024-06-01")
	_, err = f.svc.List(ctx, &model.PaymentFilter{DateFrom: &from, DateTo: &to})
	assert.True(t, apperrors.IsValidation(err))
}

func TestReceipt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.patient(t)

	payment, err := f.svc.Create(ctx, paymentRequest(p, "150.00", model.PaymentMethodCash, f.appointment(t, p, "2024-06-01", "10:00")))
	require.NoError(t, err)

	got, doc, err := f.svc.Receipt(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.ID, got.ID)
	assert.Equal(t, []byte("%PDF-stub"), doc)

	_, _, err = f.svc.Receipt(ctx, uuid.New())
	assert.True(t, apperrors.IsNotFound(err))

	f.renderer.err = errors.New("font missing")
	_, _, err = f.svc.Receipt(ctx, payment.ID)
	require.Error(t, err)
	assert.False(t, apperrors.IsNotFound(err))
}

// failingPaymentRepository fails chosen writes after the inner call has
// already been applied, as a lost connection mid-transaction would.
type failingPaymentRepository struct {
	repository.PaymentRepository
	failLink   bool
	failDelete bool
}

var errStorage = errors.New("connection reset by peer")

func (r *failingPaymentRepository) LinkAppointments(ctx context.Context, paymentID uuid.UUID, ids []uuid.UUID) error {
	if err := r.PaymentRepository.LinkAppointments(ctx, paymentID, ids); err != nil {
		return err
	}
	if r.failLink {
		return errStorage
	}
	return nil
}

func (r *failingPaymentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := r.PaymentRepository.Delete(ctx, id); err != nil {
		return err
	}
	if r.failDelete {
		return errStorage
	}
	return nil
}

func TestCreateRollsBackOnStorageFailure(t *testing.T) {
	failing := &failingPaymentRepository{failLink: true}
	f := newFixtureWith(t, func(inner repository.PaymentRepository) repository.PaymentRepository {
		failing.PaymentRepository = inner
		return failing
	})
	ctx := context.Background()
	p := f.patient(t)
	a1 := f.appointment(t, p, "2024-06-01", "10:00")
	a2 := f.appointment(t, p, "2024-06-02", "10:00")

	_, err := f.svc.Create(ctx, paymentRequest(p, "300.00", model.PaymentMethodCash, a1, a2))
	require.ErrorIs(t, err, errStorage)

	assert.False(t, f.isPaid(t, a1))
	assert.False(t, f.isPaid(t, a2))

	all, err := f.payments.Filter(ctx, &model.PaymentFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)

	events, err := f.outbox.GetPendingEventsWithLock(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestDeleteRollsBackOnStorageFailure(t *testing.T) {
	failing := &failingPaymentRepository{}
	f := newFixtureWith(t, func(inner repository.PaymentRepository) repository.PaymentRepository {
		failing.PaymentRepository = inner
		return failing
	})
	ctx := context.Background()
	p := f.patient(t)
	a := f.appointment(t, p, "2024-06-01", "10:00")

	payment, err := f.svc.Create(ctx, paymentRequest(p, "150.00", model.PaymentMethodCash, a))
	require.NoError(t, err)

	failing.failDelete = true
	require.ErrorIs(t, f.svc.Delete(ctx, payment.ID), errStorage)

	assert.True(t, f.isPaid(t, a))
	loaded, err := f.payments.GetWithAppointments(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{a}, loaded.AppointmentIDs())
}
