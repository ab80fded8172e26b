package appointment

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
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

type fixture struct {
	svc      *Service
	store    *memory.Store
	patients repository.PatientRepository
	notes    repository.SessionNoteRepository
	outbox   repository.OutboxRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	f := &fixture{
		store:    store,
		patients: memory.NewPatientRepository(store),
		notes:    memory.NewSessionNoteRepository(store),
		outbox:   memory.NewOutboxRepository(store),
	}
	f.svc = NewService(
		store,
		memory.NewAppointmentRepository(store),
		f.patients,
		f.notes,
		event.NewService(f.outbox),
		metrics.NewNop(),
		logger.Nop(),
	)
	return f
}

func (f *fixture) patient(t *testing.T) uuid.UUID {
	t.Helper()
	id := uuid.New()
	require.NoError(t, f.patients.Create(context.Background(), &model.Patient{Base: model.Base{ID: id}, Name: "Patient " + id.String()[:4]}))
	return id
}

func request(patientID uuid.UUID, date, start, end string) *model.CreateAppointmentRequest {
	return &model.CreateAppointmentRequest{
		PatientID: patientID,
		Date:      model.MustParseDate(date),
		StartTime: model.MustParseClockTime(start),
		EndTime:   model.MustParseClockTime(end),
		Price:     decimal.RequireFromString("150.00"),
	}
}

func TestCreateRejectsOverlapAcceptsTouching(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.patient(t)

	first, err := f.svc.Create(ctx, request(p, "2024-06-01", "10:00", "11:00"))
	require.NoError(t, err)
	assert.False(t, first.IsPaid)
	assert.Nil(t, first.SessionNoteID)

	_, err = f.svc.Create(ctx, request(p, "2024-06-01", "10:30", "11:30"))
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))
	assert.Contains(t, err.Error(), "2024-06-01 10:00:00-11:00:00")

	_, err = f.svc.Create(ctx, request(p, "2024-06-01", "11:00", "12:00"))
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, request(p, "2024-06-01", "09:00", "10:00"))
	require.NoError(t, err)
}

func TestCreateConflictSpansPatients(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, request(f.patient(t), "2024-06-01", "10:00", "11:00"))
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, request(f.patient(t), "2024-06-01", "10:15", "10:45"))
	assert.True(t, apperrors.IsConflict(err))

	_, err = f.svc.Create(ctx, request(f.patient(t), "2024-06-02", "10:15", "10:45"))
	assert.NoError(t, err)
}

func TestCreateOrderingProperty(t *testing.T) {
	// A.start < B.start on the same date: B succeeds iff A.end <= B.start.
	tests := []struct {
		name      string
		a, b      [2]string
		wantClash bool
	}{
		{"gap", [2]string{"08:00", "09:00"}, [2]string{"09:30", "10:00"}, false},
		{"touching", [2]string{"08:00", "09:00"}, [2]string{"09:00", "10:00"}, false},
		{"one minute over", [2]string{"08:00", "09:01"}, [2]string{"09:00", "10:00"}, true},
		{"b inside a", [2]string{"08:00", "12:00"}, [2]string{"09:00", "10:00"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			p := f.patient(t)

			_, err := f.svc.Create(ctx, request(p, "2024-03-10", tt.a[0], tt.a[1]))
			require.NoError(t, err)

			_, err = f.svc.Create(ctx, request(p, "2024-03-10", tt.b[0], tt.b[1]))
			if tt.wantClash {
				assert.True(t, apperrors.IsConflict(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.patient(t)

	inverted := request(p, "2024-06-01", "11:00", "10:00")
	_, err := f.svc.Create(ctx, inverted)
	assert.True(t, apperrors.IsValidation(err))

	empty := request(p, "2024-06-01", "10:00", "10:00")
	_, err = f.svc.Create(ctx, empty)
	assert.True(t, apperrors.IsValidation(err))

	free := request(p, "2024-06-01", "10:00", "11:00")
	free.Price = decimal.Zero
	_, err = f.svc.Create(ctx, free)
	assert.True(t, apperrors.IsValidation(err))

	fractional := request(p, "2024-06-01", "10:00", "11:00")
	fractional.Price = decimal.RequireFromString("99.999")
	_, err = f.svc.Create(ctx, fractional)
	assert.True(t, apperrors.IsValidation(err))
}

func TestCreateUnknownPatientIsNotFoundBeforeOverlap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, request(f.patient(t), "2024-06-01", "10:00", "11:00"))
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, request(uuid.New(), "2024-06-01", "10:00", "11:00"))
	assert.True(t, apperrors.IsNotFound(err))

	// An unknown patient wins over an invalid window.
	_, err = f.svc.Create(ctx, request(uuid.New(), "2024-06-01", "11:00", "10:00"))
	assert.True(t, apperrors.IsNotFound(err))
}

func TestUpdateUsesMergedWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.patient(t)

	_, err := f.svc.Create(ctx, request(p, "2024-06-01", "12:00", "13:00"))
	require.NoError(t, err)
	moving, err := f.svc.Create(ctx, request(p, "2024-06-01", "10:00", "11:00"))
	require.NoError(t, err)

	// Only end_time changes; the merged window 10:00-12:30 reaches into 12:00-13:00.
	end := model.MustParseClockTime("12:30")
	_, err = f.svc.Update(ctx, moving.ID, &model.UpdateAppointmentRequest{EndTime: &end})
	assert.True(t, apperrors.IsConflict(err))

	// Start alone moving past the stored end is a malformed interval.
	start := model.MustParseClockTime("11:30")
	_, err = f.svc.Update(ctx, moving.ID, &model.UpdateAppointmentRequest{StartTime: &start})
	assert.True(t, apperrors.IsValidation(err))

	// Extending within free time does not conflict with the appointment's own prior state.
	end = model.MustParseClockTime("12:00")
	updated, err := f.svc.Update(ctx, moving.ID, &model.UpdateAppointmentRequest{EndTime: &end})
	require.NoError(t, err)
	assert.Equal(t, "10:00:00", updated.StartTime.String())
	assert.Equal(t, "12:00:00", updated.EndTime.String())
}

func TestUpdateMovingDateChecksTargetDate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.patient(t)

	_, err := f.svc.Create(ctx, request(p, "2024-06-02", "10:00", "11:00"))
	require.NoError(t, err)
	a, err := f.svc.Create(ctx, request(p, "2024-06-01", "10:30", "11:30"))
	require.NoError(t, err)

	date := model.MustParseDate("2024-06-02")
	_, err = f.svc.Update(ctx, a.ID, &model.UpdateAppointmentRequest{Date: &date})
	assert.True(t, apperrors.IsConflict(err))

	date = model.MustParseDate("2024-06-03")
	moved, err := f.svc.Update(ctx, a.ID, &model.UpdateAppointmentRequest{Date: &date})
	require.NoError(t, err)
	assert.Equal(t, "2024-06-03", moved.Date.String())
}

func TestUpdateWithoutScheduleChangeSkipsGuard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.patient(t)

	a, err := f.svc.Create(ctx, request(p, "2024-06-01", "10:00", "11:00"))
	require.NoError(t, err)

	price := decimal.RequireFromString("175.50")
	updated, err := f.svc.Update(ctx, a.ID, &model.UpdateAppointmentRequest{Price: &price})
	require.NoError(t, err)
	assert.True(t, price.Equal(updated.Price))

	_, err = f.svc.Update(ctx, uuid.New(), &model.UpdateAppointmentRequest{Price: &price})
	assert.True(t, apperrors.IsNotFound(err))
}

func TestUpdateSessionNoteLink(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.patient(t)

	a, err := f.svc.Create(ctx, request(p, "2024-06-01", "10:00", "11:00"))
	require.NoError(t, err)

	missing := uuid.New()
	_, err = f.svc.Update(ctx, a.ID, &model.UpdateAppointmentRequest{SessionNoteID: model.NullableID{Set: true, Value: &missing}})
	assert.True(t, apperrors.IsNotFound(err))

	note := &model.SessionNote{Base: model.Base{ID: uuid.New()}, PatientID: p, Content: "intake"}
	require.NoError(t, f.notes.Create(ctx, note))

	linked, err := f.svc.Update(ctx, a.ID, &model.UpdateAppointmentRequest{SessionNoteID: model.NullableID{Set: true, Value: &note.ID}})
	require.NoError(t, err)
	require.NotNil(t, linked.SessionNoteID)
	assert.Equal(t, note.ID, *linked.SessionNoteID)

	unlinked, err := f.svc.Update(ctx, a.ID, &model.UpdateAppointmentRequest{SessionNoteID: model.NullableID{Set: true}})
	require.NoError(t, err)
	assert.Nil(t, unlinked.SessionNoteID)
}

func TestCheckOverlapExcludesSelf(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, err := f.svc.Create(ctx, request(f.patient(t), "2024-06-01", "10:00", "11:00"))
	require.NoError(t, err)

	date := model.MustParseDate("2024-06-01")
	start, end := model.MustParseClockTime("10:00"), model.MustParseClockTime("11:00")

	conflict, err := f.svc.CheckOverlap(ctx, date, start, end, nil)
	require.NoError(t, err)
	assert.True(t, conflict)

	conflict, err = f.svc.CheckOverlap(ctx, date, start, end, &a.ID)
	require.NoError(t, err)
	assert.False(t, conflict)
}

func TestDeleteEmitsEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, err := f.svc.Create(ctx, request(f.patient(t), "2024-06-01", "10:00", "11:00"))
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, a.ID))
	_, err = f.svc.Get(ctx, a.ID)
	assert.True(t, apperrors.IsNotFound(err))
	assert.True(t, apperrors.IsNotFound(f.svc.Delete(ctx, a.ID)))

	events, err := f.outbox.GetPendingEventsWithLock(ctx, 10)
	require.NoError(t, err)
	types := make([]string, 0, len(events))
	for _, e := range events {
		types = append(types, e.EventType)
	}
	assert.ElementsMatch(t, []string{model.EventAppointmentCreated, model.EventAppointmentDeleted}, types)
}

func TestConcurrentCreatesOnSameSlotAdmitOne(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.patient(t)

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Create(ctx, request(p, "2024-06-01", "10:00", "11:00"))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.True(t, apperrors.IsConflict(err))
		}
	}
	assert.Equal(t, 1, succeeded)
}

func TestListFiltersAndValidatesRange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.patient(t)

	for _, d := range []string{"2024-06-01", "2024-06-02", "2024-06-03"} {
		_, err := f.svc.Create(ctx, request(p, d, "10:00", "11:00"))
		require.NoError(t, err)
	}

	from, to := model.MustParseDate("2024-06-02"), model.MustParseDate("2024-06-03")
	list, err := f.svc.List(ctx, &model.AppointmentFilter{DateFrom: &from, DateTo: &to})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "2024-06-02", list[0].Date.String())

	_, err = f.svc.List(ctx, &model.AppointmentFilter{DateFrom: &to, DateTo: &from})
	assert.True(t, apperrors.IsValidation(err))
}

func markPaid(t *testing.T, store *memory.Store, patientID, appointmentID uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	payments := memory.NewPaymentRepository(store)
	payment := &model.Payment{
		Base:      model.Base{ID: uuid.New()},
		PatientID: patientID,
		Amount:    decimal.RequireFromString("150.00"),
		Method:    model.PaymentMethodCash,
	}
	require.NoError(t, payments.Create(ctx, payment))
	require.NoError(t, payments.LinkAppointments(ctx, payment.ID, []uuid.UUID{appointmentID}))
}

func TestUpdateRejectsMovingPaidAppointment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner, other := f.patient(t), f.patient(t)

	a, err := f.svc.Create(ctx, request(owner, "2024-06-01", "10:00", "11:00"))
	require.NoError(t, err)
	markPaid(t, f.store, owner, a.ID)

	_, err = f.svc.Update(ctx, a.ID, &model.UpdateAppointmentRequest{PatientID: &other})
	assert.True(t, apperrors.IsConflict(err))

	// Same patient is not a move.
	price := decimal.RequireFromString("120.00")
	updated, err := f.svc.Update(ctx, a.ID, &model.UpdateAppointmentRequest{PatientID: &owner, Price: &price})
	require.NoError(t, err)
	assert.True(t, updated.IsPaid)
}

// payingAppointmentRepository links the appointment to a payment right before
// the row lock is granted, the way a payment committed by a concurrent
// transaction would be seen once the lock is released.
type payingAppointmentRepository struct {
	repository.AppointmentRepository
	store     *memory.Store
	patientID uuid.UUID
	locked    int
}

func (r *payingAppointmentRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	r.locked++
	payments := memory.NewPaymentRepository(r.store)
	payment := &model.Payment{
		Base:      model.Base{ID: uuid.New()},
		PatientID: r.patientID,
		Amount:    decimal.RequireFromString("150.00"),
		Method:    model.PaymentMethodTransfer,
	}
	if err := payments.Create(ctx, payment); err != nil {
		return nil, err
	}
	if err := payments.LinkAppointments(ctx, payment.ID, []uuid.UUID{id}); err != nil {
		return nil, err
	}
	return r.AppointmentRepository.GetForUpdate(ctx, id)
}

func TestUpdatePaidCheckReadsLockedRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner, other := f.patient(t), f.patient(t)

	a, err := f.svc.Create(ctx, request(owner, "2024-06-01", "10:00", "11:00"))
	require.NoError(t, err)

	repo := &payingAppointmentRepository{
		AppointmentRepository: memory.NewAppointmentRepository(f.store),
		store:                 f.store,
		patientID:             owner,
	}
	svc := NewService(f.store, repo, f.patients, f.notes, event.NewService(f.outbox), metrics.NewNop(), logger.Nop())

	_, err = svc.Update(ctx, a.ID, &model.UpdateAppointmentRequest{PatientID: &other})
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))
	assert.Equal(t, 1, repo.locked)

	got, err := f.svc.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, owner, got.PatientID)
}
