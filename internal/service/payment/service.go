package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"

	"github.com/therapyassist/therapy-api/internal/model"
	"github.com/therapyassist/therapy-api/internal/repository"
	"github.com/therapyassist/therapy-api/internal/service/event"
	apperrors "github.com/therapyassist/therapy-api/pkg/errors"
	"github.com/therapyassist/therapy-api/pkg/logger"
	"github.com/therapyassist/therapy-api/pkg/metrics"
)

// ReceiptRenderer turns a payment with its appointments into a printable document.
type ReceiptRenderer interface {
	Render(payment *model.Payment) ([]byte, error)
}

// Service is the payment reconciler. Every write that changes which
// appointments a payment covers also updates their is_paid flag in the same
// transaction.
type Service struct {
	tx           repository.Transactor
	repo         repository.PaymentRepository
	appointments repository.AppointmentRepository
	patients     repository.PatientRepository
	events       event.Emitter
	stats        *statisticsCache
	receipts     ReceiptRenderer
	metrics      *metrics.Metrics
	logger       *logger.Logger
	now          func() time.Time
}

// NewService builds the reconciler. A nil stats cache disables statistics caching.
func NewService(
	tx repository.Transactor,
	repo repository.PaymentRepository,
	appointments repository.AppointmentRepository,
	patients repository.PatientRepository,
	events event.Emitter,
	stats *cache.Cache,
	receipts ReceiptRenderer,
	metrics *metrics.Metrics,
	logger *logger.Logger,
) *Service {
	return &Service{
		tx:           tx,
		repo:         repo,
		appointments: appointments,
		patients:     patients,
		events:       events,
		stats:        newStatisticsCache(stats),
		receipts:     receipts,
		metrics:      metrics,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Create(ctx context.Context, req *model.CreatePaymentRequest) (*model.Payment, error) {
	if err := validateAmount(req.Amount); err != nil {
		return nil, err
	}
	if !req.Method.Valid() {
		return nil, apperrors.Validation(fmt.Sprintf("payment_method must be one of %s", methodList()))
	}
	ids, err := distinctIDs(req.AppointmentIDs)
	if err != nil {
		return nil, err
	}

	paymentDate := s.now()
	if req.PaymentDate != nil {
		paymentDate = req.PaymentDate.UTC()
	}
	payment := &model.Payment{
		Base:        model.Base{ID: uuid.New()},
		PatientID:   req.PatientID,
		Amount:      req.Amount,
		PaymentDate: paymentDate,
		Method:      req.Method,
		Description: req.Description,
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		patient, err := s.patients.Get(ctx, req.PatientID)
		if err != nil {
			return notFound("patient", err)
		}

		resolved, err := s.appointments.FindByIDsForPatient(ctx, ids, req.PatientID)
		if err != nil {
			return err
		}
		if len(resolved) < len(ids) {
			return (&apperrors.AppError{
				Code:    apperrors.ErrNotFound,
				Message: "one or more appointments do not exist or belong to another patient",
			}).WithDetail("appointment_ids", missingIDs(ids, resolved))
		}

		var paid []uuid.UUID
		for _, a := range resolved {
			if a.IsPaid {
				paid = append(paid, a.ID)
			}
		}
		if len(paid) > 0 {
			return apperrors.Conflict(fmt.Sprintf("appointments already paid: %s", joinIDs(paid))).
				WithDetail("appointment_ids", paid)
		}

		if err := s.repo.Create(ctx, payment); err != nil {
			return err
		}
		if err := s.repo.LinkAppointments(ctx, payment.ID, ids); err != nil {
			return err
		}
		for _, a := range resolved {
			a.IsPaid = true
		}
		payment.Appointments = resolved
		payment.Patient = patient.Summary()

		return s.events.Emit(ctx, model.EventPaymentCreated, model.NewPaymentEvent(payment, ids))
	})
	if err != nil {
		return nil, err
	}

	s.stats.invalidate()
	s.metrics.PaymentsRecorded.WithLabelValues(string(payment.Method)).Inc()
	s.metrics.PaymentAmount.WithLabelValues(string(payment.Method)).Add(payment.Amount.InexactFloat64())
	s.logger.Info("payment recorded",
		"payment_id", payment.ID.String(),
		"patient_id", payment.PatientID.String(),
		"amount", payment.Amount.StringFixed(model.MoneyScale),
		"appointments", len(ids))
	return payment, nil
}

// Delete removes the payment and clears is_paid on every appointment it covered.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		payment, err := s.repo.GetWithAppointments(ctx, id)
		if err != nil {
			return notFound("payment", err)
		}
		unlinked, err := s.repo.UnlinkAppointments(ctx, id)
		if err != nil {
			return err
		}
		if err := s.repo.Delete(ctx, id); err != nil {
			return notFound("payment", err)
		}
		return s.events.Emit(ctx, model.EventPaymentDeleted, model.NewPaymentEvent(payment, unlinked))
	})
	if err != nil {
		return err
	}

	s.stats.invalidate()
	s.metrics.PaymentsDeleted.Inc()
	s.logger.Info("payment deleted", "payment_id", id.String())
	return nil
}

// Update changes scalar fields only. Linked appointments and their is_paid
// flags are left alone.
func (s *Service) Update(ctx context.Context, id uuid.UUID, req *model.UpdatePaymentRequest) (*model.Payment, error) {
	if req.Amount != nil {
		if err := validateAmount(*req.Amount); err != nil {
			return nil, err
		}
	}
	if req.Method != nil && !req.Method.Valid() {
		return nil, apperrors.Validation(fmt.Sprintf("payment_method must be one of %s", methodList()))
	}

	var updated *model.Payment
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		payment, err := s.repo.GetWithAppointments(ctx, id)
		if err != nil {
			return notFound("payment", err)
		}
		if req.Amount != nil {
			payment.Amount = *req.Amount
		}
		if req.Method != nil {
			payment.Method = *req.Method
		}
		if req.Description != nil {
			payment.Description = req.Description
		}
		if req.PaymentDate != nil {
			payment.PaymentDate = req.PaymentDate.UTC()
		}
		if err := s.repo.Update(ctx, payment); err != nil {
			return notFound("payment", err)
		}
		updated = payment
		return s.events.Emit(ctx, model.EventPaymentUpdated, model.NewPaymentEvent(payment, payment.AppointmentIDs()))
	})
	if err != nil {
		return nil, err
	}

	s.stats.invalidate()
	return updated, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Payment, error) {
	payment, err := s.repo.GetWithAppointments(ctx, id)
	if err != nil {
		return nil, notFound("payment", err)
	}
	return payment, nil
}

func (s *Service) List(ctx context.Context, filter *model.PaymentFilter) (*model.PaymentList, error) {
	if err := validateRange(filter.DateFrom, filter.DateTo); err != nil {
		return nil, err
	}
	if filter.Method != nil && !filter.Method.Valid() {
		return nil, apperrors.Validation(fmt.Sprintf("payment_method must be one of %s", methodList()))
	}
	filter.Pagination = filter.Pagination.Normalize()

	payments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &model.PaymentList{Total: total, Payments: payments}, nil
}

// ListUnpaidAppointments returns the patient's unpaid appointment ids ordered by (date, start_time).
func (s *Service) ListUnpaidAppointments(ctx context.Context, patientID uuid.UUID) ([]uuid.UUID, error) {
	exists, err := s.patients.Exists(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperrors.NotFound("patient", nil)
	}
	return s.appointments.ListUnpaidIDs(ctx, patientID)
}

// Receipt renders the payment as a PDF document.
func (s *Service) Receipt(ctx context.Context, id uuid.UUID) (*model.Payment, []byte, error) {
	payment, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	doc, err := s.receipts.Render(payment)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to render receipt: %w", err)
	}
	return payment, doc, nil
}

func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperrors.Validation("amount must be greater than zero")
	}
	if !model.ValidMoneyScale(amount) {
		return apperrors.Validation("amount must have at most two decimal places")
	}
	return nil
}

func validateRange(from, to *model.Date) error {
	if from != nil && to != nil && to.Before(*from) {
		return apperrors.Validation("date_to must not be before date_from")
	}
	return nil
}

// distinctIDs rejects an empty set and repeated ids, which would let the
// resolved-count check pass with fewer real appointments than requested.
func distinctIDs(ids []uuid.UUID) ([]uuid.UUID, error) {
	if len(ids) == 0 {
		return nil, apperrors.Validation("appointment_ids must contain at least one appointment")
	}
	seen := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return nil, apperrors.Validation(fmt.Sprintf("appointment %s is listed more than once", id))
		}
		seen[id] = struct{}{}
	}
	return ids, nil
}

func missingIDs(requested []uuid.UUID, resolved []*model.Appointment) []uuid.UUID {
	found := make(map[uuid.UUID]struct{}, len(resolved))
	for _, a := range resolved {
		found[a.ID] = struct{}{}
	}
	var missing []uuid.UUID
	for _, id := range requested {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

func joinIDs(ids []uuid.UUID) string {
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = id.String()
	}
	return strings.Join(strs, ", ")
}

func methodList() string {
	names := make([]string, len(model.PaymentMethods))
	for i, m := range model.PaymentMethods {
		names[i] = string(m)
	}
	return strings.Join(names, ", ")
}

func notFound(resource string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NotFound(resource, err)
	}
	return err
}
