package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/therapyassist/therapy-api/internal/email"
	"github.com/therapyassist/therapy-api/internal/model"
	"github.com/therapyassist/therapy-api/internal/receipt"
	"github.com/therapyassist/therapy-api/internal/repository"
	"github.com/therapyassist/therapy-api/pkg/logger"
	"github.com/therapyassist/therapy-api/pkg/messaging"
	"github.com/therapyassist/therapy-api/pkg/metrics"
)

type Renderer interface {
	Render(payment *model.Payment) ([]byte, error)
}

// ReceiptNotifier emails a PDF receipt to the patient when a payment is recorded.
type ReceiptNotifier struct {
	payments     repository.PaymentRepository
	renderer     Renderer
	mailer       email.Service
	practiceName string
	logger       *logger.Logger
	metrics      *metrics.Metrics
}

func NewReceiptNotifier(
	payments repository.PaymentRepository,
	renderer Renderer,
	mailer email.Service,
	practiceName string,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *ReceiptNotifier {
	return &ReceiptNotifier{
		payments:     payments,
		renderer:     renderer,
		mailer:       mailer,
		practiceName: practiceName,
		logger:       logger,
		metrics:      metrics,
	}
}

// Subscribe attaches the notifier to payment.created until ctx is done.
func (n *ReceiptNotifier) Subscribe(ctx context.Context, broker messaging.MessageBroker) error {
	return broker.Subscribe(ctx, model.EventPaymentCreated, func(payload []byte) error {
		return n.Handle(ctx, payload)
	})
}

// Handle sends the receipt for one payment.created payload. Payments that no
// longer exist and patients without an email address are skipped.
func (n *ReceiptNotifier) Handle(ctx context.Context, payload []byte) error {
	var evt model.PaymentEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return fmt.Errorf("invalid payment event: %w", err)
	}

	payment, err := n.payments.GetWithAppointments(ctx, evt.PaymentID)
	if errors.Is(err, repository.ErrNotFound) {
		n.logger.Debug("payment deleted before receipt was sent", "payment_id", evt.PaymentID.String())
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load payment %s: %w", evt.PaymentID, err)
	}

	if payment.Patient == nil || payment.Patient.Email == nil || *payment.Patient.Email == "" {
		n.logger.Debug("patient has no email address, skipping receipt", "payment_id", payment.ID.String())
		return nil
	}

	doc, err := n.renderer.Render(payment)
	if err != nil {
		n.metrics.ReceiptsFailed.Inc()
		return fmt.Errorf("failed to render receipt for payment %s: %w", payment.ID, err)
	}

	msg := &email.Message{
		To:      *payment.Patient.Email,
		Subject: fmt.Sprintf("%s: payment receipt", n.practiceName),
		Body: fmt.Sprintf(
			"Dear %s,\n\nThank you for your payment of %s (%s). Your receipt is attached.\n\n%s\n",
			payment.Patient.Name,
			payment.Amount.StringFixed(model.MoneyScale),
			payment.Method,
			n.practiceName,
		),
		Attachments: []email.Attachment{{Name: receipt.Filename(payment), Data: doc}},
	}
	if err := n.mailer.Send(ctx, msg); err != nil {
		n.metrics.ReceiptsFailed.Inc()
		return err
	}

	n.metrics.ReceiptsSent.Inc()
	n.logger.Info("receipt sent", "payment_id", payment.ID.String())
	return nil
}
