package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	EventAppointmentCreated = "appointment.created"
	EventAppointmentUpdated = "appointment.updated"
	EventAppointmentDeleted = "appointment.deleted"
	EventPaymentCreated     = "payment.created"
	EventPaymentUpdated     = "payment.updated"
	EventPaymentDeleted     = "payment.deleted"
)

type AppointmentEvent struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	PatientID     uuid.UUID `json:"patient_id"`
	Date          Date      `json:"date"`
	StartTime     ClockTime `json:"start_time"`
	EndTime       ClockTime `json:"end_time"`
}

func NewAppointmentEvent(a *Appointment) AppointmentEvent {
	return AppointmentEvent{
		AppointmentID: a.ID,
		PatientID:     a.PatientID,
		Date:          a.Date,
		StartTime:     a.StartTime,
		EndTime:       a.EndTime,
	}
}

type PaymentEvent struct {
	PaymentID      uuid.UUID       `json:"payment_id"`
	PatientID      uuid.UUID       `json:"patient_id"`
	Amount         decimal.Decimal `json:"amount"`
	Method         PaymentMethod   `json:"payment_method"`
	PaymentDate    time.Time       `json:"payment_date"`
	AppointmentIDs []uuid.UUID     `json:"appointment_ids"`
}

func NewPaymentEvent(p *Payment, appointmentIDs []uuid.UUID) PaymentEvent {
	return PaymentEvent{
		PaymentID:      p.ID,
		PatientID:      p.PatientID,
		Amount:         p.Amount,
		Method:         p.Method,
		PaymentDate:    p.PaymentDate,
		AppointmentIDs: appointmentIDs,
	}
}
