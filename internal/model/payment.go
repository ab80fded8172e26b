package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	PaymentMethodCash     PaymentMethod = "CASH"
	PaymentMethodTransfer PaymentMethod = "TRANSFER"
)

// PaymentMethods lists every accepted method in display order.
var PaymentMethods = []PaymentMethod{PaymentMethodCash, PaymentMethodTransfer}

func (m PaymentMethod) Valid() bool {
	for _, known := range PaymentMethods {
		if m == known {
			return true
		}
	}
	return false
}

type Payment struct {
	Base
	PatientID   uuid.UUID       `db:"patient_id" json:"patient_id"`
	Amount      decimal.Decimal `db:"amount" json:"amount"`
	PaymentDate time.Time       `db:"payment_date" json:"payment_date"`
	Method      PaymentMethod   `db:"payment_method" json:"payment_method"`
	Description *string         `db:"description" json:"description"`

	Patient      *PatientSummary `db:"-" json:"patient,omitempty"`
	Appointments []*Appointment  `db:"-" json:"appointments,omitempty"`
}

// AppointmentIDs returns the ids of the loaded appointment set.
func (p *Payment) AppointmentIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(p.Appointments))
	for _, a := range p.Appointments {
		ids = append(ids, a.ID)
	}
	return ids
}

type CreatePaymentRequest struct {
	PatientID      uuid.UUID       `json:"patient_id" binding:"required"`
	Amount         decimal.Decimal `json:"amount" binding:"decimal_gt0,decimal_2dp"`
	Method         PaymentMethod   `json:"payment_method" binding:"required,oneof=CASH TRANSFER"`
	AppointmentIDs []uuid.UUID     `json:"appointment_ids" binding:"required,min=1"`
	Description    *string         `json:"description"`
	PaymentDate    *time.Time      `json:"payment_date"`
}

type UpdatePaymentRequest struct {
	Amount      *decimal.Decimal `json:"amount" binding:"omitempty,decimal_gt0,decimal_2dp"`
	Method      *PaymentMethod   `json:"payment_method" binding:"omitempty,oneof=CASH TRANSFER"`
	Description *string          `json:"description"`
	PaymentDate *time.Time       `json:"payment_date"`
}

type PaymentFilter struct {
	PatientID *uuid.UUID
	DateFrom  *Date
	DateTo    *Date
	Method    *PaymentMethod
	Pagination
}

// PaymentList is one page of payments plus the unpaginated match count.
type PaymentList struct {
	Total    int        `json:"total"`
	Payments []*Payment `json:"payments"`
}

type MethodTotals struct {
	Count  int             `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

type PaymentStatistics struct {
	DateFrom    *Date                          `json:"date_from,omitempty"`
	DateTo      *Date                          `json:"date_to,omitempty"`
	TotalCount  int                            `json:"total_count"`
	TotalAmount decimal.Decimal                `json:"total_amount"`
	PerMethod   map[PaymentMethod]MethodTotals `json:"per_method"`
}
