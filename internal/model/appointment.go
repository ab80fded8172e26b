package model

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Appointment struct {
	Base
	PatientID     uuid.UUID       `db:"patient_id" json:"patient_id"`
	Date          Date            `db:"date" json:"date"`
	StartTime     ClockTime       `db:"start_time" json:"start_time"`
	EndTime       ClockTime       `db:"end_time" json:"end_time"`
	Price         decimal.Decimal `db:"price" json:"price"`
	IsPaid        bool            `db:"is_paid" json:"is_paid"`
	SessionNoteID *uuid.UUID      `db:"session_note_id" json:"session_note_id"`
}

// Slot returns the appointment's time window.
func (a *Appointment) Slot() TimeSlot {
	return TimeSlot{Date: a.Date, Start: a.StartTime, End: a.EndTime}
}

type CreateAppointmentRequest struct {
	PatientID uuid.UUID       `json:"patient_id" binding:"required"`
	Date      Date            `json:"date"`
	StartTime ClockTime       `json:"start_time"`
	EndTime   ClockTime       `json:"end_time"`
	Price     decimal.Decimal `json:"price" binding:"decimal_gt0,decimal_2dp"`
}

type UpdateAppointmentRequest struct {
	PatientID     *uuid.UUID       `json:"patient_id"`
	Date          *Date            `json:"date"`
	StartTime     *ClockTime       `json:"start_time"`
	EndTime       *ClockTime       `json:"end_time"`
	Price         *decimal.Decimal `json:"price" binding:"omitempty,decimal_gt0,decimal_2dp"`
	SessionNoteID NullableID       `json:"session_note_id"`
}

// TouchesSchedule reports whether the update moves the appointment in time.
func (r *UpdateAppointmentRequest) TouchesSchedule() bool {
	return r.Date != nil || r.StartTime != nil || r.EndTime != nil
}

// TimeSlot is the half-open interval [Start, End) on Date.
type TimeSlot struct {
	Date  Date      `json:"date"`
	Start ClockTime `json:"start_time"`
	End   ClockTime `json:"end_time"`
}

func (s TimeSlot) Valid() bool {
	return s.Start.Before(s.End)
}

// Overlaps uses half-open semantics: slots that only touch at an endpoint do not overlap.
func (s TimeSlot) Overlaps(o TimeSlot) bool {
	return s.Date == o.Date && o.Start.Before(s.End) && s.Start.Before(o.End)
}

func (s TimeSlot) String() string {
	return s.Date.String() + " " + s.Start.String() + "-" + s.End.String()
}

type AppointmentFilter struct {
	PatientID *uuid.UUID
	DateFrom  *Date
	DateTo    *Date
	IsPaid    *bool
	Pagination
}
