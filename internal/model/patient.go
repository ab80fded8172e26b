package model

import "github.com/google/uuid"

type Patient struct {
	Base
	Name  string  `db:"name" json:"name"`
	Phone *string `db:"phone" json:"phone"`
	Email *string `db:"email" json:"email"`
	Notes *string `db:"notes" json:"notes"`
}

// PatientSummary is the contact subset embedded in payment listings.
type PatientSummary struct {
	ID    uuid.UUID `db:"id" json:"id"`
	Name  string    `db:"name" json:"name"`
	Email *string   `db:"email" json:"email"`
	Phone *string   `db:"phone" json:"phone"`
}

func (p *Patient) Summary() *PatientSummary {
	return &PatientSummary{ID: p.ID, Name: p.Name, Email: p.Email, Phone: p.Phone}
}

type CreatePatientRequest struct {
	Name  string  `json:"name" binding:"required,max=100"`
	Phone *string `json:"phone" binding:"omitempty,max=20"`
	Email *string `json:"email" binding:"omitempty,email,max=100"`
	Notes *string `json:"notes"`
}

type UpdatePatientRequest struct {
	Name  *string `json:"name" binding:"omitempty,min=1,max=100"`
	Phone *string `json:"phone" binding:"omitempty,max=20"`
	Email *string `json:"email" binding:"omitempty,email,max=100"`
	Notes *string `json:"notes"`
}

type PatientFilter struct {
	Search string
	Pagination
}
