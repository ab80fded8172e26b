package model

import "github.com/google/uuid"

type SessionNote struct {
	Base
	PatientID uuid.UUID `db:"patient_id" json:"patient_id"`
	Content   string    `db:"content" json:"content"`
}

type CreateSessionNoteRequest struct {
	PatientID uuid.UUID `json:"patient_id" binding:"required"`
	Content   string    `json:"content" binding:"required"`
}

type UpdateSessionNoteRequest struct {
	Content *string `json:"content" binding:"omitempty,min=1"`
}

type SessionNoteFilter struct {
	PatientID *uuid.UUID
	Pagination
}
