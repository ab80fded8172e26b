package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/therapyassist/therapy-api/internal/model"
	"github.com/therapyassist/therapy-api/internal/repository"
)

type sessionNoteRepository struct {
	*BaseRepository
}

func NewSessionNoteRepository(base *BaseRepository) repository.SessionNoteRepository {
	return &sessionNoteRepository{BaseRepository: base}
}

func (r *sessionNoteRepository) Create(ctx context.Context, note *model.SessionNote) error {
	query := `
		INSERT INTO session_notes (id, patient_id, content, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	now := time.Now().UTC()
	note.CreatedAt, note.UpdatedAt = now, now

	_, err := r.conn(ctx).ExecContext(ctx, query, note.ID, note.PatientID, note.Content, note.CreatedAt, note.UpdatedAt)
	return wrapErr("create session note", err)
}

func (r *sessionNoteRepository) Get(ctx context.Context, id uuid.UUID) (*model.SessionNote, error) {
	var note model.SessionNote
	err := r.conn(ctx).GetContext(ctx, &note,
		`SELECT id, patient_id, content, created_at, updated_at FROM session_notes WHERE id = $1`, id)
	if err != nil {
		return nil, wrapErr("get session note", err)
	}
	return &note, nil
}

func (r *sessionNoteRepository) List(ctx context.Context, filter *model.SessionNoteFilter) ([]*model.SessionNote, error) {
	page := filter.Pagination.Normalize()
	query := `
		SELECT id, patient_id, content, created_at, updated_at
		FROM session_notes
		WHERE ($1::uuid IS NULL OR patient_id = $1)
		ORDER BY created_at DESC
		OFFSET $2 LIMIT $3
	`
	notes := []*model.SessionNote{}
	if err := r.conn(ctx).SelectContext(ctx, &notes, query, filter.PatientID, page.Skip, page.Limit); err != nil {
		return nil, wrapErr("list session notes", err)
	}
	return notes, nil
}

func (r *sessionNoteRepository) Update(ctx context.Context, note *model.SessionNote) error {
	query := `
		UPDATE session_notes SET content = $1, updated_at = $2
		WHERE id = $3
		RETURNING patient_id, created_at, updated_at
	`
	row := r.conn(ctx).QueryRowxContext(ctx, query, note.Content, time.Now().UTC(), note.ID)
	return wrapErr("update session note", row.Scan(&note.PatientID, &note.CreatedAt, &note.UpdatedAt))
}

func (r *sessionNoteRepository) Delete(ctx context.Context, id uuid.UUID) error {
	q := r.conn(ctx)
	if _, err := q.ExecContext(ctx, `UPDATE appointments SET session_note_id = NULL WHERE session_note_id = $1`, id); err != nil {
		return wrapErr("detach session note", err)
	}
	res, err := q.ExecContext(ctx, `DELETE FROM session_notes WHERE id = $1`, id)
	if err != nil {
		return wrapErr("delete session note", err)
	}
	return requireAffected("delete session note", res)
}
