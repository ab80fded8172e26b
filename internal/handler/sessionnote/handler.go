package sessionnote

import (
	"github.com/gin-gonic/gin"

	"github.com/therapyassist/therapy-api/internal/handler"
	"github.com/therapyassist/therapy-api/internal/model"
	"github.com/therapyassist/therapy-api/internal/service/sessionnote"
)

type Handler struct {
	service *sessionnote.Service
}

func NewHandler(service *sessionnote.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	notes := r.Group("/session-notes")
	{
		notes.GET("", h.ListNotes)
		notes.POST("", h.CreateNote)
		notes.GET("/:id", h.GetNote)
		notes.PUT("/:id", h.UpdateNote)
		notes.DELETE("/:id", h.DeleteNote)
	}
}

func (h *Handler) CreateNote(c *gin.Context) {
	var req model.CreateSessionNoteRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	note, err := h.service.Create(c.Request.Context(), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}

	handler.Created(c, note)
}

func (h *Handler) GetNote(c *gin.Context) {
	id, ok := handler.ParamID(c, "id", "session note")
	if !ok {
		return
	}

	note, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}

	handler.OK(c, note)
}

func (h *Handler) ListNotes(c *gin.Context) {
	var filter model.SessionNoteFilter
	var ok bool

	if filter.PatientID, ok = handler.QueryID(c, "patient_id"); !ok {
		return
	}
	if filter.Pagination, ok = handler.QueryPagination(c); !ok {
		return
	}

	notes, err := h.service.List(c.Request.Context(), &filter)
	if err != nil {
		_ = c.Error(err)
		return
	}

	handler.OK(c, notes)
}

func (h *Handler) UpdateNote(c *gin.Context) {
	id, ok := handler.ParamID(c, "id", "session note")
	if !ok {
		return
	}

	var req model.UpdateSessionNoteRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	note, err := h.service.Update(c.Request.Context(), id, &req)
	if err != nil {
		_ = c.Error(err)
		return
	}

	handler.OK(c, note)
}

func (h *Handler) DeleteNote(c *gin.Context) {
	id, ok := handler.ParamID(c, "id", "session note")
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		_ = c.Error(err)
		return
	}

	handler.Message(c, "session note deleted")
}
