package appointment

import (
	"github.com/gin-gonic/gin"

	"github.com/therapyassist/therapy-api/internal/handler"
	"github.com/therapyassist/therapy-api/internal/model"
	"github.com/therapyassist/therapy-api/internal/service/appointment"
)

type Handler struct {
	service *appointment.Service
}

func NewHandler(service *appointment.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	appointments := r.Group("/appointments")
	{
		appointments.GET("", h.ListAppointments)
		appointments.POST("", h.CreateAppointment)
		appointments.GET("/:id", h.GetAppointment)
		appointments.PUT("/:id", h.UpdateAppointment)
		appointments.DELETE("/:id", h.DeleteAppointment)
	}
}

func (h *Handler) CreateAppointment(c *gin.Context) {
	var req model.CreateAppointmentRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	appointment, err := h.service.Create(c.Request.Context(), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}

	handler.Created(c, appointment)
}

func (h *Handler) GetAppointment(c *gin.Context) {
	id, ok := handler.ParamID(c, "id", "appointment")
	if !ok {
		return
	}

	appointment, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}

	handler.OK(c, appointment)
}

func (h *Handler) ListAppointments(c *gin.Context) {
	var filter model.AppointmentFilter
	var ok bool

	if filter.PatientID, ok = handler.QueryID(c, "patient_id"); !ok {
		return
	}
	if filter.DateFrom, ok = handler.QueryDate(c, "date_from"); !ok {
		return
	}
	if filter.DateTo, ok = handler.QueryDate(c, "date_to"); !ok {
		return
	}
	if filter.IsPaid, ok = handler.QueryBool(c, "is_paid"); !ok {
		return
	}
	if filter.Pagination, ok = handler.QueryPagination(c); !ok {
		return
	}

	appointments, err := h.service.List(c.Request.Context(), &filter)
	if err != nil {
		_ = c.Error(err)
		return
	}

	handler.OK(c, appointments)
}

func (h *Handler) UpdateAppointment(c *gin.Context) {
	id, ok := handler.ParamID(c, "id", "appointment")
	if !ok {
		return
	}

	var req model.UpdateAppointmentRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	appointment, err := h.service.Update(c.Request.Context(), id, &req)
	if err != nil {
		_ = c.Error(err)
		return
	}

	handler.OK(c, appointment)
}

func (h *Handler) DeleteAppointment(c *gin.Context) {
	id, ok := handler.ParamID(c, "id", "appointment")
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		_ = c.Error(err)
		return
	}

	handler.Message(c, "appointment deleted")
}
