package patient

import (
	"github.com/gin-gonic/gin"

	"github.com/therapyassist/therapy-api/internal/handler"
	"github.com/therapyassist/therapy-api/internal/model"
	"github.com/therapyassist/therapy-api/internal/service/patient"
	"github.com/therapyassist/therapy-api/internal/service/payment"
)

type Handler struct {
	service  *patient.Service
	payments *payment.Service
}

func NewHandler(service *patient.Service, payments *payment.Service) *Handler {
	return &Handler{service: service, payments: payments}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	patients := r.Group("/patients")
	{
		patients.GET("", h.ListPatients)
		patients.POST("", h.CreatePatient)
		patients.GET("/:id", h.GetPatient)
		patients.PUT("/:id", h.UpdatePatient)
		patients.DELETE("/:id", h.DeletePatient)
		patients.GET("/:id/unpaid-appointments", h.ListUnpaidAppointments)
	}
}

func (h *Handler) CreatePatient(c *gin.Context) {
	var req model.CreatePatientRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	patient, err := h.service.Create(c.Request.Context(), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}

	handler.Created(c, patient)
}

func (h *Handler) GetPatient(c *gin.Context) {
	id, ok := handler.ParamID(c, "id", "patient")
	if !ok {
		return
	}

	patient, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}

	handler.OK(c, patient)
}

// ListPatients supports a case-insensitive name search through ?search=.
func (h *Handler) ListPatients(c *gin.Context) {
	pagination, ok := handler.QueryPagination(c)
	if !ok {
		return
	}

	patients, err := h.service.List(c.Request.Context(), &model.PatientFilter{
		Search:     c.Query("search"),
		Pagination: pagination,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	handler.OK(c, patients)
}

func (h *Handler) UpdatePatient(c *gin.Context) {
	id, ok := handler.ParamID(c, "id", "patient")
	if !ok {
		return
	}

	var req model.UpdatePatientRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	patient, err := h.service.Update(c.Request.Context(), id, &req)
	if err != nil {
		_ = c.Error(err)
		return
	}

	handler.OK(c, patient)
}

func (h *Handler) DeletePatient(c *gin.Context) {
	id, ok := handler.ParamID(c, "id", "patient")
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		_ = c.Error(err)
		return
	}

	handler.Message(c, "patient deleted")
}

func (h *Handler) ListUnpaidAppointments(c *gin.Context) {
	id, ok := handler.ParamID(c, "id", "patient")
	if !ok {
		return
	}

	ids, err := h.payments.ListUnpaidAppointments(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}

	handler.OK(c, ids)
}
