package payment

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/therapyassist/therapy-api/internal/handler"
	"github.com/therapyassist/therapy-api/internal/model"
	"github.com/therapyassist/therapy-api/internal/receipt"
	"github.com/therapyassist/therapy-api/internal/service/payment"
)

type Handler struct {
	service *payment.Service
}

func NewHandler(service *payment.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	payments := r.Group("/payments")
	{
		payments.GET("", h.ListPayments)
		payments.POST("", h.CreatePayment)
		payments.GET("/statistics/summary", h.GetStatistics)
		payments.GET("/:id", h.GetPayment)
		payments.PATCH("/:id", h.UpdatePayment)
		payments.DELETE("/:id", h.DeletePayment)
		payments.GET("/:id/receipt", h.GetReceipt)
	}
}

// CreatePayment records a payment and marks every covered appointment paid.
func (h *Handler) CreatePayment(c *gin.Context) {
	var req model.CreatePaymentRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	payment, err := h.service.Create(c.Request.Context(), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}

	handler.Created(c, payment)
}

func (h *Handler) GetPayment(c *gin.Context) {
	id, ok := handler.ParamID(c, "id", "payment")
	if !ok {
		return
	}

	payment, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}

	handler.OK(c, payment)
}

func (h *Handler) ListPayments(c *gin.Context) {
	var filter model.PaymentFilter
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
	if raw := c.Query("payment_method"); raw != "" {
		method := model.PaymentMethod(raw)
		filter.Method = &method
	}
	if filter.Pagination, ok = handler.QueryPagination(c); !ok {
		return
	}

	list, err := h.service.List(c.Request.Context(), &filter)
	if err != nil {
		_ = c.Error(err)
		return
	}

	handler.OK(c, list)
}

func (h *Handler) UpdatePayment(c *gin.Context) {
	id, ok := handler.ParamID(c, "id", "payment")
	if !ok {
		return
	}

	var req model.UpdatePaymentRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	payment, err := h.service.Update(c.Request.Context(), id, &req)
	if err != nil {
		_ = c.Error(err)
		return
	}

	handler.OK(c, payment)
}

// DeletePayment removes the payment and returns its appointments to unpaid.
func (h *Handler) DeletePayment(c *gin.Context) {
	id, ok := handler.ParamID(c, "id", "payment")
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		_ = c.Error(err)
		return
	}

	handler.Message(c, "payment deleted")
}

func (h *Handler) GetStatistics(c *gin.Context) {
	from, ok := handler.QueryDate(c, "date_from")
	if !ok {
		return
	}
	to, ok := handler.QueryDate(c, "date_to")
	if !ok {
		return
	}

	stats, err := h.service.Statistics(c.Request.Context(), from, to)
	if err != nil {
		_ = c.Error(err)
		return
	}

	handler.OK(c, stats)
}

func (h *Handler) GetReceipt(c *gin.Context) {
	id, ok := handler.ParamID(c, "id", "payment")
	if !ok {
		return
	}

	payment, doc, err := h.service.Receipt(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", receipt.Filename(payment)))
	c.Data(http.StatusOK, "application/pdf", doc)
}
