package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	apperrors "github.com/therapyassist/therapy-api/pkg/errors"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Status  string                 `json:"status"`
	Code    int                    `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	TraceID string                 `json:"trace_id,omitempty"`
}

func NewErrorResponse(code int, message, traceID string) ErrorResponse {
	return ErrorResponse{Status: "error", Code: code, Message: message, TraceID: traceID}
}

// ErrorHandler renders the last error attached with c.Error. Handlers return
// right after attaching an error and leave the response to this middleware.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only handle errors if they exist
		if len(c.Errors) == 0 {
			return
		}

		traceID := c.GetString(ContextRequestID)
		lastErr := c.Errors.Last()
		resp := errorResponse(lastErr.Err)
		resp.TraceID = traceID

		event := log.Debug()
		if resp.Code >= http.StatusInternalServerError {
			event = log.Error()
		}
		event.
			Err(lastErr.Err).
			Str("trace_id", traceID).
			Str("path", c.Request.URL.Path).
			Str("method", c.Request.Method).
			Str("client_ip", c.ClientIP()).
			Int("status", resp.Code).
			Msg("Request error")

		if c.Writer.Written() {
			return
		}
		c.AbortWithStatusJSON(resp.Code, resp)
	}
}

func errorResponse(err error) ErrorResponse {
	var (
		appErr   *apperrors.AppError
		fieldErr validator.ValidationErrors
		tooLarge *http.MaxBytesError
	)

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewErrorResponse(http.StatusGatewayTimeout, "Request timed out", "")

	case errors.As(err, &appErr):
		code := appErr.StatusCode()
		if code >= http.StatusInternalServerError {
			return NewErrorResponse(code, "Internal server error", "")
		}
		resp := NewErrorResponse(code, appErr.Message, "")
		resp.Details = appErr.Details
		return resp

	case errors.As(err, &fieldErr):
		resp := NewErrorResponse(http.StatusBadRequest, "validation failed", "")
		resp.Details = map[string]interface{}{"fields": fieldErrors(fieldErr)}
		return resp

	case errors.As(err, &tooLarge):
		return NewErrorResponse(http.StatusRequestEntityTooLarge, "Request size exceeds limit", "")

	default:
		return NewErrorResponse(http.StatusInternalServerError, "Internal server error", "")
	}
}
