// Package handler holds the request parsing and response helpers shared by
// the resource handlers. Every helper that fails attaches an error with
// c.Error and reports false; the caller returns immediately and the error
// middleware renders the response.
package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/therapyassist/therapy-api/internal/model"
	apperrors "github.com/therapyassist/therapy-api/pkg/errors"
)

// BindJSON decodes and validates the request body into obj.
func BindJSON(c *gin.Context, obj interface{}) bool {
	err := c.ShouldBindJSON(obj)
	if err == nil {
		return true
	}

	var verrs validator.ValidationErrors
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &verrs):
		_ = c.Error(verrs)
	case errors.As(err, &tooLarge):
		_ = c.Error(tooLarge)
	default:
		_ = c.Error(apperrors.NewBadRequest("invalid request body", err).WithDetail("reason", err.Error()))
	}
	return false
}

// ParamID parses the path parameter name as a UUID.
func ParamID(c *gin.Context, name, resource string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		_ = c.Error(apperrors.NewBadRequest(fmt.Sprintf("invalid %s ID", resource), err))
		return uuid.Nil, false
	}
	return id, true
}

// QueryID parses an optional UUID query parameter.
func QueryID(c *gin.Context, key string) (*uuid.UUID, bool) {
	raw := c.Query(key)
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		_ = c.Error(apperrors.NewBadRequest(fmt.Sprintf("invalid %s", key), err).WithDetail("value", raw))
		return nil, false
	}
	return &id, true
}

// QueryDate parses an optional YYYY-MM-DD query parameter.
func QueryDate(c *gin.Context, key string) (*model.Date, bool) {
	raw := c.Query(key)
	if raw == "" {
		return nil, true
	}
	d, err := model.ParseDate(raw)
	if err != nil {
		_ = c.Error(apperrors.NewBadRequest(fmt.Sprintf("invalid %s, expected YYYY-MM-DD", key), err).WithDetail("value", raw))
		return nil, false
	}
	return &d, true
}

// QueryBool parses an optional boolean query parameter.
func QueryBool(c *gin.Context, key string) (*bool, bool) {
	raw := c.Query(key)
	if raw == "" {
		return nil, true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		_ = c.Error(apperrors.NewBadRequest(fmt.Sprintf("invalid %s", key), err).WithDetail("value", raw))
		return nil, false
	}
	return &v, true
}

// QueryPagination reads skip and limit. Limits outside [1, MaxPageLimit] are rejected.
func QueryPagination(c *gin.Context) (model.Pagination, bool) {
	var p model.Pagination
	if raw := c.Query("skip"); raw != "" {
		skip, err := strconv.Atoi(raw)
		if err != nil || skip < 0 {
			_ = c.Error(apperrors.NewBadRequest("skip must be a non-negative integer", err).WithDetail("value", raw))
			return p, false
		}
		p.Skip = skip
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > model.MaxPageLimit {
			_ = c.Error(apperrors.NewBadRequest(fmt.Sprintf("limit must be between 1 and %d", model.MaxPageLimit), err).WithDetail("value", raw))
			return p, false
		}
		p.Limit = limit
	}
	return p.Normalize(), true
}
