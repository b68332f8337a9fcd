package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	apperrors "github.com/salonhq/booking-api/pkg/errors"
)

func respondWith(err error) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	Error(c, err)
	return w
}

func TestErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"not found", apperrors.NotFound("appointment", nil), http.StatusNotFound},
		{"bad request", apperrors.BadRequest("Invalid PIN code", nil), http.StatusBadRequest},
		{"unauthorized", apperrors.Unauthorized("not yours", nil), http.StatusUnauthorized},
		{"conflict", apperrors.Conflict("time slot is no longer available", nil), http.StatusConflict},
		{"internal", apperrors.Internal(errors.New("boom")), http.StatusInternalServerError},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := respondWith(tt.err)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestErrorHidesInternalDetails(t *testing.T) {
	w := respondWith(fmt.Errorf("pq: connection refused"))
	assert.NotContains(t, w.Body.String(), "connection refused")
	assert.Contains(t, w.Body.String(), "internal server error")
}

func TestErrorUnwrapsNestedAppError(t *testing.T) {
	wrapped := fmt.Errorf("booking: %w", apperrors.Conflict("time slot is no longer available", nil))
	w := respondWith(wrapped)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "time slot is no longer available")
}
