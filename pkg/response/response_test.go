package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/teamloop/teamloop/pkg/apperr"
)

func handleErr(t *testing.T, err error) (int, Envelope) {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	ErrorHandler(zap.NewNop())(err, c)

	var env Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec.Code, env
}

func TestErrorHandlerMapsAppErrors(t *testing.T) {
	status, env := handleErr(t, apperr.Forbidden("access denied"))

	assert.Equal(t, http.StatusForbidden, status)
	assert.False(t, env.Success)
	assert.Equal(t, "access denied", env.Message)
}

func TestErrorHandlerCarriesFieldErrors(t *testing.T) {
	status, env := handleErr(t, apperr.Validation("invalid data",
		apperr.FieldError{Field: "email", Message: "email is required"}))

	assert.Equal(t, http.StatusBadRequest, status)
	require.Len(t, env.Errors, 1)
	assert.Equal(t, "email", env.Errors[0].Field)
}

func TestErrorHandlerHidesInternals(t *testing.T) {
	status, env := handleErr(t, errors.New("pq: password authentication failed"))

	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "internal server error", env.Message)
	assert.NotContains(t, env.Message, "pq:")
}

func TestErrorHandlerMapsEchoErrors(t *testing.T) {
	status, env := handleErr(t, echo.NewHTTPError(http.StatusNotFound, "Not Found"))

	assert.Equal(t, http.StatusNotFound, status)
	assert.False(t, env.Success)
}
