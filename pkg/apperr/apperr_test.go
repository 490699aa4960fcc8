package apperr

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err    *Error
		status int
	}{
		{Validation("bad input"), http.StatusBadRequest},
		{Unauthorized("no token"), http.StatusUnauthorized},
		{Forbidden("not yours"), http.StatusForbidden},
		{NotFound("gone"), http.StatusNotFound},
		{Conflict("duplicate"), http.StatusConflict},
		{Internal("boom"), http.StatusInternalServerError},
		{New("SOMETHING_ELSE", "unknown"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.status, tt.err.HTTPStatus(), "code %s", tt.err.Code)
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(CodeInternal, "database error", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "database error")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestValidationFields(t *testing.T) {
	err := Validation("invalid data",
		FieldError{Field: "email", Message: "email is required"},
		FieldError{Field: "password", Message: "too short"},
	)

	assert.Len(t, err.Fields, 2)
	assert.Equal(t, "email", err.Fields[0].Field)
}

func TestErrorsAsThroughWrapping(t *testing.T) {
	inner := Forbidden("tenant mismatch")
	outer := error(inner)

	var appErr *Error
	assert.True(t, errors.As(outer, &appErr))
	assert.Equal(t, CodeForbidden, appErr.Code)
}
