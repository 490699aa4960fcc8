package response

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/teamloop/teamloop/pkg/apperr"
)

// Envelope is the uniform response body for every endpoint
type Envelope struct {
	Success bool                `json:"success"`
	Data    interface{}         `json:"data,omitempty"`
	Message string              `json:"message,omitempty"`
	Errors  []apperr.FieldError `json:"errors,omitempty"`
}

// OK writes a success envelope with the given status
func OK(c echo.Context, status int, data interface{}) error {
	return c.JSON(status, Envelope{Success: true, Data: data})
}

// Message writes a success envelope carrying only a message
func Message(c echo.Context, status int, message string) error {
	return c.JSON(status, Envelope{Success: true, Message: message})
}

// ErrorHandler returns the central echo error handler that maps typed
// application errors onto the envelope. Unexpected errors are logged and
// answered as opaque 500s so no internals leak to the client.
func ErrorHandler(log *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			if appErr.Code == apperr.CodeInternal {
				log.Error("internal error",
					zap.String("path", c.Request().URL.Path),
					zap.Error(err))
			}
			_ = c.JSON(appErr.HTTPStatus(), Envelope{
				Success: false,
				Message: appErr.Message,
				Errors:  appErr.Fields,
			})
			return
		}

		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			msg, ok := httpErr.Message.(string)
			if !ok {
				msg = http.StatusText(httpErr.Code)
			}
			_ = c.JSON(httpErr.Code, Envelope{Success: false, Message: msg})
			return
		}

		log.Error("unhandled error",
			zap.String("path", c.Request().URL.Path),
			zap.Error(err))
		_ = c.JSON(http.StatusInternalServerError, Envelope{
			Success: false,
			Message: "internal server error",
		})
	}
}
