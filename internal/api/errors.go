package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/mospeada/internal/pipeline"
)

var ErrInvalidRequest = errors.New("invalid_request")

type invalidRequestError struct {
	msg string
}

func (e invalidRequestError) Error() string {
	return e.msg
}

func (e invalidRequestError) Unwrap() error {
	return ErrInvalidRequest
}

func newInvalidRequest(msg string) error {
	return invalidRequestError{msg: msg}
}

// statusFor maps a handler error to an HTTP status and OpenAI error type.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, pipeline.ErrEmptyPrompt),
		errors.Is(err, pipeline.ErrNoTemplate):
		return http.StatusBadRequest, "invalid_request_error"
	default:
		return http.StatusInternalServerError, "server_error"
	}
}

func writeBadRequest(c *echo.Context, msg string) error {
	return writeError(c, http.StatusBadRequest, "invalid_request_error", msg)
}

func writeError(c *echo.Context, status int, errType, msg string) error {
	return c.JSON(status, map[string]ErrorBody{
		"error": {Message: msg, Type: errType},
	})
}

func writeErr(c *echo.Context, err error) error {
	status, typ := statusFor(err)
	return writeError(c, status, typ, err.Error())
}
