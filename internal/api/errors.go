package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v5"
	"github.com/samcharles93/boost/internal/boost"
	"github.com/samcharles93/boost/internal/fsm"
	"github.com/samcharles93/boost/internal/samplers"
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

// classify maps a generation error to its HTTP status, error type and code.
func classify(err error) (status int, errType, code string) {
	switch {
	case errors.Is(err, boost.ErrUnsupportedBackend):
		return http.StatusUnprocessableEntity, "unsupported_backend_error", "unsupported_backend"
	case errors.Is(err, fsm.ErrInvalidPattern):
		return http.StatusBadRequest, "invalid_request_error", "invalid_pattern"
	case errors.Is(err, fsm.ErrUnsupportedPattern):
		return http.StatusBadRequest, "invalid_request_error", "unsupported_pattern"
	case errors.Is(err, fsm.ErrUnsatisfiable):
		return http.StatusBadRequest, "invalid_request_error", "unsatisfiable_pattern"
	case errors.Is(err, samplers.ErrInvalidConfig):
		return http.StatusBadRequest, "invalid_request_error", "invalid_sampler"
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request_error", ""
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "server_error", "cancelled"
	case errors.Is(err, boost.ErrInvalidVariant):
		return http.StatusInternalServerError, "server_error", "invalid_variant"
	case errors.Is(err, boost.ErrNoProcessor):
		return http.StatusInternalServerError, "server_error", "integration_not_linked"
	default:
		return http.StatusInternalServerError, "server_error", ""
	}
}

func writeError(c *echo.Context, status int, errType, msg, code string) error {
	return c.JSON(status, ErrorResponse{Error: ErrorBody{
		Message: msg,
		Type:    errType,
		Code:    code,
	}})
}

func writeBadRequest(c *echo.Context, msg string) error {
	return writeError(c, http.StatusBadRequest, "invalid_request_error", msg, "")
}

func writeFailure(c *echo.Context, err error) error {
	status, errType, code := classify(err)
	return writeError(c, status, errType, err.Error(), code)
}
