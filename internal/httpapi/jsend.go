package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// envelope is the jsend shape every endpoint answers with. RequestID echoes
// the X-Request-ID set by the middleware so operators can grep the logs.
type envelope struct {
	Status    string `json:"status"`
	Data      any    `json:"data,omitempty"`
	Message   string `json:"message,omitempty"`
	Code      int    `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func respond(c echo.Context, code int, body envelope) error {
	body.RequestID = c.Response().Header().Get(echo.HeaderXRequestID)
	return c.JSON(code, body)
}

func success(c echo.Context, data any) error {
	return respond(c, http.StatusOK, envelope{Status: "success", Data: data})
}

func fail(c echo.Context, code int, message string, data any) error {
	return respond(c, code, envelope{Status: "fail", Message: message, Data: data})
}

func failValidation(c echo.Context, fieldErrors map[string]string) error {
	return fail(c, http.StatusBadRequest, "Validation failed", map[string]any{
		"validation_errors": fieldErrors,
	})
}

func failNotFound(c echo.Context, message string) error {
	return fail(c, http.StatusNotFound, message, nil)
}

func failUnavailable(c echo.Context, message string) error {
	return fail(c, http.StatusServiceUnavailable, message, nil)
}

func internalError(c echo.Context, message string) error {
	return respond(c, http.StatusInternalServerError, envelope{
		Status:  "error",
		Message: message,
		Code:    http.StatusInternalServerError,
	})
}
