package response

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sweetmon/triage-api/internal/types"
)

var (
	InternalServerError = echo.NewHTTPError(
		http.StatusInternalServerError,
		types.StringError("something went wrong"),
	)
	NotFoundError     = echo.NewHTTPError(http.StatusNotFound, types.StringError("not found"))
	UnauthorizedError = echo.NewHTTPError(http.StatusUnauthorized, types.StringError("Unauthorized"))
	ForbiddenError    = echo.NewHTTPError(http.StatusForbidden, types.StringError("forbidden"))
	ConflictError     = echo.NewHTTPError(http.StatusConflict, types.StringError("already exists"))
)

func BadRequest(message string) *echo.HTTPError {
	return echo.NewHTTPError(http.StatusBadRequest, types.StringError(message))
}

// Single field validation failure in the same shape the validator produces
func FieldError(message, field, problem string) *echo.HTTPError {
	return echo.NewHTTPError(
		http.StatusBadRequest,
		types.Error{Message: message, Fields: &map[string]string{field: problem}},
	)
}
