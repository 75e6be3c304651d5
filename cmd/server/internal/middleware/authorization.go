package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sweetmon/triage-api/cmd/server/internal/models"
	"github.com/sweetmon/triage-api/internal/logger"
	"github.com/sweetmon/triage-api/internal/types"
)

var errUnauthorized = echo.NewHTTPError(http.StatusUnauthorized, types.StringError("Unauthorized"))

// The operator key stored under "auth" must hold every permission set on `needed`
func HasPermissions(needed models.Permissions) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, span := tracer.Start(c.Request().Context(), "HasPermissions")
			defer span.End()

			auth, ok := c.Get("auth").(*models.Auth)
			if !ok {
				logger.Logger.WarnContext(ctx, "no operator key on request")
				span.RecordError(nil)
				span.SetStatus(codes.Error, "failed to get auth object")
				return errUnauthorized
			}

			span.SetAttributes(attribute.String("auth.id", auth.ID.String()))

			if missing := auth.Permissions.Missing(needed); len(missing) != 0 {
				logger.Logger.InfoContext(ctx, "operator key lacks permissions",
					"authID", auth.ID,
					"note", auth.Note,
					"missing", missing,
				)
				span.AddEvent("missing permissions", trace.WithAttributes(
					attribute.StringSlice("missing", missing),
				))
				span.RecordError(nil)
				span.SetStatus(codes.Ok, "unauthorized")
				return errUnauthorized
			}

			span.RecordError(nil)
			span.SetStatus(codes.Ok, "checked permissions")
			return next(c)
		}
	}
}
