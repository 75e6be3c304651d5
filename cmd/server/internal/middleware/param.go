package middleware

import (
	"errors"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/sweetmon/triage-api/cmd/server/internal/models"
	"github.com/sweetmon/triage-api/cmd/server/internal/response"
	"github.com/sweetmon/triage-api/internal/logger"
)

// PopulateOwner resolves the owner named by the `paramName` path parameter and stores it under
// "owner". Malformed and unknown ids are both a 404 so callers cannot probe for owners.
func PopulateOwner(h *Handler, paramName string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			rawID := c.Param(paramName)
			ctx, span := tracer.Start(c.Request().Context(), "PopulateOwner", trace.WithAttributes(
				attribute.String("owner.rawID", rawID),
			))
			defer span.End()

			id, err := uuid.Parse(rawID)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "owner id is not a uuid")
				return response.NotFoundError
			}

			owner, err := models.ByID[models.Owner](ctx, h.DB.WithContext(ctx), id)
			if errors.Is(err, gorm.ErrRecordNotFound) {
				span.RecordError(err)
				span.SetStatus(codes.Error, "owner does not exist")
				return response.NotFoundError
			}
			if err != nil {
				logger.Logger.ErrorContext(ctx, "failed to load owner", "ownerID", id, "error", err)
				span.RecordError(err)
				span.SetStatus(codes.Error, "failed to load owner")
				return response.InternalServerError
			}

			span.SetAttributes(attribute.String("owner.username", owner.Username))
			c.Set("owner", owner)

			span.RecordError(nil)
			span.SetStatus(codes.Ok, "populated owner")
			return next(c)
		}
	}
}
