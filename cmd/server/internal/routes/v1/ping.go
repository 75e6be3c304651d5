package v1

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	srverr "github.com/sweetmon/triage-api/cmd/server/internal/error"
	"github.com/sweetmon/triage-api/cmd/server/internal/models"
	"github.com/sweetmon/triage-api/cmd/server/internal/response"
	"github.com/sweetmon/triage-api/internal/types"
)

// Ping godoc
//
//	@Summary		Heartbeat
//	@Description	Records that the machine is alive, optionally with its current addresses
//	@Tags			machine
//	@Produce		json
//	@Security		BasicAuth
//	@Param			pub_ip	query		string	false	"Public address"
//	@Param			pri_ip	query		string	false	"Private address"
//	@Success		200		{object}	types.PingResponse
//	@Failure		400		{object}	types.Error
//	@Failure		401		{object}	types.Error
//	@Failure		500		{object}	types.Error
//	@Router			/v1/ping/ [get]
func (h *Handler) Ping(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "Ping")
	defer span.End()

	machine, ok := c.Get("machine").(*models.Machine)
	if !ok {
		span.RecordError(srverr.ErrTypeAssertMismatch)
		span.SetStatus(codes.Error, fmt.Sprintf("machine: %s", srverr.ErrTypeAssertMismatch))
		return response.InternalServerError
	}

	span.SetAttributes(
		attribute.String("machine.id", machine.ID.String()),
		attribute.String("owner.id", machine.OwnerID.String()),
	)

	var hb types.Heartbeat
	if err := c.Bind(&hb); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Ok, "failed to parse request data")
		return response.BadRequest("failed to parse request data")
	}
	if err := c.Validate(hb); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Ok, "failed to validate request data")
		return echo.NewHTTPError(http.StatusBadRequest, types.ValidationError(err))
	}

	span.AddEvent("received ping")
	if err := h.accounts.Heartbeat(ctx, machine.ID, hb); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to record heartbeat")
		return response.InternalServerError
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "")
	return c.JSON(http.StatusOK, types.PingResponse{Status: "ready", MachineID: machine.ID.String()})
}
