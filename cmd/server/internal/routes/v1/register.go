package v1

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/sweetmon/triage-api/cmd/server/internal/accounts"
	"github.com/sweetmon/triage-api/cmd/server/internal/response"
	"github.com/sweetmon/triage-api/internal/types"
)

// RegisterMachine trades an owner's registration key for machine credentials
//
//	@Summary		Register Machine
//	@Description	bind a new fuzzing machine to the owner of the registration key
//	@Tags			machine
//	@Accept			json
//	@Produce		json
//
//	@Param			payload	body		types.MachineRegistration	true	"Registration body"
//
//	@Success		200		{object}	types.MachineRegistrationResponse
//
//	@Failure		400		{object}	types.Error
//	@Failure		401		{object}	types.Error
//	@Failure		429		{object}	types.Error
//	@Failure		500		{object}	types.Error
//
//	@Router			/machine/register/ [post]
func (h *Handler) RegisterMachine(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "RegisterMachine")
	defer span.End()

	var rdata types.MachineRegistration
	if err := c.Bind(&rdata); err != nil {
		span.SetStatus(codes.Ok, "failed to parse request data")
		span.RecordError(err)
		return response.BadRequest("failed to parse request data")
	}

	if err := c.Validate(rdata); err != nil {
		span.SetStatus(codes.Ok, "failed to validate request data")
		span.RecordError(err)
		return echo.NewHTTPError(http.StatusBadRequest, types.ValidationError(err))
	}

	if rdata.PubIP == "" {
		rdata.PubIP = c.RealIP()
	}
	span.SetAttributes(attribute.String("pub_ip", rdata.PubIP))

	machineID, token, err := h.accounts.RegisterMachine(ctx, rdata)
	if errors.Is(err, accounts.ErrInvalidRegistrationKey) {
		span.RecordError(err)
		span.SetStatus(codes.Ok, "invalid registration key")
		return response.UnauthorizedError
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to register machine")
		return response.InternalServerError
	}

	span.SetAttributes(attribute.String("machine.id", machineID.String()))
	span.RecordError(nil)
	span.SetStatus(codes.Ok, "registered machine")
	return c.JSON(http.StatusOK, types.MachineRegistrationResponse{
		MachineID: machineID.String(),
		Token:     token,
	})
}
