package admin

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/sweetmon/triage-api/cmd/server/internal/response"
	"github.com/sweetmon/triage-api/internal/types"
)

// UpdateEmailBot stores the SMTP account the owner's alerts are sent from
//
//	@Summary	Update Email Bot
//	@Tags		admin
//	@Accept		json
//	@Produce	json
//	@Security	BasicAuth
//	@Param		owner_id	path		string					true	"Owner ID"	Format(uuid)
//	@Param		payload		body		types.EmailBotConfig	true	"Bot"
//	@Success	200			{object}	types.ChannelResponse
//	@Failure	400			{object}	types.Error
//	@Failure	404			{object}	types.Error
//	@Router		/admin/owner/{owner_id}/email-bot/ [put]
func (h *Handler) UpdateEmailBot(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "UpdateEmailBot")
	defer span.End()

	owner, err := ownerFromContext(c, span)
	if err != nil {
		return err
	}

	var rdata types.EmailBotConfig
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

	botID, err := h.accounts.OnEmailBotUpdated(ctx, owner.ID, rdata)
	if err != nil {
		return accountError(span, err)
	}

	span.SetAttributes(attribute.String("bot.id", botID.String()))
	span.RecordError(nil)
	span.SetStatus(codes.Ok, "updated email bot")
	return c.JSON(http.StatusOK, types.ChannelResponse{ID: botID.String()})
}

// UpdateTelegramBot
//
//	@Summary	Update Telegram Bot
//	@Tags		admin
//	@Accept		json
//	@Produce	json
//	@Security	BasicAuth
//	@Param		owner_id	path		string					true	"Owner ID"	Format(uuid)
//	@Param		payload		body		types.TelegramBotConfig	true	"Bot"
//	@Success	200			{object}	types.ChannelResponse
//	@Failure	400			{object}	types.Error
//	@Failure	404			{object}	types.Error
//	@Router		/admin/owner/{owner_id}/telegram-bot/ [put]
func (h *Handler) UpdateTelegramBot(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "UpdateTelegramBot")
	defer span.End()

	owner, err := ownerFromContext(c, span)
	if err != nil {
		return err
	}

	var rdata types.TelegramBotConfig
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

	botID, err := h.accounts.OnTelegramBotUpdated(ctx, owner.ID, rdata)
	if err != nil {
		return accountError(span, err)
	}

	span.SetAttributes(attribute.String("bot.id", botID.String()))
	span.RecordError(nil)
	span.SetStatus(codes.Ok, "updated telegram bot")
	return c.JSON(http.StatusOK, types.ChannelResponse{ID: botID.String()})
}

// UseSharedChannel links a bot the owner does not own. Only public bots are allowed
//
//	@Summary	Use Shared Channel
//	@Tags		admin
//	@Accept		json
//	@Security	BasicAuth
//	@Param		owner_id	path	string				true	"Owner ID"	Format(uuid)
//	@Param		payload		body	types.SharedChannel	true	"Channel"
//	@Success	204
//	@Failure	400	{object}	types.Error
//	@Failure	403	{object}	types.Error
//	@Failure	404	{object}	types.Error
//	@Router		/admin/owner/{owner_id}/shared-channel/ [put]
func (h *Handler) UseSharedChannel(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "UseSharedChannel")
	defer span.End()

	owner, err := ownerFromContext(c, span)
	if err != nil {
		return err
	}

	var rdata types.SharedChannel
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

	// validated above
	botID := uuid.MustParse(rdata.BotID)

	if err := h.accounts.UseSharedChannel(ctx, owner.ID, rdata.Channel, botID); err != nil {
		return accountError(span, err)
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "linked channel")
	return c.NoContent(http.StatusNoContent)
}
