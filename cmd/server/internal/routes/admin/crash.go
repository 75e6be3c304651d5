package admin

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sweetmon/triage-api/cmd/server/internal/response"
	"github.com/sweetmon/triage-api/internal/types"
)

func crashIDParam(c echo.Context, span trace.Span) (uuid.UUID, error) {
	crashID, err := uuid.Parse(c.Param("crash_id"))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Ok, "malformed crash id")
		return uuid.Nil, response.NotFoundError
	}
	span.SetAttributes(attribute.String("crash.id", crashID.String()))
	return crashID, nil
}

// GetCrash
//
//	@Summary	Get Crash
//	@Tags		admin
//	@Produce	json
//	@Security	BasicAuth
//	@Param		owner_id	path		string	true	"Owner ID"	Format(uuid)
//	@Param		crash_id	path		string	true	"Crash ID"	Format(uuid)
//	@Success	200			{object}	types.Crash
//	@Failure	404			{object}	types.Error
//	@Router		/admin/owner/{owner_id}/crash/{crash_id}/ [get]
func (h *Handler) GetCrash(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "GetCrash")
	defer span.End()

	owner, err := ownerFromContext(c, span)
	if err != nil {
		return err
	}
	crashID, err := crashIDParam(c, span)
	if err != nil {
		return err
	}

	crash, err := h.accounts.Crash(ctx, owner.ID, crashID)
	if err != nil {
		return accountError(span, err)
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "loaded crash")
	return c.JSON(http.StatusOK, crash)
}

// SetCrashComment replaces the comment. An empty comment clears it
//
//	@Summary	Set Crash Comment
//	@Tags		admin
//	@Accept		json
//	@Produce	json
//	@Security	BasicAuth
//	@Param		owner_id	path		string				true	"Owner ID"	Format(uuid)
//	@Param		crash_id	path		string				true	"Crash ID"	Format(uuid)
//	@Param		payload		body		types.CrashComment	true	"Comment"
//	@Success	200			{object}	types.Crash
//	@Failure	400			{object}	types.Error
//	@Failure	404			{object}	types.Error
//	@Router		/admin/owner/{owner_id}/crash/{crash_id}/comment/ [put]
func (h *Handler) SetCrashComment(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "SetCrashComment")
	defer span.End()

	owner, err := ownerFromContext(c, span)
	if err != nil {
		return err
	}
	crashID, err := crashIDParam(c, span)
	if err != nil {
		return err
	}

	var rdata types.CrashComment
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

	crash, err := h.accounts.SetCrashComment(ctx, owner.ID, crashID, rdata.Comment)
	if err != nil {
		return accountError(span, err)
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "set comment")
	return c.JSON(http.StatusOK, crash)
}

// IssueDownloadToken hands out a single use link to the crash artifact
//
//	@Summary	Issue Download Token
//	@Tags		admin
//	@Accept		json
//	@Produce	json
//	@Security	BasicAuth
//	@Param		owner_id	path		string						true	"Owner ID"	Format(uuid)
//	@Param		payload		body		types.DownloadTokenRequest	true	"Crash"
//	@Success	200			{object}	types.DownloadTokenResponse
//	@Failure	400			{object}	types.Error
//	@Failure	404			{object}	types.Error
//	@Router		/admin/owner/{owner_id}/download-token/ [post]
func (h *Handler) IssueDownloadToken(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "IssueDownloadToken")
	defer span.End()

	owner, err := ownerFromContext(c, span)
	if err != nil {
		return err
	}

	var rdata types.DownloadTokenRequest
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
	crashID := uuid.MustParse(rdata.CrashID)
	span.SetAttributes(attribute.String("crash.id", crashID.String()))

	token, expiresAt, err := h.accounts.IssueDownloadToken(ctx, owner.ID, crashID)
	if err != nil {
		return accountError(span, err)
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "issued token")
	return c.JSON(http.StatusOK, types.DownloadTokenResponse{
		Token:     token,
		ExpiresAt: types.NewUnixMilli(expiresAt),
	})
}
