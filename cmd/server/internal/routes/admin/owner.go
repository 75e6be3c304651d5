package admin

import (
	"encoding/base64"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/sweetmon/triage-api/cmd/server/internal/response"
	"github.com/sweetmon/triage-api/internal/types"
	"github.com/sweetmon/triage-api/internal/validator"
)

// CreateOwner provisions an owner and returns its registration key
//
//	@Summary		Create Owner
//	@Tags			admin
//	@Accept			json
//	@Produce		json
//	@Security		BasicAuth
//	@Param			payload	body		types.OwnerCreate	true	"Owner"
//	@Success		200		{object}	types.OwnerCreateResponse
//	@Failure		400		{object}	types.Error
//	@Failure		401		{object}	types.Error
//	@Failure		409		{object}	types.Error
//	@Router			/admin/owner/ [post]
func (h *Handler) CreateOwner(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "CreateOwner")
	defer span.End()

	var rdata types.OwnerCreate
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

	owner, key, err := h.accounts.OnOwnerCreated(ctx, rdata)
	if err != nil {
		return accountError(span, err)
	}

	span.SetAttributes(attribute.String("owner.id", owner.ID.String()))
	span.RecordError(nil)
	span.SetStatus(codes.Ok, "created owner")
	return c.JSON(http.StatusOK, types.OwnerCreateResponse{
		OwnerID:         owner.ID.String(),
		RegistrationKey: key,
	})
}

// RotateRegistrationKey
//
//	@Summary	Rotate Registration Key
//	@Tags		admin
//	@Produce	json
//	@Security	BasicAuth
//	@Param		owner_id	path		string	true	"Owner ID"	Format(uuid)
//	@Success	200			{object}	types.RegistrationKeyResponse
//	@Failure	404			{object}	types.Error
//	@Router		/admin/owner/{owner_id}/registration-key/ [post]
func (h *Handler) RotateRegistrationKey(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "RotateRegistrationKey")
	defer span.End()

	owner, err := ownerFromContext(c, span)
	if err != nil {
		return err
	}

	key, err := h.accounts.RotateRegistrationKey(ctx, owner.ID)
	if err != nil {
		return accountError(span, err)
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "rotated registration key")
	return c.JSON(http.StatusOK, types.RegistrationKeyResponse{RegistrationKey: key})
}

// UpdatePreferences changes only the fields present in the body
//
//	@Summary	Update Notification Preferences
//	@Tags		admin
//	@Accept		json
//	@Security	BasicAuth
//	@Param		owner_id	path	string							true	"Owner ID"	Format(uuid)
//	@Param		payload		body	types.NotificationPreferences	true	"Preferences"
//	@Success	204
//	@Failure	400	{object}	types.Error
//	@Failure	404	{object}	types.Error
//	@Router		/admin/owner/{owner_id}/preferences/ [put]
func (h *Handler) UpdatePreferences(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "UpdatePreferences")
	defer span.End()

	owner, err := ownerFromContext(c, span)
	if err != nil {
		return err
	}

	var rdata types.NotificationPreferences
	if err := c.Bind(&rdata); err != nil {
		span.SetStatus(codes.Ok, "failed to parse request data")
		span.RecordError(err)
		return response.BadRequest("failed to parse request data")
	}

	if email, _ := rdata.Email.Get(); email != "" {
		if err := c.Validate(struct {
			Email string `json:"email" validate:"email"`
		}{email}); err != nil {
			span.SetStatus(codes.Ok, "failed to validate request data")
			span.RecordError(err)
			return echo.NewHTTPError(http.StatusBadRequest, types.ValidationError(err))
		}
	}

	if err := h.accounts.UpdateNotificationPreferences(ctx, owner.ID, rdata); err != nil {
		return accountError(span, err)
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "updated preferences")
	return c.NoContent(http.StatusNoContent)
}

// SetProfileImage
//
//	@Summary	Set Profile Image
//	@Tags		admin
//	@Accept		json
//	@Security	BasicAuth
//	@Param		owner_id	path	string				true	"Owner ID"	Format(uuid)
//	@Param		payload		body	types.ProfileImage	true	"Image"
//	@Success	204
//	@Failure	400	{object}	types.Error
//	@Failure	404	{object}	types.Error
//	@Router		/admin/owner/{owner_id}/image/ [put]
func (h *Handler) SetProfileImage(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "SetProfileImage")
	defer span.End()

	owner, err := ownerFromContext(c, span)
	if err != nil {
		return err
	}

	var rdata types.ProfileImage
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

	if !validator.ValidateImageSize(len(rdata.Image)) {
		span.SetStatus(codes.Ok, "image too large")
		span.RecordError(nil)
		return response.FieldError("validation error", "image", "must be <= 2mb")
	}

	image, err := base64.StdEncoding.DecodeString(rdata.Image)
	if err != nil {
		span.SetStatus(codes.Ok, "failed to decode image")
		span.RecordError(err)
		return response.FieldError("failed to decode base64", "image", "must be valid base64")
	}

	if _, err := h.accounts.SetProfileImage(ctx, owner.ID, image); err != nil {
		return accountError(span, err)
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "stored image")
	return c.NoContent(http.StatusNoContent)
}
