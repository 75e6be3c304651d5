package v1

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	srverr "github.com/sweetmon/triage-api/cmd/server/internal/error"
	"github.com/sweetmon/triage-api/cmd/server/internal/ingest"
	"github.com/sweetmon/triage-api/cmd/server/internal/models"
	"github.com/sweetmon/triage-api/cmd/server/internal/response"
	"github.com/sweetmon/triage-api/internal/types"
	"github.com/sweetmon/triage-api/internal/validator"
)

// SubmitCrash records a crash for the machine's owner
//
//	@Summary		Submit Crash
//	@Description	deduplicate a crash by its normalized log and store the crashing input
//	@Tags			crash
//	@Accept			json
//	@Produce		json
//
//	@Security		BasicAuth
//
//	@Param			payload	body		types.CrashSubmission	true	"Submission body"
//
//	@Success		200		{object}	types.CrashSubmissionResponse
//
//	@Failure		400		{object}	types.Error
//	@Failure		401		{object}	types.Error
//	@Failure		500		{object}	types.Error
//
//	@Router			/v1/crash/ [post]
func (h *Handler) SubmitCrash(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "SubmitCrash")
	defer span.End()

	span.AddEvent("received crash submission request")

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

	var rdata types.CrashSubmission

	span.AddEvent("parsing request body")
	if err := c.Bind(&rdata); err != nil {
		span.SetStatus(codes.Ok, "failed to parse request data")
		span.RecordError(err)
		return response.BadRequest("failed to parse request data")
	}

	span.AddEvent("validating request body")
	if err := c.Validate(rdata); err != nil {
		span.SetStatus(codes.Ok, "failed to validate request data")
		span.RecordError(err)
		return echo.NewHTTPError(http.StatusBadRequest, types.ValidationError(err))
	}

	maxBytes := h.config.Ingest.MaxArtifactBytes
	if !validator.ValidateArtifactSize(len(rdata.Artifact), maxBytes) {
		span.SetStatus(codes.Ok, "artifact was too large")
		span.RecordError(nil)
		return response.FieldError(
			"validation error",
			"artifact",
			fmt.Sprintf("must be <= %d bytes", maxBytes),
		)
	}

	span.AddEvent("decoding artifact base64")
	data, err := base64.StdEncoding.DecodeString(rdata.Artifact)
	if err != nil {
		span.SetStatus(codes.Ok, "failed to decode artifact")
		span.RecordError(err)
		return response.FieldError("failed to decode base64", "artifact", "must be valid base64")
	}

	result, err := h.pipeline.Submit(ctx, ingest.Submission{
		OwnerID:     machine.OwnerID,
		MachineID:   &machine.ID,
		Title:       rdata.Title,
		CrashLog:    rdata.CrashLog,
		Artifact:    data,
		Filename:    rdata.Filename,
		IsEncrypted: rdata.IsEncrypted,
		ReceivedAt:  receivedAt(c),
	})
	if err != nil {
		span.RecordError(err)

		var authErr ingest.AuthError
		if errors.As(err, &authErr) {
			span.SetStatus(codes.Ok, "submission not authorized")
			return response.UnauthorizedError
		}

		span.SetStatus(codes.Error, "failed to record crash")
		return response.InternalServerError
	}

	span.SetAttributes(
		attribute.String("crash.id", result.RecordID.String()),
		attribute.Bool("crash.new", result.IsNew),
	)

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "recorded crash")
	return c.JSON(http.StatusOK, types.CrashSubmissionResponse{
		CrashID:     result.RecordID.String(),
		CanonicalID: result.CanonicalID.String(),
		Fingerprint: result.Fingerprint,
		IsNew:       result.IsNew,
	})
}
