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
	"github.com/sweetmon/triage-api/cmd/server/internal/testcases"
	"github.com/sweetmon/triage-api/internal/types"
	"github.com/sweetmon/triage-api/internal/validator"
)

func decodeOptional(field string, encoded *string, fits func(int) bool) ([]byte, error) {
	if encoded == nil {
		return nil, nil
	}
	if !fits(len(*encoded)) {
		return nil, response.FieldError("validation error", field, "too large")
	}
	data, err := base64.StdEncoding.DecodeString(*encoded)
	if err != nil {
		return nil, response.FieldError("failed to decode base64", field, "must be valid base64")
	}
	return data, nil
}

// SubmitTestcase stores a testcase and the fuzzer that produced it
//
//	@Summary		Submit Testcase
//	@Description	store a testcase and fuzzer under randomized names
//	@Tags			testcase
//	@Accept			json
//	@Produce		json
//
//	@Security		BasicAuth
//
//	@Param			payload	body		types.TestcaseSubmission	true	"Submission body"
//
//	@Success		200		{object}	types.TestcaseSubmissionResponse
//
//	@Failure		400		{object}	types.Error
//	@Failure		401		{object}	types.Error
//	@Failure		500		{object}	types.Error
//
//	@Router			/v1/testcase/ [post]
func (h *Handler) SubmitTestcase(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "SubmitTestcase")
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

	var rdata types.TestcaseSubmission
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

	testcase, err := decodeOptional("testcase", rdata.Testcase, validator.ValidateTestcaseSize)
	if err != nil {
		span.SetStatus(codes.Ok, "bad testcase")
		span.RecordError(err)
		return err
	}
	fuzzer, err := decodeOptional("fuzzer", rdata.Fuzzer, validator.ValidateFuzzerSize)
	if err != nil {
		span.SetStatus(codes.Ok, "bad fuzzer")
		span.RecordError(err)
		return err
	}

	id, err := h.testcases.Submit(ctx, testcases.Submission{
		OwnerID:     machine.OwnerID,
		MachineID:   machine.ID,
		Title:       rdata.Title,
		FuzzerName:  rdata.FuzzerName,
		Target:      rdata.Target,
		Description: rdata.Description,
		TestcaseURL: rdata.TestcaseURL,
		FuzzerURL:   rdata.FuzzerURL,
		Testcase:    testcase,
		Fuzzer:      fuzzer,
	})
	if err != nil {
		span.RecordError(err)

		var authErr ingest.AuthError
		if errors.As(err, &authErr) {
			span.SetStatus(codes.Ok, "submission not authorized")
			return response.UnauthorizedError
		}

		span.SetStatus(codes.Error, "failed to record testcase")
		return response.InternalServerError
	}

	span.SetAttributes(attribute.String("testcase.id", id.String()))
	span.RecordError(nil)
	span.SetStatus(codes.Ok, "recorded testcase")
	return c.JSON(http.StatusOK, types.TestcaseSubmissionResponse{TestcaseID: id.String()})
}
