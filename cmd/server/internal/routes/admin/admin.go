package admin

import (
	"errors"
	"fmt"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sweetmon/triage-api/cmd/server/internal/accounts"
	srverr "github.com/sweetmon/triage-api/cmd/server/internal/error"
	servermiddleware "github.com/sweetmon/triage-api/cmd/server/internal/middleware"
	"github.com/sweetmon/triage-api/cmd/server/internal/models"
	"github.com/sweetmon/triage-api/cmd/server/internal/response"
)

const name = "github.com/sweetmon/triage-api/cmd/server/internal/routes/admin"

var tracer = otel.Tracer(name)

// Operator facing account management
type Handler struct {
	accounts *accounts.Service
}

func Create(accountService *accounts.Service) *Handler {
	return &Handler{accounts: accountService}
}

func (h *Handler) AddRoutes(e *echo.Echo, middlewareHandler *servermiddleware.Handler) {
	adminGroup := e.Group("/admin", middleware.BasicAuth(middlewareHandler.AdminAuthValidator))

	manage := servermiddleware.HasPermissions(models.Permissions{AccountManagement: true})
	crashAccess := servermiddleware.HasPermissions(models.Permissions{CrashAccess: true})

	adminGroup.POST("/owner/", h.CreateOwner, manage)

	ownerGroup := adminGroup.Group(
		"/owner/:owner_id",
		servermiddleware.PopulateOwner(middlewareHandler, "owner_id"),
	)

	ownerGroup.POST("/registration-key/", h.RotateRegistrationKey, manage)
	ownerGroup.PUT("/preferences/", h.UpdatePreferences, manage)
	ownerGroup.PUT("/image/", h.SetProfileImage, manage)
	ownerGroup.PUT("/email-bot/", h.UpdateEmailBot, manage)
	ownerGroup.PUT("/telegram-bot/", h.UpdateTelegramBot, manage)
	ownerGroup.PUT("/shared-channel/", h.UseSharedChannel, manage)

	ownerGroup.GET("/crash/:crash_id/", h.GetCrash, crashAccess)
	ownerGroup.PUT("/crash/:crash_id/comment/", h.SetCrashComment, crashAccess)
	ownerGroup.POST("/download-token/", h.IssueDownloadToken, crashAccess)

	e.GET("/download/:token/", h.Download)
}

func ownerFromContext(c echo.Context, span trace.Span) (*models.Owner, error) {
	owner, ok := c.Get("owner").(*models.Owner)
	if !ok {
		span.RecordError(srverr.ErrTypeAssertMismatch)
		span.SetStatus(codes.Error, fmt.Sprintf("owner: %s", srverr.ErrTypeAssertMismatch))
		return nil, response.InternalServerError
	}
	return owner, nil
}

// Maps account layer errors onto responses
func accountError(span trace.Span, err error) error {
	span.RecordError(err)

	switch {
	case errors.Is(err, accounts.ErrNotFound):
		span.SetStatus(codes.Ok, "not found")
		return response.NotFoundError
	case errors.Is(err, accounts.ErrConflict):
		span.SetStatus(codes.Ok, "conflict")
		return response.ConflictError
	case errors.Is(err, accounts.ErrForbidden):
		span.SetStatus(codes.Ok, "forbidden")
		return response.ForbiddenError
	case errors.Is(err, accounts.ErrTokenInvalid):
		span.SetStatus(codes.Ok, "token invalid")
		return response.NotFoundError
	default:
		span.SetStatus(codes.Error, "account operation failed")
		return response.InternalServerError
	}
}
