package admin

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/codes"
)

// Download redeems a token. Backends that can presign redirect to the object, the rest stream it
//
//	@Summary	Download Artifact
//	@Tags		download
//	@Produce	application/octet-stream
//	@Param		token	path	string	true	"Download token"
//	@Success	200
//	@Success	302
//	@Failure	404	{object}	types.Error
//	@Router		/download/{token}/ [get]
func (h *Handler) Download(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "Download")
	defer span.End()

	download, err := h.accounts.RedeemDownloadToken(ctx, c.Param("token"))
	if err != nil {
		return accountError(span, err)
	}

	span.RecordError(nil)
	if download.URL != "" {
		span.SetStatus(codes.Ok, "redirected to presigned url")
		return c.Redirect(http.StatusFound, download.URL)
	}

	span.SetStatus(codes.Ok, "streamed artifact")
	c.Response().Header().Set(
		echo.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename=%q", download.Filename),
	)
	return c.Blob(http.StatusOK, echo.MIMEOctetStream, download.Data)
}
