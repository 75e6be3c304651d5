package routes

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	slogecho "github.com/samber/slog-echo"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	servermiddleware "github.com/sweetmon/triage-api/cmd/server/internal/middleware"
	"github.com/sweetmon/triage-api/internal/validator"
)

// Request bodies carry base64 artifacts; the largest is a fuzzer
const bodyLimit = "96M"

func BuildEcho(logger *slog.Logger, now func() time.Time) (*echo.Echo, error) {
	e := echo.New()
	e.HideBanner = true

	validate := validator.Create()
	e.Validator = &validate

	e.Pre(middleware.AddTrailingSlash())

	e.Use(
		otelecho.Middleware("triage-api"),
		slogecho.NewWithConfig(logger, slogecho.Config{
			WithRequestID: true,
		}),
		middleware.RequestID(),
		middleware.BodyLimit(bodyLimit),
		servermiddleware.Time("time", now),
	)

	e.GET("/health/", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	return e, nil
}
