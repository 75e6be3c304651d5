package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Stamps the request with the time it was received. Handlers use this instead of reading the clock
func Time(key string, now func() time.Time) echo.MiddlewareFunc {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			_, span := tracer.Start(c.Request().Context(), "Time", trace.WithAttributes(
				attribute.String("key", key),
			))
			defer span.End()

			t := now()
			c.Set(key, t)

			span.AddEvent("set_time", trace.WithAttributes(
				attribute.Int64("time_ms", t.UnixMilli()),
			))

			span.RecordError(nil)
			span.SetStatus(codes.Ok, "set time")
			return next(c)
		}
	}
}
