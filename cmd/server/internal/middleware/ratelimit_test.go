package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestIPRateLimit(t *testing.T) {
	e := echo.New()
	handler := IPRateLimit(NewIPRateLimiter(rate.Every(time.Hour), 2))(func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})

	call := func(ip string) error {
		req := httptest.NewRequest(http.MethodPost, "/machine/register/", nil)
		req.RemoteAddr = ip + ":40000"
		return handler(e.NewContext(req, httptest.NewRecorder()))
	}

	require.NoError(t, call("192.0.2.1"))
	require.NoError(t, call("192.0.2.1"))

	err := call("192.0.2.1")
	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusTooManyRequests, httpErr.Code)

	require.NoError(t, call("192.0.2.2"), "buckets are per ip")
}

func TestIPRateLimiterDropsIdleBuckets(t *testing.T) {
	limiter := NewIPRateLimiter(rate.Every(time.Hour), 1)
	start := time.Now()

	first := limiter.Limiter("192.0.2.1", start)
	assert.Same(t, first, limiter.Limiter("192.0.2.1", start.Add(time.Minute)))

	later := limiter.Limiter("192.0.2.2", start.Add(time.Hour))
	assert.NotNil(t, later)
	assert.NotSame(t, first, limiter.Limiter("192.0.2.1", start.Add(time.Hour)))
}
