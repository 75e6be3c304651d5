package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/sweetmon/triage-api/internal/types"
)

// Per client IP token buckets, for routes hit before a machine has credentials
type IPRateLimiter struct {
	ips  map[string]*ipLimiter
	mu   sync.Mutex
	r    rate.Limit
	b    int
	idle time.Duration
}

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewIPRateLimiter(r rate.Limit, b int) *IPRateLimiter {
	return &IPRateLimiter{
		ips:  make(map[string]*ipLimiter),
		r:    r,
		b:    b,
		idle: 10 * time.Minute,
	}
}

// Limiter for ip, created on first sight. Buckets idle for a while are dropped on the way
func (i *IPRateLimiter) Limiter(ip string, now time.Time) *rate.Limiter {
	i.mu.Lock()
	defer i.mu.Unlock()

	for k, l := range i.ips {
		if now.Sub(l.lastSeen) > i.idle {
			delete(i.ips, k)
		}
	}

	l, ok := i.ips[ip]
	if !ok {
		l = &ipLimiter{limiter: rate.NewLimiter(i.r, i.b)}
		i.ips[ip] = l
	}
	l.lastSeen = now
	return l.limiter
}

func IPRateLimit(limiter *IPRateLimiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()
			_, span := tracer.Start(c.Request().Context(), "IPRateLimit", trace.WithAttributes(
				attribute.String("ip", ip),
			))
			defer span.End()

			now := time.Now()
			if !limiter.Limiter(ip, now).AllowN(now, 1) {
				span.RecordError(nil)
				span.SetStatus(codes.Ok, "rate limited")
				return echo.NewHTTPError(http.StatusTooManyRequests, types.StringError("too many requests"))
			}

			span.RecordError(nil)
			span.SetStatus(codes.Ok, "allowed")
			return next(c)
		}
	}
}
