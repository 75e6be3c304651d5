package v1

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"golang.org/x/time/rate"

	"github.com/sweetmon/triage-api/cmd/server/internal/accounts"
	srverr "github.com/sweetmon/triage-api/cmd/server/internal/error"
	"github.com/sweetmon/triage-api/cmd/server/internal/ingest"
	servermiddleware "github.com/sweetmon/triage-api/cmd/server/internal/middleware"
	"github.com/sweetmon/triage-api/cmd/server/internal/models"
	"github.com/sweetmon/triage-api/cmd/server/internal/ratelimit"
	"github.com/sweetmon/triage-api/cmd/server/internal/testcases"
	"github.com/sweetmon/triage-api/internal/config"
	"github.com/sweetmon/triage-api/internal/logger"
)

const name = "github.com/sweetmon/triage-api/cmd/server/internal/routes/v1"

var tracer = otel.Tracer(name)

// Machine facing API
type Handler struct {
	pipeline  *ingest.Pipeline
	testcases *testcases.Service
	accounts  *accounts.Service
	config    *config.Config
}

func NewRedisLimiter(
	rdb *redis.Client,
	limiterKey string,
	perMinute int64,
	failOpen bool,
	onlyMethod *string,
) middleware.RateLimiterConfig {
	store := ratelimit.NewRedisLimitStore(ratelimit.RedisLimiterConfig{
		PerMinute:   perMinute,
		RedisClient: rdb,
		LimiterKey:  limiterKey,
		FailOpen:    failOpen,
	})

	skipper := middleware.DefaultSkipper
	if onlyMethod != nil {
		skipper = func(c echo.Context) bool {
			return c.Request().Method != *onlyMethod
		}
	}

	return middleware.RateLimiterConfig{
		Skipper: skipper,
		Store:   store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			machine, ok := c.Get("machine").(*models.Machine)
			if !ok {
				return "", srverr.ErrTypeAssertMismatch
			}
			return machine.ID.String(), nil
		},
		ErrorHandler: func(context echo.Context, _ error) error {
			return context.JSON(http.StatusForbidden, nil)
		},
		DenyHandler: func(context echo.Context, _ string, _ error) error {
			return context.JSON(http.StatusTooManyRequests, nil)
		},
	}
}

func NewHandler(
	pipeline *ingest.Pipeline,
	testcaseService *testcases.Service,
	accountService *accounts.Service,
	cfg *config.Config,
) Handler {
	return Handler{
		pipeline:  pipeline,
		testcases: testcaseService,
		accounts:  accountService,
		config:    cfg,
	}
}

func (h *Handler) AddRoutes(e *echo.Echo, middlewareHandler *servermiddleware.Handler) {
	l := logger.Logger

	registerPerMinute := int64(10)
	if h.config.RateLimit != nil && h.config.RateLimit.RegisterPerMinute > 0 {
		registerPerMinute = h.config.RateLimit.RegisterPerMinute
	}
	e.POST(
		"/machine/register/",
		h.RegisterMachine,
		servermiddleware.IPRateLimit(servermiddleware.NewIPRateLimiter(
			rate.Limit(float64(registerPerMinute)/60),
			int(registerPerMinute),
		)),
	)

	v1Group := e.Group("/v1", middleware.BasicAuth(middlewareHandler.MachineAuthValidator))

	var rdb *redis.Client
	if h.config.RateLimit != nil &&
		(h.config.RateLimit.GlobalPerMinute > 0 || h.config.RateLimit.SubmitPerMinute > 0) {
		rdb = redis.NewClient(&redis.Options{Addr: h.config.RateLimit.RedisHost + ":6379"})
		l.Debug("rate limiting through redis", "redis", h.config.RateLimit.RedisHost)
	}

	if rdb != nil && h.config.RateLimit.GlobalPerMinute > 0 {
		v1Group.Use(middleware.RateLimiterWithConfig(NewRedisLimiter(
			rdb,
			"global",
			h.config.RateLimit.GlobalPerMinute,
			h.config.RateLimit.FailOpen,
			nil,
		)))
	} else {
		l.Warn("not configured to have a global rate limit")
	}

	crashGroup := v1Group.Group("/crash")
	testcaseGroup := v1Group.Group("/testcase")

	if rdb != nil && h.config.RateLimit.SubmitPerMinute > 0 {
		post := http.MethodPost
		crashGroup.Use(middleware.RateLimiterWithConfig(NewRedisLimiter(
			rdb,
			"submit",
			h.config.RateLimit.SubmitPerMinute,
			h.config.RateLimit.FailOpen,
			&post,
		)))
		testcaseGroup.Use(middleware.RateLimiterWithConfig(NewRedisLimiter(
			rdb,
			"submit",
			h.config.RateLimit.SubmitPerMinute,
			h.config.RateLimit.FailOpen,
			&post,
		)))
	} else {
		l.Warn("not configured to have a submit rate limit")
	}

	v1Group.GET("/ping/", h.Ping)
	crashGroup.POST("/", h.SubmitCrash)
	testcaseGroup.POST("/", h.SubmitTestcase)
}

// stamped by the Time middleware, zero when it is not mounted
func receivedAt(c echo.Context) time.Time {
	t, _ := c.Get("time").(time.Time)
	return t
}
