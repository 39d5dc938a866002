// Package judgehost exposes the judgehost facing API: polling, fetching work
// and reporting testcase results.
package judgehost

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"gorm.io/gorm"

	srverr "github.com/contestkit/judge-orchestrator/cmd/internal/error"
	"github.com/contestkit/judge-orchestrator/cmd/internal/fleet"
	"github.com/contestkit/judge-orchestrator/cmd/internal/judging"
	servermiddleware "github.com/contestkit/judge-orchestrator/cmd/internal/middleware"
	"github.com/contestkit/judge-orchestrator/cmd/internal/models"
	"github.com/contestkit/judge-orchestrator/cmd/internal/ratelimit"
	"github.com/contestkit/judge-orchestrator/cmd/internal/rejudging"
	"github.com/contestkit/judge-orchestrator/internal/config"
	"github.com/contestkit/judge-orchestrator/internal/logger"
)

const name = "github.com/contestkit/judge-orchestrator/cmd/internal/routes/judgehost"

var tracer = otel.Tracer(name)

type Handler struct {
	DB         *gorm.DB
	config     *config.Config
	dispatcher *fleet.Dispatcher
	fleet      *fleet.Manager
	judgings   *judging.Manager
	rejudgings *rejudging.Manager
}

func NewHandler(
	db *gorm.DB,
	cfg *config.Config,
	dispatcher *fleet.Dispatcher,
	fleetManager *fleet.Manager,
	judgings *judging.Manager,
	rejudgings *rejudging.Manager,
) Handler {
	return Handler{
		DB:         db,
		config:     cfg,
		dispatcher: dispatcher,
		fleet:      fleetManager,
		judgings:   judgings,
		rejudgings: rejudgings,
	}
}

func NewRedisLimiter(
	redisHost string,
	limiterKey string,
	perMinute int64,
	failOpen bool,
	onlyMethod *string,
) middleware.RateLimiterConfig {
	l := logger.Logger
	var store middleware.RateLimiterStore

	redisAddr := redisHost + ":6379"
	l.Debug("Setting up rate limiter with Redis", "redis", redisAddr)
	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	rdConf := &ratelimit.RedisLimiterConfig{
		PerMinute:   perMinute,
		RedisClient: rdb,
		LimiterKey:  limiterKey,
		FailOpen:    failOpen,
	}
	store = ratelimit.NewRedisLimitStore(*rdConf)

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
			auth, ok := c.Get("auth").(*models.Auth)
			if !ok {
				return "", srverr.ErrTypeAssertMismatch
			}
			return auth.ID.String(), nil
		},
		ErrorHandler: func(context echo.Context, _ error) error {
			return context.JSON(http.StatusForbidden, nil)
		},
		DenyHandler: func(context echo.Context, _ string, _ error) error {
			return context.JSON(http.StatusTooManyRequests, nil)
		},
	}
}

func (h *Handler) AddRoutes(e *echo.Echo, middlewareHandler *servermiddleware.Handler) {
	l := logger.Logger

	hostGroup := e.Group(
		"/judgehosts/:hostname",
		middleware.BasicAuth(middlewareHandler.BasicAuthValidator),
		servermiddleware.HasPermissions("auth", &models.Permissions{Judgehost: true}),
	)

	if h.config.RateLimit != nil && h.config.RateLimit.PollPerMinute > 0 {
		post := http.MethodPost

		hostGroup.Use(
			middleware.RateLimiterWithConfig(
				NewRedisLimiter(
					h.config.RateLimit.RedisHost,
					"poll",
					h.config.RateLimit.PollPerMinute,
					h.config.RateLimit.FailOpen,
					&post,
				),
			),
		)
	} else {
		l.Warn("not configured to have a judgehost poll rate limit")
	}

	hostGroup.POST("/poll/", h.Poll)
	hostGroup.POST("/fetch-work/", h.FetchWork)
	hostGroup.POST("/judgings/:judging_id/results/", h.ReportResult)
}
