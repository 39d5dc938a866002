// Package routes assembles the echo instance shared by every API surface.
package routes

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	slogecho "github.com/samber/slog-echo"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	servermiddleware "github.com/contestkit/judge-orchestrator/cmd/internal/middleware"
	"github.com/contestkit/judge-orchestrator/internal/validator"
)

// BuildEcho returns an echo instance with tracing, request logging and the
// shared request-time middleware installed. Handlers are added by the
// per-surface AddRoutes functions.
func BuildEcho(logger *slog.Logger) (*echo.Echo, error) {
	e := echo.New()

	validate := validator.Create()
	e.Validator = &validate

	e.Pre(middleware.AddTrailingSlash())
	e.Use(
		otelecho.Middleware("judge-orchestrator"),
		slogecho.NewWithConfig(logger, slogecho.Config{}),
		servermiddleware.Time("time"),
	)

	e.GET("/health/", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	return e, nil
}
