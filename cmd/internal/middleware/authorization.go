package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/contestkit/judge-orchestrator/cmd/internal/models"
	"github.com/contestkit/judge-orchestrator/internal/logger"
	"github.com/contestkit/judge-orchestrator/internal/types"
)

// HasPermissions rejects requests whose auth lacks any permission set to
// true on `permissions`. The auth row must already be in the context under
// `authKey`.
func HasPermissions(authKey string, permissions *models.Permissions) echo.MiddlewareFunc {
	l := logger.Logger.With("authKey", authKey, "permissions", permissions)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, span := tracer.Start(c.Request().Context(), "HasPermissions", trace.WithAttributes(
				attribute.String("authKey", authKey),
			))
			defer span.End()

			auth, ok := c.Get(authKey).(*models.Auth)
			if !ok {
				l.WarnContext(ctx, "failed to get auth object")
				span.RecordError(nil)
				span.SetStatus(codes.Error, "failed to get auth object")
				return echo.NewHTTPError(http.StatusUnauthorized, types.StringError("Unauthorized"))
			}

			if !auth.Permissions.Covers(*permissions) {
				l.DebugContext(ctx, "missing permission", "has", auth.Permissions)
				span.RecordError(nil)
				span.SetStatus(codes.Ok, "unauthorized")
				return echo.NewHTTPError(http.StatusUnauthorized, types.StringError("Unauthorized"))
			}

			span.RecordError(nil)
			span.SetStatus(codes.Ok, "checked permissions")
			return next(c)
		}
	}
}
