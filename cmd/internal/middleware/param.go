package middleware

import (
	"errors"
	"reflect"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/contestkit/judge-orchestrator/cmd/internal/models"
	"github.com/contestkit/judge-orchestrator/cmd/internal/response"
)

// PopulateFromIDParam loads the row whose id is in the `paramName` path
// parameter and stores it in the context under `contextName`. A malformed
// or unknown id is a 404 either way, so callers cannot probe for ids.
func PopulateFromIDParam[T models.OrchestratorModel](
	h *Handler,
	paramName string,
	contextName string,
) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, span := tracer.Start(c.Request().Context(), "PopulateFromIDParam")
			defer span.End()

			rawID := c.Param(paramName)
			span.SetAttributes(
				attribute.String("param", paramName),
				attribute.String("id.raw", rawID),
				attribute.String("type", reflect.TypeOf((*T)(nil)).Elem().String()),
			)

			id, err := uuid.Parse(rawID)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Ok, "id is not a uuid")
				return response.NotFoundError
			}

			row, err := models.ByID[T](ctx, h.DB.WithContext(ctx), id)
			if err != nil {
				span.RecordError(err)
				if errors.Is(err, gorm.ErrRecordNotFound) {
					span.SetStatus(codes.Ok, "row not found")
					return response.NotFoundError
				}
				span.SetStatus(codes.Error, "failed to fetch row by id")
				return response.InternalServerError
			}

			c.Set(contextName, row)

			span.RecordError(nil)
			span.SetStatus(codes.Ok, "populated context")
			return next(c)
		}
	}
}
