package middleware

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/codes"

	srverr "github.com/contestkit/judge-orchestrator/cmd/internal/error"
	"github.com/contestkit/judge-orchestrator/cmd/internal/models"
	"github.com/contestkit/judge-orchestrator/cmd/internal/response"
	"github.com/contestkit/judge-orchestrator/internal/logger"
	"github.com/contestkit/judge-orchestrator/internal/types"
)

// Ensures the contest behind the judging stored at `judgingKey` is enabled
func ContestEnabled(h *Handler, judgingKey string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, span := tracer.Start(c.Request().Context(), "ContestEnabled")
			defer span.End()

			judging, ok := c.Get(judgingKey).(*models.Judging)
			if !ok {
				span.RecordError(srverr.ErrTypeAssertMismatch)
				span.SetStatus(codes.Error, fmt.Sprintf("judging: %s", srverr.ErrTypeAssertMismatch))
				return response.InternalServerError
			}

			submission, err := models.ByID[models.Submission](ctx, h.DB, judging.SubmissionID)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "failed to load submission")
				return response.InternalServerError
			}

			contest, err := models.ByID[models.Contest](ctx, h.DB, submission.ContestID)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "failed to load contest")
				return response.InternalServerError
			}

			logger.Logger.DebugContext(
				ctx,
				"checking contest",
				"contest",
				contest.ShortName,
				"enabled",
				contest.Enabled,
			)
			if !contest.Enabled {
				span.RecordError(nil)
				span.SetStatus(codes.Ok, "contest disabled")
				return echo.NewHTTPError(
					http.StatusBadRequest,
					types.StringError("this judging belongs to a disabled contest"),
				)
			}

			span.RecordError(nil)
			span.SetStatus(codes.Ok, "validated contest")
			return next(c)
		}
	}
}
