package judgehost

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/contestkit/judge-orchestrator/cmd/internal/fleet"
	servermiddleware "github.com/contestkit/judge-orchestrator/cmd/internal/middleware"
	"github.com/contestkit/judge-orchestrator/cmd/internal/response"
	"github.com/contestkit/judge-orchestrator/internal/logger"
	"github.com/contestkit/judge-orchestrator/internal/types"
)

func (h *Handler) Poll(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "Poll")
	defer span.End()

	hostname := c.Param("hostname")
	span.SetAttributes(attribute.String("hostname", hostname))

	err := h.fleet.Poll(ctx, hostname, servermiddleware.RequestTime(c, "time"))
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, fleet.ErrUnknownJudgehost) {
			span.SetStatus(codes.Ok, "unknown judgehost")
			return response.NotFoundError
		}
		span.SetStatus(codes.Error, "failed to record poll")
		return response.InternalServerError
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "")
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) FetchWork(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "FetchWork")
	defer span.End()

	hostname := c.Param("hostname")
	span.SetAttributes(attribute.String("hostname", hostname))

	work, err := h.dispatcher.FetchWork(ctx, hostname)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch work")
		return response.InternalServerError
	}
	if work == nil {
		span.RecordError(nil)
		span.SetStatus(codes.Ok, "no work")
		return c.NoContent(http.StatusNoContent)
	}

	span.SetAttributes(
		attribute.String("judging.id", work.JudgingID.String()),
		attribute.Int("tasks", len(work.Tasks)),
	)
	span.RecordError(nil)
	span.SetStatus(codes.Ok, "")
	return c.JSON(http.StatusOK, work)
}

func (h *Handler) ReportResult(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "ReportResult")
	defer span.End()

	hostname := c.Param("hostname")
	judgingID, err := uuid.Parse(c.Param("judging_id"))
	if err != nil {
		span.SetStatus(codes.Ok, "invalid judging id")
		span.RecordError(err)
		return echo.NewHTTPError(http.StatusBadRequest, types.StringError("invalid judging id"))
	}

	span.SetAttributes(
		attribute.String("hostname", hostname),
		attribute.String("judging.id", judgingID.String()),
	)

	var rdata types.ReportResultRequest

	span.AddEvent("parsing request body")
	if err := c.Bind(&rdata); err != nil {
		span.SetStatus(codes.Ok, "failed to parse request data")
		span.RecordError(err)
		return echo.NewHTTPError(
			http.StatusBadRequest,
			types.StringError("failed to parse request data"),
		)
	}

	span.AddEvent("validating request body")
	if err := c.Validate(rdata); err != nil {
		span.SetStatus(codes.Ok, "failed to validate request data")
		span.RecordError(err)
		return echo.NewHTTPError(http.StatusBadRequest, types.ValidationError(err))
	}

	err = h.judgings.ReportTestcaseResult(
		ctx,
		judgingID,
		rdata.TestcaseRank,
		types.Verdict(rdata.Result),
		hostname,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to record result")
		return response.InternalServerError
	}

	// A finished judging may complete an auto-apply rejudging.
	if err := h.rejudgings.ApplyReady(ctx); err != nil {
		logger.Logger.ErrorContext(ctx, "failed to auto-apply rejudgings", "error", err)
		span.RecordError(err)
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "")
	return c.NoContent(http.StatusNoContent)
}
