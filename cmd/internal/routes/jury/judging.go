package jury

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	srverr "github.com/contestkit/judge-orchestrator/cmd/internal/error"
	"github.com/contestkit/judge-orchestrator/cmd/internal/judging"
	"github.com/contestkit/judge-orchestrator/cmd/internal/models"
	"github.com/contestkit/judge-orchestrator/cmd/internal/queue"
	"github.com/contestkit/judge-orchestrator/cmd/internal/response"
	"github.com/contestkit/judge-orchestrator/internal/types"
)

func (h *Handler) judgingFromContext(c echo.Context) (*models.Judging, error) {
	judgingRow, ok := c.Get("judging").(*models.Judging)
	if !ok {
		return nil, srverr.ErrTypeAssertMismatch
	}
	return judgingRow, nil
}

func (h *Handler) VerifyJudging(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "VerifyJudging")
	defer span.End()

	judgingRow, err := h.judgingFromContext(c)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, fmt.Sprintf("judging: %s", err))
		return response.InternalServerError
	}

	var rdata types.VerifyRequest

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

	span.SetAttributes(
		attribute.String("judging.id", judgingRow.ID.String()),
		attribute.String("juryMember", rdata.JuryMember),
	)

	err = h.judgings.Verify(ctx, judgingRow.ID, rdata.JuryMember)
	if err != nil {
		span.RecordError(err)
		switch {
		case errors.Is(err, judging.ErrAlreadyVerified):
			span.SetStatus(codes.Ok, "already verified")
			return response.ConflictError
		case errors.Is(err, judging.ErrNotFinished):
			span.SetStatus(codes.Ok, "not finished")
			return echo.NewHTTPError(
				http.StatusBadRequest,
				types.StringError("judging has not finished"),
			)
		default:
			span.SetStatus(codes.Error, "failed to verify")
			return response.InternalServerError
		}
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "")
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) RequestRemaining(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "RequestRemaining")
	defer span.End()

	judgingRow, err := h.judgingFromContext(c)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, fmt.Sprintf("judging: %s", err))
		return response.InternalServerError
	}

	released, err := h.judgings.RequestRemaining(ctx, judgingRow.ID)
	if err != nil {
		span.RecordError(err)
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			span.SetStatus(codes.Ok, "not found")
			return response.NotFoundError
		case errors.Is(err, judging.ErrAlreadyRequested):
			span.SetStatus(codes.Ok, "already requested")
			return response.ConflictError
		case errors.Is(err, judging.ErrNotFinished), errors.Is(err, judging.ErrSuperseded):
			span.SetStatus(codes.Ok, "not eligible")
			return echo.NewHTTPError(http.StatusBadRequest, types.StringError(err.Error()))
		default:
			span.SetStatus(codes.Error, "failed to request remaining")
			return response.InternalServerError
		}
	}

	span.SetAttributes(attribute.Int64("released", released))
	span.RecordError(nil)
	span.SetStatus(codes.Ok, "")
	return c.JSON(http.StatusOK, types.RemainingResponse{Released: released})
}

// BatchRequestRemaining handles judge remaining over a list of judgings,
// skipping the ineligible ones and reporting per reason counts.
func (h *Handler) BatchRequestRemaining(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "BatchRequestRemaining")
	defer span.End()

	var rdata types.RemainingRequest

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

	summary, err := h.judgings.RequestRemainingBatch(ctx, rdata.Judgings)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to request remaining for batch")
		return response.InternalServerError
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "")
	return c.JSON(http.StatusOK, summary)
}

func (h *Handler) ChangePriority(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "ChangePriority")
	defer span.End()

	judgingRow, err := h.judgingFromContext(c)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, fmt.Sprintf("judging: %s", err))
		return response.InternalServerError
	}

	var rdata types.PriorityRequest

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

	priority, err := types.ParsePriority(rdata.Priority)
	if err != nil {
		span.SetStatus(codes.Ok, "invalid priority")
		span.RecordError(err)
		return echo.NewHTTPError(http.StatusBadRequest, types.StringError(err.Error()))
	}

	err = h.queue.ChangePriority(ctx, judgingRow.ID, priority)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, queue.ErrNotQueued) {
			span.SetStatus(codes.Ok, "not queued")
			return echo.NewHTTPError(
				http.StatusBadRequest,
				types.StringError("judging is not waiting in the queue"),
			)
		}
		span.SetStatus(codes.Error, "failed to change priority")
		return response.InternalServerError
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "")
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ReorderTestcases(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "ReorderTestcases")
	defer span.End()

	judgingRow, err := h.judgingFromContext(c)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, fmt.Sprintf("judging: %s", err))
		return response.InternalServerError
	}

	var rdata types.ReorderRequest

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

	err = h.judgings.ReorderTestcases(ctx, judgingRow.ID, rdata.RankA, rdata.RankB)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Ok, "failed to reorder")
		return echo.NewHTTPError(http.StatusBadRequest, types.StringError(err.Error()))
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "")
	return c.NoContent(http.StatusNoContent)
}
