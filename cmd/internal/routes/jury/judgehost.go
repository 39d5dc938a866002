package jury

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/contestkit/judge-orchestrator/cmd/internal/fleet"
	"github.com/contestkit/judge-orchestrator/cmd/internal/models"
	"github.com/contestkit/judge-orchestrator/cmd/internal/response"
	"github.com/contestkit/judge-orchestrator/internal/types"
)

func (h *Handler) ListJudgehosts(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "ListJudgehosts")
	defer span.End()

	db := h.DB.WithContext(ctx)

	var hosts []models.Judgehost
	err := db.Order("hostname").Find(&hosts).Error
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list judgehosts")
		return response.InternalServerError
	}

	now := time.Now().UTC()
	resp := make([]types.JudgehostResponse, len(hosts))
	for i, host := range hosts {
		var pollTime *types.UnixMilli
		if host.PollTime.Valid {
			ms := types.UnixMilli(host.PollTime.V.UnixMilli())
			pollTime = &ms
		}
		resp[i] = types.JudgehostResponse{
			Hostname: host.Hostname,
			Liveness: h.fleet.Classify(&host, now),
			PollTime: pollTime,
			Active:   host.Active,
		}
	}

	span.SetAttributes(attribute.Int("hosts", len(resp)))
	span.RecordError(nil)
	span.SetStatus(codes.Ok, "")
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) ToggleJudgehost(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "ToggleJudgehost")
	defer span.End()

	hostname := c.Param("hostname")
	span.SetAttributes(attribute.String("hostname", hostname))

	var rdata types.ToggleRequest

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

	err := h.fleet.SetActive(ctx, hostname, *rdata.Active)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, fleet.ErrUnknownJudgehost) {
			span.SetStatus(codes.Ok, "unknown judgehost")
			return response.NotFoundError
		}
		span.SetStatus(codes.Error, "failed to toggle judgehost")
		return response.InternalServerError
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "")
	return c.NoContent(http.StatusNoContent)
}
