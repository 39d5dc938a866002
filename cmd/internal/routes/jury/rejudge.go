package jury

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	srverr "github.com/contestkit/judge-orchestrator/cmd/internal/error"
	"github.com/contestkit/judge-orchestrator/cmd/internal/models"
	"github.com/contestkit/judge-orchestrator/cmd/internal/rejudging"
	"github.com/contestkit/judge-orchestrator/cmd/internal/response"
	"github.com/contestkit/judge-orchestrator/internal/types"
)

func (h *Handler) CreateRejudging(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "CreateRejudging")
	defer span.End()

	span.AddEvent("received rejudge request")

	auth, ok := c.Get("auth").(*models.Auth)
	if !ok {
		span.RecordError(srverr.ErrTypeAssertMismatch)
		span.SetStatus(codes.Error, fmt.Sprintf("auth: %s", srverr.ErrTypeAssertMismatch))
		return response.InternalServerError
	}

	var rdata types.RejudgeRequest

	span.AddEvent("parsing request body")
	err := c.Bind(&rdata)
	if err != nil {
		span.SetStatus(codes.Ok, "failed to parse request data")
		span.RecordError(err)
		return echo.NewHTTPError(
			http.StatusBadRequest,
			types.StringError("failed to parse request data"),
		)
	}

	span.AddEvent("validating request body")
	err = c.Validate(rdata)
	if err != nil {
		span.SetStatus(codes.Ok, "failed to validate request data")
		span.RecordError(err)
		return echo.NewHTTPError(http.StatusBadRequest, types.ValidationError(err))
	}

	priority := types.PriorityLow
	if rdata.Priority != "" {
		priority, err = types.ParsePriority(rdata.Priority)
		if err != nil {
			span.SetStatus(codes.Ok, "invalid priority")
			span.RecordError(err)
			return echo.NewHTTPError(http.StatusBadRequest, types.StringError(err.Error()))
		}
	}

	span.SetAttributes(
		attribute.String("auth.note", auth.Note),
		attribute.Bool("full", rdata.Full),
		attribute.String("reason", rdata.Reason),
	)

	sel := rejudging.Selection{
		ContestIDs:    rdata.Selection.Contests,
		ProblemIDs:    rdata.Selection.Problems,
		TeamIDs:       rdata.Selection.Teams,
		LanguageIDs:   rdata.Selection.Languages,
		SubmissionIDs: rdata.Selection.Submissions,
		JudgingIDs:    rdata.Selection.Judgings,
		JudgehostIDs:  rdata.Selection.Judgehosts,
		Verdicts:      rdata.Selection.Verdicts,
		Before:        rdata.Selection.Before,
		After:         rdata.Selection.After,
	}

	created, count, err := h.rejudgings.Create(ctx, sel, rejudging.CreateOptions{
		Reason:          rdata.Reason,
		StartedBy:       auth.Note,
		Full:            rdata.Full,
		AutoApply:       rdata.AutoApply,
		JudgeCompletely: rdata.JudgeCompletely,
		Priority:        priority,
	})
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, rejudging.ErrEmptySelection) ||
			errors.Is(err, rejudging.ErrTimeFilterNeedsContest) {
			span.SetStatus(codes.Ok, "bad selection")
			return echo.NewHTTPError(http.StatusBadRequest, types.StringError(err.Error()))
		}
		span.SetStatus(codes.Error, "failed to create rejudging")
		return response.InternalServerError
	}

	resp := types.RejudgeResponse{Judgings: count}
	if created != nil {
		id := created.ID.String()
		resp.RejudgingID = &id
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "")
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) GetRejudging(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "GetRejudging")
	defer span.End()

	rej, ok := c.Get("rejudging").(*models.Rejudging)
	if !ok {
		span.RecordError(srverr.ErrTypeAssertMismatch)
		span.SetStatus(codes.Error, fmt.Sprintf("rejudging: %s", srverr.ErrTypeAssertMismatch))
		return response.InternalServerError
	}

	todo, err := h.rejudgings.Todo(ctx, rej.ID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to count todo")
		return response.InternalServerError
	}

	matrix, err := h.rejudgings.BuildMatrix(ctx, rej.ID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to build matrix")
		return response.InternalServerError
	}

	type rejudgingStatus struct {
		Matrix    *rejudging.Matrix `json:"matrix"`
		Applied   *bool             `json:"applied"`
		ID        string            `json:"id"`
		Reason    string            `json:"reason"`
		StartedBy string            `json:"started_by"`
		Todo      int64             `json:"todo"`
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "")
	return c.JSON(http.StatusOK, rejudgingStatus{
		Matrix:    matrix,
		Applied:   models.PtrFromNull(rej.Applied),
		ID:        rej.ID.String(),
		Reason:    rej.Reason,
		StartedBy: rej.StartedBy,
		Todo:      todo,
	})
}

func (h *Handler) ApplyRejudging(c echo.Context) error {
	return h.finishRejudging(c, types.ActionApply)
}

func (h *Handler) CancelRejudging(c echo.Context) error {
	return h.finishRejudging(c, types.ActionCancel)
}

// finishRejudging runs apply or cancel and streams per submission progress
// back as server sent events.
func (h *Handler) finishRejudging(c echo.Context, action types.RejudgeAction) error {
	ctx, span := tracer.Start(c.Request().Context(), "finishRejudging")
	defer span.End()

	span.SetAttributes(attribute.String("action", string(action)))

	auth, ok := c.Get("auth").(*models.Auth)
	if !ok {
		span.RecordError(srverr.ErrTypeAssertMismatch)
		span.SetStatus(codes.Error, fmt.Sprintf("auth: %s", srverr.ErrTypeAssertMismatch))
		return response.InternalServerError
	}

	rej, ok := c.Get("rejudging").(*models.Rejudging)
	if !ok {
		span.RecordError(srverr.ErrTypeAssertMismatch)
		span.SetStatus(codes.Error, fmt.Sprintf("rejudging: %s", srverr.ErrTypeAssertMismatch))
		return response.InternalServerError
	}

	progress := make(chan types.ProgressEvent, 16)
	done := make(chan error, 1)
	go func() {
		defer close(progress)
		done <- h.rejudgings.Finish(ctx, rej.ID, action, auth.Note, progress)
	}()

	c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-store")
	c.Response().WriteHeader(http.StatusOK)

	enc := json.NewEncoder(c.Response())
	var writeErr error
	for event := range progress {
		// Keep draining after the client disconnects so Finish never blocks
		// on a full channel.
		if writeErr != nil {
			continue
		}
		if writeErr = writeEvent(c, enc, event); writeErr != nil {
			span.RecordError(writeErr)
		}
	}

	err := <-done
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to finish rejudging")

		if writeErr == nil {
			event := types.ProgressEvent{Message: "failed: " + err.Error(), Error: true}
			_ = writeEvent(c, enc, event)
		}
		return nil
	}

	if writeErr == nil {
		_ = writeEvent(c, enc, types.ProgressEvent{Message: "finished"})
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "")
	return nil
}

func writeEvent(c echo.Context, enc *json.Encoder, event types.ProgressEvent) error {
	if _, err := c.Response().Write([]byte("data: ")); err != nil {
		return err
	}
	if err := enc.Encode(event); err != nil {
		return err
	}
	if _, err := c.Response().Write([]byte("\n")); err != nil {
		return err
	}
	c.Response().Flush()
	return nil
}
