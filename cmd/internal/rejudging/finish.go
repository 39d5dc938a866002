package rejudging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/contestkit/judge-orchestrator/cmd/internal/models"
	"github.com/contestkit/judge-orchestrator/internal/audit"
	"github.com/contestkit/judge-orchestrator/internal/logger"
	"github.com/contestkit/judge-orchestrator/internal/types"
)

var ErrAlreadyFinished = errors.New("rejudging has already been applied or canceled")
var ErrJudgingsPending = errors.New("rejudging still has unfinished judgings")

// Todo counts replacement judgings of a rejudging that have not finished.
func (m *Manager) Todo(ctx context.Context, rejudgingID uuid.UUID) (int64, error) {
	ctx, span := tracer.Start(ctx, "Todo")
	defer span.End()

	span.SetAttributes(attribute.String("rejudgingID", rejudgingID.String()))

	var todo int64
	err := m.db.WithContext(ctx).Model(&models.Judging{}).
		Where("rejudging_id = ?", rejudgingID).
		Where("end_time IS NULL").
		Count(&todo).Error
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to count pending judgings")
		return 0, fmt.Errorf("failed to count pending judgings: %w", err)
	}

	span.SetAttributes(attribute.Int64("todo", todo))
	return todo, nil
}

// Finish applies or cancels a full rejudging. Exactly one Finish call per
// rejudging succeeds; later or concurrent ones get ErrAlreadyFinished.
//
// Apply swaps each replacement judging in as the valid one. Cancel throws
// the replacements away and leaves the old judgings untouched. Progress is
// reported per submission on the optional channel.
func (m *Manager) Finish(
	ctx context.Context,
	rejudgingID uuid.UUID,
	action types.RejudgeAction,
	finishedBy string,
	progress chan<- types.ProgressEvent,
) error {
	ctx, span := tracer.Start(ctx, "Finish")
	defer span.End()

	span.SetAttributes(
		attribute.String("rejudgingID", rejudgingID.String()),
		attribute.String("action", string(action)),
	)

	rejudging, err := models.ByID[models.Rejudging](ctx, m.db, rejudgingID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load rejudging")
		return err
	}
	if rejudging.Terminal() {
		span.RecordError(ErrAlreadyFinished)
		span.SetStatus(codes.Error, "already finished")
		return ErrAlreadyFinished
	}

	if action == types.ActionApply {
		todo, err := m.Todo(ctx, rejudgingID)
		if err != nil {
			return err
		}
		if todo > 0 {
			span.RecordError(ErrJudgingsPending)
			span.SetStatus(codes.Error, "judgings pending")
			return fmt.Errorf("%w: %d left", ErrJudgingsPending, todo)
		}
	}

	// Claim the rejudging before touching any judging so concurrent
	// finishers cannot interleave their flips.
	result := m.db.WithContext(ctx).Model(&models.Rejudging{}).
		Where("id = ?", rejudgingID).
		Where("ended_at IS NULL").
		Updates(map[string]any{
			"ended_at":    time.Now().UTC(),
			"applied":     action == types.ActionApply,
			"finished_by": finishedBy,
		})
	if result.Error != nil {
		span.RecordError(result.Error)
		span.SetStatus(codes.Error, "failed to claim rejudging")
		return fmt.Errorf("failed to claim rejudging: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		span.RecordError(ErrAlreadyFinished)
		span.SetStatus(codes.Error, "lost the claim race")
		return ErrAlreadyFinished
	}

	var replacements []models.Judging
	err = m.db.WithContext(ctx).
		Where("rejudging_id = ?", rejudgingID).
		Order("id").
		Find(&replacements).Error
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load replacement judgings")
		return fmt.Errorf("failed to load replacement judgings: %w", err)
	}

	types.EmitProgress(progress, fmt.Sprintf(
		"%sing rejudging over %d submissions", action, len(replacements),
	), false)

	failed := 0
	for i := range replacements {
		replacement := &replacements[i]

		var stepErr error
		switch action {
		case types.ActionApply:
			stepErr = m.applyOne(ctx, replacement)
		case types.ActionCancel:
			stepErr = m.cancelOne(ctx, replacement)
		default:
			stepErr = fmt.Errorf("unknown rejudge action %q", action)
		}
		if stepErr != nil {
			// The batch is already claimed, so bailing out here would strand
			// the remaining submissions. Report the failure and walk on.
			failed++
			types.EmitProgress(progress, fmt.Sprintf(
				"submission %s failed: %s", replacement.SubmissionID, stepErr,
			), true)
			span.RecordError(stepErr)
			logger.Logger.ErrorContext(ctx, "failed to finish submission",
				"rejudgingID", rejudgingID,
				"submissionID", replacement.SubmissionID,
				"error", stepErr,
			)
			m.releaseSubmission(ctx, replacement.SubmissionID, rejudgingID)
			continue
		}

		stepType := audit.EvtRejudgingApplyStep
		if action == types.ActionCancel {
			stepType = audit.EvtRejudgingCancelStep
		}
		audit.LogRejudgingStep(
			audit.Context{},
			stepType,
			rejudgingID.String(),
			replacement.ID.String(),
			replacement.SubmissionID.String(),
		)

		types.EmitProgress(progress, fmt.Sprintf(
			"submission %s done (%d/%d)", replacement.SubmissionID, i+1, len(replacements),
		), false)
	}

	typ := audit.EvtRejudgingApplied
	if action == types.ActionCancel {
		typ = audit.EvtRejudgingCanceled
	}
	audit.LogRejudgingFinished(
		audit.Context{},
		typ,
		rejudgingID.String(),
		finishedBy,
		len(replacements)-failed,
	)

	if failed > 0 {
		span.SetStatus(codes.Error, "finished with failures")
		return fmt.Errorf("failed to %s %d of %d submissions", action, failed, len(replacements))
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "finished rejudging")
	return nil
}

// releaseSubmission drops the batch claim of a submission whose apply or
// cancel step failed, so a later batch can pick it up. Best effort.
func (m *Manager) releaseSubmission(
	ctx context.Context,
	submissionID uuid.UUID,
	rejudgingID uuid.UUID,
) {
	err := m.db.WithContext(ctx).Model(&models.Submission{}).
		Where("id = ?", submissionID).
		Where("rejudging_id = ?", rejudgingID).
		Update("rejudging_id", nil).Error
	if err != nil {
		logger.Logger.ErrorContext(ctx, "failed to release submission claim",
			"submissionID", submissionID, "error", err)
	}
}

// applyOne makes one replacement judging the valid one for its submission.
// The old judging is invalidated first, in the same transaction, so the one
// valid judging per submission rule holds throughout.
func (m *Manager) applyOne(ctx context.Context, replacement *models.Judging) error {
	var submission *models.Submission
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if replacement.PrevJudgingID.Valid {
			err := tx.Model(&models.Judging{}).
				Where("id = ?", replacement.PrevJudgingID.V).
				Where("valid").
				Update("valid", false).Error
			if err != nil {
				return fmt.Errorf("failed to invalidate old judging: %w", err)
			}
		}

		result := tx.Model(&models.Judging{}).
			Where("id = ?", replacement.ID).
			Where("NOT valid").
			Update("valid", true)
		if result.Error != nil {
			return fmt.Errorf("failed to validate replacement judging: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			// already applied by an earlier partial run
			return nil
		}

		// Release the batch claim and carry the replacement's host over as
		// the submission's current one.
		err := tx.Model(&models.Submission{}).
			Where("id = ?", replacement.SubmissionID).
			Updates(map[string]any{
				"rejudging_id": nil,
				"judgehost_id": models.PtrFromNull(replacement.JudgehostID),
			}).Error
		if err != nil {
			return fmt.Errorf("failed to release submission: %w", err)
		}

		submission, err = models.ByID[models.Submission](ctx, tx, replacement.SubmissionID)
		if err != nil {
			return fmt.Errorf("failed to load submission: %w", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	if submission != nil {
		err = m.scores.CalculateScoreRow(ctx, submission.ContestID, submission.TeamID, submission.ProblemID)
		if err != nil {
			logger.Logger.ErrorContext(ctx, "failed to refresh score row", "error", err)
		}

		if replacement.Verified && replacement.ResultVerdict().EqualsFold(types.VerdictCorrect) {
			err = m.balloons.UpdateBalloons(ctx, submission.ContestID, submission.ID, replacement.ID)
			if err != nil {
				logger.Logger.ErrorContext(ctx, "failed to update balloons", "error", err)
			}
		}
	}

	return nil
}

// cancelOne throws one replacement judging away. It never was valid, so the
// scoreboard is untouched; only its queued work needs cleaning up.
func (m *Manager) cancelOne(ctx context.Context, replacement *models.Judging) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := m.queue.Remove(ctx, tx, replacement.ID); err != nil {
			return err
		}

		err := tx.Model(&models.JudgeTask{}).
			Where("judging_id = ?", replacement.ID).
			Where("result IS NULL").
			Where("judgehost_id IS NULL").
			Update("valid", false).Error
		if err != nil {
			return fmt.Errorf("failed to cancel judge tasks: %w", err)
		}

		err = tx.Model(&models.Submission{}).
			Where("id = ?", replacement.SubmissionID).
			Where("rejudging_id = ?", replacement.RejudgingID.V).
			Update("rejudging_id", nil).Error
		if err != nil {
			return fmt.Errorf("failed to release submission: %w", err)
		}

		return nil
	})
}

// ApplyReady applies every auto-apply rejudging whose replacements have all
// finished. Called opportunistically from the result reporting path.
func (m *Manager) ApplyReady(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "ApplyReady")
	defer span.End()

	var candidates []models.Rejudging
	err := m.db.WithContext(ctx).
		Where("auto_apply").
		Where("ended_at IS NULL").
		Where(`NOT EXISTS (
			SELECT 1 FROM judging j
			WHERE j.rejudging_id = rejudging.id AND j.end_time IS NULL
		)`).
		Find(&candidates).Error
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to find auto-apply candidates")
		return fmt.Errorf("failed to find auto-apply candidates: %w", err)
	}

	for _, candidate := range candidates {
		err := m.Finish(ctx, candidate.ID, types.ActionApply, "auto-apply", nil)
		if err != nil && !errors.Is(err, ErrAlreadyFinished) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to auto-apply rejudging")
			return err
		}
	}

	return nil
}
