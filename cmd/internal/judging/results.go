package judging

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/contestkit/judge-orchestrator/cmd/internal/models"
	"github.com/contestkit/judge-orchestrator/internal/audit"
	"github.com/contestkit/judge-orchestrator/internal/logger"
	"github.com/contestkit/judge-orchestrator/internal/types"
)

var ErrAlreadyVerified = errors.New("judging is already verified")
var ErrNotFinished = errors.New("judging has not finished")

// ReportTestcaseResult records one testcase verdict, releases the next rank
// under lazy evaluation and finalizes the judging once the outcome is known.
//
// Duplicate reports for the same rank are ignored.
func (m *Manager) ReportTestcaseResult(
	ctx context.Context,
	judgingID uuid.UUID,
	rank int,
	verdict types.Verdict,
	hostname string,
) error {
	ctx, span := tracer.Start(ctx, "ReportTestcaseResult")
	defer span.End()

	span.SetAttributes(
		attribute.String("judgingID", judgingID.String()),
		attribute.Int("rank", rank),
		attribute.String("verdict", string(verdict)),
	)

	var finalized *models.Judging
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var judging models.Judging
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&judging, judgingID).Error
		if err != nil {
			return fmt.Errorf("failed to load judging: %w", err)
		}

		result := tx.Model(&models.JudgeTask{}).
			Where("judging_id = ?", judgingID).
			Where("testcase_rank = ?", rank).
			Where("result IS NULL").
			Update("result", string(verdict))
		if result.Error != nil {
			return fmt.Errorf("failed to store testcase result: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			span.AddEvent("duplicate testcase result ignored")
			return nil
		}

		if verdict.EqualsFold(types.VerdictCorrect) {
			// Release the next rank. No-op when it is already valid or
			// this was the last one.
			err = tx.Model(&models.JudgeTask{}).
				Where("judging_id = ?", judgingID).
				Where("testcase_rank = ?", rank+1).
				Where("NOT valid").
				Update("valid", true).Error
			if err != nil {
				return fmt.Errorf("failed to release next judge task: %w", err)
			}
		}

		done, err := m.finalizeLocked(ctx, tx, &judging, hostname)
		if err != nil {
			return err
		}
		if done {
			finalized = &judging
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to handle testcase result")
		return err
	}

	if finalized != nil {
		m.notifyFinalized(ctx, finalized)
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "handled testcase result")
	return nil
}

// verdictFor decides the final verdict from judge task results, scanning in
// testcase order. The lowest failing rank determines the outcome. The second
// return is false while the outcome is still open.
func verdictFor(judgeCompletely bool, tasks []models.JudgeTask) (types.Verdict, bool) {
	var verdict types.Verdict
	for _, task := range tasks {
		if verdict != "" && !judgeCompletely {
			break
		}

		if !task.Result.Valid {
			if !task.Valid && verdict != "" {
				// rank canceled after the deciding failure
				continue
			}
			return "", false
		}

		taskVerdict := types.Verdict(task.Result.V)
		if verdict == "" && !taskVerdict.EqualsFold(types.VerdictCorrect) {
			verdict = taskVerdict
		}
	}

	if verdict == "" {
		verdict = types.VerdictCorrect
	}
	return verdict, true
}

// finalizeLocked finalizes the judging if its outcome is decided. The caller
// must hold a row lock on the judging.
func (m *Manager) finalizeLocked(
	ctx context.Context,
	tx *gorm.DB,
	judging *models.Judging,
	hostname string,
) (bool, error) {
	ctx, span := tracer.Start(ctx, "finalizeLocked")
	defer span.End()

	if judging.Finished() {
		span.AddEvent("judging already finalized")
		return false, nil
	}

	var tasks []models.JudgeTask
	err := tx.Where("judging_id = ?", judging.ID).
		Order("testcase_rank").
		Find(&tasks).Error
	if err != nil {
		return false, fmt.Errorf("failed to load judge tasks: %w", err)
	}

	verdict, decided := verdictFor(judging.JudgeCompletely, tasks)
	if !decided {
		span.AddEvent("outcome still open")
		return false, nil
	}

	span.SetAttributes(attribute.String("verdict", string(verdict)))

	now := time.Now().UTC()
	result := tx.Model(&models.Judging{}).
		Where("id = ?", judging.ID).
		Where("end_time IS NULL").
		Updates(map[string]any{
			"result":   string(verdict),
			"end_time": now,
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to finalize judging: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return false, nil
	}
	judging.Result = models.NewNullFromData(string(verdict))
	judging.EndTime = models.NewNullFromData(now)

	if err := m.queue.Remove(ctx, tx, judging.ID); err != nil {
		return false, err
	}

	if !judging.JudgeCompletely {
		// Cancel testcases that no longer matter for the verdict.
		err = tx.Model(&models.JudgeTask{}).
			Where("judging_id = ?", judging.ID).
			Where("result IS NULL").
			Where("judgehost_id IS NULL").
			Update("valid", false).Error
		if err != nil {
			return false, fmt.Errorf("failed to cancel leftover judge tasks: %w", err)
		}
	}

	submission, err := models.ByID[models.Submission](ctx, tx, judging.SubmissionID)
	if err != nil {
		return false, fmt.Errorf("failed to load submission for finalize: %w", err)
	}

	contestID := submission.ContestID.String()
	teamID := submission.TeamID.String()
	auditCtx := audit.Context{ContestID: &contestID, TeamID: &teamID}

	audit.LogJudgingFinalized(
		auditCtx,
		judging.ID.String(),
		submission.ID.String(),
		verdict,
		hostname,
	)

	if err := m.autoVerify(ctx, tx, auditCtx, judging, submission, verdict); err != nil {
		return false, err
	}

	return true, nil
}

// autoVerify applies the verification policy right after finalization.
//
// Without required verification every judging is verified immediately. With
// it, a judging is auto verified when its verdict matches the jury's
// expectation and the expectation is unambiguous.
func (m *Manager) autoVerify(
	ctx context.Context,
	tx *gorm.DB,
	auditCtx audit.Context,
	judging *models.Judging,
	submission *models.Submission,
	verdict types.Verdict,
) error {
	_, span := tracer.Start(ctx, "autoVerify")
	defer span.End()

	expected := submission.ExpectedResults
	matches := slices.ContainsFunc(expected, func(e string) bool {
		return verdict.EqualsFold(types.Verdict(e))
	})

	if len(expected) != 0 && !matches {
		audit.LogUnexpectedVerdict(auditCtx, judging.ID.String(), verdict, expected)
	}

	verified := false
	juryMember := ""
	switch {
	case !m.cfg.VerificationRequired:
		verified = true
	case matches && (len(expected) == 1 || m.cfg.AutoVerifyMultiple):
		verified = true
		juryMember = "auto-verifier"
	}

	if !verified {
		span.AddEvent("left unverified for the jury")
		return nil
	}

	updates := map[string]any{"verified": true}
	if juryMember != "" {
		updates["jury_member"] = juryMember
	}

	err := tx.Model(&models.Judging{}).
		Where("id = ?", judging.ID).
		Updates(updates).Error
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to mark judging verified")
		return fmt.Errorf("failed to mark judging verified: %w", err)
	}
	judging.Verified = true

	if juryMember != "" {
		audit.LogJudgingVerified(auditCtx, judging.ID.String(), verdict, juryMember)
	}

	return nil
}

// notifyFinalized pushes the scoreboard and balloon updates that follow a
// finalized judging. Failures are logged, not returned, because the judging
// state is already committed.
func (m *Manager) notifyFinalized(ctx context.Context, judging *models.Judging) {
	ctx, span := tracer.Start(ctx, "notifyFinalized")
	defer span.End()

	if !judging.Valid {
		return
	}

	submission, err := models.ByID[models.Submission](ctx, m.db, judging.SubmissionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load submission for notify")
		logger.Logger.ErrorContext(ctx, "failed to load submission for notify", "error", err)
		return
	}

	err = m.scores.CalculateScoreRow(ctx, submission.ContestID, submission.TeamID, submission.ProblemID)
	if err != nil {
		span.RecordError(err)
		logger.Logger.ErrorContext(ctx, "failed to refresh score row", "error", err)
	}

	if judging.Verified && judging.ResultVerdict().EqualsFold(types.VerdictCorrect) {
		err = m.balloons.UpdateBalloons(ctx, submission.ContestID, submission.ID, judging.ID)
		if err != nil {
			span.RecordError(err)
			logger.Logger.ErrorContext(ctx, "failed to update balloons", "error", err)
		}
	}
}

// Verify marks a finished judging as checked by a jury member.
func (m *Manager) Verify(ctx context.Context, judgingID uuid.UUID, juryMember string) error {
	ctx, span := tracer.Start(ctx, "Verify")
	defer span.End()

	span.SetAttributes(
		attribute.String("judgingID", judgingID.String()),
		attribute.String("juryMember", juryMember),
	)

	var judging models.Judging
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.First(&judging, judgingID).Error
		if err != nil {
			return err
		}
		if !judging.Finished() {
			return ErrNotFinished
		}

		result := tx.Model(&models.Judging{}).
			Where("id = ?", judgingID).
			Where("NOT verified").
			Updates(map[string]any{
				"verified":    true,
				"jury_member": juryMember,
			})
		if result.Error != nil {
			return fmt.Errorf("failed to verify judging: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrAlreadyVerified
		}
		judging.Verified = true
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to verify")
		return err
	}

	audit.LogJudgingVerified(audit.Context{}, judgingID.String(), judging.ResultVerdict(), juryMember)
	m.notifyFinalized(ctx, &judging)

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "verified")
	return nil
}

var ErrAlreadyRequested = errors.New("full run already requested")
var ErrSuperseded = errors.New("judging is no longer valid")

// RequestRemaining releases every held back judge task of a finished judging
// so the full testcase set gets run, and queues the judging again at low
// priority. Returns the number of tasks released.
func (m *Manager) RequestRemaining(ctx context.Context, judgingID uuid.UUID) (int64, error) {
	ctx, span := tracer.Start(ctx, "RequestRemaining")
	defer span.End()

	span.SetAttributes(attribute.String("judgingID", judgingID.String()))

	var released int64
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var judging models.Judging
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&judging, judgingID).Error
		if err != nil {
			return err
		}

		switch {
		case !judging.Valid:
			return ErrSuperseded
		case !judging.Finished():
			return ErrNotFinished
		case judging.JudgeCompletely:
			return ErrAlreadyRequested
		}

		err = tx.Model(&models.Judging{}).
			Where("id = ?", judgingID).
			Update("judge_completely", true).Error
		if err != nil {
			return fmt.Errorf("failed to mark judging judge_completely: %w", err)
		}

		result := tx.Model(&models.JudgeTask{}).
			Where("judging_id = ?", judgingID).
			Where("NOT valid").
			Where("result IS NULL").
			Updates(map[string]any{
				"valid":    true,
				"priority": types.PriorityLow,
			})
		if result.Error != nil {
			return fmt.Errorf("failed to release held back judge tasks: %w", result.Error)
		}
		released = result.RowsAffected
		if released == 0 {
			return nil
		}

		submission, err := models.ByID[models.Submission](ctx, tx, judging.SubmissionID)
		if err != nil {
			return fmt.Errorf("failed to load submission: %w", err)
		}

		// Requeue at low priority; the fairness key keeps the original
		// submit time ordering within the band.
		_, err = m.queue.Enqueue(ctx, tx, &judging, submission, types.PriorityLow)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to request remaining")
		return 0, err
	}

	audit.LogRemainingRequested(audit.Context{}, judgingID.String())

	span.SetAttributes(attribute.Int64("released", released))
	span.RecordError(nil)
	span.SetStatus(codes.Ok, "requested remaining")
	return released, nil
}

// RemainingSummary aggregates a batch judge remaining request. Judgings that
// do not qualify are counted per reason instead of failing the batch.
type RemainingSummary struct {
	Requested        int   `json:"requested"`
	Released         int64 `json:"released"`
	StillRunning     int   `json:"still_running"`
	AlreadyRequested int   `json:"already_requested"`
	Superseded       int   `json:"superseded"`
	NotFound         int   `json:"not_found"`
	Failed           int   `json:"failed"`
}

// RequestRemainingBatch runs RequestRemaining over many judgings, skipping
// the ones that do not qualify and carrying on past individual failures.
func (m *Manager) RequestRemainingBatch(
	ctx context.Context,
	judgingIDs []uuid.UUID,
) (RemainingSummary, error) {
	ctx, span := tracer.Start(ctx, "RequestRemainingBatch")
	defer span.End()

	span.SetAttributes(attribute.Int("judgings", len(judgingIDs)))

	var summary RemainingSummary
	for _, id := range judgingIDs {
		released, err := m.RequestRemaining(ctx, id)
		switch {
		case err == nil:
			summary.Requested++
			summary.Released += released
		case errors.Is(err, ErrNotFinished):
			summary.StillRunning++
		case errors.Is(err, ErrAlreadyRequested):
			summary.AlreadyRequested++
		case errors.Is(err, ErrSuperseded):
			summary.Superseded++
		case errors.Is(err, gorm.ErrRecordNotFound):
			summary.NotFound++
		default:
			summary.Failed++
			logger.Logger.ErrorContext(ctx, "failed to request remaining",
				"judgingID", id, "error", err)
		}
	}

	span.SetAttributes(attribute.Int("requested", summary.Requested))
	span.RecordError(nil)
	span.SetStatus(codes.Ok, "requested remaining for batch")
	return summary, nil
}
