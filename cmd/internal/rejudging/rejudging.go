package rejudging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/contestkit/judge-orchestrator/cmd/internal/judging"
	"github.com/contestkit/judge-orchestrator/cmd/internal/models"
	"github.com/contestkit/judge-orchestrator/cmd/internal/queue"
	"github.com/contestkit/judge-orchestrator/internal/audit"
	"github.com/contestkit/judge-orchestrator/internal/logger"
	"github.com/contestkit/judge-orchestrator/internal/scoreboard"
	"github.com/contestkit/judge-orchestrator/internal/types"
)

type Manager struct {
	db       *gorm.DB
	judgings *judging.Manager
	queue    *queue.Manager
	scores   scoreboard.Refresher
	balloons scoreboard.BalloonNotifier
}

func NewManager(
	db *gorm.DB,
	judgings *judging.Manager,
	queueManager *queue.Manager,
	scores scoreboard.Refresher,
	balloons scoreboard.BalloonNotifier,
) *Manager {
	return &Manager{
		db:       db,
		judgings: judgings,
		queue:    queueManager,
		scores:   scores,
		balloons: balloons,
	}
}

// CreateOptions controls a new rejudge batch.
type CreateOptions struct {
	Reason    string
	StartedBy string
	// Full rejudges are tracked and reversible: replacement judgings stay
	// invalid until the batch is applied. Non-full rejudges invalidate the
	// current judgings immediately and let the regular judging backfill
	// redo them, with nothing to apply or cancel afterwards.
	Full bool
	// Apply automatically once every replacement judging has finished.
	// Only meaningful for full rejudges.
	AutoApply       bool
	JudgeCompletely bool
	Priority        types.JudgePriority
}

// Create starts a rejudge over the selection. For a full rejudge the
// returned row tracks the batch; for a non-full one it is nil. The int is
// the number of judgings covered.
func (m *Manager) Create(
	ctx context.Context,
	sel Selection,
	opts CreateOptions,
) (*models.Rejudging, int, error) {
	ctx, span := tracer.Start(ctx, "Create")
	defer span.End()

	span.SetAttributes(
		attribute.Bool("full", opts.Full),
		attribute.String("reason", opts.Reason),
	)

	rows, err := selectJudgings(ctx, m.db, sel)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to resolve selection")
		return nil, 0, err
	}
	if len(rows) == 0 {
		span.RecordError(ErrEmptySelection)
		span.SetStatus(codes.Error, "empty selection")
		return nil, 0, ErrEmptySelection
	}

	if opts.Full {
		return m.createFull(ctx, rows, opts)
	}

	count, err := m.createNonFull(ctx, rows, opts)
	return nil, count, err
}

func (m *Manager) createFull(
	ctx context.Context,
	rows []selected,
	opts CreateOptions,
) (*models.Rejudging, int, error) {
	ctx, span := tracer.Start(ctx, "createFull")
	defer span.End()

	rejudging := models.Rejudging{
		Reason:    opts.Reason,
		StartedBy: opts.StartedBy,
		StartTime: time.Now().UTC(),
		AutoApply: opts.AutoApply,
	}
	if err := m.db.WithContext(ctx).Create(&rejudging).Error; err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create rejudging")
		return nil, 0, fmt.Errorf("failed to create rejudging: %w", err)
	}

	span.SetAttributes(attribute.String("rejudgingID", rejudging.ID.String()))

	tagged := 0
	for _, row := range rows {
		err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			// The old judging stays valid; it is only replaced on apply.
			// Skip judgings that flipped or joined another batch since the
			// selection ran.
			var current models.Judging
			err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("id = ?", row.JudgingID).
				Where("valid").
				First(&current).Error
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return nil
				}
				return fmt.Errorf("failed to lock judging: %w", err)
			}

			// Claim the submission for this batch. A submission carries at
			// most one batch claim, so losing this update means another
			// active rejudging holds it.
			claim := tx.Model(&models.Submission{}).
				Where("id = ?", row.SubmissionID).
				Where("rejudging_id IS NULL").
				Update("rejudging_id", rejudging.ID)
			if claim.Error != nil {
				return fmt.Errorf("failed to claim submission: %w", claim.Error)
			}
			if claim.RowsAffected == 0 {
				return nil
			}

			submission, err := models.ByID[models.Submission](ctx, tx, row.SubmissionID)
			if err != nil {
				return fmt.Errorf("failed to load submission: %w", err)
			}
			problem, err := models.ByID[models.Problem](ctx, tx, submission.ProblemID)
			if err != nil {
				return fmt.Errorf("failed to load problem: %w", err)
			}

			_, err = m.judgings.Create(ctx, tx, submission, problem, judging.CreateOptions{
				RejudgingID:     &rejudging.ID,
				PrevJudgingID:   &current.ID,
				Valid:           false,
				JudgeCompletely: opts.JudgeCompletely,
				Priority:        opts.Priority,
			})
			if err != nil {
				return err
			}

			tagged++
			return nil
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to tag judging for rejudging")
			return nil, tagged, err
		}
	}

	if tagged == 0 {
		// everything was claimed by other batches in the meantime
		err := m.db.WithContext(ctx).Delete(&rejudging).Error
		if err != nil {
			logger.Logger.ErrorContext(ctx, "failed to delete empty rejudging", "error", err)
		}
		span.RecordError(ErrEmptySelection)
		span.SetStatus(codes.Error, "selection raced to empty")
		return nil, 0, ErrEmptySelection
	}

	audit.LogRejudgingStarted(
		audit.Context{},
		rejudging.ID.String(),
		opts.Reason,
		opts.StartedBy,
		tagged,
	)

	span.SetAttributes(attribute.Int("tagged", tagged))
	span.RecordError(nil)
	span.SetStatus(codes.Ok, "created full rejudging")
	return &rejudging, tagged, nil
}

func (m *Manager) createNonFull(
	ctx context.Context,
	rows []selected,
	opts CreateOptions,
) (int, error) {
	ctx, span := tracer.Start(ctx, "createNonFull")
	defer span.End()

	invalidated := 0
	for _, row := range rows {
		err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			result := tx.Model(&models.Judging{}).
				Where("id = ?", row.JudgingID).
				Where("valid").
				Update("valid", false)
			if result.Error != nil {
				return fmt.Errorf("failed to invalidate judging: %w", result.Error)
			}
			if result.RowsAffected == 0 {
				return nil
			}

			if err := m.queue.Remove(ctx, tx, row.JudgingID); err != nil {
				return err
			}

			// Drop unclaimed work of the dead judging.
			err := tx.Model(&models.JudgeTask{}).
				Where("judging_id = ?", row.JudgingID).
				Where("result IS NULL").
				Where("judgehost_id IS NULL").
				Update("valid", false).Error
			if err != nil {
				return fmt.Errorf("failed to cancel judge tasks: %w", err)
			}

			// The host that ran the dead judging is stale now.
			err = tx.Model(&models.Submission{}).
				Where("id = ?", row.SubmissionID).
				Update("judgehost_id", nil).Error
			if err != nil {
				return fmt.Errorf("failed to clear submission judgehost: %w", err)
			}

			// A single ad-hoc rejudge also frees the team's scheduling slot
			// right away.
			if len(rows) == 1 {
				err = tx.Model(&models.Team{}).
					Where("id = ?", row.TeamID).
					Update("judging_last_started", nil).Error
				if err != nil {
					return fmt.Errorf("failed to clear team judging_last_started: %w", err)
				}
			}

			invalidated++

			contestID := row.ContestID.String()
			teamID := row.TeamID.String()
			audit.LogJudgingInvalidated(
				audit.Context{ContestID: &contestID, TeamID: &teamID},
				row.JudgingID.String(),
				row.SubmissionID.String(),
				opts.Reason,
				false,
			)
			return nil
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to invalidate judging")
			return invalidated, err
		}

		err = m.scores.CalculateScoreRow(ctx, row.ContestID, row.TeamID, row.ProblemID)
		if err != nil {
			logger.Logger.ErrorContext(ctx, "failed to refresh score row", "error", err)
		}
	}

	span.SetAttributes(attribute.Int("invalidated", invalidated))
	span.RecordError(nil)
	span.SetStatus(codes.Ok, "created non-full rejudging")
	return invalidated, nil
}
