package judging

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/contestkit/judge-orchestrator/cmd/internal/models"
	"github.com/contestkit/judge-orchestrator/internal/types"
)

// BackfillOrganicJudgings creates judgings for submissions that have none,
// either because they are new or because their judging was invalidated by a
// verdict change. Runs opportunistically on the fetch work path.
//
// Submissions caught up in an active full rejudging are skipped; those get
// their new judging from the rejudging itself.
func (m *Manager) BackfillOrganicJudgings(ctx context.Context, limit int) (int, error) {
	ctx, span := tracer.Start(ctx, "BackfillOrganicJudgings")
	defer span.End()

	span.SetAttributes(attribute.Int("limit", limit))

	var candidates []models.Submission
	err := m.db.WithContext(ctx).
		Where("valid").
		Where(`NOT EXISTS (
			SELECT 1 FROM judging j
			WHERE j.submission_id = submission.id AND (j.valid OR j.end_time IS NULL)
		)`).
		Where("rejudging_id IS NULL").
		Order("submit_time").
		Limit(limit).
		Find(&candidates).Error
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to find submissions needing judgings")
		return 0, fmt.Errorf("failed to find submissions needing judgings: %w", err)
	}

	created := 0
	for i := range candidates {
		submission := &candidates[i]

		err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			// Recheck under lock, another fetch may have won the race.
			var existing int64
			err := tx.Model(&models.Judging{}).
				Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("submission_id = ?", submission.ID).
				Where("valid OR end_time IS NULL").
				Count(&existing).Error
			if err != nil {
				return fmt.Errorf("failed to recheck judging state: %w", err)
			}
			if existing != 0 {
				return nil
			}

			problem, err := models.ByID[models.Problem](ctx, tx, submission.ProblemID)
			if err != nil {
				return fmt.Errorf("failed to load problem: %w", err)
			}

			opts := CreateOptions{Valid: true, Priority: types.PriorityDefault}

			var prev models.Judging
			err = tx.Where("submission_id = ?", submission.ID).
				Order("created_at DESC").
				First(&prev).Error
			switch {
			case err == nil:
				// redone work goes behind fresh submissions
				opts.PrevJudgingID = &prev.ID
				opts.Priority = types.PriorityLow
			case errors.Is(err, gorm.ErrRecordNotFound):
			default:
				return fmt.Errorf("failed to look up previous judging: %w", err)
			}

			_, err = m.Create(ctx, tx, submission, problem, opts)
			if err != nil {
				return err
			}

			created++
			return nil
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to backfill judging")
			return created, err
		}
	}

	span.SetAttributes(attribute.Int("created", created))
	span.RecordError(nil)
	span.SetStatus(codes.Ok, "backfilled")
	return created, nil
}
