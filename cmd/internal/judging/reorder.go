package judging

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/contestkit/judge-orchestrator/cmd/internal/models"
)

// ReorderTestcases swaps the run order of two testcases of a judging. Only
// unstarted tasks may move.
//
// The swap goes through a sentinel rank because the (judging, rank) pair is
// unique.
func (m *Manager) ReorderTestcases(ctx context.Context, judgingID uuid.UUID, rankA, rankB int) error {
	ctx, span := tracer.Start(ctx, "ReorderTestcases")
	defer span.End()

	span.SetAttributes(
		attribute.String("judgingID", judgingID.String()),
		attribute.Int("rankA", rankA),
		attribute.Int("rankB", rankB),
	)

	if rankA == rankB {
		return nil
	}

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, rank := range []int{rankA, rankB} {
			var started int64
			err := tx.Model(&models.JudgeTask{}).
				Where("judging_id = ?", judgingID).
				Where("testcase_rank = ?", rank).
				Where("judgehost_id IS NOT NULL OR result IS NOT NULL").
				Count(&started).Error
			if err != nil {
				return fmt.Errorf("failed to check judge task state: %w", err)
			}
			if started != 0 {
				return fmt.Errorf("testcase rank %d has already started", rank)
			}
		}

		const sentinel = -1

		steps := []struct {
			from int
			to   int
		}{
			{rankA, sentinel},
			{rankB, rankA},
			{sentinel, rankB},
		}
		for _, step := range steps {
			result := tx.Model(&models.JudgeTask{}).
				Where("judging_id = ?", judgingID).
				Where("testcase_rank = ?", step.from).
				Update("testcase_rank", step.to)
			if result.Error != nil {
				return fmt.Errorf("failed to move testcase rank: %w", result.Error)
			}
			if result.RowsAffected == 0 {
				return fmt.Errorf("no judge task at rank %d", step.from)
			}
		}

		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to reorder testcases")
		return err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "reordered")
	return nil
}
