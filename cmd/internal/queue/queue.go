// Package queue manages the queue tasks that feed judgings to judgehosts.
// Ordering is priority first, then a per-team fairness key, then insertion
// order.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/contestkit/judge-orchestrator/cmd/internal/models"
	"github.com/contestkit/judge-orchestrator/internal/audit"
	"github.com/contestkit/judge-orchestrator/internal/types"
)

const name string = "github.com/contestkit/judge-orchestrator/cmd/internal/queue"

// postgres unique_violation error code
const pgUniqueViolation = "23505"

var tracer = otel.Tracer(name)

var ErrNotQueued = errors.New("judging has no queue task")
var ErrAlreadyQueued = errors.New("judging is already queued")

type Manager struct {
	db *gorm.DB
}

func NewManager(db *gorm.DB) *Manager {
	return &Manager{db: db}
}

// Filter narrows which queue tasks a caller may receive. Empty slices match
// everything.
type Filter struct {
	Contests  []uuid.UUID
	Problems  []uuid.UUID
	Languages []uuid.UUID
	// Only hand out work that belongs to a rejudging.
	RejudgeOnly bool
}

// Enqueue creates the queue task for a judging inside the caller's
// transaction. The fairness key is the submission's submit time so older
// work goes first within a priority band.
func (m *Manager) Enqueue(
	ctx context.Context,
	tx *gorm.DB,
	judging *models.Judging,
	submission *models.Submission,
	priority types.JudgePriority,
) (*models.QueueTask, error) {
	ctx, span := tracer.Start(ctx, "Enqueue")
	defer span.End()

	span.SetAttributes(
		attribute.String("judgingID", judging.ID.String()),
		attribute.String("priority", priority.String()),
	)

	tx = tx.WithContext(ctx)

	task := models.QueueTask{
		JudgingID:    judging.ID,
		SubmissionID: submission.ID,
		TeamID:       submission.TeamID,
		ContestID:    submission.ContestID,
		ProblemID:    submission.ProblemID,
		LanguageID:   submission.LanguageID,
		Priority:     priority,
		TeamPriority: submission.SubmitTime.Unix(),
	}

	span.AddEvent("creating queue task")
	if err := tx.Create(&task).Error; err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			// the unique index on judging_id caught a double enqueue
			span.RecordError(ErrAlreadyQueued)
			span.SetStatus(codes.Error, "already queued")
			return nil, ErrAlreadyQueued
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create queue task")
		return nil, fmt.Errorf("failed to create queue task: %w", err)
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "queued judging")
	return &task, nil
}

// DequeueNext hands out the next queue task matching the filter and marks it
// started. Returns nil without error when the queue is empty.
//
// Concurrent callers are isolated with row locks, so the same task is never
// handed out twice.
func (m *Manager) DequeueNext(
	ctx context.Context,
	filter Filter,
	judgehostID uuid.UUID,
) (*models.QueueTask, error) {
	ctx, span := tracer.Start(ctx, "DequeueNext")
	defer span.End()

	span.SetAttributes(attribute.String("judgehostID", judgehostID.String()))

	var task *models.QueueTask
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.
			Where("start_time IS NULL").
			Order("priority, team_priority, id").
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})

		if len(filter.Contests) != 0 {
			query = query.Where("contest_id IN ?", filter.Contests)
		}
		if len(filter.Problems) != 0 {
			query = query.Where("problem_id IN ?", filter.Problems)
		}
		if len(filter.Languages) != 0 {
			query = query.Where("language_id IN ?", filter.Languages)
		}
		if filter.RejudgeOnly {
			query = query.Where(
				"judging_id IN (?)",
				tx.Model(&models.Judging{}).Select("id").Where("rejudging_id IS NOT NULL"),
			)
		}

		var candidate models.QueueTask
		err := query.First(&candidate).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return fmt.Errorf("failed to select next queue task: %w", err)
		}

		now := time.Now().UTC()

		result := tx.Model(&models.QueueTask{}).
			Where("id = ?", candidate.ID).
			Where("start_time IS NULL").
			Update("start_time", now)
		if result.Error != nil {
			return fmt.Errorf("failed to mark queue task started: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			// lost the race despite the lock, treat as empty queue
			return nil
		}

		err = tx.Model(&models.Judging{}).
			Where("id = ?", candidate.JudgingID).
			Where("start_time IS NULL").
			Updates(map[string]any{
				"start_time":   now,
				"judgehost_id": judgehostID,
			}).Error
		if err != nil {
			return fmt.Errorf("failed to mark judging started: %w", err)
		}

		err = tx.Model(&models.Submission{}).
			Where("id = ?", candidate.SubmissionID).
			Update("judgehost_id", judgehostID).Error
		if err != nil {
			return fmt.Errorf("failed to stamp submission judgehost: %w", err)
		}

		err = tx.Model(&models.Team{}).
			Where("id = ?", candidate.TeamID).
			Update("judging_last_started", now).Error
		if err != nil {
			return fmt.Errorf("failed to touch team judging_last_started: %w", err)
		}

		// Push the team's remaining queued work behind everyone who has
		// been waiting, so teams take turns.
		err = tx.Model(&models.QueueTask{}).
			Where("team_id = ?", candidate.TeamID).
			Where("start_time IS NULL").
			Update("team_priority", gorm.Expr("GREATEST(team_priority, ?)", now.Unix())).Error
		if err != nil {
			return fmt.Errorf("failed to bump team fairness keys: %w", err)
		}

		candidate.StartTime = models.NewNullFromData(now)
		task = &candidate
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to dequeue")
		return nil, err
	}

	if task == nil {
		span.AddEvent("queue empty")
		span.RecordError(nil)
		span.SetStatus(codes.Ok, "no work available")
		return nil, nil
	}

	span.SetAttributes(attribute.String("queueTaskID", task.ID.String()))
	span.RecordError(nil)
	span.SetStatus(codes.Ok, "dequeued")
	return task, nil
}

// ChangePriority moves a queued judging to a different priority band and
// cascades the change to its judge tasks.
func (m *Manager) ChangePriority(
	ctx context.Context,
	judgingID uuid.UUID,
	priority types.JudgePriority,
) error {
	ctx, span := tracer.Start(ctx, "ChangePriority")
	defer span.End()

	span.SetAttributes(
		attribute.String("judgingID", judgingID.String()),
		attribute.String("priority", priority.String()),
	)

	var task models.QueueTask
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&task).
			Clauses(clause.Returning{}).
			Where("judging_id = ?", judgingID).
			Where("start_time IS NULL").
			Update("priority", priority)
		if result.Error != nil {
			return fmt.Errorf("failed to update queue task priority: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrNotQueued
		}

		// Claimed tasks come back through the remaining work fallback when a
		// host dies, so they need the new priority too.
		err := tx.Model(&models.JudgeTask{}).
			Where("judging_id = ?", judgingID).
			Update("priority", priority).Error
		if err != nil {
			return fmt.Errorf("failed to cascade priority to judge tasks: %w", err)
		}

		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to change priority")
		return err
	}

	audit.LogPriorityChanged(
		audit.Context{},
		task.ID.String(),
		judgingID.String(),
		priority,
	)

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "changed priority")
	return nil
}

// Remove drops the queue task for a judging, if any. Used when a judging is
// invalidated before a judgehost picked it up.
func (m *Manager) Remove(ctx context.Context, tx *gorm.DB, judgingID uuid.UUID) error {
	ctx, span := tracer.Start(ctx, "Remove")
	defer span.End()

	span.SetAttributes(attribute.String("judgingID", judgingID.String()))

	err := tx.WithContext(ctx).
		Where("judging_id = ?", judgingID).
		Delete(&models.QueueTask{}).Error
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to remove queue task")
		return fmt.Errorf("failed to remove queue task: %w", err)
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "removed")
	return nil
}

// Length reports how many queue tasks are waiting per priority band.
func (m *Manager) Length(ctx context.Context) (map[types.JudgePriority]int64, error) {
	ctx, span := tracer.Start(ctx, "Length")
	defer span.End()

	type row struct {
		Priority types.JudgePriority
		Count    int64
	}

	var rows []row
	err := m.db.WithContext(ctx).Model(&models.QueueTask{}).
		Select("priority, count(*) as count").
		Where("start_time IS NULL").
		Group("priority").
		Find(&rows).Error
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to count queue tasks")
		return nil, fmt.Errorf("failed to count queue tasks: %w", err)
	}

	counts := make(map[types.JudgePriority]int64, len(rows))
	for _, r := range rows {
		counts[r.Priority] = r.Count
	}

	return counts, nil
}
