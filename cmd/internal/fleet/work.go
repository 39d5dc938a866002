package fleet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/contestkit/judge-orchestrator/cmd/internal/judging"
	"github.com/contestkit/judge-orchestrator/cmd/internal/models"
	"github.com/contestkit/judge-orchestrator/cmd/internal/queue"
	"github.com/contestkit/judge-orchestrator/internal/audit"
)

// backfillBatch bounds how many missing judgings one fetch creates.
const backfillBatch = 50

// Dispatcher hands work to judgehosts. It composes the queue, the judging
// lifecycle and the fleet state into the fetch work flow.
type Dispatcher struct {
	fleet    *Manager
	queue    *queue.Manager
	judgings *judging.Manager
	db       *gorm.DB
}

func NewDispatcher(
	db *gorm.DB,
	fleetManager *Manager,
	queueManager *queue.Manager,
	judgingManager *judging.Manager,
) *Dispatcher {
	return &Dispatcher{
		fleet:    fleetManager,
		queue:    queueManager,
		judgings: judgingManager,
		db:       db,
	}
}

// WorkUnit is what a judgehost receives: one judging and the currently
// runnable judge tasks for it.
type WorkUnit struct {
	JudgingID    uuid.UUID          `json:"judging_id"`
	SubmissionID uuid.UUID          `json:"submission_id"`
	Tasks        []models.JudgeTask `json:"tasks"`
}

// FetchWork registers the caller, backfills missing judgings and hands out
// the next judging it is allowed to run. Returns nil when there is nothing
// to do or the host is deactivated.
func (d *Dispatcher) FetchWork(ctx context.Context, hostname string) (*WorkUnit, error) {
	ctx, span := tracer.Start(ctx, "FetchWork")
	defer span.End()

	span.SetAttributes(attribute.String("hostname", hostname))

	host, err := d.fleet.Register(ctx, hostname)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to register caller")
		return nil, err
	}

	if !host.Active {
		span.AddEvent("judgehost is deactivated")
		span.RecordError(nil)
		span.SetStatus(codes.Ok, "no work for deactivated host")
		return nil, nil
	}

	if _, err := d.judgings.BackfillOrganicJudgings(ctx, backfillBatch); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to backfill judgings")
		return nil, err
	}

	restriction, err := d.fleet.restrictionFor(ctx, host)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load restriction")
		return nil, err
	}

	filter := queue.Filter{}
	if restriction != nil {
		filter = queue.Filter{
			Contests:    restriction.Contests,
			Problems:    restriction.Problems,
			Languages:   restriction.Languages,
			RejudgeOnly: restriction.RejudgeOnly,
		}
	}

	task, err := d.queue.DequeueNext(ctx, filter, host.ID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to dequeue")
		return nil, err
	}

	var judgingID uuid.UUID
	var submissionID uuid.UUID
	if task != nil {
		judgingID = task.JudgingID
		submissionID = task.SubmissionID
	} else {
		// Nothing queued; look for judgings with released judge tasks left
		// over from a judge remaining request.
		judgingID, submissionID, err = d.findRemaining(ctx, restriction)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to look for remaining work")
			return nil, err
		}
		if judgingID == uuid.Nil {
			span.RecordError(nil)
			span.SetStatus(codes.Ok, "no work available")
			return nil, nil
		}
	}

	tasks, err := d.ClaimJudgeTasks(ctx, host, judgingID, hostname)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to claim judge tasks")
		return nil, err
	}
	if len(tasks) == 0 {
		span.AddEvent("judging had no claimable tasks")
		span.RecordError(nil)
		span.SetStatus(codes.Ok, "no claimable tasks")
		return nil, nil
	}

	span.SetAttributes(
		attribute.String("judgingID", judgingID.String()),
		attribute.Int("tasks", len(tasks)),
	)
	span.RecordError(nil)
	span.SetStatus(codes.Ok, "handed out work")
	return &WorkUnit{
		JudgingID:    judgingID,
		SubmissionID: submissionID,
		Tasks:        tasks,
	}, nil
}

// findRemaining picks a judging that still has runnable unclaimed judge
// tasks even though its queue task is gone.
func (d *Dispatcher) findRemaining(
	ctx context.Context,
	restriction *models.RestrictionSpec,
) (uuid.UUID, uuid.UUID, error) {
	query := d.db.WithContext(ctx).
		Table("judge_task").
		Select("judge_task.judging_id, judging.submission_id").
		Joins("JOIN judging ON judging.id = judge_task.judging_id").
		Joins("JOIN submission ON submission.id = judging.submission_id").
		Where("judge_task.valid").
		Where("judge_task.judgehost_id IS NULL").
		Where("judge_task.result IS NULL").
		Where("judging.start_time IS NOT NULL")

	if restriction != nil {
		if len(restriction.Contests) != 0 {
			query = query.Where("submission.contest_id IN ?", restriction.Contests)
		}
		if len(restriction.Problems) != 0 {
			query = query.Where("submission.problem_id IN ?", restriction.Problems)
		}
		if len(restriction.Languages) != 0 {
			query = query.Where("submission.language_id IN ?", restriction.Languages)
		}
		if restriction.RejudgeOnly {
			query = query.Where("judging.rejudging_id IS NOT NULL")
		}
	}

	var row struct {
		JudgingID    uuid.UUID
		SubmissionID uuid.UUID
	}
	err := query.Order("judge_task.priority, judge_task.id").First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return uuid.Nil, uuid.Nil, nil
		}
		return uuid.Nil, uuid.Nil, fmt.Errorf("failed to find remaining work: %w", err)
	}

	return row.JudgingID, row.SubmissionID, nil
}

// ClaimJudgeTasks claims every runnable judge task of a judging for a host.
// The conditional update makes sure each task goes to exactly one host, no
// matter how many claim concurrently.
func (d *Dispatcher) ClaimJudgeTasks(
	ctx context.Context,
	host *models.Judgehost,
	judgingID uuid.UUID,
	hostname string,
) ([]models.JudgeTask, error) {
	ctx, span := tracer.Start(ctx, "ClaimJudgeTasks")
	defer span.End()

	span.SetAttributes(
		attribute.String("judgingID", judgingID.String()),
		attribute.String("hostname", hostname),
	)

	var tasks []models.JudgeTask
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.JudgeTask{}).
			Where("judging_id = ?", judgingID).
			Where("valid").
			Where("judgehost_id IS NULL").
			Where("result IS NULL").
			Updates(map[string]any{
				"judgehost_id": host.ID,
				"start_time":   time.Now().UTC(),
			})
		if result.Error != nil {
			return fmt.Errorf("failed to claim judge tasks: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return nil
		}

		err := tx.Where("judging_id = ?", judgingID).
			Where("judgehost_id = ?", host.ID).
			Where("result IS NULL").
			Order("testcase_rank").
			Find(&tasks).Error
		if err != nil {
			return fmt.Errorf("failed to load claimed judge tasks: %w", err)
		}

		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to claim")
		return nil, err
	}

	if len(tasks) != 0 {
		audit.LogJudgeTaskClaimed(audit.Context{}, judgingID.String(), hostname, len(tasks))
	}

	span.SetAttributes(attribute.Int("claimed", len(tasks)))
	span.RecordError(nil)
	span.SetStatus(codes.Ok, "claimed")
	return tasks, nil
}
