// Package judging owns the lifecycle of a judging: creating it, fanning its
// testcases out into judge tasks, collecting results and deciding the final
// verdict.
package judging

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/contestkit/judge-orchestrator/cmd/internal/models"
	"github.com/contestkit/judge-orchestrator/cmd/internal/queue"
	"github.com/contestkit/judge-orchestrator/internal/config"
	"github.com/contestkit/judge-orchestrator/internal/scoreboard"
	"github.com/contestkit/judge-orchestrator/internal/types"
)

const name string = "github.com/contestkit/judge-orchestrator/cmd/internal/judging"

var tracer = otel.Tracer(name)

type Manager struct {
	db       *gorm.DB
	cfg      *config.JudgingConfig
	queue    *queue.Manager
	scores   scoreboard.Refresher
	balloons scoreboard.BalloonNotifier
}

func NewManager(
	db *gorm.DB,
	cfg *config.JudgingConfig,
	queueManager *queue.Manager,
	scores scoreboard.Refresher,
	balloons scoreboard.BalloonNotifier,
) *Manager {
	return &Manager{
		db:       db,
		cfg:      cfg,
		queue:    queueManager,
		scores:   scores,
		balloons: balloons,
	}
}

// CreateOptions controls how a new judging is set up.
type CreateOptions struct {
	RejudgingID   *uuid.UUID
	PrevJudgingID *uuid.UUID
	// Whether the new judging is the submission's current one. False for
	// judgings created by a full rejudging, which only become current on
	// apply.
	Valid           bool
	JudgeCompletely bool
	Priority        types.JudgePriority
}

// lazyEvalFor resolves the effective lazy evaluation setting for a problem.
func (m *Manager) lazyEvalFor(problem *models.Problem) bool {
	if problem.LazyEval.Valid {
		return problem.LazyEval.V
	}
	return m.cfg.LazyEval
}

// Create makes a judging with its judge tasks and queue task inside the
// caller's transaction.
func (m *Manager) Create(
	ctx context.Context,
	tx *gorm.DB,
	submission *models.Submission,
	problem *models.Problem,
	opts CreateOptions,
) (*models.Judging, error) {
	ctx, span := tracer.Start(ctx, "Create")
	defer span.End()

	span.SetAttributes(
		attribute.String("submissionID", submission.ID.String()),
		attribute.Bool("valid", opts.Valid),
		attribute.String("priority", opts.Priority.String()),
	)

	tx = tx.WithContext(ctx)

	judging := models.Judging{
		SubmissionID:    submission.ID,
		Valid:           opts.Valid,
		RejudgingID:     models.NewNull(opts.RejudgingID),
		PrevJudgingID:   models.NewNull(opts.PrevJudgingID),
		JudgeCompletely: opts.JudgeCompletely,
	}

	span.AddEvent("creating judging")
	if err := tx.Create(&judging).Error; err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create judging")
		return nil, fmt.Errorf("failed to create judging: %w", err)
	}

	if err := m.fanOut(ctx, tx, &judging, problem, opts.Priority); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fan out judge tasks")
		return nil, err
	}

	if _, err := m.queue.Enqueue(ctx, tx, &judging, submission, opts.Priority); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to enqueue judging")
		return nil, err
	}

	span.SetAttributes(attribute.String("judgingID", judging.ID.String()))
	span.RecordError(nil)
	span.SetStatus(codes.Ok, "created judging")
	return &judging, nil
}

// fanOut creates one judge task per testcase. Under lazy evaluation only the
// first rank starts out valid; later ranks are released one at a time as
// results come in.
func (m *Manager) fanOut(
	ctx context.Context,
	tx *gorm.DB,
	judging *models.Judging,
	problem *models.Problem,
	priority types.JudgePriority,
) error {
	ctx, span := tracer.Start(ctx, "fanOut")
	defer span.End()

	span.SetAttributes(
		attribute.String("judgingID", judging.ID.String()),
		attribute.Int("testcaseCount", problem.TestcaseCount),
	)

	if problem.TestcaseCount <= 0 {
		return fmt.Errorf("problem %s has no testcases", problem.ID)
	}

	lazy := m.lazyEvalFor(problem) && !judging.JudgeCompletely
	span.SetAttributes(attribute.Bool("lazy", lazy))

	tasks := make([]*models.JudgeTask, problem.TestcaseCount)
	for i := range tasks {
		rank := i + 1
		tasks[i] = &models.JudgeTask{
			JudgingID:    judging.ID,
			TestcaseRank: rank,
			Valid:        !lazy || rank == 1,
			Priority:     priority,
		}
	}

	span.AddEvent("creating judge tasks")
	if err := tx.WithContext(ctx).Create(tasks).Error; err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create judge tasks")
		return fmt.Errorf("failed to create judge tasks: %w", err)
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "fanned out")
	return nil
}
