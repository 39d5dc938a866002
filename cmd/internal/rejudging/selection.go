// Package rejudging orchestrates rejudge batches: selecting the judgings to
// redo, creating their replacements and applying or canceling the outcome.
package rejudging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"
)

const name string = "github.com/contestkit/judge-orchestrator/cmd/internal/rejudging"

var tracer = otel.Tracer(name)

var ErrEmptySelection = errors.New("selection matches no judgings")
var ErrTimeFilterNeedsContest = errors.New(
	"before/after filters require selecting exactly one contest",
)

// Selection describes which valid judgings a rejudge should cover. All set
// filters are combined with AND; empty ones are ignored.
type Selection struct {
	ContestIDs    []uuid.UUID
	ProblemIDs    []uuid.UUID
	TeamIDs       []uuid.UUID
	LanguageIDs   []uuid.UUID
	SubmissionIDs []uuid.UUID
	JudgingIDs    []uuid.UUID
	// Restrict to judgings run by one of these judgehosts. Used to redo the
	// work of a misbehaving host.
	JudgehostIDs []uuid.UUID
	// Restrict to judgings whose current verdict is one of these.
	Verdicts []string
	// Submit time bounds. Only meaningful within a single contest, since
	// contests run on their own clocks.
	Before *time.Time
	After  *time.Time
}

func (s Selection) validate() error {
	if (s.Before != nil || s.After != nil) && len(s.ContestIDs) != 1 {
		return ErrTimeFilterNeedsContest
	}
	return nil
}

// selected is one judging picked for rejudging together with its submission.
type selected struct {
	JudgingID    uuid.UUID
	SubmissionID uuid.UUID
	ContestID    uuid.UUID
	TeamID       uuid.UUID
	ProblemID    uuid.UUID
	Result       *string
}

// selectJudgings resolves a selection to the current valid judgings it
// covers. Unfinished judgings are included; the rejudging replaces them too.
func selectJudgings(ctx context.Context, db *gorm.DB, sel Selection) ([]selected, error) {
	ctx, span := tracer.Start(ctx, "selectJudgings")
	defer span.End()

	if err := sel.validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid selection")
		return nil, err
	}

	query := db.WithContext(ctx).
		Table("judging").
		Select(`judging.id AS judging_id,
			submission.id AS submission_id,
			submission.contest_id,
			submission.team_id,
			submission.problem_id,
			judging.result`).
		Joins("JOIN submission ON submission.id = judging.submission_id").
		Where("judging.valid").
		Where("submission.valid")

	if len(sel.ContestIDs) != 0 {
		query = query.Where("submission.contest_id IN ?", sel.ContestIDs)
	}
	if len(sel.ProblemIDs) != 0 {
		query = query.Where("submission.problem_id IN ?", sel.ProblemIDs)
	}
	if len(sel.TeamIDs) != 0 {
		query = query.Where("submission.team_id IN ?", sel.TeamIDs)
	}
	if len(sel.LanguageIDs) != 0 {
		query = query.Where("submission.language_id IN ?", sel.LanguageIDs)
	}
	if len(sel.SubmissionIDs) != 0 {
		query = query.Where("submission.id IN ?", sel.SubmissionIDs)
	}
	if len(sel.JudgingIDs) != 0 {
		query = query.Where("judging.id IN ?", sel.JudgingIDs)
	}
	if len(sel.JudgehostIDs) != 0 {
		query = query.Where("judging.judgehost_id IN ?", sel.JudgehostIDs)
	}
	if len(sel.Verdicts) != 0 {
		query = query.Where("judging.result IN ?", sel.Verdicts)
	}
	if sel.Before != nil {
		query = query.Where("submission.submit_time < ?", *sel.Before)
	}
	if sel.After != nil {
		query = query.Where("submission.submit_time > ?", *sel.After)
	}

	var rows []selected
	if err := query.Order("judging.id").Find(&rows).Error; err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to select judgings")
		return nil, fmt.Errorf("failed to select judgings: %w", err)
	}

	span.SetAttributes(attribute.Int("selected", len(rows)))
	span.RecordError(nil)
	span.SetStatus(codes.Ok, "selected judgings")
	return rows, nil
}
