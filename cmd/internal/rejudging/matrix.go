package rejudging

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Matrix is the verdict transition table of a rejudging: which submissions
// moved from one verdict to another. Axes grow with the verdicts that
// actually occur; a still-running replacement shows up as "pending".
type Matrix struct {
	Cells map[string]map[string][]uuid.UUID `json:"cells"`
	// Sorted union of old and new verdicts.
	Verdicts []string `json:"verdicts"`
}

const pendingVerdict = "pending"

// Add records one old to new transition, growing the axes as needed.
func (m *Matrix) Add(oldVerdict, newVerdict string, submissionID uuid.UUID) {
	if m.Cells == nil {
		m.Cells = make(map[string]map[string][]uuid.UUID)
	}
	for _, v := range []string{oldVerdict, newVerdict} {
		if !slices.Contains(m.Verdicts, v) {
			m.Verdicts = append(m.Verdicts, v)
		}
	}
	slices.Sort(m.Verdicts)

	if m.Cells[oldVerdict] == nil {
		m.Cells[oldVerdict] = make(map[string][]uuid.UUID)
	}
	m.Cells[oldVerdict][newVerdict] = append(m.Cells[oldVerdict][newVerdict], submissionID)
}

// Count returns the size of one cell of the matrix.
func (m *Matrix) Count(oldVerdict, newVerdict string) int {
	return len(m.Cells[oldVerdict][newVerdict])
}

// Changed counts transitions whose verdict differs, pending ones excluded.
func (m *Matrix) Changed() int {
	changed := 0
	for oldVerdict, row := range m.Cells {
		for newVerdict, submissions := range row {
			if oldVerdict != newVerdict && newVerdict != pendingVerdict {
				changed += len(submissions)
			}
		}
	}
	return changed
}

// BuildMatrix computes the verdict transition table for a rejudging by
// pairing every replacement judging with the one it replaces.
func (m *Manager) BuildMatrix(ctx context.Context, rejudgingID uuid.UUID) (*Matrix, error) {
	ctx, span := tracer.Start(ctx, "BuildMatrix")
	defer span.End()

	span.SetAttributes(attribute.String("rejudgingID", rejudgingID.String()))

	type row struct {
		OldResult    *string
		NewResult    *string
		SubmissionID uuid.UUID
	}

	var rows []row
	err := m.db.WithContext(ctx).
		Table("judging AS new_judging").
		Select(`old_judging.result AS old_result,
			new_judging.result AS new_result,
			new_judging.submission_id`).
		Joins("JOIN judging AS old_judging ON old_judging.id = new_judging.prev_judging_id").
		Where("new_judging.rejudging_id = ?", rejudgingID).
		Find(&rows).Error
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to pair judgings")
		return nil, fmt.Errorf("failed to pair judgings: %w", err)
	}

	matrix := Matrix{}
	for _, r := range rows {
		oldVerdict := pendingVerdict
		if r.OldResult != nil {
			oldVerdict = *r.OldResult
		}
		newVerdict := pendingVerdict
		if r.NewResult != nil {
			newVerdict = *r.NewResult
		}
		matrix.Add(oldVerdict, newVerdict, r.SubmissionID)
	}

	span.SetAttributes(attribute.Int("verdicts", len(matrix.Verdicts)))
	span.RecordError(nil)
	span.SetStatus(codes.Ok, "built matrix")
	return &matrix, nil
}
