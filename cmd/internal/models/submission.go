package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Submission struct {
	Model
	ContestID  uuid.UUID `gorm:"index"`
	TeamID     uuid.UUID `gorm:"index"`
	ProblemID  uuid.UUID `gorm:"index"`
	LanguageID uuid.UUID
	SubmitTime time.Time
	// Verdicts the jury expects for this submission, when it came from the
	// jury's own test set. Used for auto verification.
	ExpectedResults []string `gorm:"type:jsonb;serializer:json"`
	Valid           bool     `gorm:"default:true"`
	// Host of the current valid judging, stamped when work starts and
	// cleared when the judging is invalidated.
	JudgehostID datatypes.Null[uuid.UUID]
	// Active rejudge batch holding this submission. A submission belongs to
	// at most one active batch; claiming is a conditional update on this
	// column.
	RejudgingID datatypes.Null[uuid.UUID]
	// For a jury resubmission, the submission it was copied from.
	OrigSubmissionID datatypes.Null[uuid.UUID]
}

func (Submission) TableName() string {
	return "submission"
}

func (s Submission) GetID() uuid.UUID {
	return s.ID
}
