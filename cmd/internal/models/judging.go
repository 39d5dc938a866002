package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/contestkit/judge-orchestrator/internal/types"
)

type Judging struct {
	Model
	SubmissionID uuid.UUID `gorm:"index"`
	// At most one valid judging exists per submission. Enforced with a
	// partial unique index.
	Valid       bool
	StartTime   datatypes.Null[time.Time]
	EndTime     datatypes.Null[time.Time]
	Result      datatypes.Null[string] `gorm:"type:text"`
	Verified    bool
	JuryMember  datatypes.Null[string]
	JudgehostID datatypes.Null[uuid.UUID]
	RejudgingID datatypes.Null[uuid.UUID] `gorm:"index"`
	// The judging this one replaces, set when created by a rejudging or an
	// organic backfill.
	PrevJudgingID datatypes.Null[uuid.UUID]
	// Run every testcase even after the verdict is known.
	JudgeCompletely bool
}

func (Judging) TableName() string {
	return "judging"
}

func (j Judging) GetID() uuid.UUID {
	return j.ID
}

// Started reports whether any judgehost has begun work on this judging.
func (j Judging) Started() bool {
	return j.StartTime.Valid
}

// Finished reports whether the judging reached a final verdict.
func (j Judging) Finished() bool {
	return j.EndTime.Valid && j.Result.Valid
}

// ResultVerdict returns the verdict or an empty string when still running.
func (j Judging) ResultVerdict() types.Verdict {
	if !j.Result.Valid {
		return ""
	}
	return types.Verdict(j.Result.V)
}
