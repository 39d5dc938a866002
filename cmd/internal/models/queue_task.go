package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/contestkit/judge-orchestrator/internal/types"
)

// QueueTask is one pending judging waiting for a judgehost. One per judging,
// removed once the work has been handed out.
type QueueTask struct {
	Model
	JudgingID    uuid.UUID `gorm:"uniqueIndex"`
	SubmissionID uuid.UUID
	TeamID       uuid.UUID `gorm:"index"`
	ContestID    uuid.UUID
	ProblemID    uuid.UUID
	LanguageID   uuid.UUID
	Priority     types.JudgePriority `gorm:"index"`
	// Fairness key within a priority band. Lower goes first. Derived from
	// the team's last judging start so teams take turns.
	TeamPriority int64
	StartTime    datatypes.Null[time.Time]
}

func (QueueTask) TableName() string {
	return "queue_task"
}

func (q QueueTask) GetID() uuid.UUID {
	return q.ID
}

// JudgeTask is the unit of work a judgehost runs: one testcase of one
// judging. Claimed with a conditional update on judgehost_id.
type JudgeTask struct {
	Model
	JudgingID    uuid.UUID `gorm:"index:idx_judge_task_judging_rank,unique"`
	TestcaseRank int       `gorm:"index:idx_judge_task_judging_rank,unique"`
	// Invalid tasks are placeholders under lazy evaluation. They become
	// valid one at a time as earlier ranks pass.
	Valid       bool
	JudgehostID datatypes.Null[uuid.UUID] `gorm:"index"`
	Priority    types.JudgePriority
	StartTime   datatypes.Null[time.Time]
	Result      datatypes.Null[string] `gorm:"type:text"`
}

func (JudgeTask) TableName() string {
	return "judge_task"
}

func (j JudgeTask) GetID() uuid.UUID {
	return j.ID
}
