package types

import (
	"time"

	"github.com/google/uuid"
)

// RejudgeSelection mirrors the jury's rejudge filters on the wire.
type RejudgeSelection struct {
	Contests    []uuid.UUID `json:"contests"`
	Problems    []uuid.UUID `json:"problems"`
	Teams       []uuid.UUID `json:"teams"`
	Languages   []uuid.UUID `json:"languages"`
	Submissions []uuid.UUID `json:"submissions"`
	Judgings    []uuid.UUID `json:"judgings"`
	Judgehosts  []uuid.UUID `json:"judgehosts"`
	Verdicts    []string    `json:"verdicts"`
	Before      *time.Time  `json:"before"`
	After       *time.Time  `json:"after"`
}

type RejudgeRequest struct {
	Reason          string           `json:"reason" validate:"required"`
	Priority        string           `json:"priority"`
	Selection       RejudgeSelection `json:"selection"`
	Full            bool             `json:"full"`
	AutoApply       bool             `json:"auto_apply"`
	JudgeCompletely bool             `json:"judge_completely"`
}

type RejudgeResponse struct {
	// Absent for a non-full rejudge, which has nothing to apply or cancel.
	RejudgingID *string `json:"rejudging_id"`
	Judgings    int     `json:"judgings"`
}

type VerifyRequest struct {
	JuryMember string `json:"jury_member" validate:"required"`
}

type PriorityRequest struct {
	Priority string `json:"priority" validate:"required"`
}

type ReorderRequest struct {
	RankA int `json:"rank_a" validate:"required"`
	RankB int `json:"rank_b" validate:"required"`
}

type ToggleRequest struct {
	Active *bool `json:"active" validate:"required"`
}

type JudgehostResponse struct {
	Hostname string            `json:"hostname"`
	Liveness JudgehostLiveness `json:"liveness"`
	PollTime *UnixMilli        `json:"poll_time"`
	Active   bool              `json:"active"`
}

type ReportResultRequest struct {
	TestcaseRank int    `json:"testcase_rank" validate:"required"`
	Result       string `json:"result"        validate:"required"`
}

type RemainingRequest struct {
	Judgings []uuid.UUID `json:"judgings" validate:"required,min=1"`
}

type RemainingResponse struct {
	Released int64 `json:"released"`
}
