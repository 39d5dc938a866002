package audit

import "github.com/contestkit/judge-orchestrator/internal/types"

var schemaVersion = "0.1.0"
var logContext = "audit"

type Disposition string

const (
	DispositionNeutral Disposition = "neutral"
	DispositionGood    Disposition = "good"
	DispositionBad     Disposition = "bad"
)

type EventType string

const (
	EvtJudgingInvalidated  EventType = "judging_invalidated"
	EvtJudgingFinalized    EventType = "judging_finalized"
	EvtJudgingVerified     EventType = "judging_verified"
	EvtRejudgingStarted    EventType = "rejudging_started"
	EvtRejudgingApplied    EventType = "rejudging_applied"
	EvtRejudgingCanceled   EventType = "rejudging_canceled"
	EvtJudgeTaskClaimed    EventType = "judge_task_claimed"
	EvtPriorityChanged     EventType = "queue_priority_changed"
	EvtRemainingRequested  EventType = "judge_remaining_requested"
	EvtJudgehostToggled    EventType = "judgehost_toggled"
	EvtUnexpectedVerdict   EventType = "unexpected_verdict"
	EvtRejudgingApplyStep  EventType = "rejudging_apply_step"
	EvtRejudgingCancelStep EventType = "rejudging_cancel_step"
)

type Message struct {
	ContestID     *string     `json:"contest_id"`
	TeamID        *string     `json:"team_id"`
	LogContext    string      `json:"log_context" validate:"required"`
	SchemaVersion string      `json:"version"     validate:"required"`
	Disposition   Disposition `json:"disposition" validate:"required"`
	Type          EventType   `json:"event_type"  validate:"required"`

	Timestamp types.UnixMilli `json:"timestamp" validate:"required"`
}

type JudgingInvalidatedEvent struct {
	JudgingID    string `json:"judging_id"    validate:"required"`
	SubmissionID string `json:"submission_id" validate:"required"`
	Reason       string `json:"reason"`
	FullRejudge  bool   `json:"full_rejudge"`
}

type JudgingInvalidated struct {
	Event JudgingInvalidatedEvent `json:"event" validate:"required"`
	Message
}

type JudgingFinalizedEvent struct {
	JudgingID    string        `json:"judging_id"    validate:"required"`
	SubmissionID string        `json:"submission_id" validate:"required"`
	Result       types.Verdict `json:"result"        validate:"required"`
	Judgehost    string        `json:"judgehost"`
}

type JudgingFinalized struct {
	Event JudgingFinalizedEvent `json:"event" validate:"required"`
	Message
}

type JudgingVerifiedEvent struct {
	JudgingID  string        `json:"judging_id" validate:"required"`
	Result     types.Verdict `json:"result"     validate:"required"`
	JuryMember string        `json:"jury_member"`
}

type JudgingVerified struct {
	Event JudgingVerifiedEvent `json:"event" validate:"required"`
	Message
}

type UnexpectedVerdictEvent struct {
	JudgingID string        `json:"judging_id" validate:"required"`
	Result    types.Verdict `json:"result"     validate:"required"`
	Expected  []string      `json:"expected"`
}

type UnexpectedVerdict struct {
	Event UnexpectedVerdictEvent `json:"event" validate:"required"`
	Message
}

type RejudgingStartedEvent struct {
	RejudgingID  string `json:"rejudging_id" validate:"required"`
	Reason       string `json:"reason"       validate:"required"`
	StartedBy    string `json:"started_by"`
	JudgingCount int    `json:"judging_count"`
}

type RejudgingStarted struct {
	Event RejudgingStartedEvent `json:"event" validate:"required"`
	Message
}

type RejudgingFinishedEvent struct {
	RejudgingID string `json:"rejudging_id" validate:"required"`
	FinishedBy  string `json:"finished_by"`
	Submissions int    `json:"submissions"`
}

type RejudgingFinished struct {
	Event RejudgingFinishedEvent `json:"event" validate:"required"`
	Message
}

type RejudgingStepEvent struct {
	RejudgingID  string `json:"rejudging_id"  validate:"required"`
	JudgingID    string `json:"judging_id"    validate:"required"`
	SubmissionID string `json:"submission_id" validate:"required"`
}

type RejudgingStep struct {
	Event RejudgingStepEvent `json:"event" validate:"required"`
	Message
}

type JudgeTaskClaimedEvent struct {
	JudgingID string `json:"judging_id" validate:"required"`
	Hostname  string `json:"hostname"   validate:"required"`
	Tasks     int    `json:"tasks"`
}

type JudgeTaskClaimed struct {
	Event JudgeTaskClaimedEvent `json:"event" validate:"required"`
	Message
}

type PriorityChangedEvent struct {
	QueueTaskID string `json:"queue_task_id" validate:"required"`
	JudgingID   string `json:"judging_id"    validate:"required"`
	Priority    string `json:"priority"      validate:"required"`
}

type PriorityChanged struct {
	Event PriorityChangedEvent `json:"event" validate:"required"`
	Message
}

type RemainingRequestedEvent struct {
	JudgingID string `json:"judging_id" validate:"required"`
}

type RemainingRequested struct {
	Event RemainingRequestedEvent `json:"event" validate:"required"`
	Message
}

type JudgehostToggledEvent struct {
	Hostname string `json:"hostname" validate:"required"`
	Active   bool   `json:"active"`
}

type JudgehostToggled struct {
	Event JudgehostToggledEvent `json:"event" validate:"required"`
	Message
}
