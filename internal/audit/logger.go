package audit

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/contestkit/judge-orchestrator/internal/logger"
	"github.com/contestkit/judge-orchestrator/internal/types"
)

// Context carries the contest/team scope shared by every event a caller logs.
type Context struct {
	ContestID *string
	TeamID    *string
}

func dispForVerdict(v types.Verdict) Disposition {
	if v.EqualsFold(types.VerdictCorrect) {
		return DispositionGood
	}
	return DispositionBad
}

func (c Context) fill(m *Message, typ EventType, disp Disposition) {
	m.Type = typ
	m.LogContext = logContext
	m.SchemaVersion = schemaVersion
	m.Timestamp = types.UnixMilli(time.Now().UTC().UnixMilli())
	m.ContestID = c.ContestID
	m.TeamID = c.TeamID
	m.Disposition = disp
}

func emit(event any, evtName string, kv ...any) {
	evtStr, err := json.Marshal(event)
	if err != nil {
		logger.Logger.Error("could not serialize "+evtName+" event", kv...)
		return
	}

	// TODO: should this go to stderr?
	fmt.Println(string(evtStr))
}

func LogJudgingInvalidated(c Context, judgingID, submissionID, reason string, full bool) {
	event := JudgingInvalidated{}
	c.fill(&event.Message, EvtJudgingInvalidated, DispositionNeutral)

	event.Event.JudgingID = judgingID
	event.Event.SubmissionID = submissionID
	event.Event.Reason = reason
	event.Event.FullRejudge = full

	emit(event, "JudgingInvalidated",
		"judgingID", judgingID,
		"submissionID", submissionID,
		"reason", reason,
	)
}

func LogJudgingFinalized(c Context, judgingID, submissionID string, result types.Verdict, hostname string) {
	event := JudgingFinalized{}
	c.fill(&event.Message, EvtJudgingFinalized, dispForVerdict(result))

	event.Event.JudgingID = judgingID
	event.Event.SubmissionID = submissionID
	event.Event.Result = result
	event.Event.Judgehost = hostname

	emit(event, "JudgingFinalized",
		"judgingID", judgingID,
		"submissionID", submissionID,
		"result", result,
	)
}

func LogJudgingVerified(c Context, judgingID string, result types.Verdict, juryMember string) {
	event := JudgingVerified{}
	c.fill(&event.Message, EvtJudgingVerified, DispositionNeutral)

	event.Event.JudgingID = judgingID
	event.Event.Result = result
	event.Event.JuryMember = juryMember

	emit(event, "JudgingVerified", "judgingID", judgingID, "juryMember", juryMember)
}

func LogUnexpectedVerdict(c Context, judgingID string, result types.Verdict, expected []string) {
	event := UnexpectedVerdict{}
	c.fill(&event.Message, EvtUnexpectedVerdict, DispositionBad)

	event.Event.JudgingID = judgingID
	event.Event.Result = result
	event.Event.Expected = expected

	emit(event, "UnexpectedVerdict", "judgingID", judgingID, "result", result)
}

func LogRejudgingStarted(c Context, rejudgingID, reason, startedBy string, judgingCount int) {
	event := RejudgingStarted{}
	c.fill(&event.Message, EvtRejudgingStarted, DispositionNeutral)

	event.Event.RejudgingID = rejudgingID
	event.Event.Reason = reason
	event.Event.StartedBy = startedBy
	event.Event.JudgingCount = judgingCount

	emit(event, "RejudgingStarted", "rejudgingID", rejudgingID, "reason", reason)
}

func LogRejudgingFinished(c Context, typ EventType, rejudgingID, finishedBy string, submissions int) {
	event := RejudgingFinished{}
	disp := DispositionGood
	if typ == EvtRejudgingCanceled {
		disp = DispositionNeutral
	}
	c.fill(&event.Message, typ, disp)

	event.Event.RejudgingID = rejudgingID
	event.Event.FinishedBy = finishedBy
	event.Event.Submissions = submissions

	emit(event, string(typ), "rejudgingID", rejudgingID, "finishedBy", finishedBy)
}

func LogRejudgingStep(c Context, typ EventType, rejudgingID, judgingID, submissionID string) {
	event := RejudgingStep{}
	c.fill(&event.Message, typ, DispositionNeutral)

	event.Event.RejudgingID = rejudgingID
	event.Event.JudgingID = judgingID
	event.Event.SubmissionID = submissionID

	emit(event, string(typ), "rejudgingID", rejudgingID, "judgingID", judgingID)
}

func LogJudgeTaskClaimed(c Context, judgingID, hostname string, tasks int) {
	event := JudgeTaskClaimed{}
	c.fill(&event.Message, EvtJudgeTaskClaimed, DispositionNeutral)

	event.Event.JudgingID = judgingID
	event.Event.Hostname = hostname
	event.Event.Tasks = tasks

	emit(event, "JudgeTaskClaimed", "judgingID", judgingID, "hostname", hostname)
}

func LogPriorityChanged(c Context, queueTaskID, judgingID string, priority types.JudgePriority) {
	event := PriorityChanged{}
	c.fill(&event.Message, EvtPriorityChanged, DispositionNeutral)

	event.Event.QueueTaskID = queueTaskID
	event.Event.JudgingID = judgingID
	event.Event.Priority = priority.String()

	emit(event, "PriorityChanged", "queueTaskID", queueTaskID, "priority", priority)
}

func LogRemainingRequested(c Context, judgingID string) {
	event := RemainingRequested{}
	c.fill(&event.Message, EvtRemainingRequested, DispositionNeutral)

	event.Event.JudgingID = judgingID

	emit(event, "RemainingRequested", "judgingID", judgingID)
}

func LogJudgehostToggled(c Context, hostname string, active bool) {
	event := JudgehostToggled{}
	c.fill(&event.Message, EvtJudgehostToggled, DispositionNeutral)

	event.Event.Hostname = hostname
	event.Event.Active = active

	emit(event, "JudgehostToggled", "hostname", hostname, "active", active)
}
