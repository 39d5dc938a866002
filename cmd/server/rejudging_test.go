package main

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/contestkit/judge-orchestrator/cmd/internal/judging"
	"github.com/contestkit/judge-orchestrator/cmd/internal/models"
	"github.com/contestkit/judge-orchestrator/cmd/internal/queue"
	"github.com/contestkit/judge-orchestrator/cmd/internal/rejudging"
	"github.com/contestkit/judge-orchestrator/internal/scoreboard"
	"github.com/contestkit/judge-orchestrator/internal/types"
)

func (s *OrchestratorTestSuite) queueTaskCount(judgingID any) int64 {
	var count int64
	s.Require().NoError(
		s.tx.Model(&models.QueueTask{}).Where("judging_id = ?", judgingID).Count(&count).Error,
	)
	return count
}

func (s *OrchestratorTestSuite) replacementFor(rejudgingID any) models.Judging {
	var replacement models.Judging
	s.Require().NoError(
		s.tx.Where("rejudging_id = ?", rejudgingID).First(&replacement).Error,
	)
	return replacement
}

func (s *OrchestratorTestSuite) replacementForSubmission(
	rejudgingID, submissionID any,
) models.Judging {
	var replacement models.Judging
	s.Require().NoError(
		s.tx.Where("rejudging_id = ?", rejudgingID).
			Where("submission_id = ?", submissionID).
			First(&replacement).Error,
	)
	return replacement
}

func (s *OrchestratorTestSuite) reloadSubmission(sub *models.Submission) models.Submission {
	var row models.Submission
	s.Require().NoError(s.tx.First(&row, sub.ID).Error)
	return row
}

func (s *OrchestratorTestSuite) TestCreateRejudgingEmptySelection() {
	_, _, err := s.rejudgings.Create(
		s.T().Context(),
		rejudging.Selection{Verdicts: []string{"no-such-verdict"}},
		rejudging.CreateOptions{Reason: "nothing matches", StartedBy: "tester", Full: true},
	)
	s.ErrorIs(err, rejudging.ErrEmptySelection)
}

func (s *OrchestratorTestSuite) TestFullRejudgingApply() {
	sub := s.makeSubmission(&s.teamA, time.Now().UTC())
	old := s.makeJudging(sub, judging.CreateOptions{Valid: true})
	s.finishJudging(old, types.VerdictCorrect)

	rej, count, err := s.rejudgings.Create(
		s.T().Context(),
		rejudging.Selection{SubmissionIDs: []uuid.UUID{sub.ID}},
		rejudging.CreateOptions{
			Reason:    "broken testdata",
			StartedBy: "tester",
			Full:      true,
			Priority:  types.PriorityLow,
		},
	)
	s.Require().NoError(err)
	s.Require().NotNil(rej)
	s.Equal(1, count)

	replacement := s.replacementFor(rej.ID)
	s.False(replacement.Valid, "replacement waits for apply")
	s.Equal(old.ID, replacement.PrevJudgingID.V)
	s.True(s.reloadJudging(old).Valid, "old judging untouched until apply")
	s.Equal(int64(1), s.queueTaskCount(replacement.ID))
	s.Equal(rej.ID, s.reloadSubmission(sub).RejudgingID.V, "submission claimed by the batch")

	todo, err := s.rejudgings.Todo(s.T().Context(), rej.ID)
	s.Require().NoError(err)
	s.Equal(int64(1), todo)

	err = s.rejudgings.Finish(s.T().Context(), rej.ID, types.ActionApply, "tester", nil)
	s.ErrorIs(err, rejudging.ErrJudgingsPending, "apply needs all judgings finished")

	s.finishJudging(&replacement, types.VerdictWrongAnswer)

	matrix, err := s.rejudgings.BuildMatrix(s.T().Context(), rej.ID)
	s.Require().NoError(err)
	s.Equal(1, matrix.Count("correct", "wrong-answer"))
	s.Equal(1, matrix.Changed())

	progress := make(chan types.ProgressEvent, 16)
	done := make(chan error, 1)
	go func() {
		defer close(progress)
		done <- s.rejudgings.Finish(s.T().Context(), rej.ID, types.ActionApply, "tester", progress)
	}()
	events := 0
	for range progress {
		events++
	}
	s.Require().NoError(<-done)
	s.Positive(events, "progress reported per submission")

	s.False(s.reloadJudging(old).Valid, "old judging replaced")
	s.True(s.reloadJudging(&replacement).Valid, "replacement is the valid one now")
	s.False(s.reloadSubmission(sub).RejudgingID.Valid, "claim released on apply")

	var finished models.Rejudging
	s.Require().NoError(s.tx.First(&finished, rej.ID).Error)
	s.True(finished.Terminal())
	s.True(finished.Applied.V)
	s.Equal("tester", finished.FinishedBy.V)

	err = s.rejudgings.Finish(s.T().Context(), rej.ID, types.ActionCancel, "tester", nil)
	s.ErrorIs(err, rejudging.ErrAlreadyFinished)
}

func (s *OrchestratorTestSuite) TestFullRejudgingCancel() {
	sub := s.makeSubmission(&s.teamA, time.Now().UTC())
	old := s.makeJudging(sub, judging.CreateOptions{Valid: true})
	s.finishJudging(old, types.VerdictTimelimit)

	rej, _, err := s.rejudgings.Create(
		s.T().Context(),
		rejudging.Selection{SubmissionIDs: []uuid.UUID{sub.ID}},
		rejudging.CreateOptions{Reason: "oops", StartedBy: "tester", Full: true},
	)
	s.Require().NoError(err)
	replacement := s.replacementFor(rej.ID)

	// Cancel works even while the replacement is still unjudged.
	err = s.rejudgings.Finish(s.T().Context(), rej.ID, types.ActionCancel, "tester", nil)
	s.Require().NoError(err)

	s.True(s.reloadJudging(old).Valid, "old judging stays current")
	s.False(s.reloadJudging(&replacement).Valid)
	s.Equal(int64(0), s.queueTaskCount(replacement.ID), "replacement dropped from the queue")
	s.False(s.reloadSubmission(sub).RejudgingID.Valid, "claim released on cancel")

	var tasks []models.JudgeTask
	s.Require().NoError(s.tx.Where("judging_id = ?", replacement.ID).Find(&tasks).Error)
	for _, task := range tasks {
		s.False(task.Valid, "replacement work canceled")
	}

	var finished models.Rejudging
	s.Require().NoError(s.tx.First(&finished, rej.ID).Error)
	s.True(finished.Terminal())
	s.False(finished.Applied.V)
}

func (s *OrchestratorTestSuite) TestNonFullRejudgingInvalidatesImmediately() {
	sub := s.makeSubmission(&s.teamA, time.Now().UTC())
	old := s.makeJudging(sub, judging.CreateOptions{Valid: true})
	s.finishJudging(old, types.VerdictWrongAnswer)

	s.Require().NoError(
		s.tx.Model(&models.Team{}).
			Where("id = ?", s.teamA.ID).
			Update("judging_last_started", time.Now().UTC()).Error,
	)

	host := s.makeJudgehost("host-1")
	s.Require().NoError(
		s.tx.Model(&models.Submission{}).
			Where("id = ?", sub.ID).
			Update("judgehost_id", host.ID).Error,
	)

	rej, count, err := s.rejudgings.Create(
		s.T().Context(),
		rejudging.Selection{SubmissionIDs: []uuid.UUID{sub.ID}},
		rejudging.CreateOptions{Reason: "compiler upgrade", StartedBy: "tester", Full: false},
	)
	s.Require().NoError(err)
	s.Nil(rej, "non-full rejudges are not tracked")
	s.Equal(1, count)

	s.False(s.reloadJudging(old).Valid, "invalidated immediately")
	s.Equal(int64(0), s.queueTaskCount(old.ID))
	s.False(s.reloadSubmission(sub).JudgehostID.Valid, "stale host assignment cleared")

	var team models.Team
	s.Require().NoError(s.tx.First(&team, s.teamA.ID).Error)
	s.False(team.JudgingLastStarted.Valid, "single judging rejudge frees the team slot")

	// The regular backfill redoes the submission behind fresh work.
	created, err := s.judgings.BackfillOrganicJudgings(s.T().Context(), 10)
	s.Require().NoError(err)
	s.Equal(1, created)

	var redo models.Judging
	s.Require().NoError(
		s.tx.Where("submission_id = ?", sub.ID).Where("valid").First(&redo).Error,
	)
	s.Equal(old.ID, redo.PrevJudgingID.V)

	var task models.QueueTask
	s.Require().NoError(s.tx.Where("judging_id = ?", redo.ID).First(&task).Error)
	s.Equal(types.PriorityLow, task.Priority, "redone work yields to fresh submissions")
}

func (s *OrchestratorTestSuite) TestSubmissionJoinsOnlyOneActiveBatch() {
	sub := s.makeSubmission(&s.teamA, time.Now().UTC())
	old := s.makeJudging(sub, judging.CreateOptions{Valid: true})
	s.finishJudging(old, types.VerdictCorrect)

	_, _, err := s.rejudgings.Create(
		s.T().Context(),
		rejudging.Selection{SubmissionIDs: []uuid.UUID{sub.ID}},
		rejudging.CreateOptions{Reason: "first batch", StartedBy: "tester", Full: true},
	)
	s.Require().NoError(err)

	_, _, err = s.rejudgings.Create(
		s.T().Context(),
		rejudging.Selection{SubmissionIDs: []uuid.UUID{sub.ID}},
		rejudging.CreateOptions{Reason: "second batch", StartedBy: "tester", Full: true},
	)
	s.ErrorIs(err, rejudging.ErrEmptySelection, "submission is already in an active batch")
}

func (s *OrchestratorTestSuite) TestApplyContinuesPastFailingSubmission() {
	now := time.Now().UTC()

	subBad := s.makeSubmission(&s.teamA, now.Add(-2*time.Hour))
	oldBad := s.makeJudging(subBad, judging.CreateOptions{Valid: true})
	s.finishJudging(oldBad, types.VerdictCorrect)

	subOK := s.makeSubmission(&s.teamB, now.Add(-1*time.Hour))
	oldOK := s.makeJudging(subOK, judging.CreateOptions{Valid: true})
	s.finishJudging(oldOK, types.VerdictCorrect)

	rej, count, err := s.rejudgings.Create(
		s.T().Context(),
		rejudging.Selection{SubmissionIDs: []uuid.UUID{subBad.ID, subOK.ID}},
		rejudging.CreateOptions{Reason: "broken testdata", StartedBy: "tester", Full: true},
	)
	s.Require().NoError(err)
	s.Require().Equal(2, count)

	repBad := s.replacementForSubmission(rej.ID, subBad.ID)
	repOK := s.replacementForSubmission(rej.ID, subOK.ID)
	s.finishJudging(&repBad, types.VerdictWrongAnswer)
	s.finishJudging(&repOK, types.VerdictWrongAnswer)

	// Detach the first replacement from the judging it replaces. Applying it
	// then collides with the still valid old judging on the one valid
	// judging per submission index.
	s.Require().NoError(
		s.tx.Model(&models.Judging{}).
			Where("id = ?", repBad.ID).
			Update("prev_judging_id", nil).Error,
	)

	err = s.rejudgings.Finish(s.T().Context(), rej.ID, types.ActionApply, "tester", nil)
	s.Require().Error(err, "the per submission failure is reported")

	s.True(s.reloadJudging(oldBad).Valid, "failed submission left as it was")
	s.False(s.reloadJudging(&repBad).Valid)

	s.False(s.reloadJudging(oldOK).Valid, "later submission still applied")
	s.True(s.reloadJudging(&repOK).Valid)

	var finished models.Rejudging
	s.Require().NoError(s.tx.First(&finished, rej.ID).Error)
	s.True(finished.Terminal(), "the batch terminates despite the failure")

	s.False(s.reloadSubmission(subBad).RejudgingID.Valid,
		"failed submission freed for a later batch")
}

type balloonRecorder struct {
	scoreboard.LoggingClient
	judgingIDs []uuid.UUID
}

func (r *balloonRecorder) UpdateBalloons(
	_ context.Context,
	_, _, judgingID uuid.UUID,
) error {
	r.judgingIDs = append(r.judgingIDs, judgingID)
	return nil
}

func (s *OrchestratorTestSuite) TestApplySendsBalloonForCorrectReplacement() {
	sub := s.makeSubmission(&s.teamA, time.Now().UTC())
	old := s.makeJudging(sub, judging.CreateOptions{Valid: true})
	s.finishJudging(old, types.VerdictWrongAnswer)

	recorder := &balloonRecorder{}
	rejudgings := rejudging.NewManager(
		s.tx, s.judgings, s.queue, scoreboard.LoggingClient{}, recorder,
	)

	rej, _, err := rejudgings.Create(
		s.T().Context(),
		rejudging.Selection{SubmissionIDs: []uuid.UUID{sub.ID}},
		rejudging.CreateOptions{Reason: "fixed checker", StartedBy: "tester", Full: true},
	)
	s.Require().NoError(err)

	replacement := s.replacementFor(rej.ID)
	s.finishJudging(&replacement, types.VerdictCorrect)
	s.Empty(recorder.judgingIDs, "no balloon while the replacement is pending")

	err = rejudgings.Finish(s.T().Context(), rej.ID, types.ActionApply, "tester", nil)
	s.Require().NoError(err)

	s.Equal([]uuid.UUID{replacement.ID}, recorder.judgingIDs,
		"newly correct submission earns its balloon")
}

func (s *OrchestratorTestSuite) TestSelectionFiltersByJudgehost() {
	now := time.Now().UTC()

	subA := s.makeSubmission(&s.teamA, now.Add(-2*time.Hour))
	jA := s.makeJudging(subA, judging.CreateOptions{Valid: true})
	subB := s.makeSubmission(&s.teamB, now.Add(-1*time.Hour))
	jB := s.makeJudging(subB, judging.CreateOptions{Valid: true})

	host1 := s.makeJudgehost("host-1")
	host2 := s.makeJudgehost("host-2")

	first, err := s.queue.DequeueNext(s.T().Context(), queue.Filter{}, host1.ID)
	s.Require().NoError(err)
	s.Require().NotNil(first)
	s.Require().Equal(jA.ID, first.JudgingID)

	second, err := s.queue.DequeueNext(s.T().Context(), queue.Filter{}, host2.ID)
	s.Require().NoError(err)
	s.Require().NotNil(second)
	s.Require().Equal(jB.ID, second.JudgingID)

	s.finishJudging(jA, types.VerdictCorrect)
	s.finishJudging(jB, types.VerdictCorrect)

	rej, count, err := s.rejudgings.Create(
		s.T().Context(),
		rejudging.Selection{JudgehostIDs: []uuid.UUID{host1.ID}},
		rejudging.CreateOptions{Reason: "host-1 misjudged", StartedBy: "tester", Full: true},
	)
	s.Require().NoError(err)
	s.Equal(1, count, "only the suspect host's judging is covered")

	replacement := s.replacementFor(rej.ID)
	s.Equal(subA.ID, replacement.SubmissionID)
}

func (s *OrchestratorTestSuite) TestAutoApply() {
	sub := s.makeSubmission(&s.teamA, time.Now().UTC())
	old := s.makeJudging(sub, judging.CreateOptions{Valid: true})
	s.finishJudging(old, types.VerdictWrongAnswer)

	rej, _, err := s.rejudgings.Create(
		s.T().Context(),
		rejudging.Selection{SubmissionIDs: []uuid.UUID{sub.ID}},
		rejudging.CreateOptions{
			Reason:    "fixed checker",
			StartedBy: "tester",
			Full:      true,
			AutoApply: true,
		},
	)
	s.Require().NoError(err)

	replacement := s.replacementFor(rej.ID)
	s.finishJudging(&replacement, types.VerdictCorrect)

	s.Require().NoError(s.rejudgings.ApplyReady(s.T().Context()))

	var finished models.Rejudging
	s.Require().NoError(s.tx.First(&finished, rej.ID).Error)
	s.True(finished.Terminal())
	s.True(finished.Applied.V)
	s.Equal("auto-apply", finished.FinishedBy.V)
	s.True(s.reloadJudging(&replacement).Valid)
}
