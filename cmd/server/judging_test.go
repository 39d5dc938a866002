package main

import (
	"time"

	"github.com/google/uuid"

	"github.com/contestkit/judge-orchestrator/cmd/internal/judging"
	"github.com/contestkit/judge-orchestrator/cmd/internal/models"
	"github.com/contestkit/judge-orchestrator/internal/config"
	"github.com/contestkit/judge-orchestrator/internal/scoreboard"
	"github.com/contestkit/judge-orchestrator/internal/types"
)

func (s *OrchestratorTestSuite) judgeTasks(j *models.Judging) []models.JudgeTask {
	var tasks []models.JudgeTask
	s.Require().NoError(
		s.tx.Where("judging_id = ?", j.ID).Order("testcase_rank").Find(&tasks).Error,
	)
	return tasks
}

func (s *OrchestratorTestSuite) reloadJudging(j *models.Judging) models.Judging {
	var row models.Judging
	s.Require().NoError(s.tx.First(&row, j.ID).Error)
	return row
}

func (s *OrchestratorTestSuite) TestLazyFanOutReleasesOneRankAtATime() {
	sub := s.makeSubmission(&s.teamA, time.Now().UTC())
	j := s.makeJudging(sub, judging.CreateOptions{Valid: true})

	tasks := s.judgeTasks(j)
	s.Require().Len(tasks, 3)
	s.True(tasks[0].Valid, "rank 1 starts runnable")
	s.False(tasks[1].Valid, "rank 2 held back")
	s.False(tasks[2].Valid, "rank 3 held back")

	err := s.judgings.ReportTestcaseResult(s.T().Context(), j.ID, 1, types.VerdictCorrect, "host-1")
	s.Require().NoError(err)

	tasks = s.judgeTasks(j)
	s.True(tasks[1].Valid, "rank 2 released after rank 1 passed")
	s.False(tasks[2].Valid, "rank 3 still held back")
	s.False(s.reloadJudging(j).Finished(), "outcome still open")
}

func (s *OrchestratorTestSuite) TestFirstFailureFinalizesAndCancelsLeftovers() {
	sub := s.makeSubmission(&s.teamA, time.Now().UTC())
	j := s.makeJudging(sub, judging.CreateOptions{Valid: true})

	err := s.judgings.ReportTestcaseResult(s.T().Context(), j.ID, 1, types.VerdictCorrect, "host-1")
	s.Require().NoError(err)
	err = s.judgings.ReportTestcaseResult(s.T().Context(), j.ID, 2, types.VerdictWrongAnswer, "host-1")
	s.Require().NoError(err)

	row := s.reloadJudging(j)
	s.True(row.Finished())
	s.Equal(types.VerdictWrongAnswer, row.ResultVerdict())
	s.True(row.Verified, "verified immediately when verification is not required")

	tasks := s.judgeTasks(j)
	s.False(tasks[2].Valid, "undecided leftover canceled")
	s.False(tasks[2].Result.Valid)
}

func (s *OrchestratorTestSuite) TestAllCorrectFinalizesCorrect() {
	sub := s.makeSubmission(&s.teamA, time.Now().UTC())
	j := s.makeJudging(sub, judging.CreateOptions{Valid: true})

	s.finishJudging(j, types.VerdictCorrect)

	row := s.reloadJudging(j)
	s.True(row.Finished())
	s.Equal(types.VerdictCorrect, row.ResultVerdict())
}

func (s *OrchestratorTestSuite) TestDuplicateResultIgnored() {
	sub := s.makeSubmission(&s.teamA, time.Now().UTC())
	j := s.makeJudging(sub, judging.CreateOptions{Valid: true})

	err := s.judgings.ReportTestcaseResult(s.T().Context(), j.ID, 1, types.VerdictWrongAnswer, "host-1")
	s.Require().NoError(err)
	err = s.judgings.ReportTestcaseResult(s.T().Context(), j.ID, 1, types.VerdictCorrect, "host-2")
	s.Require().NoError(err)

	tasks := s.judgeTasks(j)
	s.Equal("wrong-answer", tasks[0].Result.V, "first result wins")
	s.Equal(types.VerdictWrongAnswer, s.reloadJudging(j).ResultVerdict())
}

func (s *OrchestratorTestSuite) TestRequestRemainingReleasesHeldBackTasks() {
	sub := s.makeSubmission(&s.teamA, time.Now().UTC())
	j := s.makeJudging(sub, judging.CreateOptions{Valid: true})

	err := s.judgings.ReportTestcaseResult(s.T().Context(), j.ID, 1, types.VerdictWrongAnswer, "host-1")
	s.Require().NoError(err)
	s.True(s.reloadJudging(j).Finished(), "verdict decided by rank 1")

	released, err := s.judgings.RequestRemaining(s.T().Context(), j.ID)
	s.Require().NoError(err)
	s.Equal(int64(2), released)

	row := s.reloadJudging(j)
	s.True(row.JudgeCompletely)

	tasks := s.judgeTasks(j)
	s.True(tasks[1].Valid)
	s.True(tasks[2].Valid)
	s.Equal(types.PriorityLow, tasks[1].Priority)

	var task models.QueueTask
	s.Require().NoError(s.tx.Where("judging_id = ?", j.ID).First(&task).Error)
	s.Equal(types.PriorityLow, task.Priority, "requeued behind fresh work")

	_, err = s.judgings.RequestRemaining(s.T().Context(), j.ID)
	s.ErrorIs(err, judging.ErrAlreadyRequested)
}

func (s *OrchestratorTestSuite) TestJudgeRemainingBatchClassification() {
	now := time.Now().UTC()

	running1 := s.makeJudging(s.makeSubmission(&s.teamA, now), judging.CreateOptions{Valid: true})
	running2 := s.makeJudging(s.makeSubmission(&s.teamA, now), judging.CreateOptions{Valid: true})

	already := s.makeJudging(
		s.makeSubmission(&s.teamB, now),
		judging.CreateOptions{Valid: true, JudgeCompletely: true},
	)
	s.finishJudging(already, types.VerdictCorrect)

	superseded := s.makeJudging(s.makeSubmission(&s.teamB, now), judging.CreateOptions{Valid: true})
	s.Require().NoError(
		s.tx.Model(&models.Judging{}).Where("id = ?", superseded.ID).Update("valid", false).Error,
	)

	eligible := s.makeJudging(s.makeSubmission(&s.teamA, now), judging.CreateOptions{Valid: true})
	s.finishJudging(eligible, types.VerdictWrongAnswer)

	summary, err := s.judgings.RequestRemainingBatch(s.T().Context(), []uuid.UUID{
		running1.ID, running2.ID, already.ID, superseded.ID, eligible.ID,
	})
	s.Require().NoError(err)

	s.Equal(1, summary.Requested)
	s.Equal(int64(2), summary.Released)
	s.Equal(2, summary.StillRunning)
	s.Equal(1, summary.AlreadyRequested)
	s.Equal(1, summary.Superseded)

	s.Equal(int64(1), s.queueTaskCount(eligible.ID), "only the eligible judging is requeued")
}

func (s *OrchestratorTestSuite) TestJudgeCompletelyRunsEverything() {
	sub := s.makeSubmission(&s.teamA, time.Now().UTC())
	j := s.makeJudging(sub, judging.CreateOptions{Valid: true, JudgeCompletely: true})

	tasks := s.judgeTasks(j)
	for _, task := range tasks {
		s.True(task.Valid, "judge completely skips lazy hold back")
	}

	err := s.judgings.ReportTestcaseResult(s.T().Context(), j.ID, 1, types.VerdictTimelimit, "host-1")
	s.Require().NoError(err)
	s.False(s.reloadJudging(j).Finished(), "waits for every result")

	err = s.judgings.ReportTestcaseResult(s.T().Context(), j.ID, 2, types.VerdictCorrect, "host-1")
	s.Require().NoError(err)
	err = s.judgings.ReportTestcaseResult(s.T().Context(), j.ID, 3, types.VerdictCorrect, "host-1")
	s.Require().NoError(err)

	row := s.reloadJudging(j)
	s.True(row.Finished())
	s.Equal(types.VerdictTimelimit, row.ResultVerdict(), "lowest failing rank decides")
}

func (s *OrchestratorTestSuite) TestVerifyLifecycle() {
	scores := scoreboard.LoggingClient{}
	strictJudgings := judging.NewManager(
		s.tx,
		&config.JudgingConfig{LazyEval: true, VerificationRequired: true},
		s.queue,
		scores,
		scores,
	)

	sub := s.makeSubmission(&s.teamA, time.Now().UTC())
	j, err := strictJudgings.Create(
		s.T().Context(), s.tx, sub, &s.problem, judging.CreateOptions{Valid: true},
	)
	s.Require().NoError(err)

	err = strictJudgings.Verify(s.T().Context(), j.ID, "alice")
	s.ErrorIs(err, judging.ErrNotFinished)

	err = strictJudgings.ReportTestcaseResult(s.T().Context(), j.ID, 1, types.VerdictWrongAnswer, "host-1")
	s.Require().NoError(err)
	s.False(s.reloadJudging(j).Verified, "left for the jury")

	err = strictJudgings.Verify(s.T().Context(), j.ID, "alice")
	s.Require().NoError(err)

	row := s.reloadJudging(j)
	s.True(row.Verified)
	s.Equal("alice", row.JuryMember.V)

	err = strictJudgings.Verify(s.T().Context(), j.ID, "bob")
	s.ErrorIs(err, judging.ErrAlreadyVerified)
}

func (s *OrchestratorTestSuite) TestAutoVerifyMatchingExpectedResult() {
	scores := scoreboard.LoggingClient{}
	strictJudgings := judging.NewManager(
		s.tx,
		&config.JudgingConfig{LazyEval: true, VerificationRequired: true},
		s.queue,
		scores,
		scores,
	)

	sub := s.makeSubmission(&s.teamA, time.Now().UTC(), "wrong-answer")
	j, err := strictJudgings.Create(
		s.T().Context(), s.tx, sub, &s.problem, judging.CreateOptions{Valid: true},
	)
	s.Require().NoError(err)

	err = strictJudgings.ReportTestcaseResult(s.T().Context(), j.ID, 1, types.VerdictWrongAnswer, "host-1")
	s.Require().NoError(err)

	row := s.reloadJudging(j)
	s.True(row.Verified, "verdict matched the jury's expectation")
	s.Equal("auto-verifier", row.JuryMember.V)
}

func (s *OrchestratorTestSuite) TestReorderTestcases() {
	sub := s.makeSubmission(&s.teamA, time.Now().UTC())
	j := s.makeJudging(sub, judging.CreateOptions{Valid: true})

	tasks := s.judgeTasks(j)
	idRank2, idRank3 := tasks[1].ID, tasks[2].ID

	err := s.judgings.ReorderTestcases(s.T().Context(), j.ID, 2, 3)
	s.Require().NoError(err)

	tasks = s.judgeTasks(j)
	s.Equal(idRank3, tasks[1].ID, "old rank 3 moved up")
	s.Equal(idRank2, tasks[2].ID, "old rank 2 moved down")
}

func (s *OrchestratorTestSuite) TestReorderRefusesStartedRank() {
	sub := s.makeSubmission(&s.teamA, time.Now().UTC())
	j := s.makeJudging(sub, judging.CreateOptions{Valid: true})

	err := s.judgings.ReportTestcaseResult(s.T().Context(), j.ID, 1, types.VerdictCorrect, "host-1")
	s.Require().NoError(err)

	err = s.judgings.ReorderTestcases(s.T().Context(), j.ID, 1, 3)
	s.Error(err, "rank 1 already has a result")
}
