package main

import (
	"time"

	"github.com/google/uuid"

	"github.com/contestkit/judge-orchestrator/cmd/internal/judging"
	"github.com/contestkit/judge-orchestrator/cmd/internal/models"
	"github.com/contestkit/judge-orchestrator/cmd/internal/rejudging"
	"github.com/contestkit/judge-orchestrator/internal/types"
)

func (s *OrchestratorTestSuite) TestFetchWorkBackfillsAndClaimsRankOne() {
	sub := s.makeSubmission(&s.teamA, time.Now().UTC())
	host := s.makeJudgehost("host-1")

	work, err := s.dispatcher.FetchWork(s.T().Context(), "host-1")
	s.Require().NoError(err)
	s.Require().NotNil(work, "backfill should create a judging to hand out")
	s.Equal(sub.ID, work.SubmissionID)
	s.Require().Len(work.Tasks, 1, "lazy evaluation releases rank 1 only")
	s.Equal(1, work.Tasks[0].TestcaseRank)
	s.True(work.Tasks[0].StartTime.Valid, "claiming stamps the task start time")

	var row models.Judging
	s.Require().NoError(
		s.tx.Where("submission_id = ?", sub.ID).Where("valid").First(&row).Error,
	)
	s.Equal(work.JudgingID, row.ID)
	s.True(row.Started())
	s.Equal(host.ID, row.JudgehostID.V)
}

func (s *OrchestratorTestSuite) TestFetchWorkSkipsDeactivatedHost() {
	sub := s.makeSubmission(&s.teamA, time.Now().UTC())
	s.makeJudging(sub, judging.CreateOptions{Valid: true})

	s.makeJudgehost("host-1")
	s.Require().NoError(s.fleet.SetActive(s.T().Context(), "host-1", false))

	work, err := s.dispatcher.FetchWork(s.T().Context(), "host-1")
	s.Require().NoError(err)
	s.Nil(work, "deactivated host gets nothing")
}

func (s *OrchestratorTestSuite) TestDeactivatingReleasesClaimedTasks() {
	sub := s.makeSubmission(&s.teamA, time.Now().UTC())
	s.makeJudging(sub, judging.CreateOptions{Valid: true, JudgeCompletely: true})
	host := s.makeJudgehost("host-1")

	work, err := s.dispatcher.FetchWork(s.T().Context(), "host-1")
	s.Require().NoError(err)
	s.Require().NotNil(work)
	s.Require().Len(work.Tasks, s.problem.TestcaseCount)

	s.Require().NoError(s.fleet.SetActive(s.T().Context(), "host-1", false))

	var stillClaimed int64
	s.Require().NoError(
		s.tx.Model(&models.JudgeTask{}).
			Where("judgehost_id = ?", host.ID).
			Where("result IS NULL").
			Count(&stillClaimed).Error,
	)
	s.Equal(int64(0), stillClaimed, "unfinished claims go back to the pool")

	var released []models.JudgeTask
	s.Require().NoError(s.tx.Where("judging_id = ?", work.JudgingID).Find(&released).Error)
	for _, task := range released {
		s.False(task.StartTime.Valid, "released tasks drop their start time")
	}

	// The judging already started, so it is gone from the queue. After the
	// host comes back the released tasks are found through the remaining
	// work fallback.
	s.Require().NoError(s.fleet.SetActive(s.T().Context(), "host-1", true))

	again, err := s.dispatcher.FetchWork(s.T().Context(), "host-1")
	s.Require().NoError(err)
	s.Require().NotNil(again)
	s.Equal(work.JudgingID, again.JudgingID)
	s.Len(again.Tasks, s.problem.TestcaseCount)
}

func (s *OrchestratorTestSuite) TestFetchWorkPicksUpReleasedRemainingWork() {
	sub := s.makeSubmission(&s.teamA, time.Now().UTC())
	s.makeJudging(sub, judging.CreateOptions{Valid: true})
	s.makeJudgehost("host-1")

	work, err := s.dispatcher.FetchWork(s.T().Context(), "host-1")
	s.Require().NoError(err)
	s.Require().NotNil(work)
	s.Require().Len(work.Tasks, 1)

	err = s.judgings.ReportTestcaseResult(
		s.T().Context(), work.JudgingID, 1, types.VerdictWrongAnswer, "host-1",
	)
	s.Require().NoError(err)

	released, err := s.judgings.RequestRemaining(s.T().Context(), work.JudgingID)
	s.Require().NoError(err)
	s.Equal(int64(2), released)

	// Judge remaining requeued the judging at low priority.
	again, err := s.dispatcher.FetchWork(s.T().Context(), "host-1")
	s.Require().NoError(err)
	s.Require().NotNil(again)
	s.Equal(work.JudgingID, again.JudgingID)
	s.Require().Len(again.Tasks, 2)
	s.Equal(2, again.Tasks[0].TestcaseRank)
	s.Equal(3, again.Tasks[1].TestcaseRank)
}

func (s *OrchestratorTestSuite) TestRejudgeOnlyHostSkipsOrganicWork() {
	now := time.Now().UTC()

	organic := s.makeSubmission(&s.teamA, now.Add(-2*time.Hour))
	s.makeJudging(organic, judging.CreateOptions{Valid: true})

	redone := s.makeSubmission(&s.teamB, now.Add(-1*time.Hour))
	old := s.makeJudging(redone, judging.CreateOptions{Valid: true})
	s.finishJudging(old, types.VerdictWrongAnswer)

	rej, _, err := s.rejudgings.Create(
		s.T().Context(),
		rejudging.Selection{JudgingIDs: []uuid.UUID{old.ID}},
		rejudging.CreateOptions{Reason: "fixed checker", StartedBy: "tester", Full: true},
	)
	s.Require().NoError(err)
	replacement := s.replacementFor(rej.ID)

	restriction := models.JudgehostRestriction{
		Name:         "rejudge only",
		Restrictions: models.RestrictionSpec{RejudgeOnly: true},
	}
	s.Require().NoError(s.tx.Create(&restriction).Error)

	host := s.makeJudgehost("host-1")
	s.Require().NoError(
		s.tx.Model(&models.Judgehost{}).
			Where("id = ?", host.ID).
			Update("restriction_id", restriction.ID).Error,
	)

	work, err := s.dispatcher.FetchWork(s.T().Context(), "host-1")
	s.Require().NoError(err)
	s.Require().NotNil(work)
	s.Equal(replacement.ID, work.JudgingID, "restricted host only sees rejudging work")

	more, err := s.dispatcher.FetchWork(s.T().Context(), "host-1")
	s.Require().NoError(err)
	s.Nil(more, "the organic judging stays off limits")
}
