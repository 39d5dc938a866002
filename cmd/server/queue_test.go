package main

import (
	"time"

	"gorm.io/gorm"

	"github.com/contestkit/judge-orchestrator/cmd/internal/judging"
	"github.com/contestkit/judge-orchestrator/cmd/internal/models"
	"github.com/contestkit/judge-orchestrator/cmd/internal/queue"
	"github.com/contestkit/judge-orchestrator/internal/types"
)

func (s *OrchestratorTestSuite) TestQueueOrderingIsSubmitTimeWithinPriority() {
	now := time.Now().UTC()
	subOld := s.makeSubmission(&s.teamA, now.Add(-3*time.Hour))
	subNew := s.makeSubmission(&s.teamB, now.Add(-1*time.Hour))

	jOld := s.makeJudging(subOld, judging.CreateOptions{Valid: true})
	jNew := s.makeJudging(subNew, judging.CreateOptions{Valid: true})

	host := s.makeJudgehost("host-1")

	first, err := s.queue.DequeueNext(s.T().Context(), queue.Filter{}, host.ID)
	s.Require().NoError(err)
	s.Require().NotNil(first)
	s.Equal(jOld.ID, first.JudgingID)

	second, err := s.queue.DequeueNext(s.T().Context(), queue.Filter{}, host.ID)
	s.Require().NoError(err)
	s.Require().NotNil(second)
	s.Equal(jNew.ID, second.JudgingID)

	third, err := s.queue.DequeueNext(s.T().Context(), queue.Filter{}, host.ID)
	s.Require().NoError(err)
	s.Nil(third, "queue should be empty")

	var sub models.Submission
	s.Require().NoError(s.tx.First(&sub, subOld.ID).Error)
	s.Equal(host.ID, sub.JudgehostID.V, "dequeue stamps the submission's host")
}

func (s *OrchestratorTestSuite) TestQueueFairnessBetweenTeams() {
	now := time.Now().UTC()
	// Team A submitted twice before team B submitted once.
	subA1 := s.makeSubmission(&s.teamA, now.Add(-3*time.Hour))
	subA2 := s.makeSubmission(&s.teamA, now.Add(-2*time.Hour))
	subB := s.makeSubmission(&s.teamB, now.Add(-1*time.Hour))

	jA1 := s.makeJudging(subA1, judging.CreateOptions{Valid: true})
	jA2 := s.makeJudging(subA2, judging.CreateOptions{Valid: true})
	jB := s.makeJudging(subB, judging.CreateOptions{Valid: true})

	host := s.makeJudgehost("host-1")

	// Once team A gets a judging started its remaining work moves behind
	// team B's, so the teams alternate.
	first, err := s.queue.DequeueNext(s.T().Context(), queue.Filter{}, host.ID)
	s.Require().NoError(err)
	s.Require().NotNil(first)
	s.Equal(jA1.ID, first.JudgingID)

	second, err := s.queue.DequeueNext(s.T().Context(), queue.Filter{}, host.ID)
	s.Require().NoError(err)
	s.Require().NotNil(second)
	s.Equal(jB.ID, second.JudgingID)

	third, err := s.queue.DequeueNext(s.T().Context(), queue.Filter{}, host.ID)
	s.Require().NoError(err)
	s.Require().NotNil(third)
	s.Equal(jA2.ID, third.JudgingID)

	var team models.Team
	s.Require().NoError(s.tx.First(&team, s.teamA.ID).Error)
	s.True(team.JudgingLastStarted.Valid, "dequeue should touch the team")
}

func (s *OrchestratorTestSuite) TestQueuePriorityBeatsAge() {
	now := time.Now().UTC()
	subOld := s.makeSubmission(&s.teamA, now.Add(-3*time.Hour))
	subUrgent := s.makeSubmission(&s.teamB, now.Add(-1*time.Minute))

	s.makeJudging(subOld, judging.CreateOptions{Valid: true})
	jUrgent := s.makeJudging(subUrgent, judging.CreateOptions{Valid: true})

	err := s.queue.ChangePriority(s.T().Context(), jUrgent.ID, types.PriorityHigh)
	s.Require().NoError(err)

	host := s.makeJudgehost("host-1")

	first, err := s.queue.DequeueNext(s.T().Context(), queue.Filter{}, host.ID)
	s.Require().NoError(err)
	s.Require().NotNil(first)
	s.Equal(jUrgent.ID, first.JudgingID)
}

func (s *OrchestratorTestSuite) TestChangePriorityCascadesToJudgeTasks() {
	sub := s.makeSubmission(&s.teamA, time.Now().UTC())
	j := s.makeJudging(sub, judging.CreateOptions{Valid: true})

	// Claimed tasks follow too; they can come back through the remaining
	// work fallback.
	host := s.makeJudgehost("host-1")
	s.Require().NoError(
		s.tx.Model(&models.JudgeTask{}).
			Where("judging_id = ?", j.ID).
			Where("testcase_rank = 1").
			Update("judgehost_id", host.ID).Error,
	)

	err := s.queue.ChangePriority(s.T().Context(), j.ID, types.PriorityHigh)
	s.Require().NoError(err)

	var tasks []models.JudgeTask
	s.Require().NoError(s.tx.Where("judging_id = ?", j.ID).Find(&tasks).Error)
	s.Require().Len(tasks, s.problem.TestcaseCount)
	for _, task := range tasks {
		s.Equal(types.PriorityHigh, task.Priority)
	}
}

func (s *OrchestratorTestSuite) TestChangePriorityRequiresQueuedTask() {
	sub := s.makeSubmission(&s.teamA, time.Now().UTC())
	j := s.makeJudging(sub, judging.CreateOptions{Valid: true})

	host := s.makeJudgehost("host-1")
	task, err := s.queue.DequeueNext(s.T().Context(), queue.Filter{}, host.ID)
	s.Require().NoError(err)
	s.Require().NotNil(task)

	err = s.queue.ChangePriority(s.T().Context(), j.ID, types.PriorityHigh)
	s.ErrorIs(err, queue.ErrNotQueued)
}

func (s *OrchestratorTestSuite) TestEnqueueDuplicateJudging() {
	sub := s.makeSubmission(&s.teamA, time.Now().UTC())
	j := s.makeJudging(sub, judging.CreateOptions{Valid: true})

	err := s.tx.Transaction(func(tx *gorm.DB) error {
		_, err := s.queue.Enqueue(s.T().Context(), tx, j, sub, types.PriorityDefault)
		return err
	})
	s.ErrorIs(err, queue.ErrAlreadyQueued)

	s.Equal(int64(1), s.queueTaskCount(j.ID))
}

func (s *OrchestratorTestSuite) TestQueueLength() {
	now := time.Now().UTC()
	s.makeJudging(s.makeSubmission(&s.teamA, now), judging.CreateOptions{Valid: true})
	s.makeJudging(s.makeSubmission(&s.teamB, now), judging.CreateOptions{Valid: true})
	s.makeJudging(
		s.makeSubmission(&s.teamA, now),
		judging.CreateOptions{Valid: true, Priority: types.PriorityLow},
	)

	counts, err := s.queue.Length(s.T().Context())
	s.Require().NoError(err)
	s.Equal(int64(2), counts[types.PriorityDefault])
	s.Equal(int64(1), counts[types.PriorityLow])
}
