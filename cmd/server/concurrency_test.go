package main

import (
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/contestkit/judge-orchestrator/cmd/internal/fleet"
	"github.com/contestkit/judge-orchestrator/cmd/internal/judging"
	"github.com/contestkit/judge-orchestrator/cmd/internal/models"
	"github.com/contestkit/judge-orchestrator/cmd/internal/queue"
	"github.com/contestkit/judge-orchestrator/internal/config"
	"github.com/contestkit/judge-orchestrator/internal/scoreboard"
)

// The claim races need genuinely concurrent transactions, so these tests
// commit their fixtures on s.db instead of riding the per test transaction,
// and clean them up themselves.

const claimers = 8

// committedFixture is one judging with committed backing rows, plus a set of
// registered judgehosts to race against each other.
type committedFixture struct {
	s *OrchestratorTestSuite

	contest  models.Contest
	team     models.Team
	problem  models.Problem
	language models.Language
	sub      models.Submission
	judging  *models.Judging
	hosts    []*models.Judgehost
}

func (s *OrchestratorTestSuite) commitFixture(
	label string,
	judgings *judging.Manager,
	fleetManager *fleet.Manager,
	opts judging.CreateOptions,
) *committedFixture {
	f := &committedFixture{s: s}

	f.contest = models.Contest{Name: "Race Round", ShortName: "race-" + label}
	s.Require().NoError(s.db.Create(&f.contest).Error)

	f.team = models.Team{
		Name:        "race-team-" + label,
		DisplayName: "Race Team",
		ContestID:   f.contest.ID,
	}
	s.Require().NoError(s.db.Create(&f.team).Error)

	f.problem = models.Problem{
		Name:          "Race",
		Label:         "R",
		ContestID:     f.contest.ID,
		TestcaseCount: 3,
		TimeLimit:     2,
	}
	s.Require().NoError(s.db.Create(&f.problem).Error)

	f.language = models.Language{Name: "C", ExternalID: "c-race-" + label}
	s.Require().NoError(s.db.Create(&f.language).Error)

	f.sub = models.Submission{
		ContestID:  f.contest.ID,
		TeamID:     f.team.ID,
		ProblemID:  f.problem.ID,
		LanguageID: f.language.ID,
		SubmitTime: time.Now().UTC(),
	}
	s.Require().NoError(s.db.Create(&f.sub).Error)

	created, err := judgings.Create(s.T().Context(), s.db, &f.sub, &f.problem, opts)
	s.Require().NoError(err)
	f.judging = created

	f.hosts = make([]*models.Judgehost, claimers)
	for i := range f.hosts {
		host, err := fleetManager.Register(
			s.T().Context(), fmt.Sprintf("race-%s-%d", label, i),
		)
		s.Require().NoError(err)
		f.hosts[i] = host
	}

	return f
}

func (f *committedFixture) cleanup() {
	db := f.s.db
	db.Where("judging_id = ?", f.judging.ID).Delete(&models.JudgeTask{})
	db.Where("judging_id = ?", f.judging.ID).Delete(&models.QueueTask{})
	db.Where("id = ?", f.judging.ID).Delete(&models.Judging{})
	db.Where("id = ?", f.sub.ID).Delete(&models.Submission{})
	for _, host := range f.hosts {
		db.Where("id = ?", host.ID).Delete(&models.Judgehost{})
	}
	db.Where("id = ?", f.problem.ID).Delete(&models.Problem{})
	db.Where("id = ?", f.team.ID).Delete(&models.Team{})
	db.Where("id = ?", f.language.ID).Delete(&models.Language{})
	db.Where("id = ?", f.contest.ID).Delete(&models.Contest{})
}

func (s *OrchestratorTestSuite) TestConcurrentDequeueHasOneWinner() {
	ctx := s.T().Context()

	scores := scoreboard.LoggingClient{}
	q := queue.NewManager(s.db)
	judgings := judging.NewManager(
		s.db, &config.JudgingConfig{LazyEval: true}, q, scores, scores,
	)
	fleetManager := fleet.NewManager(s.db, &config.JudgehostConfig{
		WarningSeconds:  30,
		CriticalSeconds: 120,
	})

	fixture := s.commitFixture("dequeue", judgings, fleetManager,
		judging.CreateOptions{Valid: true})
	defer fixture.cleanup()

	winners := make([]*models.QueueTask, claimers)
	var g errgroup.Group
	for i := range claimers {
		g.Go(func() error {
			task, err := q.DequeueNext(ctx, queue.Filter{}, fixture.hosts[i].ID)
			if err != nil {
				return err
			}
			winners[i] = task
			return nil
		})
	}
	s.Require().NoError(g.Wait())

	won := 0
	for _, task := range winners {
		if task != nil {
			won++
			s.Equal(fixture.judging.ID, task.JudgingID)
		}
	}
	s.Equal(1, won, "exactly one host gets the queued judging")
}

func (s *OrchestratorTestSuite) TestConcurrentClaimsHaveOneWinner() {
	ctx := s.T().Context()

	scores := scoreboard.LoggingClient{}
	q := queue.NewManager(s.db)
	judgings := judging.NewManager(
		s.db, &config.JudgingConfig{LazyEval: true}, q, scores, scores,
	)
	fleetManager := fleet.NewManager(s.db, &config.JudgehostConfig{
		WarningSeconds:  30,
		CriticalSeconds: 120,
	})
	dispatcher := fleet.NewDispatcher(s.db, fleetManager, q, judgings)

	// JudgeCompletely releases every rank, so there are several tasks for
	// the hosts to fight over.
	fixture := s.commitFixture("claim", judgings, fleetManager,
		judging.CreateOptions{Valid: true, JudgeCompletely: true})
	defer fixture.cleanup()

	results := make([][]models.JudgeTask, claimers)
	var g errgroup.Group
	for i := range claimers {
		g.Go(func() error {
			host := fixture.hosts[i]
			tasks, err := dispatcher.ClaimJudgeTasks(
				ctx, host, fixture.judging.ID, host.Hostname,
			)
			if err != nil {
				return err
			}
			results[i] = tasks
			return nil
		})
	}
	s.Require().NoError(g.Wait())

	won := 0
	for i, tasks := range results {
		if len(tasks) == 0 {
			continue
		}
		won++
		s.Len(tasks, fixture.problem.TestcaseCount, "the winner takes the whole judging")
		for _, task := range tasks {
			s.Equal(fixture.hosts[i].ID, task.JudgehostID.V)
		}
	}
	s.Equal(1, won, "every judge task goes to exactly one host")
}
