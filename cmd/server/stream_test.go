package main

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/contestkit/judge-orchestrator/cmd/internal/judging"
	"github.com/contestkit/judge-orchestrator/cmd/internal/models"
	"github.com/contestkit/judge-orchestrator/cmd/internal/rejudging"
	"github.com/contestkit/judge-orchestrator/cmd/internal/routes/jury"
)

// droppedConnWriter fails every write, standing in for a client that went
// away mid stream.
type droppedConnWriter struct {
	header http.Header
}

func (w *droppedConnWriter) Header() http.Header       { return w.header }
func (w *droppedConnWriter) Write([]byte) (int, error) { return 0, errors.New("client went away") }
func (w *droppedConnWriter) WriteHeader(int)           {}
func (w *droppedConnWriter) Flush()                    {}

func (s *OrchestratorTestSuite) TestFinishStreamSurvivesClientDisconnect() {
	// More submissions than the progress channel buffers, so a stalled
	// reader would wedge the cancel walk.
	const submissions = 24

	now := time.Now().UTC()
	ids := make([]uuid.UUID, 0, submissions)
	for i := range submissions {
		sub := s.makeSubmission(&s.teamA, now.Add(-time.Duration(i)*time.Minute))
		s.makeJudging(sub, judging.CreateOptions{Valid: true})
		ids = append(ids, sub.ID)
	}

	rej, count, err := s.rejudgings.Create(
		s.T().Context(),
		rejudging.Selection{SubmissionIDs: ids},
		rejudging.CreateOptions{Reason: "wrong time limit", StartedBy: "tester", Full: true},
	)
	s.Require().NoError(err)
	s.Require().Equal(submissions, count)

	handler := jury.NewHandler(s.tx, nil, s.rejudgings, s.judgings, s.queue, s.fleet)

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	c := e.NewContext(req, &droppedConnWriter{header: make(http.Header)})
	c.Set("auth", &models.Auth{Note: "tester"})
	c.Set("rejudging", rej)

	finished := make(chan error, 1)
	go func() {
		finished <- handler.CancelRejudging(c)
	}()

	select {
	case err := <-finished:
		s.NoError(err)
	case <-time.After(30 * time.Second):
		s.FailNow("finish stalled after the client disconnected")
	}

	var terminal models.Rejudging
	s.Require().NoError(s.tx.First(&terminal, rej.ID).Error)
	s.True(terminal.Terminal(), "the cancel ran to completion")

	var queued int64
	s.Require().NoError(
		s.tx.Model(&models.QueueTask{}).
			Joins("JOIN judging ON judging.id = queue_task.judging_id").
			Where("judging.rejudging_id = ?", rej.ID).
			Count(&queued).Error,
	)
	s.Equal(int64(0), queued, "every replacement was cleaned up")

	var invalidReplacements int64
	s.Require().NoError(
		s.tx.Model(&models.Judging{}).
			Where("rejudging_id = ?", rej.ID).
			Where("NOT valid").
			Count(&invalidReplacements).Error,
	)
	s.Equal(int64(submissions), invalidReplacements)
}
