package fleet

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/contestkit/judge-orchestrator/cmd/internal/models"
	"github.com/contestkit/judge-orchestrator/internal/config"
	"github.com/contestkit/judge-orchestrator/internal/types"
)

func TestRestrictionAllows(t *testing.T) {
	contestID := uuid.New()
	problemID := uuid.New()
	languageID := uuid.New()

	matching := &models.QueueTask{
		ContestID:  contestID,
		ProblemID:  problemID,
		LanguageID: languageID,
	}

	t.Run("EmptySpecMatchesEverything", func(t *testing.T) {
		assert.True(t, RestrictionAllows(models.RestrictionSpec{}, matching, false))
	})

	t.Run("ContestAxis", func(t *testing.T) {
		spec := models.RestrictionSpec{Contests: []uuid.UUID{contestID}}
		assert.True(t, RestrictionAllows(spec, matching, false))

		spec = models.RestrictionSpec{Contests: []uuid.UUID{uuid.New()}}
		assert.False(t, RestrictionAllows(spec, matching, false))
	})

	t.Run("ProblemAxis", func(t *testing.T) {
		spec := models.RestrictionSpec{Problems: []uuid.UUID{uuid.New()}}
		assert.False(t, RestrictionAllows(spec, matching, false))
	})

	t.Run("LanguageAxis", func(t *testing.T) {
		spec := models.RestrictionSpec{Languages: []uuid.UUID{languageID, uuid.New()}}
		assert.True(t, RestrictionAllows(spec, matching, false))
	})

	t.Run("RejudgeOnly", func(t *testing.T) {
		spec := models.RestrictionSpec{RejudgeOnly: true}
		assert.False(t, RestrictionAllows(spec, matching, false))
		assert.True(t, RestrictionAllows(spec, matching, true))
	})

	t.Run("AllAxesMustPass", func(t *testing.T) {
		spec := models.RestrictionSpec{
			Contests: []uuid.UUID{contestID},
			Problems: []uuid.UUID{uuid.New()},
		}
		assert.False(t, RestrictionAllows(spec, matching, false))
	})
}

func TestClassify(t *testing.T) {
	m := NewManager(nil, &config.JudgehostConfig{
		WarningSeconds:  30,
		CriticalSeconds: 120,
	})
	now := time.Now().UTC()

	t.Run("NeverPolled", func(t *testing.T) {
		host := &models.Judgehost{}
		assert.Equal(t, types.LivenessNoConn, m.Classify(host, now))
	})

	t.Run("FreshPoll", func(t *testing.T) {
		host := &models.Judgehost{PollTime: models.NewNullFromData(now.Add(-5 * time.Second))}
		assert.Equal(t, types.LivenessOK, m.Classify(host, now))
	})

	t.Run("WarnWindow", func(t *testing.T) {
		host := &models.Judgehost{PollTime: models.NewNullFromData(now.Add(-60 * time.Second))}
		assert.Equal(t, types.LivenessWarn, m.Classify(host, now))
	})

	t.Run("Critical", func(t *testing.T) {
		host := &models.Judgehost{PollTime: models.NewNullFromData(now.Add(-10 * time.Minute))}
		assert.Equal(t, types.LivenessCrit, m.Classify(host, now))
	})
}
