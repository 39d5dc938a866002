package scoreboard

import (
	"context"

	"github.com/google/uuid"

	"github.com/contestkit/judge-orchestrator/internal/logger"
)

// LoggingClient satisfies the collaborator interfaces without an external
// service. Used by judgectl and in tests.
type LoggingClient struct{}

var _ Refresher = LoggingClient{}
var _ BalloonNotifier = LoggingClient{}

func (LoggingClient) CalculateScoreRow(
	ctx context.Context,
	contestID, teamID, problemID uuid.UUID,
) error {
	logger.Logger.DebugContext(ctx, "score row recalculation requested",
		"contestID", contestID,
		"teamID", teamID,
		"problemID", problemID,
	)
	return nil
}

func (LoggingClient) UpdateBalloons(
	ctx context.Context,
	contestID, submissionID, judgingID uuid.UUID,
) error {
	logger.Logger.DebugContext(ctx, "balloon update requested",
		"contestID", contestID,
		"submissionID", submissionID,
		"judgingID", judgingID,
	)
	return nil
}
