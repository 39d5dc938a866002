package scoreboard

import (
	"context"

	"github.com/google/uuid"
)

// Refresher recalculates one scoreboard row. The orchestrator calls it after
// every validity flip affecting a team/problem pair; the actual scoreboard
// math lives in an external service.
type Refresher interface {
	CalculateScoreRow(ctx context.Context, contestID, teamID, problemID uuid.UUID) error
}

// BalloonNotifier pokes the balloon/notification service after a judging is
// verified (or finalized, when verification is not required).
type BalloonNotifier interface {
	UpdateBalloons(ctx context.Context, contestID, submissionID, judgingID uuid.UUID) error
}
