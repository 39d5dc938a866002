package scoreboard

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
)

// RetryRefresher wraps a Refresher with application-level backoff on top of
// whatever transport retries the inner implementation performs.
type RetryRefresher struct {
	inner   Refresher
	backoff func() retry.Backoff
}

var _ Refresher = (*RetryRefresher)(nil)

func NewRetryRefresher(inner Refresher) *RetryRefresher {
	return &RetryRefresher{
		inner: inner,
		backoff: func() retry.Backoff {
			b := retry.NewFibonacci(time.Millisecond * 25)
			b = retry.WithMaxRetries(3, b)
			return b
		},
	}
}

func (r *RetryRefresher) CalculateScoreRow(
	ctx context.Context,
	contestID, teamID, problemID uuid.UUID,
) error {
	return retry.Do(ctx, r.backoff(), func(ctx context.Context) error {
		err := r.inner.CalculateScoreRow(ctx, contestID, teamID, problemID)
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}
