package scoreboard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
)

// HTTPClient delivers score row and balloon updates to an external service
// over webhooks. Transport-level retries are handled by retryablehttp.
type HTTPClient struct {
	client     *retryablehttp.Client
	scoreURL   string
	balloonURL string
}

var _ Refresher = (*HTTPClient)(nil)
var _ BalloonNotifier = (*HTTPClient)(nil)

func NewHTTPClient(scoreURL, balloonURL string, timeout time.Duration) *HTTPClient {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 100 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.HTTPClient.Timeout = timeout
	client.Logger = nil

	return &HTTPClient{
		client:     client,
		scoreURL:   scoreURL,
		balloonURL: balloonURL,
	}
}

type scoreRowUpdate struct {
	ContestID string `json:"contest_id"`
	TeamID    string `json:"team_id"`
	ProblemID string `json:"problem_id"`
}

type balloonUpdate struct {
	ContestID    string `json:"contest_id"`
	SubmissionID string `json:"submission_id"`
	JudgingID    string `json:"judging_id"`
}

func (c *HTTPClient) post(ctx context.Context, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to serialize webhook payload: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook delivery failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook delivery returned status %d", resp.StatusCode)
	}

	return nil
}

func (c *HTTPClient) CalculateScoreRow(
	ctx context.Context,
	contestID, teamID, problemID uuid.UUID,
) error {
	return c.post(ctx, c.scoreURL, scoreRowUpdate{
		ContestID: contestID.String(),
		TeamID:    teamID.String(),
		ProblemID: problemID.String(),
	})
}

func (c *HTTPClient) UpdateBalloons(
	ctx context.Context,
	contestID, submissionID, judgingID uuid.UUID,
) error {
	if c.balloonURL == "" {
		return nil
	}
	return c.post(ctx, c.balloonURL, balloonUpdate{
		ContestID:    contestID.String(),
		SubmissionID: submissionID.String(),
		JudgingID:    judgingID.String(),
	})
}
