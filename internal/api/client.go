package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const retryMaxElapsed = 8 * time.Second

type Task struct {
	ID            string  `json:"id"`
	ResolutionID  *string `json:"resolution_id"`
	Title         string  `json:"title"`
	ScheduledDay  *string `json:"scheduled_day"`
	ScheduledTime *string `json:"scheduled_time"`
	DurationMin   *int    `json:"duration_min"`
	Completed     bool    `json:"completed"`
	Source        string  `json:"source"`
}

func (t Task) Scheduled() (day, clock string, ok bool) {
	if t.ScheduledDay == nil || t.ScheduledTime == nil {
		return "", "", false
	}
	day = strings.TrimSpace(*t.ScheduledDay)
	clock = strings.TrimSpace(*t.ScheduledTime)
	if day == "" || clock == "" {
		return "", "", false
	}
	return day, clock, true
}

type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// ListScheduled fetches the user's active tasks whose scheduled day falls in
// [from, to]. Both bounds are day keys.
func (c *Client) ListScheduled(ctx context.Context, userID, from, to string) ([]Task, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("user id is required")
	}

	query := url.Values{}
	query.Set("user_id", strings.TrimSpace(userID))
	query.Set("status", "active")
	if from != "" {
		query.Set("from", from)
	}
	if to != "" {
		query.Set("to", to)
	}
	endpoint := c.baseURL + "/tasks?" + query.Encode()

	var tasks []Task
	operation := func() error {
		fetched, err := c.fetchTasks(ctx, endpoint)
		if err != nil {
			return err
		}
		tasks = fetched
		return nil
	}

	// Backoff instances are stateful; build a fresh one per call.
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = retryMaxElapsed
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (c *Client) fetchTasks(ctx context.Context, endpoint string) ([]Task, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("create task request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("perform task request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read task response: %w", err)
	}

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("task api status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, backoff.Permanent(fmt.Errorf("task api status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload))))
	}

	var tasks []Task
	if err := json.Unmarshal(payload, &tasks); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("decode task response: %w", err))
	}
	return tasks, nil
}
