package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"chorus-server/experiment-api/internal/domain/tool"
)

// Client implements tool.Scheduler against the scheduler service HTTP API.
type Client struct {
	httpClient *resty.Client
}

// NewClient creates a Resty-backed scheduler client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		httpClient: resty.New().
			SetBaseURL(baseURL).
			SetAuthToken(apiKey).
			SetTimeout(15 * time.Second),
	}
}

var _ tool.Scheduler = (*Client)(nil)

type createReminderRequest struct {
	SessionID      uint       `json:"session_id"`
	Message        string     `json:"message"`
	FireAt         *time.Time `json:"fire_at,omitempty"`
	CronExpression string     `json:"cron_expression,omitempty"`
	EndAt          *time.Time `json:"end_at,omitempty"`
}

type createReminderResponse struct {
	ScheduleID string `json:"schedule_id"`
}

type updateScheduleRequest struct {
	CronExpression string `json:"cron_expression,omitempty"`
	Cancel         bool   `json:"cancel,omitempty"`
}

// CreateOneOffReminder schedules a single reminder message.
func (c *Client) CreateOneOffReminder(ctx context.Context, req tool.ReminderRequest) (string, error) {
	fireAt := req.FireAt
	return c.createReminder(ctx, createReminderRequest{
		SessionID: req.SessionID,
		Message:   req.Message,
		FireAt:    &fireAt,
	})
}

// CreateRecurringReminder schedules a cron-driven reminder series.
func (c *Client) CreateRecurringReminder(ctx context.Context, req tool.ReminderRequest) (string, error) {
	return c.createReminder(ctx, createReminderRequest{
		SessionID:      req.SessionID,
		Message:        req.Message,
		CronExpression: req.CronExpression,
		EndAt:          req.EndAt,
	})
}

// UpdateSchedule changes the cadence of an existing schedule or cancels it.
func (c *Client) UpdateSchedule(ctx context.Context, scheduleID, cronExpression string, cancel bool) error {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(updateScheduleRequest{
			CronExpression: cronExpression,
			Cancel:         cancel,
		}).
		Patch(fmt.Sprintf("/v1/schedules/%s", scheduleID))
	if err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("update schedule: status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

func (c *Client) createReminder(ctx context.Context, body createReminderRequest) (string, error) {
	var result createReminderResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetResult(&result).
		Post("/v1/schedules")
	if err != nil {
		return "", fmt.Errorf("create reminder: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("create reminder: status %d: %s", resp.StatusCode(), resp.String())
	}
	if result.ScheduleID == "" {
		return "", fmt.Errorf("create reminder: empty schedule id in response")
	}
	return result.ScheduleID, nil
}
