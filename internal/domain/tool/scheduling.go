package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"chorus-server/experiment-api/internal/domain/llm"
)

// Scheduler is the external collaborator that owns reminders and
// scheduled bot messages.
type Scheduler interface {
	CreateOneOffReminder(ctx context.Context, req ReminderRequest) (string, error)
	CreateRecurringReminder(ctx context.Context, req ReminderRequest) (string, error)
	UpdateSchedule(ctx context.Context, scheduleID string, cronExpression string, cancel bool) error
}

// ReminderRequest describes a reminder to schedule for a session.
type ReminderRequest struct {
	SessionID      uint       `json:"session_id"`
	Message        string     `json:"message"`
	FireAt         time.Time  `json:"fire_at"`
	CronExpression string     `json:"cron_expression,omitempty"`
	EndAt          *time.Time `json:"end_at,omitempty"`
}

// OneOffReminderTool schedules a single reminder message.
type OneOffReminderTool struct {
	scheduler Scheduler
}

// NewOneOffReminderTool wires the one-off reminder tool.
func NewOneOffReminderTool(scheduler Scheduler) *OneOffReminderTool {
	return &OneOffReminderTool{scheduler: scheduler}
}

func (t *OneOffReminderTool) Name() string { return "one_off_reminder" }

func (t *OneOffReminderTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Type: "function",
		Function: llm.ToolFunctionSchema{
			Name:        t.Name(),
			Description: "Schedule a one-time reminder message to be sent to the user at a specific datetime.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"datetime": map[string]interface{}{
						"type":        "string",
						"description": "When to send the reminder, RFC 3339 format, in the user's timezone.",
					},
					"message": map[string]interface{}{
						"type":        "string",
						"description": "The reminder message to deliver.",
					},
				},
				"required": []string{"datetime", "message"},
			},
		},
	}
}

func (t *OneOffReminderTool) Execute(ctx context.Context, call Call, args json.RawMessage) (string, error) {
	var params struct {
		Datetime string `json:"datetime"`
		Message  string `json:"message"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return "", fmt.Errorf("parse one_off_reminder arguments: %w", err)
	}

	fireAt, err := parseInTimezone(params.Datetime, call.Timezone)
	if err != nil {
		return "", fmt.Errorf("parse reminder datetime: %w", err)
	}

	id, err := t.scheduler.CreateOneOffReminder(ctx, ReminderRequest{
		SessionID: call.SessionID,
		Message:   params.Message,
		FireAt:    fireAt,
	})
	if err != nil {
		return "", fmt.Errorf("create one-off reminder: %w", err)
	}
	return fmt.Sprintf("Reminder scheduled (id %s).", id), nil
}

// RecurringReminderTool schedules a repeating reminder message.
type RecurringReminderTool struct {
	scheduler Scheduler
}

// NewRecurringReminderTool wires the recurring reminder tool.
func NewRecurringReminderTool(scheduler Scheduler) *RecurringReminderTool {
	return &RecurringReminderTool{scheduler: scheduler}
}

func (t *RecurringReminderTool) Name() string { return "recurring_reminder" }

func (t *RecurringReminderTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Type: "function",
		Function: llm.ToolFunctionSchema{
			Name:        t.Name(),
			Description: "Schedule a recurring reminder message on a cron schedule, optionally bounded by an end datetime.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"start": map[string]interface{}{
						"type":        "string",
						"description": "First occurrence, RFC 3339 format, in the user's timezone.",
					},
					"cron_expression": map[string]interface{}{
						"type":        "string",
						"description": "Standard 5-field cron expression for the recurrence.",
					},
					"message": map[string]interface{}{
						"type":        "string",
						"description": "The reminder message to deliver.",
					},
					"end": map[string]interface{}{
						"type":        "string",
						"description": "Optional last datetime after which the reminder stops, RFC 3339 format.",
					},
				},
				"required": []string{"start", "cron_expression", "message"},
			},
		},
	}
}

func (t *RecurringReminderTool) Execute(ctx context.Context, call Call, args json.RawMessage) (string, error) {
	var params struct {
		Start          string `json:"start"`
		CronExpression string `json:"cron_expression"`
		Message        string `json:"message"`
		End            string `json:"end"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return "", fmt.Errorf("parse recurring_reminder arguments: %w", err)
	}

	fireAt, err := parseInTimezone(params.Start, call.Timezone)
	if err != nil {
		return "", fmt.Errorf("parse reminder start: %w", err)
	}

	req := ReminderRequest{
		SessionID:      call.SessionID,
		Message:        params.Message,
		FireAt:         fireAt,
		CronExpression: params.CronExpression,
	}
	if params.End != "" {
		endAt, err := parseInTimezone(params.End, call.Timezone)
		if err != nil {
			return "", fmt.Errorf("parse reminder end: %w", err)
		}
		req.EndAt = &endAt
	}

	id, err := t.scheduler.CreateRecurringReminder(ctx, req)
	if err != nil {
		return "", fmt.Errorf("create recurring reminder: %w", err)
	}
	return fmt.Sprintf("Recurring reminder scheduled (id %s).", id), nil
}

// ScheduleUpdateTool modifies or cancels an existing scheduled message.
type ScheduleUpdateTool struct {
	scheduler Scheduler
}

// NewScheduleUpdateTool wires the schedule update tool.
func NewScheduleUpdateTool(scheduler Scheduler) *ScheduleUpdateTool {
	return &ScheduleUpdateTool{scheduler: scheduler}
}

func (t *ScheduleUpdateTool) Name() string { return "schedule_update" }

func (t *ScheduleUpdateTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Type: "function",
		Function: llm.ToolFunctionSchema{
			Name:        t.Name(),
			Description: "Change the schedule of an existing reminder, or cancel it.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"schedule_id": map[string]interface{}{
						"type":        "string",
						"description": "The id of the schedule to modify.",
					},
					"cron_expression": map[string]interface{}{
						"type":        "string",
						"description": "New cron expression. Ignored when cancelling.",
					},
					"cancel": map[string]interface{}{
						"type":        "boolean",
						"description": "Set true to cancel the schedule entirely.",
					},
				},
				"required": []string{"schedule_id"},
			},
		},
	}
}

func (t *ScheduleUpdateTool) Execute(ctx context.Context, call Call, args json.RawMessage) (string, error) {
	var params struct {
		ScheduleID     string `json:"schedule_id"`
		CronExpression string `json:"cron_expression"`
		Cancel         bool   `json:"cancel"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return "", fmt.Errorf("parse schedule_update arguments: %w", err)
	}

	if err := t.scheduler.UpdateSchedule(ctx, params.ScheduleID, params.CronExpression, params.Cancel); err != nil {
		return "", fmt.Errorf("update schedule: %w", err)
	}
	if params.Cancel {
		return "Schedule cancelled.", nil
	}
	return "Schedule updated.", nil
}

func parseInTimezone(value, timezone string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}

	loc := time.UTC
	if timezone != "" {
		if parsed, err := time.LoadLocation(timezone); err == nil {
			loc = parsed
		}
	}
	return time.ParseInLocation("2006-01-02T15:04:05", value, loc)
}
