package llm

import "context"

// AssistantProvider defines the contract for hosted assistant threads.
// The provider owns the conversation context server-side; callers only
// hold on to the thread id between turns.
type AssistantProvider interface {
	// CreateThreadAndRun starts a new thread seeded with the given user
	// message and runs the assistant on it.
	CreateThreadAndRun(ctx context.Context, req AssistantRunRequest) (*AssistantRunResult, error)

	// SubmitMessageAndRun appends a user message to an existing thread
	// and runs the assistant on it.
	SubmitMessageAndRun(ctx context.Context, threadID string, req AssistantRunRequest) (*AssistantRunResult, error)

	// CancelRun requests cancellation of an in-flight run.
	CancelRun(ctx context.Context, threadID, runID string) error

	// GetRunStatus reports the current status of a run
	// ("queued", "in_progress", "cancelling", "cancelled", ...).
	GetRunStatus(ctx context.Context, threadID, runID string) (string, error)
}

// AssistantRunRequest carries per-turn parameters for an assistant run.
type AssistantRunRequest struct {
	AssistantID  string
	Instructions string
	Input        string
}

// AssistantRunResult is the outcome of a completed assistant run.
type AssistantRunResult struct {
	ThreadID string
	RunID    string
	Output   string
	Usage    Usage
}
