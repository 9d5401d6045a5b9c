package llmprovider

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"chorus-server/experiment-api/internal/domain/llm"
)

// AssistantClient implements llm.AssistantProvider against the hosted
// assistants API (threads and runs).
type AssistantClient struct {
	httpClient   *resty.Client
	pollInterval time.Duration
}

// NewAssistantClient creates a Resty-backed assistants client.
func NewAssistantClient(baseURL, apiKey string, pollInterval time.Duration) *AssistantClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetHeader("OpenAI-Beta", "assistants=v2").
		SetTimeout(75 * time.Second)
	if apiKey != "" {
		client.SetHeader("Authorization", "Bearer "+apiKey)
	}
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &AssistantClient{httpClient: client, pollInterval: pollInterval}
}

var _ llm.AssistantProvider = (*AssistantClient)(nil)

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

type runObject struct {
	ID       string `json:"id"`
	ThreadID string `json:"thread_id"`
	Status   string `json:"status"`
	Usage    *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	LastError *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_error"`
}

type messageList struct {
	Data []struct {
		ID      string `json:"id"`
		Role    string `json:"role"`
		RunID   string `json:"run_id"`
		Content []struct {
			Type string `json:"type"`
			Text struct {
				Value string `json:"value"`
			} `json:"text"`
		} `json:"content"`
	} `json:"data"`
}

// CreateThreadAndRun starts a new thread seeded with the user message
// and runs the assistant to completion.
func (c *AssistantClient) CreateThreadAndRun(ctx context.Context, req llm.AssistantRunRequest) (*llm.AssistantRunResult, error) {
	body := map[string]interface{}{
		"assistant_id": req.AssistantID,
		"instructions": req.Instructions,
		"thread": map[string]interface{}{
			"messages": []map[string]string{
				{"role": "user", "content": req.Input},
			},
		},
	}

	var run runObject
	if err := c.post(ctx, "/v1/threads/runs", body, &run); err != nil {
		return nil, err
	}
	return c.awaitRun(ctx, run.ThreadID, run.ID)
}

// SubmitMessageAndRun appends the user message to an existing thread and
// runs the assistant to completion. Submitting while a prior run is
// still active surfaces the provider's thread-busy error verbatim so the
// caller can match and recover.
func (c *AssistantClient) SubmitMessageAndRun(ctx context.Context, threadID string, req llm.AssistantRunRequest) (*llm.AssistantRunResult, error) {
	messageBody := map[string]string{"role": "user", "content": req.Input}
	if err := c.post(ctx, fmt.Sprintf("/v1/threads/%s/messages", threadID), messageBody, nil); err != nil {
		return nil, err
	}

	runBody := map[string]interface{}{
		"assistant_id": req.AssistantID,
		"instructions": req.Instructions,
	}
	var run runObject
	if err := c.post(ctx, fmt.Sprintf("/v1/threads/%s/runs", threadID), runBody, &run); err != nil {
		return nil, err
	}
	return c.awaitRun(ctx, threadID, run.ID)
}

// CancelRun requests cancellation of an in-flight run.
func (c *AssistantClient) CancelRun(ctx context.Context, threadID, runID string) error {
	return c.post(ctx, fmt.Sprintf("/v1/threads/%s/runs/%s/cancel", threadID, runID), nil, nil)
}

// GetRunStatus reports the current status of a run.
func (c *AssistantClient) GetRunStatus(ctx context.Context, threadID, runID string) (string, error) {
	var run runObject
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetResult(&run).
		Get(fmt.Sprintf("/v1/threads/%s/runs/%s", threadID, runID))
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		return "", apiErrorFrom(resp.Body())
	}
	return run.Status, nil
}

// awaitRun polls the run until it reaches a terminal state and resolves
// the assistant's reply.
func (c *AssistantClient) awaitRun(ctx context.Context, threadID, runID string) (*llm.AssistantRunResult, error) {
	for {
		var run runObject
		resp, err := c.httpClient.R().
			SetContext(ctx).
			SetResult(&run).
			Get(fmt.Sprintf("/v1/threads/%s/runs/%s", threadID, runID))
		if err != nil {
			return nil, err
		}
		if resp.IsError() {
			return nil, apiErrorFrom(resp.Body())
		}

		switch run.Status {
		case "completed":
			return c.resolveResult(ctx, &run)
		case "cancelling", "cancelled":
			return nil, fmt.Errorf("run %s was %s", runID, run.Status)
		case "failed", "expired", "incomplete":
			if run.LastError != nil {
				return nil, fmt.Errorf("run %s %s: %s", runID, run.Status, run.LastError.Message)
			}
			return nil, fmt.Errorf("run %s %s", runID, run.Status)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
}

func (c *AssistantClient) resolveResult(ctx context.Context, run *runObject) (*llm.AssistantRunResult, error) {
	var messages messageList
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"run_id": run.ID, "order": "desc", "limit": "10"}).
		SetResult(&messages).
		Get(fmt.Sprintf("/v1/threads/%s/messages", run.ThreadID))
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, apiErrorFrom(resp.Body())
	}

	result := &llm.AssistantRunResult{
		ThreadID: run.ThreadID,
		RunID:    run.ID,
	}
	if run.Usage != nil {
		result.Usage = llm.Usage{
			PromptTokens:     run.Usage.PromptTokens,
			CompletionTokens: run.Usage.CompletionTokens,
			TotalTokens:      run.Usage.TotalTokens,
		}
	}

	for _, msg := range messages.Data {
		if msg.Role != "assistant" {
			continue
		}
		for _, content := range msg.Content {
			if content.Type == "text" {
				result.Output = content.Text.Value
				return result, nil
			}
		}
	}
	return nil, fmt.Errorf("run %s produced no assistant text", run.ID)
}

func (c *AssistantClient) post(ctx context.Context, path string, body, result interface{}) error {
	request := c.httpClient.R().SetContext(ctx)
	if body != nil {
		request.SetBody(body)
	}
	if result != nil {
		request.SetResult(result)
	}

	resp, err := request.Post(path)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return apiErrorFrom(resp.Body())
	}
	return nil
}

// apiErrorFrom surfaces the provider's error message text unchanged;
// callers match on it.
func apiErrorFrom(body []byte) error {
	var parsed apiError
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		return fmt.Errorf("assistant api error: %s", parsed.Error.Message)
	}
	return fmt.Errorf("assistant api error: %s", string(body))
}
