package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"chorus-server/experiment-api/internal/domain/channel"
	"chorus-server/experiment-api/internal/domain/llm"
)

// SlackClient implements channel.SlackAPI against the Slack Web API.
type SlackClient struct {
	httpClient *resty.Client
}

// NewSlackClient creates a Resty-backed Slack client.
func NewSlackClient(baseURL string) *SlackClient {
	return &SlackClient{
		httpClient: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(30 * time.Second),
	}
}

var _ channel.SlackAPI = (*SlackClient)(nil)

type slackResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// PostMessage sends one message into the given channel thread.
func (c *SlackClient) PostMessage(ctx context.Context, botToken, channelID, threadTS, text string) error {
	var result slackResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetAuthToken(botToken).
		SetBody(map[string]string{
			"channel":   channelID,
			"thread_ts": threadTS,
			"text":      text,
		}).
		SetResult(&result).
		Post("/chat.postMessage")
	if err != nil {
		return err
	}
	if resp.IsError() || !result.OK {
		if result.Error != "" {
			return fmt.Errorf("slack postMessage: %s", result.Error)
		}
		return fmt.Errorf("slack postMessage: status %d", resp.StatusCode())
	}
	return nil
}

// FetchFile downloads a private file with bot authentication.
func (c *SlackClient) FetchFile(ctx context.Context, botToken, fileURL string) (*llm.Audio, error) {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetAuthToken(botToken).
		Get(fileURL)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("slack file fetch: status %d", resp.StatusCode())
	}
	return &llm.Audio{
		Format: formatFromContentType(resp.Header().Get("Content-Type")),
		Data:   resp.Body(),
	}, nil
}
