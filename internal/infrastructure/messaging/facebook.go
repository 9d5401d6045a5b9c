package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"chorus-server/experiment-api/internal/domain/channel"
	"chorus-server/experiment-api/internal/domain/llm"
)

// FacebookClient implements channel.FacebookAPI against the Graph
// Messenger send API.
type FacebookClient struct {
	httpClient *resty.Client
}

// NewFacebookClient creates a Resty-backed Messenger client.
func NewFacebookClient(baseURL string) *FacebookClient {
	return &FacebookClient{
		httpClient: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(30 * time.Second),
	}
}

var _ channel.FacebookAPI = (*FacebookClient)(nil)

// SendText sends one Messenger text segment.
func (c *FacebookClient) SendText(ctx context.Context, pageToken, recipientID, text string) error {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetQueryParam("access_token", pageToken).
		SetBody(map[string]interface{}{
			"recipient":      map[string]string{"id": recipientID},
			"messaging_type": "RESPONSE",
			"message":        map[string]string{"text": text},
		}).
		Post("/me/messages")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("facebook send: %s", resp.String())
	}
	return nil
}

// SendVoice uploads and sends a voice reply as an audio attachment.
func (c *FacebookClient) SendVoice(ctx context.Context, pageToken, recipientID string, audio *llm.SynthesizedAudio) error {
	recipient, err := json.Marshal(map[string]string{"id": recipientID})
	if err != nil {
		return fmt.Errorf("encode recipient: %w", err)
	}
	message, err := json.Marshal(map[string]interface{}{
		"attachment": map[string]interface{}{
			"type":    "audio",
			"payload": map[string]bool{"is_reusable": false},
		},
	})
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParam("access_token", pageToken).
		SetFormData(map[string]string{
			"recipient":      string(recipient),
			"messaging_type": "RESPONSE",
			"message":        string(message),
		}).
		SetFileReader("filedata", "voice."+audio.Format, bytes.NewReader(audio.Data)).
		Post("/me/messages")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("facebook send voice: %s", resp.String())
	}
	return nil
}

// FetchMedia downloads an inbound attachment by its CDN url.
func (c *FacebookClient) FetchMedia(ctx context.Context, mediaURL string) (*llm.Audio, error) {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		Get(mediaURL)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("facebook media fetch: status %d", resp.StatusCode())
	}
	return &llm.Audio{
		Format: formatFromContentType(resp.Header().Get("Content-Type")),
		Data:   resp.Body(),
	}, nil
}
