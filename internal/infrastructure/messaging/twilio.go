package messaging

import (
	"context"
	"fmt"
	"mime"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"chorus-server/experiment-api/internal/domain/channel"
	"chorus-server/experiment-api/internal/domain/llm"
)

// TwilioClient implements channel.TwilioAPI against the Messages API.
type TwilioClient struct {
	httpClient *resty.Client
	accountSID string
}

// NewTwilioClient creates a Resty-backed Twilio client.
func NewTwilioClient(baseURL, accountSID, authToken string) *TwilioClient {
	return &TwilioClient{
		httpClient: resty.New().
			SetBaseURL(baseURL).
			SetBasicAuth(accountSID, authToken).
			SetTimeout(30 * time.Second),
		accountSID: accountSID,
	}
}

var _ channel.TwilioAPI = (*TwilioClient)(nil)

// SendWhatsApp sends one WhatsApp text segment.
func (c *TwilioClient) SendWhatsApp(ctx context.Context, from, to, text string) error {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"From": "whatsapp:" + from,
			"To":   "whatsapp:" + to,
			"Body": text,
		}).
		Post(fmt.Sprintf("/2010-04-01/Accounts/%s/Messages.json", c.accountSID))
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("twilio send: %s", resp.String())
	}
	return nil
}

// FetchMedia downloads inbound media with authenticated access.
func (c *TwilioClient) FetchMedia(ctx context.Context, mediaURL string) (*llm.Audio, error) {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		Get(mediaURL)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("twilio media fetch: status %d", resp.StatusCode())
	}

	return &llm.Audio{
		Format: formatFromContentType(resp.Header().Get("Content-Type")),
		Data:   resp.Body(),
	}, nil
}

// formatFromContentType maps a MIME type to a container/codec label
// ("audio/ogg; codecs=opus" -> "ogg").
func formatFromContentType(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(mediaType, "audio/") {
		return "ogg"
	}
	format := strings.TrimPrefix(mediaType, "audio/")
	if format == "mpeg" {
		return "mp3"
	}
	return format
}
