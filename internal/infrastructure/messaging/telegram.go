package messaging

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"chorus-server/experiment-api/internal/domain/channel"
	"chorus-server/experiment-api/internal/domain/llm"
)

// TelegramClient implements channel.TelegramAPI against the Bot API.
type TelegramClient struct {
	httpClient *resty.Client
	baseURL    string
}

// NewTelegramClient creates a Resty-backed Telegram client.
func NewTelegramClient(baseURL string) *TelegramClient {
	return &TelegramClient{
		httpClient: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(30 * time.Second),
		baseURL: baseURL,
	}
}

var _ channel.TelegramAPI = (*TelegramClient)(nil)

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	Result      struct {
		FilePath string `json:"file_path"`
	} `json:"result"`
}

// SendMessage calls sendMessage for one text segment.
func (c *TelegramClient) SendMessage(ctx context.Context, botToken, chatID, text string) error {
	var result telegramResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{"chat_id": chatID, "text": text}).
		SetResult(&result).
		Post(fmt.Sprintf("/bot%s/sendMessage", botToken))
	if err != nil {
		return err
	}
	if resp.IsError() || !result.OK {
		return fmt.Errorf("telegram sendMessage: %s", telegramFailure(resp, result))
	}
	return nil
}

// SendVoice uploads and sends a voice reply.
func (c *TelegramClient) SendVoice(ctx context.Context, botToken, chatID string, audio *llm.SynthesizedAudio) error {
	var result telegramResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetFormData(map[string]string{"chat_id": chatID}).
		SetFileReader("voice", "voice."+audio.Format, bytes.NewReader(audio.Data)).
		SetResult(&result).
		Post(fmt.Sprintf("/bot%s/sendVoice", botToken))
	if err != nil {
		return err
	}
	if resp.IsError() || !result.OK {
		return fmt.Errorf("telegram sendVoice: %s", telegramFailure(resp, result))
	}
	return nil
}

// SendChatAction sets the chat action (e.g. "typing").
func (c *TelegramClient) SendChatAction(ctx context.Context, botToken, chatID, action string) error {
	var result telegramResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{"chat_id": chatID, "action": action}).
		SetResult(&result).
		Post(fmt.Sprintf("/bot%s/sendChatAction", botToken))
	if err != nil {
		return err
	}
	if resp.IsError() || !result.OK {
		return fmt.Errorf("telegram sendChatAction: %s", telegramFailure(resp, result))
	}
	return nil
}

// DownloadFile resolves a file id via getFile and downloads its bytes.
func (c *TelegramClient) DownloadFile(ctx context.Context, botToken, fileID string) (*llm.Audio, error) {
	var result telegramResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{"file_id": fileID}).
		SetResult(&result).
		Post(fmt.Sprintf("/bot%s/getFile", botToken))
	if err != nil {
		return nil, err
	}
	if resp.IsError() || !result.OK {
		return nil, fmt.Errorf("telegram getFile: %s", telegramFailure(resp, result))
	}
	if result.Result.FilePath == "" {
		return nil, fmt.Errorf("telegram getFile returned no file path")
	}

	fileResp, err := c.httpClient.R().
		SetContext(ctx).
		Get(fmt.Sprintf("/file/bot%s/%s", botToken, result.Result.FilePath))
	if err != nil {
		return nil, err
	}
	if fileResp.IsError() {
		return nil, fmt.Errorf("telegram file download: status %d", fileResp.StatusCode())
	}

	format := strings.TrimPrefix(path.Ext(result.Result.FilePath), ".")
	if format == "" {
		format = "ogg" // Telegram voice notes are ogg/opus
	}
	return &llm.Audio{Format: format, Data: fileResp.Body()}, nil
}

func telegramFailure(resp *resty.Response, result telegramResponse) string {
	if result.Description != "" {
		return result.Description
	}
	return fmt.Sprintf("status %d", resp.StatusCode())
}
