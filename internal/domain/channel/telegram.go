package channel

import (
	"context"
	"fmt"

	"chorus-server/experiment-api/internal/domain/experiment"
	"chorus-server/experiment-api/internal/domain/llm"
)

// telegramTextLimit is the Bot API sendMessage length cap.
const telegramTextLimit = 4096

// TelegramChannel adapts the Telegram Bot API. The bot token comes from
// the experiment channel's extra data.
type TelegramChannel struct {
	api      TelegramAPI
	botToken string
	current  Message
}

// NewTelegramChannel builds the Telegram adapter for one bot.
func NewTelegramChannel(api TelegramAPI, botToken string) *TelegramChannel {
	return &TelegramChannel{api: api, botToken: botToken}
}

func (c *TelegramChannel) Platform() experiment.Platform { return experiment.PlatformTelegram }
func (c *TelegramChannel) VoiceRepliesSupported() bool   { return true }
func (c *TelegramChannel) SupportedKinds() []ContentKind {
	return []ContentKind{ContentText, ContentVoice}
}
func (c *TelegramChannel) SetCurrent(msg Message) { c.current = msg }

func (c *TelegramChannel) FetchAudio(ctx context.Context, msg Message) (*llm.Audio, error) {
	if msg.MediaID == "" {
		return nil, fmt.Errorf("telegram message has no voice file id")
	}
	audio, err := c.api.DownloadFile(ctx, c.botToken, msg.MediaID)
	if err != nil {
		return nil, fmt.Errorf("download telegram voice file: %w", err)
	}
	return audio, nil
}

func (c *TelegramChannel) DeliverText(ctx context.Context, chatID, text string) error {
	for _, part := range SplitText(text, telegramTextLimit) {
		if err := c.api.SendMessage(ctx, c.botToken, chatID, part); err != nil {
			return fmt.Errorf("send telegram message: %w", err)
		}
	}
	return nil
}

func (c *TelegramChannel) DeliverVoice(ctx context.Context, chatID string, audio *llm.SynthesizedAudio) error {
	if err := c.api.SendVoice(ctx, c.botToken, chatID, audio); err != nil {
		return fmt.Errorf("send telegram voice: %w", err)
	}
	return nil
}

func (c *TelegramChannel) SubmitInputToLLM(ctx context.Context, chatID string) {
	// Best effort typing indicator; failures are irrelevant to the flow.
	_ = c.api.SendChatAction(ctx, c.botToken, chatID, "typing")
}

func (c *TelegramChannel) TranscriptionStarted(ctx context.Context, chatID string) {
	// Best effort typing indicator; failures are irrelevant to the flow.
	_ = c.api.SendChatAction(ctx, c.botToken, chatID, "typing")
}

func (c *TelegramChannel) TranscriptionFinished(ctx context.Context, chatID, transcript string) {
}
