package channel

import (
	"context"

	"chorus-server/experiment-api/internal/domain/llm"
)

// TelegramAPI is the outbound Telegram Bot API surface the adapter needs.
type TelegramAPI interface {
	SendMessage(ctx context.Context, botToken, chatID, text string) error
	SendVoice(ctx context.Context, botToken, chatID string, audio *llm.SynthesizedAudio) error
	SendChatAction(ctx context.Context, botToken, chatID, action string) error
	DownloadFile(ctx context.Context, botToken, fileID string) (*llm.Audio, error)
}

// TwilioAPI is the outbound Twilio Messages API surface.
type TwilioAPI interface {
	SendWhatsApp(ctx context.Context, from, to, text string) error
	FetchMedia(ctx context.Context, mediaURL string) (*llm.Audio, error)
}

// FacebookAPI is the outbound Messenger Graph API surface.
type FacebookAPI interface {
	SendText(ctx context.Context, pageToken, recipientID, text string) error
	SendVoice(ctx context.Context, pageToken, recipientID string, audio *llm.SynthesizedAudio) error
	FetchMedia(ctx context.Context, mediaURL string) (*llm.Audio, error)
}

// SlackAPI is the outbound Slack Web API surface.
type SlackAPI interface {
	PostMessage(ctx context.Context, botToken, channelID, threadTS, text string) error
	FetchFile(ctx context.Context, botToken, fileURL string) (*llm.Audio, error)
}
