package channel

import (
	"context"
	"fmt"
	"strings"

	"chorus-server/experiment-api/internal/domain/experiment"
	"chorus-server/experiment-api/internal/domain/llm"
)

// slackTextLimit keeps replies well under chat.postMessage truncation.
const slackTextLimit = 4000

// SlackChannel adapts the Slack Web API. Replies are addressed to the
// thread the inbound message arrived on; when no inbound message is in
// hand (seed messages, scheduled sends) the session's persisted external
// conversation id ("channel:thread_ts") supplies the address.
type SlackChannel struct {
	api           SlackAPI
	botToken      string
	current       Message
	sessionThread string
}

// NewSlackChannel builds the Slack adapter for one workspace bot.
func NewSlackChannel(api SlackAPI, botToken string) *SlackChannel {
	return &SlackChannel{api: api, botToken: botToken}
}

func (c *SlackChannel) Platform() experiment.Platform { return experiment.PlatformSlack }
func (c *SlackChannel) VoiceRepliesSupported() bool   { return false }
func (c *SlackChannel) SupportedKinds() []ContentKind { return []ContentKind{ContentText} }
func (c *SlackChannel) SetCurrent(msg Message)        { c.current = msg }

// SetSessionThread installs the session's external conversation id as the
// fallback reply address.
func (c *SlackChannel) SetSessionThread(externalChatID string) {
	c.sessionThread = externalChatID
}

func (c *SlackChannel) FetchAudio(ctx context.Context, msg Message) (*llm.Audio, error) {
	return nil, fmt.Errorf("slack channel does not carry audio")
}

func (c *SlackChannel) DeliverText(ctx context.Context, chatID, text string) error {
	channelID, threadTS, err := c.replyAddress()
	if err != nil {
		return err
	}
	for _, part := range SplitText(text, slackTextLimit) {
		if err := c.api.PostMessage(ctx, c.botToken, channelID, threadTS, part); err != nil {
			return fmt.Errorf("post slack message: %w", err)
		}
	}
	return nil
}

func (c *SlackChannel) DeliverVoice(ctx context.Context, chatID string, audio *llm.SynthesizedAudio) error {
	return ErrVoiceNotSupported
}

func (c *SlackChannel) SubmitInputToLLM(ctx context.Context, chatID string)                  {}
func (c *SlackChannel) TranscriptionStarted(ctx context.Context, chatID string)              {}
func (c *SlackChannel) TranscriptionFinished(ctx context.Context, chatID, transcript string) {}

func (c *SlackChannel) replyAddress() (channelID, threadTS string, err error) {
	if c.current.ChannelID != "" && c.current.ThreadTS != "" {
		return c.current.ChannelID, c.current.ThreadTS, nil
	}
	if c.sessionThread != "" {
		parts := strings.SplitN(c.sessionThread, ":", 2)
		if len(parts) == 2 {
			return parts[0], parts[1], nil
		}
	}
	return "", "", fmt.Errorf("slack reply address unknown: no inbound message or session thread")
}
