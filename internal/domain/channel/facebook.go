package channel

import (
	"context"
	"fmt"

	"chorus-server/experiment-api/internal/domain/experiment"
	"chorus-server/experiment-api/internal/domain/llm"
)

// facebookTextLimit is the Messenger send API text length cap.
const facebookTextLimit = 2000

// FacebookChannel adapts Facebook Messenger via the Graph send API. The
// page access token comes from the experiment channel's extra data.
type FacebookChannel struct {
	api       FacebookAPI
	pageToken string
	current   Message
}

// NewFacebookChannel builds the Messenger adapter for one page.
func NewFacebookChannel(api FacebookAPI, pageToken string) *FacebookChannel {
	return &FacebookChannel{api: api, pageToken: pageToken}
}

func (c *FacebookChannel) Platform() experiment.Platform { return experiment.PlatformFacebook }
func (c *FacebookChannel) VoiceRepliesSupported() bool   { return true }
func (c *FacebookChannel) SupportedKinds() []ContentKind {
	return []ContentKind{ContentText, ContentVoice}
}
func (c *FacebookChannel) SetCurrent(msg Message) { c.current = msg }

func (c *FacebookChannel) FetchAudio(ctx context.Context, msg Message) (*llm.Audio, error) {
	if msg.MediaURL == "" {
		return nil, fmt.Errorf("facebook message has no attachment url")
	}
	audio, err := c.api.FetchMedia(ctx, msg.MediaURL)
	if err != nil {
		return nil, fmt.Errorf("fetch facebook attachment: %w", err)
	}
	return audio, nil
}

func (c *FacebookChannel) DeliverText(ctx context.Context, chatID, text string) error {
	for _, part := range SplitText(text, facebookTextLimit) {
		if err := c.api.SendText(ctx, c.pageToken, chatID, part); err != nil {
			return fmt.Errorf("send facebook message: %w", err)
		}
	}
	return nil
}

func (c *FacebookChannel) DeliverVoice(ctx context.Context, chatID string, audio *llm.SynthesizedAudio) error {
	if err := c.api.SendVoice(ctx, c.pageToken, chatID, audio); err != nil {
		return fmt.Errorf("send facebook voice: %w", err)
	}
	return nil
}

func (c *FacebookChannel) SubmitInputToLLM(ctx context.Context, chatID string) {}

func (c *FacebookChannel) TranscriptionStarted(ctx context.Context, chatID string) {}

func (c *FacebookChannel) TranscriptionFinished(ctx context.Context, chatID, transcript string) {
}
