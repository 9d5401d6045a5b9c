package channel

import (
	"context"
	"fmt"

	"chorus-server/experiment-api/internal/domain/experiment"
	"chorus-server/experiment-api/internal/domain/llm"
)

// whatsappTextLimit is Twilio's WhatsApp body length cap.
const whatsappTextLimit = 1600

// WhatsappChannel adapts WhatsApp via the Twilio Messages API. The
// sending number comes from the experiment channel's extra data.
type WhatsappChannel struct {
	api     TwilioAPI
	number  string
	current Message
}

// NewWhatsappChannel builds the WhatsApp adapter for one number.
func NewWhatsappChannel(api TwilioAPI, number string) *WhatsappChannel {
	return &WhatsappChannel{api: api, number: number}
}

func (c *WhatsappChannel) Platform() experiment.Platform { return experiment.PlatformWhatsApp }

// Voice replies need a public media host Twilio can fetch from; none is
// configured, so replies to voice messages fall back to text.
func (c *WhatsappChannel) VoiceRepliesSupported() bool { return false }

func (c *WhatsappChannel) SupportedKinds() []ContentKind {
	return []ContentKind{ContentText, ContentVoice}
}
func (c *WhatsappChannel) SetCurrent(msg Message) { c.current = msg }

func (c *WhatsappChannel) FetchAudio(ctx context.Context, msg Message) (*llm.Audio, error) {
	if msg.MediaURL == "" {
		return nil, fmt.Errorf("whatsapp message has no media url")
	}
	audio, err := c.api.FetchMedia(ctx, msg.MediaURL)
	if err != nil {
		return nil, fmt.Errorf("fetch whatsapp media: %w", err)
	}
	return audio, nil
}

func (c *WhatsappChannel) DeliverText(ctx context.Context, chatID, text string) error {
	for _, part := range SplitText(text, whatsappTextLimit) {
		if err := c.api.SendWhatsApp(ctx, c.number, chatID, part); err != nil {
			return fmt.Errorf("send whatsapp message: %w", err)
		}
	}
	return nil
}

func (c *WhatsappChannel) DeliverVoice(ctx context.Context, chatID string, audio *llm.SynthesizedAudio) error {
	return ErrVoiceNotSupported
}

func (c *WhatsappChannel) SubmitInputToLLM(ctx context.Context, chatID string) {}

func (c *WhatsappChannel) TranscriptionStarted(ctx context.Context, chatID string) {}

func (c *WhatsappChannel) TranscriptionFinished(ctx context.Context, chatID, transcript string) {
}
