package channel

import (
	"context"
	"fmt"

	"chorus-server/experiment-api/internal/domain/experiment"
	"chorus-server/experiment-api/internal/domain/llm"
)

// APIChannel serves programmatic callers. Like the web widget it has no
// push transport; the reply is returned to the HTTP caller.
type APIChannel struct {
	current Message
}

// NewAPIChannel builds the generic API adapter.
func NewAPIChannel() *APIChannel {
	return &APIChannel{}
}

func (c *APIChannel) Platform() experiment.Platform { return experiment.PlatformAPI }
func (c *APIChannel) VoiceRepliesSupported() bool   { return false }
func (c *APIChannel) SupportedKinds() []ContentKind { return []ContentKind{ContentText} }
func (c *APIChannel) SetCurrent(msg Message)        { c.current = msg }

func (c *APIChannel) FetchAudio(ctx context.Context, msg Message) (*llm.Audio, error) {
	return nil, fmt.Errorf("api channel does not carry audio")
}

func (c *APIChannel) DeliverText(ctx context.Context, chatID, text string) error {
	return nil
}

func (c *APIChannel) DeliverVoice(ctx context.Context, chatID string, audio *llm.SynthesizedAudio) error {
	return ErrVoiceNotSupported
}

func (c *APIChannel) SubmitInputToLLM(ctx context.Context, chatID string)                  {}
func (c *APIChannel) TranscriptionStarted(ctx context.Context, chatID string)              {}
func (c *APIChannel) TranscriptionFinished(ctx context.Context, chatID, transcript string) {}
