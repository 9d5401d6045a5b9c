package channel

import (
	"context"
	"fmt"

	"chorus-server/experiment-api/internal/domain/experiment"
	"chorus-server/experiment-api/internal/domain/llm"
)

// WebChannel serves the embedded web widget. It has no push transport:
// replies are returned synchronously to the HTTP caller, so delivery is
// a no-op and the orchestrator's return value carries the reply.
type WebChannel struct {
	current Message
}

// NewWebChannel builds the web widget adapter.
func NewWebChannel() *WebChannel {
	return &WebChannel{}
}

func (c *WebChannel) Platform() experiment.Platform { return experiment.PlatformWeb }
func (c *WebChannel) VoiceRepliesSupported() bool   { return false }
func (c *WebChannel) SupportedKinds() []ContentKind { return []ContentKind{ContentText} }
func (c *WebChannel) SetCurrent(msg Message)        { c.current = msg }

func (c *WebChannel) FetchAudio(ctx context.Context, msg Message) (*llm.Audio, error) {
	return nil, fmt.Errorf("web channel does not carry audio")
}

func (c *WebChannel) DeliverText(ctx context.Context, chatID, text string) error {
	return nil
}

func (c *WebChannel) DeliverVoice(ctx context.Context, chatID string, audio *llm.SynthesizedAudio) error {
	return ErrVoiceNotSupported
}

func (c *WebChannel) SubmitInputToLLM(ctx context.Context, chatID string)                  {}
func (c *WebChannel) TranscriptionStarted(ctx context.Context, chatID string)              {}
func (c *WebChannel) TranscriptionFinished(ctx context.Context, chatID, transcript string) {}
