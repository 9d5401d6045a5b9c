package channel

import (
	"context"
	"errors"

	"chorus-server/experiment-api/internal/domain/experiment"
	"chorus-server/experiment-api/internal/domain/llm"
)

// ResetCommand ends the current session and starts a new one.
const ResetCommand = "/reset"

// ErrVoiceNotSupported is returned when DeliverVoice is called on a
// platform without voice replies. Reaching it is a programming error.
var ErrVoiceNotSupported = errors.New("voice replies not supported on this platform")

// ContentKind classifies inbound message payloads.
type ContentKind string

const (
	ContentText        ContentKind = "text"
	ContentVoice       ContentKind = "voice"
	ContentUnsupported ContentKind = "unsupported"
)

// Message is the common abstraction all platform payloads normalize to.
type Message struct {
	// ChatID is the stable per-user transport identity.
	ChatID string
	// Kind is the normalized content classification.
	Kind ContentKind
	// RawKind is the platform's own content-type label, used to tell
	// the user what kind of message was not understood.
	RawKind string
	// Text is the body for text content.
	Text string
	// MediaID or MediaURL locates voice content on the platform.
	MediaID  string
	MediaURL string
	// ChannelID and ThreadTS address threaded platforms (Slack).
	ChannelID string
	ThreadTS  string
	// MessageID is the platform's message identifier, when exposed.
	MessageID string
}

// ThreadKey derives the session external chat id for threaded platforms.
func (m Message) ThreadKey() string {
	if m.ChannelID == "" || m.ThreadTS == "" {
		return ""
	}
	return m.ChannelID + ":" + m.ThreadTS
}

// Channel normalizes one messaging transport: capability flags, inbound
// payload access, and outbound delivery. Adapters hold no durable state;
// the transient current inbound message is the only handle they keep.
type Channel interface {
	Platform() experiment.Platform
	VoiceRepliesSupported() bool
	SupportedKinds() []ContentKind

	// SetCurrent installs the inbound message being handled; reply
	// addressing (e.g. Slack threads) derives from it.
	SetCurrent(msg Message)

	// FetchAudio retrieves raw voice bytes from the platform's media
	// endpoint. Only valid for ContentVoice messages.
	FetchAudio(ctx context.Context, msg Message) (*llm.Audio, error)

	// DeliverText sends a text reply, segmented to the platform's
	// message-length limit. Delivery failures are surfaced.
	DeliverText(ctx context.Context, chatID, text string) error

	// DeliverVoice sends a synthesized voice reply. Only valid when
	// VoiceRepliesSupported; otherwise returns ErrVoiceNotSupported.
	DeliverVoice(ctx context.Context, chatID string, audio *llm.SynthesizedAudio) error

	// SubmitInputToLLM signals that generation is about to start for the
	// participant's input (typing indicator on platforms that have one).
	SubmitInputToLLM(ctx context.Context, chatID string)

	// TranscriptionStarted signals a voice message is being transcribed
	// (typing indicator on platforms that have one).
	TranscriptionStarted(ctx context.Context, chatID string)

	// TranscriptionFinished reports the transcript (platforms may echo
	// it back to the user).
	TranscriptionFinished(ctx context.Context, chatID, transcript string)
}

// Supports reports whether the channel handles the given content kind.
func Supports(ch Channel, kind ContentKind) bool {
	for _, k := range ch.SupportedKinds() {
		if k == kind {
			return true
		}
	}
	return false
}

// SplitText segments text into chunks of at most limit runes, breaking on
// newline and then space boundaries where possible.
func SplitText(text string, limit int) []string {
	if limit <= 0 || len([]rune(text)) <= limit {
		return []string{text}
	}

	var parts []string
	runes := []rune(text)
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		if cut == limit {
			for i := limit; i > limit/2; i-- {
				if runes[i-1] == ' ' {
					cut = i
					break
				}
			}
		}
		parts = append(parts, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}
