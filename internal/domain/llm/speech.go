package llm

import "context"

// Audio is a raw audio payload fetched from a channel's media endpoint.
// Format is the container/codec name as reported by the platform
// ("ogg", "mp3", "wav", ...); the speech provider handles decoding.
type Audio struct {
	Format string
	Data   []byte
}

// SynthesizedAudio is a voice reply produced by text-to-speech.
type SynthesizedAudio struct {
	Format   string
	Data     []byte
	Duration float64
}

// SpeechProvider defines speech-to-text and text-to-speech capabilities.
type SpeechProvider interface {
	Transcribe(ctx context.Context, audio Audio) (string, error)
	Synthesize(ctx context.Context, text string, voice string) (*SynthesizedAudio, error)
}
