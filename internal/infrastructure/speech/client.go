package speech

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"chorus-server/experiment-api/internal/domain/llm"
)

// Client implements llm.SpeechProvider against an OpenAI-compatible
// audio API. A circuit breaker guards both directions: synthesis already
// degrades to text replies, and a tripped transcription path fails fast
// instead of stalling workers on a dead provider.
type Client struct {
	httpClient *resty.Client
	breaker    *gobreaker.CircuitBreaker
	log        zerolog.Logger
}

// NewClient creates a Resty-backed speech client.
func NewClient(baseURL, apiKey string, log zerolog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(60 * time.Second)
	if apiKey != "" {
		httpClient.SetHeader("Authorization", "Bearer "+apiKey)
	}

	componentLog := log.With().Str("component", "speech-client").Logger()
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "speech-api",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			componentLog.Warn().
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("speech circuit breaker state change")
		},
	})

	return &Client{
		httpClient: httpClient,
		breaker:    breaker,
		log:        componentLog,
	}
}

var _ llm.SpeechProvider = (*Client)(nil)

type transcriptionResponse struct {
	Text string `json:"text"`
}

// Transcribe converts audio to text via /v1/audio/transcriptions.
func (c *Client) Transcribe(ctx context.Context, audio llm.Audio) (string, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		var parsed transcriptionResponse
		filename := "audio." + audio.Format
		if audio.Format == "" {
			filename = "audio.ogg"
		}

		resp, err := c.httpClient.R().
			SetContext(ctx).
			SetFileReader("file", filename, bytes.NewReader(audio.Data)).
			SetFormData(map[string]string{"model": "whisper-1"}).
			SetResult(&parsed).
			Post("/v1/audio/transcriptions")
		if err != nil {
			return nil, err
		}
		if resp.IsError() {
			return nil, fmt.Errorf("speech api error: %s", resp.String())
		}
		return parsed.Text, nil
	})
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	return result.(string), nil
}

// Synthesize converts text to speech via /v1/audio/speech.
func (c *Client) Synthesize(ctx context.Context, text, voice string) (*llm.SynthesizedAudio, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.httpClient.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetBody(map[string]string{
				"model":           "tts-1",
				"input":           text,
				"voice":           voice,
				"response_format": "opus",
			}).
			Post("/v1/audio/speech")
		if err != nil {
			return nil, err
		}
		if resp.IsError() {
			return nil, fmt.Errorf("speech api error: %s", resp.String())
		}
		return resp.Body(), nil
	})
	if err != nil {
		return nil, fmt.Errorf("synthesize: %w", err)
	}
	return &llm.SynthesizedAudio{Format: "opus", Data: result.([]byte)}, nil
}
