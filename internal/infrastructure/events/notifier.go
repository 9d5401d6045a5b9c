package events

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"chorus-server/experiment-api/internal/domain/orchestrator"
)

// Event names delivered to the configured webhook endpoint.
const (
	EventParticipantJoined   = "participant_joined"
	EventConversationStarted = "conversation_started"
	EventNewHumanMessage     = "new_human_message"
)

// EventPayload is the envelope posted to the event webhook.
type EventPayload struct {
	Event                 string    `json:"event"`
	TeamID                uint      `json:"team_id,omitempty"`
	ExperimentPublicID    string    `json:"experiment_public_id,omitempty"`
	ParticipantIdentifier string    `json:"participant_identifier,omitempty"`
	SessionPublicID       string    `json:"session_public_id,omitempty"`
	Content               string    `json:"content,omitempty"`
	OccurredAt            time.Time `json:"occurred_at"`
}

// HTTPNotifier posts conversation lifecycle events to a webhook
// endpoint. Failures are logged and never propagated; event delivery
// must not block or fail message handling.
type HTTPNotifier struct {
	httpClient *resty.Client
	webhookURL string
	log        zerolog.Logger
}

// NewHTTPNotifier creates a notifier for the given webhook URL. An
// empty URL disables delivery entirely.
func NewHTTPNotifier(webhookURL string, log zerolog.Logger) *HTTPNotifier {
	return &HTTPNotifier{
		httpClient: resty.New().
			SetTimeout(10 * time.Second).
			SetRetryCount(2).
			SetRetryWaitTime(500 * time.Millisecond),
		webhookURL: webhookURL,
		log:        log.With().Str("component", "event_notifier").Logger(),
	}
}

var _ orchestrator.Notifier = (*HTTPNotifier)(nil)

// ParticipantJoined reports the first contact of a new participant.
func (n *HTTPNotifier) ParticipantJoined(ctx context.Context, teamID uint, experimentPublicID, identifier string) {
	n.deliver(ctx, EventPayload{
		Event:                 EventParticipantJoined,
		TeamID:                teamID,
		ExperimentPublicID:    experimentPublicID,
		ParticipantIdentifier: identifier,
	})
}

// ConversationStarted reports a session entering the active state.
func (n *HTTPNotifier) ConversationStarted(ctx context.Context, sessionPublicID string) {
	n.deliver(ctx, EventPayload{
		Event:           EventConversationStarted,
		SessionPublicID: sessionPublicID,
	})
}

// NewHumanMessage reports each inbound human message on an active session.
func (n *HTTPNotifier) NewHumanMessage(ctx context.Context, sessionPublicID, content string) {
	n.deliver(ctx, EventPayload{
		Event:           EventNewHumanMessage,
		SessionPublicID: sessionPublicID,
		Content:         content,
	})
}

func (n *HTTPNotifier) deliver(ctx context.Context, payload EventPayload) {
	if n.webhookURL == "" {
		return
	}
	payload.OccurredAt = time.Now().UTC()

	resp, err := n.httpClient.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(n.webhookURL)
	if err == nil && resp.IsError() {
		err = fmt.Errorf("webhook returned status %d", resp.StatusCode())
	}
	if err != nil {
		n.log.Warn().
			Err(err).
			Str("event", payload.Event).
			Str("session_public_id", payload.SessionPublicID).
			Msg("Failed to deliver event webhook")
		return
	}

	n.log.Debug().
		Str("event", payload.Event).
		Str("session_public_id", payload.SessionPublicID).
		Msg("Delivered event webhook")
}
