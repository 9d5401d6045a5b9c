package dto

import (
	"time"

	"chorus-server/experiment-api/internal/domain/chat"
	"chorus-server/experiment-api/internal/domain/session"
)

// SessionPayload is the wire shape of a conversation session.
type SessionPayload struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// MessagePayload is the wire shape of one chat log entry.
type MessagePayload struct {
	Type      string    `json:"type"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ReplyPayload carries a synchronous assistant reply.
type ReplyPayload struct {
	Reply string `json:"reply"`
}

// FromSession maps a domain session to its wire shape.
func FromSession(sess *session.Session) SessionPayload {
	return SessionPayload{
		ID:        sess.PublicID,
		Status:    string(sess.Status),
		CreatedAt: sess.CreatedAt,
	}
}

// FromMessages maps chat log entries to their wire shape.
func FromMessages(messages []chat.Message) []MessagePayload {
	payloads := make([]MessagePayload, 0, len(messages))
	for _, m := range messages {
		payloads = append(payloads, MessagePayload{
			Type:      string(m.Type),
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		})
	}
	return payloads
}
