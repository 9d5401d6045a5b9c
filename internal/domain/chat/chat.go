package chat

import "time"

// MessageType distinguishes who authored a chat message.
type MessageType string

const (
	MessageTypeHuman  MessageType = "human"
	MessageTypeAI     MessageType = "ai"
	MessageTypeSystem MessageType = "system"
)

// Metadata keys stored on the chat record.
const (
	// MetadataKeyCancelled flags an in-flight generation for cooperative
	// cancellation. Set by an external actor, polled by the pipeline.
	MetadataKeyCancelled = "cancelled"

	// MetadataKeyThreadID holds the provider-side assistant thread id.
	MetadataKeyThreadID = "openai_thread_id"
)

// Chat is the durable message log backing an experiment session.
type Chat struct {
	ID        uint
	TeamID    uint
	Metadata  map[string]string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message is one entry in a chat's log. Append-only; ordering is
// insertion order.
type Message struct {
	ID        uint
	ChatID    uint
	Type      MessageType
	Content   string
	Tag       string
	CreatedAt time.Time
}
