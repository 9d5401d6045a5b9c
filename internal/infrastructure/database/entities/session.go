package entities

import (
	"time"

	"chorus-server/experiment-api/internal/domain/chat"
	"chorus-server/experiment-api/internal/domain/session"
)

// ExperimentSession represents the database schema for sessions.
type ExperimentSession struct {
	ID        uint      `gorm:"primaryKey"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`

	PublicID        string     `gorm:"type:varchar(50);uniqueIndex;not null"`
	TeamID          uint       `gorm:"index;not null"`
	ExperimentID    uint       `gorm:"index:idx_session_experiment_participant;not null"`
	ParticipantID   uint       `gorm:"index:idx_session_experiment_participant;not null"`
	ChannelID       uint       `gorm:"index;not null"`
	ChatID          uint       `gorm:"index;not null"`
	Status          string     `gorm:"type:varchar(20);not null;default:'setup'"`
	ExternalChatID  string     `gorm:"type:varchar(256);index"`
	NoActivityPings int        `gorm:"default:0"`
	EndedAt         *time.Time `gorm:"index"`
}

// TableName specifies the table name for ExperimentSession.
func (ExperimentSession) TableName() string {
	return "experiment_sessions"
}

// EtoD converts the database entity to the domain model.
func (s *ExperimentSession) EtoD() *session.Session {
	return &session.Session{
		ID:              s.ID,
		PublicID:        s.PublicID,
		TeamID:          s.TeamID,
		ExperimentID:    s.ExperimentID,
		ParticipantID:   s.ParticipantID,
		ChannelID:       s.ChannelID,
		ChatID:          s.ChatID,
		Status:          session.Status(s.Status),
		ExternalChatID:  s.ExternalChatID,
		NoActivityPings: s.NoActivityPings,
		EndedAt:         s.EndedAt,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
}

// Chat is the durable message log backing a session.
type Chat struct {
	ID        uint      `gorm:"primaryKey"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`

	TeamID   uint    `gorm:"index;not null"`
	Metadata JSONMap `gorm:"type:jsonb"`
}

// TableName specifies the table name for Chat.
func (Chat) TableName() string {
	return "chats"
}

// EtoD converts the database entity to the domain model.
func (c *Chat) EtoD() *chat.Chat {
	return &chat.Chat{
		ID:        c.ID,
		TeamID:    c.TeamID,
		Metadata:  c.Metadata,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

// ChatMessage stores one entry of a chat's log.
type ChatMessage struct {
	ID        uint      `gorm:"primaryKey"`
	CreatedAt time.Time `gorm:"autoCreateTime"`

	ChatID  uint   `gorm:"index;not null"`
	Type    string `gorm:"type:varchar(10);index;not null"`
	Content string `gorm:"type:text"`
	Tag     string `gorm:"type:varchar(128)"`
}

// TableName specifies the table name for ChatMessage.
func (ChatMessage) TableName() string {
	return "chat_messages"
}

// EtoD converts the database entity to the domain model.
func (m *ChatMessage) EtoD() *chat.Message {
	return &chat.Message{
		ID:        m.ID,
		ChatID:    m.ChatID,
		Type:      chat.MessageType(m.Type),
		Content:   m.Content,
		Tag:       m.Tag,
		CreatedAt: m.CreatedAt,
	}
}

// NewSchemaChatMessage creates a database entity from the domain model.
func NewSchemaChatMessage(m *chat.Message) *ChatMessage {
	return &ChatMessage{
		ID:      m.ID,
		ChatID:  m.ChatID,
		Type:    string(m.Type),
		Content: m.Content,
		Tag:     m.Tag,
	}
}
