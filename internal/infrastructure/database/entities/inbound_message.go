package entities

import "time"

// Inbound message processing statuses.
const (
	InboundStatusQueued     = "queued"
	InboundStatusProcessing = "in_progress"
	InboundStatusCompleted  = "completed"
	InboundStatusFailed     = "failed"
)

// Inbound message kinds.
const (
	InboundKindTransport = "transport"
	InboundKindWebSeed   = "web_seed"
)

// InboundMessage is the durable work queue row: one per inbound
// transport event (or queued seed generation), dequeued by the worker
// pool with FOR UPDATE SKIP LOCKED.
type InboundMessage struct {
	ID        uint      `gorm:"primaryKey"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`

	Kind       string `gorm:"type:varchar(20);not null;default:'transport'"`
	Platform   string `gorm:"type:varchar(20);index"`
	ChannelRef string `gorm:"type:varchar(64)"`
	Payload    []byte `gorm:"type:bytea"`
	SessionID  uint   `gorm:"index"`

	Status      string    `gorm:"type:varchar(20);index:idx_inbound_status_queued;not null;default:'queued'"`
	QueuedAt    time.Time `gorm:"index:idx_inbound_status_queued"`
	StartedAt   *time.Time
	CompletedAt *time.Time
	FailedAt    *time.Time
	LastError   string `gorm:"type:text"`
}

// TableName specifies the table name for InboundMessage.
func (InboundMessage) TableName() string {
	return "inbound_messages"
}
