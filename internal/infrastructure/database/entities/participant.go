package entities

import (
	"time"

	"chorus-server/experiment-api/internal/domain/experiment"
)

// Participant represents the database schema for participants.
type Participant struct {
	ID        uint      `gorm:"primaryKey"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`

	TeamID     uint    `gorm:"uniqueIndex:idx_participant_team_identifier;not null"`
	Identifier string  `gorm:"type:varchar(320);uniqueIndex:idx_participant_team_identifier;not null"`
	UserID     string  `gorm:"type:varchar(64);index"`
	Memory     JSONMap `gorm:"type:jsonb"`
}

// TableName specifies the table name for Participant.
func (Participant) TableName() string {
	return "participants"
}

// EtoD converts the database entity to the domain model.
func (p *Participant) EtoD() *experiment.Participant {
	return &experiment.Participant{
		ID:         p.ID,
		TeamID:     p.TeamID,
		Identifier: p.Identifier,
		UserID:     p.UserID,
		Memory:     p.Memory,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
}

// NewSchemaParticipant creates a database entity from the domain model.
func NewSchemaParticipant(p *experiment.Participant) *Participant {
	return &Participant{
		ID:         p.ID,
		TeamID:     p.TeamID,
		Identifier: p.Identifier,
		UserID:     p.UserID,
		Memory:     p.Memory,
	}
}
