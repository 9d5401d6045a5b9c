package entities

import (
	"time"

	"gorm.io/datatypes"

	"chorus-server/experiment-api/internal/domain/experiment"
)

// Experiment represents the database schema for experiment configuration.
type Experiment struct {
	ID        uint      `gorm:"primaryKey"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`

	PublicID string `gorm:"type:varchar(50);uniqueIndex;not null"`
	TeamID   uint   `gorm:"index;not null"`
	Name     string `gorm:"type:varchar(128);not null"`

	PromptText     string  `gorm:"type:text"`
	Provider       string  `gorm:"type:varchar(64)"`
	Model          string  `gorm:"type:varchar(128)"`
	Temperature    float64 `gorm:"default:0.7"`
	MaxTokenLimit  int     `gorm:"default:8192"`
	InputFormatter string  `gorm:"type:text"`
	SourceMaterial string  `gorm:"type:text"`

	ToolsEnabled bool                        `gorm:"default:false"`
	Tools        datatypes.JSONSlice[string] `gorm:"type:jsonb"`
	AssistantID  string                      `gorm:"type:varchar(64)"`

	ConsentFormText       string                      `gorm:"type:text"`
	ConsentConfirmation   string                      `gorm:"type:text"`
	PreSurveyLink         string                      `gorm:"type:text"`
	PreSurveyConfirmation string                      `gorm:"type:text"`
	ConversationalConsent bool                        `gorm:"default:false"`
	SeedMessage           string                      `gorm:"type:text"`
	ParticipantAllowlist  datatypes.JSONSlice[string] `gorm:"type:jsonb"`
	VoiceProvider         string                      `gorm:"type:varchar(64)"`
	SyntheticVoice        string                      `gorm:"type:varchar(64)"`
	VoiceResponseBehavior string                      `gorm:"type:varchar(20);default:'never'"`
	EchoTranscribedText   bool                        `gorm:"default:false"`
}

// TableName specifies the table name for Experiment.
func (Experiment) TableName() string {
	return "experiments"
}

// EtoD converts the database entity to the domain model.
func (e *Experiment) EtoD() *experiment.Experiment {
	return &experiment.Experiment{
		ID:                    e.ID,
		PublicID:              e.PublicID,
		TeamID:                e.TeamID,
		Name:                  e.Name,
		PromptText:            e.PromptText,
		Provider:              e.Provider,
		Model:                 e.Model,
		Temperature:           e.Temperature,
		MaxTokenLimit:         e.MaxTokenLimit,
		InputFormatter:        e.InputFormatter,
		SourceMaterial:        e.SourceMaterial,
		ToolsEnabled:          e.ToolsEnabled,
		Tools:                 e.Tools,
		AssistantID:           e.AssistantID,
		ConsentFormText:       e.ConsentFormText,
		ConsentConfirmation:   e.ConsentConfirmation,
		PreSurveyLink:         e.PreSurveyLink,
		PreSurveyConfirmation: e.PreSurveyConfirmation,
		ConversationalConsent: e.ConversationalConsent,
		SeedMessage:           e.SeedMessage,
		ParticipantAllowlist:  e.ParticipantAllowlist,
		VoiceProvider:         e.VoiceProvider,
		SyntheticVoice:        e.SyntheticVoice,
		VoiceResponseBehavior: experiment.VoiceResponseBehavior(e.VoiceResponseBehavior),
		EchoTranscribedText:   e.EchoTranscribedText,
		CreatedAt:             e.CreatedAt,
		UpdatedAt:             e.UpdatedAt,
	}
}

// ExperimentChannel binds an experiment to one messaging transport.
type ExperimentChannel struct {
	ID        uint      `gorm:"primaryKey"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`

	ExperimentID uint    `gorm:"index;not null"`
	Name         string  `gorm:"type:varchar(128)"`
	Platform     string  `gorm:"type:varchar(20);index;not null"`
	ExtraData    JSONMap `gorm:"type:jsonb"`
}

// TableName specifies the table name for ExperimentChannel.
func (ExperimentChannel) TableName() string {
	return "experiment_channels"
}

// EtoD converts the database entity to the domain model.
func (c *ExperimentChannel) EtoD() *experiment.Channel {
	return &experiment.Channel{
		ID:           c.ID,
		ExperimentID: c.ExperimentID,
		Name:         c.Name,
		Platform:     experiment.Platform(c.Platform),
		ExtraData:    c.ExtraData,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}
