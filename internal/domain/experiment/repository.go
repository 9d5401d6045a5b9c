package experiment

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a lookup matches nothing.
var ErrNotFound = errors.New("experiment not found")

// ErrParticipantNotAllowed is returned when an experiment restricts
// participation to an allowlist and the identifier is not on it.
var ErrParticipantNotAllowed = errors.New("participant not allowed on this experiment")

// Repository provides read access to experiment configuration.
type Repository interface {
	// GetByID loads an experiment by internal id.
	GetByID(ctx context.Context, id uint) (*Experiment, error)

	// GetByPublicID loads an experiment by its public id.
	GetByPublicID(ctx context.Context, publicID string) (*Experiment, error)

	// GetChannel loads an experiment channel by internal id.
	GetChannel(ctx context.Context, id uint) (*Channel, error)

	// FindChannelByExtra locates a channel by platform and one ExtraData
	// key (e.g. the Twilio number or Facebook page id a webhook names).
	FindChannelByExtra(ctx context.Context, platform Platform, key, value string) (*Channel, error)

	// FindParticipant looks up a participant by team and identifier.
	FindParticipant(ctx context.Context, teamID uint, identifier string) (*Participant, error)

	// GetParticipant loads a participant by internal id.
	GetParticipant(ctx context.Context, id uint) (*Participant, error)

	// SaveParticipantMemory merges key-value data into the participant's
	// memory.
	SaveParticipantMemory(ctx context.Context, participantID uint, memory map[string]string) error
}
