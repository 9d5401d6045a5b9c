package session

import "context"

// StartParams carries everything needed to open a new session. The store
// finds or creates the participant and creates the session in one
// transaction so concurrent first-contact messages from the same
// identifier cannot create duplicate participants.
type StartParams struct {
	TeamID                uint
	ExperimentID          uint
	ChannelID             uint
	ParticipantIdentifier string
	ParticipantUserID     string
	ExternalChatID        string
	Status                Status
}

// Store persists sessions and participants.
type Store interface {
	// Start creates a session (and its chat), finding or creating the
	// participant transactionally.
	Start(ctx context.Context, params StartParams) (*Session, error)

	// FindCurrent returns the latest non-ended session for the
	// (experiment, participant identifier) pair, or ErrNotFound.
	FindCurrent(ctx context.Context, experimentID uint, identifier string) (*Session, error)

	// GetByID loads a session by internal id.
	GetByID(ctx context.Context, sessionID uint) (*Session, error)

	// GetByPublicID loads a session by its public id.
	GetByPublicID(ctx context.Context, publicID string) (*Session, error)

	// UpdateStatus sets the session status.
	UpdateStatus(ctx context.Context, sessionID uint, status Status) error

	// End marks the session terminated now.
	End(ctx context.Context, sessionID uint) error

	// UpdateExternalChatID records the transport conversation id.
	UpdateExternalChatID(ctx context.Context, sessionID uint, externalChatID string) error

	// ResetPingCount clears the no-activity ping counter after a
	// successful exchange.
	ResetPingCount(ctx context.Context, sessionID uint) error
}
