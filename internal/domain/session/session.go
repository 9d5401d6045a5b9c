package session

import (
	"errors"
	"time"
)

// ErrNotFound is returned when no session matches a lookup.
var ErrNotFound = errors.New("session not found")

// Status is the lifecycle state of an experiment session.
type Status string

const (
	// StatusSetup is the initial state before any inbound message.
	StatusSetup Status = "setup"
	// StatusPending means the consent request was sent and not yet accepted.
	StatusPending Status = "pending"
	// StatusPendingPreSurvey means consent was given and the pre-survey
	// link was sent but not yet confirmed.
	StatusPendingPreSurvey Status = "pending-pre-survey"
	// StatusActive is the normal conversational state.
	StatusActive Status = "active"
	// StatusPendingReview marks a finished conversation awaiting review.
	StatusPendingReview Status = "pending-review"
	// StatusComplete is terminal.
	StatusComplete Status = "complete"
)

// Session is one continuous conversation between a participant and an
// experiment on a given channel.
type Session struct {
	ID              uint
	PublicID        string
	TeamID          uint
	ExperimentID    uint
	ParticipantID   uint
	ChannelID       uint
	ChatID          uint
	Status          Status
	ExternalChatID  string
	NoActivityPings int
	EndedAt         *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Ended reports whether the session has been terminated.
func (s *Session) Ended() bool {
	return s.EndedAt != nil
}
