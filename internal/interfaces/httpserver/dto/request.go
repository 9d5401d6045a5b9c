package dto

// StartSessionRequest opens a web or API session for an experiment.
type StartSessionRequest struct {
	ParticipantIdentifier string `json:"participant_identifier" binding:"required"`
	ParticipantUserID     string `json:"participant_user_id"`
	Timezone              string `json:"timezone"`
}

// SendMessageRequest carries one participant message for a session.
type SendMessageRequest struct {
	Text string `json:"text" binding:"required"`
}
