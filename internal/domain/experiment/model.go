package experiment

import "time"

// VoiceResponseBehavior controls when the bot replies with synthesized voice.
type VoiceResponseBehavior string

const (
	// VoiceAlways replies with voice whenever the platform supports it.
	VoiceAlways VoiceResponseBehavior = "always"
	// VoiceReciprocal replies with voice only when the user sent voice.
	VoiceReciprocal VoiceResponseBehavior = "reciprocal"
	// VoiceNever always replies with text.
	VoiceNever VoiceResponseBehavior = "never"
)

// Platform identifies the messaging transport of an experiment channel.
type Platform string

const (
	PlatformWeb      Platform = "web"
	PlatformAPI      Platform = "api"
	PlatformTelegram Platform = "telegram"
	PlatformWhatsApp Platform = "whatsapp"
	PlatformFacebook Platform = "facebook"
	PlatformSlack    Platform = "slack"
)

// Experiment is the read-only configuration bundle for one chatbot.
// The core never mutates experiments; they are owned by external admin
// tooling.
type Experiment struct {
	ID       uint
	PublicID string
	TeamID   uint
	Name     string

	PromptText     string
	Provider       string
	Model          string
	Temperature    float64
	MaxTokenLimit  int
	InputFormatter string
	SourceMaterial string

	ToolsEnabled bool
	Tools        []string
	AssistantID  string

	ConsentFormText       string
	ConsentConfirmation   string
	PreSurveyLink         string
	PreSurveyConfirmation string
	ConversationalConsent bool
	SeedMessage           string
	ParticipantAllowlist  []string
	VoiceProvider         string
	SyntheticVoice        string
	VoiceResponseBehavior VoiceResponseBehavior
	EchoTranscribedText   bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// VoiceEnabled reports whether the experiment can synthesize voice replies.
func (e *Experiment) VoiceEnabled() bool {
	return e.VoiceProvider != "" && e.SyntheticVoice != ""
}

// HasPreSurvey reports whether a pre-conversation survey is configured.
func (e *Experiment) HasPreSurvey() bool {
	return e.PreSurveyLink != ""
}

// AllowsParticipant reports whether the identifier may start sessions on
// this experiment. An empty allowlist admits everyone.
func (e *Experiment) AllowsParticipant(identifier string) bool {
	if len(e.ParticipantAllowlist) == 0 {
		return true
	}
	for _, allowed := range e.ParticipantAllowlist {
		if allowed == identifier {
			return true
		}
	}
	return false
}

// Channel binds an experiment to one messaging transport. ExtraData holds
// platform credentials and routing keys (bot_token, number, page_id, ...).
type Channel struct {
	ID           uint
	ExperimentID uint
	Name         string
	Platform     Platform
	ExtraData    map[string]string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Participant is an identity external to a team: phone number, chat id,
// email. Memory is arbitrary key-value data (e.g. timezone).
type Participant struct {
	ID         uint
	TeamID     uint
	Identifier string
	UserID     string
	Memory     map[string]string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Timezone returns the participant's remembered timezone name, if any.
func (p *Participant) Timezone() string {
	if p == nil || p.Memory == nil {
		return ""
	}
	return p.Memory["timezone"]
}

// Authorized reports whether participant data may be interpolated into
// prompts. Only web sessions without a linked platform user are
// unauthorized; every other transport identifies the user itself.
func (p *Participant) Authorized(platform Platform) bool {
	if platform != PlatformWeb {
		return true
	}
	return p != nil && p.UserID != ""
}
