package session

import "strings"

// ConsentToken is the only affirmative reply recognized during gating.
// Surrounding whitespace is tolerated; anything else re-prompts.
const ConsentToken = "1"

// ConsentAction tells the orchestrator what to send after a gating step.
type ConsentAction string

const (
	// ActionSendConsent (re-)sends the consent request.
	ActionSendConsent ConsentAction = "send-consent"
	// ActionSendSurvey (re-)sends the pre-survey link.
	ActionSendSurvey ConsentAction = "send-survey"
	// ActionActivate unlocks normal conversation (seed message, if any).
	ActionActivate ConsentAction = "activate"
	// ActionNone means gating does not apply in the current state.
	ActionNone ConsentAction = "none"
)

type consentKey struct {
	status    Status
	consented bool
	hasSurvey bool
}

// The gating state machine, keyed on (status, reply == ConsentToken,
// survey configured). Missing keys mean gating has already completed.
var consentTransitions = map[consentKey]struct {
	next   Status
	action ConsentAction
}{
	{StatusSetup, false, false}: {StatusPending, ActionSendConsent},
	{StatusSetup, false, true}:  {StatusPending, ActionSendConsent},
	{StatusSetup, true, false}:  {StatusPending, ActionSendConsent},
	{StatusSetup, true, true}:   {StatusPending, ActionSendConsent},

	{StatusPending, false, false}: {StatusPending, ActionSendConsent},
	{StatusPending, false, true}:  {StatusPending, ActionSendConsent},
	{StatusPending, true, false}:  {StatusActive, ActionActivate},
	{StatusPending, true, true}:   {StatusPendingPreSurvey, ActionSendSurvey},

	{StatusPendingPreSurvey, false, false}: {StatusPendingPreSurvey, ActionSendSurvey},
	{StatusPendingPreSurvey, false, true}:  {StatusPendingPreSurvey, ActionSendSurvey},
	{StatusPendingPreSurvey, true, false}:  {StatusActive, ActionActivate},
	{StatusPendingPreSurvey, true, true}:   {StatusActive, ActionActivate},
}

// NextConsentState resolves one step of the consent gating state machine.
// replyText is the raw inbound message text, trimmed before comparison;
// hasSurvey reports whether the experiment configures a pre-survey.
func NextConsentState(current Status, replyText string, hasSurvey bool) (Status, ConsentAction) {
	transition, ok := consentTransitions[consentKey{
		status:    current,
		consented: strings.TrimSpace(replyText) == ConsentToken,
		hasSurvey: hasSurvey,
	}]
	if !ok {
		return current, ActionNone
	}
	return transition.next, transition.action
}
