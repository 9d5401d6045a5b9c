package session_test

import (
	"testing"

	"chorus-server/experiment-api/internal/domain/session"
)

func TestNextConsentState(t *testing.T) {
	tests := []struct {
		name       string
		current    session.Status
		reply      string
		hasSurvey  bool
		wantStatus session.Status
		wantAction session.ConsentAction
	}{
		{
			name:       "setup sends consent form regardless of reply",
			current:    session.StatusSetup,
			reply:      "hello there",
			hasSurvey:  false,
			wantStatus: session.StatusPending,
			wantAction: session.ActionSendConsent,
		},
		{
			name:       "setup with survey still sends consent first",
			current:    session.StatusSetup,
			reply:      "1",
			hasSurvey:  true,
			wantStatus: session.StatusPending,
			wantAction: session.ActionSendConsent,
		},
		{
			name:       "pending non-consent reply resends consent form",
			current:    session.StatusPending,
			reply:      "what is this?",
			hasSurvey:  false,
			wantStatus: session.StatusPending,
			wantAction: session.ActionSendConsent,
		},
		{
			name:       "pending consent without survey activates",
			current:    session.StatusPending,
			reply:      session.ConsentToken,
			hasSurvey:  false,
			wantStatus: session.StatusActive,
			wantAction: session.ActionActivate,
		},
		{
			name:       "pending consent with survey moves to pre-survey",
			current:    session.StatusPending,
			reply:      session.ConsentToken,
			hasSurvey:  true,
			wantStatus: session.StatusPendingPreSurvey,
			wantAction: session.ActionSendSurvey,
		},
		{
			name:       "pre-survey non-confirmation resends survey link",
			current:    session.StatusPendingPreSurvey,
			reply:      "done i think",
			hasSurvey:  true,
			wantStatus: session.StatusPendingPreSurvey,
			wantAction: session.ActionSendSurvey,
		},
		{
			name:       "pre-survey confirmation activates",
			current:    session.StatusPendingPreSurvey,
			reply:      session.ConsentToken,
			hasSurvey:  true,
			wantStatus: session.StatusActive,
			wantAction: session.ActionActivate,
		},
		{
			name:       "active session is untouched",
			current:    session.StatusActive,
			reply:      "1",
			hasSurvey:  false,
			wantStatus: session.StatusActive,
			wantAction: session.ActionNone,
		},
		{
			name:       "complete session is untouched",
			current:    session.StatusComplete,
			reply:      "1",
			hasSurvey:  true,
			wantStatus: session.StatusComplete,
			wantAction: session.ActionNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotStatus, gotAction := session.NextConsentState(tt.current, tt.reply, tt.hasSurvey)
			if gotStatus != tt.wantStatus {
				t.Errorf("NextConsentState() status = %v, want %v", gotStatus, tt.wantStatus)
			}
			if gotAction != tt.wantAction {
				t.Errorf("NextConsentState() action = %v, want %v", gotAction, tt.wantAction)
			}
		})
	}
}

func TestNextConsentState_TokenMatching(t *testing.T) {
	// Surrounding whitespace is forgiven; everything else re-prompts.
	for _, reply := range []string{"1 ", " 1", " 1 ", "\n1\n"} {
		gotStatus, gotAction := session.NextConsentState(session.StatusPending, reply, false)
		if gotStatus != session.StatusActive || gotAction != session.ActionActivate {
			t.Errorf("reply %q: got (%v, %v), want activation", reply, gotStatus, gotAction)
		}
	}
	for _, reply := range []string{"yes", "01", "11", "1!", ""} {
		gotStatus, gotAction := session.NextConsentState(session.StatusPending, reply, false)
		if gotStatus != session.StatusPending || gotAction != session.ActionSendConsent {
			t.Errorf("reply %q: got (%v, %v), want consent form resent", reply, gotStatus, gotAction)
		}
	}
}
