package orchestrator_test

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"chorus-server/experiment-api/internal/domain/channel"
	"chorus-server/experiment-api/internal/domain/chat"
	"chorus-server/experiment-api/internal/domain/experiment"
	"chorus-server/experiment-api/internal/domain/orchestrator"
	"chorus-server/experiment-api/internal/domain/runnable"
	"chorus-server/experiment-api/internal/domain/session"
	"chorus-server/experiment-api/internal/infrastructure/metrics"
)

func gatedExperiment() *experiment.Experiment {
	return &experiment.Experiment{
		ID:                    1,
		PublicID:              "exp_abc",
		TeamID:                7,
		PromptText:            "Be concise.",
		Model:                 "gpt-4o",
		ConversationalConsent: true,
		ConsentFormText:       "Please consent by replying 1.",
		ConsentConfirmation:   "Thanks for consenting!",
	}
}

func telegramChannel() *experiment.Channel {
	return &experiment.Channel{
		ID:           2,
		ExperimentID: 1,
		Platform:     experiment.PlatformTelegram,
		ExtraData:    map[string]string{"bot_token": "tok"},
	}
}

func textMessage(chatID, text string) channel.Message {
	return channel.Message{ChatID: chatID, Kind: channel.ContentText, RawKind: "text", Text: text}
}

func TestHandleInbound_FirstContactSendsConsentForm(t *testing.T) {
	exp := gatedExperiment()
	expCh := telegramChannel()
	h := newTestHarness(exp, expCh)
	ch := newFakeChannel(experiment.PlatformTelegram)

	reply, err := h.orch.HandleInbound(context.Background(), ch, exp, expCh, textMessage("42", "hello"))
	if err != nil {
		t.Fatalf("HandleInbound() error = %v", err)
	}
	if reply != "" {
		t.Errorf("reply = %q, want empty during gating", reply)
	}

	if len(ch.delivered) != 1 || ch.delivered[0] != exp.ConsentFormText {
		t.Errorf("delivered = %v, want the consent form", ch.delivered)
	}
	if h.events.joined != 1 {
		t.Errorf("ParticipantJoined fired %d times, want 1", h.events.joined)
	}
	if len(h.invocations) != 0 {
		t.Errorf("pipeline invoked during gating: %v", h.invocations)
	}

	sess, err := h.sessions.FindCurrent(context.Background(), exp.ID, "42")
	if err != nil {
		t.Fatal(err)
	}
	if sess.Status != session.StatusPending {
		t.Errorf("session status = %v, want pending", sess.Status)
	}
	if got, _ := h.chats.CountByType(context.Background(), sess.ChatID, chat.MessageTypeHuman); got != 1 {
		t.Errorf("human history entries = %d, want the gating turn recorded", got)
	}
	if got, _ := h.chats.CountByType(context.Background(), sess.ChatID, chat.MessageTypeAI); got != 1 {
		t.Errorf("ai history entries = %d, want the consent form recorded", got)
	}
	history := h.chats.messages[sess.ChatID]
	last := history[len(history)-1]
	if last.Type != chat.MessageTypeAI || last.Content != exp.ConsentFormText {
		t.Errorf("last history entry = %+v, want the delivered consent form", last)
	}
}

func TestHandleInbound_ConsentReplyActivatesAndSendsSeed(t *testing.T) {
	exp := gatedExperiment()
	exp.SeedMessage = "Greet the participant."
	expCh := telegramChannel()
	h := newTestHarness(exp, expCh)
	h.replyWith = "Welcome aboard!"
	ch := newFakeChannel(experiment.PlatformTelegram)

	ctx := context.Background()
	if _, err := h.orch.HandleInbound(ctx, ch, exp, expCh, textMessage("42", "hello")); err != nil {
		t.Fatal(err)
	}
	if _, err := h.orch.HandleInbound(ctx, ch, exp, expCh, textMessage("42", "1")); err != nil {
		t.Fatal(err)
	}

	sess, err := h.sessions.FindCurrent(ctx, exp.ID, "42")
	if err != nil {
		t.Fatal(err)
	}
	if sess.Status != session.StatusActive {
		t.Errorf("session status = %v, want active", sess.Status)
	}
	if h.events.started != 1 {
		t.Errorf("ConversationStarted fired %d times, want 1", h.events.started)
	}

	// consent form, confirmation, then the generated seed
	if len(ch.delivered) != 3 {
		t.Fatalf("delivered = %v, want 3 messages", ch.delivered)
	}
	if ch.delivered[1] != exp.ConsentConfirmation {
		t.Errorf("second delivery = %q, want the confirmation", ch.delivered[1])
	}
	if ch.delivered[2] != "Welcome aboard!" {
		t.Errorf("third delivery = %q, want the seed output", ch.delivered[2])
	}

	if len(h.invocations) != 1 || h.invocations[0] != exp.SeedMessage {
		t.Errorf("invocations = %v, want only the seed prompt", h.invocations)
	}
	// The seed prompt must not be stored as a human turn.
	if got, _ := h.chats.CountByType(ctx, sess.ChatID, chat.MessageTypeHuman); got != 2 {
		t.Errorf("human history entries = %d, want only the two gating replies", got)
	}
}

func TestHandleInbound_PreSurveyGatesBeforeActivation(t *testing.T) {
	exp := gatedExperiment()
	exp.PreSurveyLink = "https://survey.example/1"
	exp.PreSurveyConfirmation = "Please complete the survey:"
	expCh := telegramChannel()
	h := newTestHarness(exp, expCh)
	ch := newFakeChannel(experiment.PlatformTelegram)

	ctx := context.Background()
	h.mustHandle(t, ctx, ch, exp, expCh, textMessage("42", "hello"))
	h.mustHandle(t, ctx, ch, exp, expCh, textMessage("42", "1"))

	sess, _ := h.sessions.FindCurrent(ctx, exp.ID, "42")
	if sess.Status != session.StatusPendingPreSurvey {
		t.Fatalf("status = %v, want pending-pre-survey", sess.Status)
	}
	want := exp.PreSurveyConfirmation + "\n" + exp.PreSurveyLink
	if ch.delivered[len(ch.delivered)-1] != want {
		t.Errorf("last delivery = %q, want the survey link", ch.delivered[len(ch.delivered)-1])
	}
	history := h.chats.messages[sess.ChatID]
	if last := history[len(history)-1]; last.Type != chat.MessageTypeAI || last.Content != want {
		t.Errorf("last history entry = %+v, want the survey prompt recorded", last)
	}

	h.mustHandle(t, ctx, ch, exp, expCh, textMessage("42", "1"))
	sess, _ = h.sessions.FindCurrent(ctx, exp.ID, "42")
	if sess.Status != session.StatusActive {
		t.Errorf("status = %v, want active after survey confirmation", sess.Status)
	}
}

func TestHandleInbound_ActiveSessionRunsPipeline(t *testing.T) {
	exp := gatedExperiment()
	exp.ConversationalConsent = false
	expCh := telegramChannel()
	h := newTestHarness(exp, expCh)
	h.replyWith = "the answer"
	ch := newFakeChannel(experiment.PlatformTelegram)

	reply, err := h.orch.HandleInbound(context.Background(), ch, exp, expCh, textMessage("42", "what is up?"))
	if err != nil {
		t.Fatalf("HandleInbound() error = %v", err)
	}
	if reply != "the answer" {
		t.Errorf("reply = %q", reply)
	}
	if len(ch.delivered) != 1 || ch.delivered[0] != "the answer" {
		t.Errorf("delivered = %v", ch.delivered)
	}
	if len(h.events.messages) != 1 || h.events.messages[0] != "what is up?" {
		t.Errorf("NewHumanMessage events = %v", h.events.messages)
	}

	sess, _ := h.sessions.FindCurrent(context.Background(), exp.ID, "42")
	if sess.Status != session.StatusActive {
		t.Errorf("ungated session status = %v, want forced active", sess.Status)
	}
}

func TestHandleInbound_ResetRecyclesEngagedSession(t *testing.T) {
	exp := gatedExperiment()
	exp.ConversationalConsent = false
	expCh := telegramChannel()
	h := newTestHarness(exp, expCh)
	ch := newFakeChannel(experiment.PlatformTelegram)

	ctx := context.Background()
	h.mustHandle(t, ctx, ch, exp, expCh, textMessage("42", "first message"))
	first, _ := h.sessions.FindCurrent(ctx, exp.ID, "42")

	reply, err := h.orch.HandleInbound(ctx, ch, exp, expCh, textMessage("42", channel.ResetCommand))
	if err != nil {
		t.Fatalf("HandleInbound(reset) error = %v", err)
	}
	if reply != "" {
		t.Errorf("reset reply = %q, want empty", reply)
	}

	second, _ := h.sessions.FindCurrent(ctx, exp.ID, "42")
	if second.ID == first.ID {
		t.Error("reset should have recycled the session")
	}
	if !h.sessions.sessions[first.ID].Ended() {
		t.Error("old session should be ended")
	}
	if second.ChatID == first.ChatID {
		t.Error("recycled session should start a fresh chat")
	}
	// The reset command itself is never forwarded to the pipeline.
	for _, input := range h.invocations {
		if input == channel.ResetCommand {
			t.Error("reset command leaked into the pipeline")
		}
	}
}

func TestHandleInbound_ResetWithoutEngagementIsNoop(t *testing.T) {
	exp := gatedExperiment()
	expCh := telegramChannel()
	h := newTestHarness(exp, expCh)
	ch := newFakeChannel(experiment.PlatformTelegram)

	ctx := context.Background()
	// First contact: consent form only, but the gating turn counts as
	// engagement. Use a fresh identity that never wrote anything instead.
	sess, err := h.sessions.Start(ctx, session.StartParams{
		TeamID:                exp.TeamID,
		ExperimentID:          exp.ID,
		ChannelID:             expCh.ID,
		ParticipantIdentifier: "99",
		ExternalChatID:        "99",
		Status:                session.StatusSetup,
	})
	if err != nil {
		t.Fatal(err)
	}

	h.mustHandle(t, ctx, ch, exp, expCh, textMessage("99", channel.ResetCommand))

	current, _ := h.sessions.FindCurrent(ctx, exp.ID, "99")
	if current.ID != sess.ID {
		t.Error("reset without prior engagement must keep the session")
	}
}

func TestHandleInbound_DistinctIdentitiesGetDistinctSessions(t *testing.T) {
	exp := gatedExperiment()
	exp.ConversationalConsent = false
	expCh := telegramChannel()
	h := newTestHarness(exp, expCh)
	ch := newFakeChannel(experiment.PlatformTelegram)

	ctx := context.Background()
	h.mustHandle(t, ctx, ch, exp, expCh, textMessage("42", "hi"))
	h.mustHandle(t, ctx, ch, exp, expCh, textMessage("43", "hi"))

	a, _ := h.sessions.FindCurrent(ctx, exp.ID, "42")
	b, _ := h.sessions.FindCurrent(ctx, exp.ID, "43")
	if a == nil || b == nil || a.ID == b.ID {
		t.Errorf("sessions not isolated per identity: %v vs %v", a, b)
	}
}

func TestHandleInbound_UnsupportedContentGetsExplanation(t *testing.T) {
	exp := gatedExperiment()
	exp.ConversationalConsent = false
	expCh := telegramChannel()
	h := newTestHarness(exp, expCh)
	h.replyWith = "Sorry, I can only handle text and voice."
	ch := newFakeChannel(experiment.PlatformTelegram)

	msg := channel.Message{ChatID: "42", Kind: channel.ContentUnsupported, RawKind: "sticker"}
	reply, err := h.orch.HandleInbound(context.Background(), ch, exp, expCh, msg)
	if err != nil {
		t.Fatalf("HandleInbound() error = %v", err)
	}
	if reply != "" {
		t.Errorf("reply = %q, want empty", reply)
	}
	if len(ch.delivered) != 1 {
		t.Fatalf("delivered = %v, want the explanation", ch.delivered)
	}

	sess, _ := h.sessions.FindCurrent(context.Background(), exp.ID, "42")
	if got, _ := h.chats.CountByType(context.Background(), sess.ChatID, chat.MessageTypeSystem); got != 1 {
		t.Errorf("system history entries = %d, want 1", got)
	}
	if got, _ := h.chats.CountByType(context.Background(), sess.ChatID, chat.MessageTypeHuman); got != 0 {
		t.Errorf("human history entries = %d, want the exchange kept out of conversation", got)
	}
}

func TestHandleInbound_VoiceMessageIsTranscribed(t *testing.T) {
	exp := gatedExperiment()
	exp.ConversationalConsent = false
	expCh := telegramChannel()
	h := newTestHarness(exp, expCh)
	h.speech.transcript = "remind me tomorrow"
	ch := newFakeChannel(experiment.PlatformTelegram)

	msg := channel.Message{ChatID: "42", Kind: channel.ContentVoice, RawKind: "voice", MediaID: "file_1"}
	if _, err := h.orch.HandleInbound(context.Background(), ch, exp, expCh, msg); err != nil {
		t.Fatalf("HandleInbound() error = %v", err)
	}
	if len(h.invocations) != 1 || h.invocations[0] != "remind me tomorrow" {
		t.Errorf("invocations = %v, want the transcript", h.invocations)
	}
}

func TestHandleInbound_TranscriptionFailureNotifiesAndFails(t *testing.T) {
	exp := gatedExperiment()
	exp.ConversationalConsent = false
	expCh := telegramChannel()
	h := newTestHarness(exp, expCh)
	h.speech.transcribeErr = errors.New("speech api down")
	h.replyWith = "I could not process your voice message."
	ch := newFakeChannel(experiment.PlatformTelegram)

	msg := channel.Message{ChatID: "42", Kind: channel.ContentVoice, RawKind: "voice", MediaID: "file_1"}
	_, err := h.orch.HandleInbound(context.Background(), ch, exp, expCh, msg)
	if err == nil {
		t.Fatal("HandleInbound() should surface the transcription failure")
	}
	if len(ch.delivered) != 1 {
		t.Errorf("delivered = %v, want the failure notice", ch.delivered)
	}
}

func TestHandleInbound_VoiceReplyPolicy(t *testing.T) {
	tests := []struct {
		name      string
		behavior  experiment.VoiceResponseBehavior
		supported bool
		inbound   channel.ContentKind
		wantVoice bool
	}{
		{"always with support", experiment.VoiceAlways, true, channel.ContentText, true},
		{"always without support", experiment.VoiceAlways, false, channel.ContentText, false},
		{"reciprocal after voice", experiment.VoiceReciprocal, true, channel.ContentVoice, true},
		{"reciprocal after text", experiment.VoiceReciprocal, true, channel.ContentText, false},
		{"never", experiment.VoiceNever, true, channel.ContentVoice, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exp := gatedExperiment()
			exp.ConversationalConsent = false
			exp.VoiceProvider = "openai"
			exp.SyntheticVoice = "alloy"
			exp.VoiceResponseBehavior = tt.behavior
			expCh := telegramChannel()
			h := newTestHarness(exp, expCh)
			ch := newFakeChannel(experiment.PlatformTelegram)
			ch.voiceReplies = tt.supported

			msg := channel.Message{ChatID: "42", Kind: tt.inbound, RawKind: string(tt.inbound), Text: "hi", MediaID: "f"}
			if _, err := h.orch.HandleInbound(context.Background(), ch, exp, expCh, msg); err != nil {
				t.Fatalf("HandleInbound() error = %v", err)
			}

			gotVoice := ch.voiceDelivered > 0
			if gotVoice != tt.wantVoice {
				t.Errorf("voice reply = %v, want %v", gotVoice, tt.wantVoice)
			}
		})
	}
}

func TestHandleInbound_SynthesisFailureFallsBackToText(t *testing.T) {
	exp := gatedExperiment()
	exp.ConversationalConsent = false
	exp.VoiceProvider = "openai"
	exp.SyntheticVoice = "alloy"
	exp.VoiceResponseBehavior = experiment.VoiceAlways
	expCh := telegramChannel()
	h := newTestHarness(exp, expCh)
	h.speech.synthesizeErr = errors.New("tts down")
	h.replyWith = "spoken reply"
	ch := newFakeChannel(experiment.PlatformTelegram)
	ch.voiceReplies = true

	if _, err := h.orch.HandleInbound(context.Background(), ch, exp, expCh, textMessage("42", "hi")); err != nil {
		t.Fatalf("HandleInbound() error = %v", err)
	}
	if ch.voiceDelivered != 0 {
		t.Error("voice should not have been delivered")
	}
	if len(ch.delivered) != 1 || ch.delivered[0] != "spoken reply" {
		t.Errorf("delivered = %v, want the text fallback", ch.delivered)
	}
}

func TestHandleInbound_CancelledGenerationReturnsEmptyReply(t *testing.T) {
	exp := gatedExperiment()
	exp.ConversationalConsent = false
	expCh := telegramChannel()
	h := newTestHarness(exp, expCh)
	h.replyErr = &runnable.CancelledError{}
	ch := newFakeChannel(experiment.PlatformTelegram)

	reply, err := h.orch.HandleInbound(context.Background(), ch, exp, expCh, textMessage("42", "hi"))
	if err != nil {
		t.Fatalf("HandleInbound() error = %v, cancellation is not a failure", err)
	}
	if reply != "" {
		t.Errorf("reply = %q, want empty", reply)
	}
	if len(ch.delivered) != 0 {
		t.Errorf("delivered = %v, want nothing", ch.delivered)
	}
}

func TestHandleInbound_SlackThreadAddressing(t *testing.T) {
	exp := gatedExperiment()
	exp.ConversationalConsent = false
	expCh := telegramChannel()
	expCh.Platform = experiment.PlatformSlack
	h := newTestHarness(exp, expCh)
	ch := newFakeChannel(experiment.PlatformSlack)

	msg := channel.Message{
		ChatID:    "U1",
		Kind:      channel.ContentText,
		RawKind:   "text",
		Text:      "hi",
		ChannelID: "C1",
		ThreadTS:  "11.0",
	}
	if _, err := h.orch.HandleInbound(context.Background(), ch, exp, expCh, msg); err != nil {
		t.Fatalf("HandleInbound() error = %v", err)
	}

	sess, _ := h.sessions.FindCurrent(context.Background(), exp.ID, "U1")
	if sess.ExternalChatID != "C1:11.0" {
		t.Errorf("ExternalChatID = %q, want the thread key", sess.ExternalChatID)
	}
	if ch.sessionThread != "C1:11.0" {
		t.Errorf("session thread = %q, want propagated to the adapter", ch.sessionThread)
	}
}

func TestHandleInbound_NewSlackThreadRebindsSession(t *testing.T) {
	exp := gatedExperiment()
	exp.ConversationalConsent = false
	expCh := telegramChannel()
	expCh.Platform = experiment.PlatformSlack
	h := newTestHarness(exp, expCh)
	ch := newFakeChannel(experiment.PlatformSlack)

	ctx := context.Background()
	first := channel.Message{
		ChatID: "U1", Kind: channel.ContentText, RawKind: "text", Text: "hi",
		ChannelID: "C1", ThreadTS: "11.0",
	}
	h.mustHandle(t, ctx, ch, exp, expCh, first)

	// The same user posts a new top-level message; replies must follow
	// them into the new thread.
	second := first
	second.Text = "over here now"
	second.ThreadTS = "22.0"
	h.mustHandle(t, ctx, ch, exp, expCh, second)

	sess, _ := h.sessions.FindCurrent(ctx, exp.ID, "U1")
	if sess.ExternalChatID != "C1:22.0" {
		t.Errorf("ExternalChatID = %q, want rebound to the new thread", sess.ExternalChatID)
	}
	if ch.sessionThread != "C1:22.0" {
		t.Errorf("session thread = %q, want the new thread propagated", ch.sessionThread)
	}
}

func TestHandleInbound_AllowlistBlocksUnknownParticipant(t *testing.T) {
	exp := gatedExperiment()
	exp.ConversationalConsent = false
	exp.ParticipantAllowlist = []string{"42"}
	expCh := telegramChannel()
	h := newTestHarness(exp, expCh)
	ch := newFakeChannel(experiment.PlatformTelegram)

	ctx := context.Background()
	_, err := h.orch.HandleInbound(ctx, ch, exp, expCh, textMessage("43", "hi"))
	if !errors.Is(err, experiment.ErrParticipantNotAllowed) {
		t.Fatalf("HandleInbound() error = %v, want ErrParticipantNotAllowed", err)
	}
	if len(ch.delivered) != 0 {
		t.Errorf("delivered = %v, want nothing for a blocked identity", ch.delivered)
	}
	if h.events.joined != 0 {
		t.Error("ParticipantJoined must not fire for a blocked identity")
	}

	h.mustHandle(t, ctx, ch, exp, expCh, textMessage("42", "hi"))
	if len(ch.delivered) != 1 {
		t.Errorf("delivered = %v, want the listed identity served", ch.delivered)
	}
}

func TestStartWebSession_AllowlistBlocksUnknownParticipant(t *testing.T) {
	exp := gatedExperiment()
	exp.ParticipantAllowlist = []string{"ok@example.com"}
	webCh := &experiment.Channel{
		ID:           3,
		ExperimentID: exp.ID,
		Platform:     experiment.PlatformWeb,
		ExtraData:    map[string]string{"experiment": exp.PublicID},
	}
	h := newTestHarness(exp, webCh)

	ctx := context.Background()
	_, err := h.orch.StartWebSession(ctx, orchestrator.StartWebSessionParams{
		ExperimentPublicID:    exp.PublicID,
		ParticipantIdentifier: "stranger@example.com",
	})
	if !errors.Is(err, experiment.ErrParticipantNotAllowed) {
		t.Fatalf("StartWebSession() error = %v, want ErrParticipantNotAllowed", err)
	}

	sess, err := h.orch.StartWebSession(ctx, orchestrator.StartWebSessionParams{
		ExperimentPublicID:    exp.PublicID,
		ParticipantIdentifier: "ok@example.com",
	})
	if err != nil {
		t.Fatalf("StartWebSession() error = %v for a listed identity", err)
	}
	if sess.Status != session.StatusActive {
		t.Errorf("session status = %v, want active", sess.Status)
	}
}

func TestHandleInbound_SignalsGenerationStartToChannel(t *testing.T) {
	exp := gatedExperiment()
	expCh := telegramChannel()
	h := newTestHarness(exp, expCh)
	ch := newFakeChannel(experiment.PlatformTelegram)

	ctx := context.Background()
	// Gating replies never reach the pipeline, so no indicator either.
	h.mustHandle(t, ctx, ch, exp, expCh, textMessage("42", "hello"))
	if ch.typingSignalled != 0 {
		t.Errorf("typing signalled %d times during gating, want 0", ch.typingSignalled)
	}

	h.mustHandle(t, ctx, ch, exp, expCh, textMessage("42", "1"))
	h.mustHandle(t, ctx, ch, exp, expCh, textMessage("42", "what now?"))
	if ch.typingSignalled != 1 {
		t.Errorf("typing signalled %d times, want once before the generation", ch.typingSignalled)
	}
}

func TestHandleInbound_RecordsGenerationMetrics(t *testing.T) {
	exp := gatedExperiment()
	exp.ConversationalConsent = false
	expCh := telegramChannel()
	h := newTestHarness(exp, expCh)
	ch := newFakeChannel(experiment.PlatformTelegram)

	before := testutil.ToFloat64(metrics.GenerationsTotal.WithLabelValues("simple", "ok"))
	h.mustHandle(t, context.Background(), ch, exp, expCh, textMessage("42", "hi"))
	after := testutil.ToFloat64(metrics.GenerationsTotal.WithLabelValues("simple", "ok"))

	if after != before+1 {
		t.Errorf("generations counter moved %v, want +1", after-before)
	}
}

// mustHandle runs HandleInbound and fails the test on error.
func (h *testHarness) mustHandle(
	t *testing.T,
	ctx context.Context,
	ch *fakeChannel,
	exp *experiment.Experiment,
	expCh *experiment.Channel,
	msg channel.Message,
) {
	t.Helper()
	if _, err := h.orch.HandleInbound(ctx, ch, exp, expCh, msg); err != nil {
		t.Fatalf("HandleInbound() error = %v", err)
	}
}
