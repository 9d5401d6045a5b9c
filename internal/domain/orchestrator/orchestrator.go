package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"chorus-server/experiment-api/internal/domain/channel"
	"chorus-server/experiment-api/internal/domain/chat"
	"chorus-server/experiment-api/internal/domain/experiment"
	"chorus-server/experiment-api/internal/domain/llm"
	"chorus-server/experiment-api/internal/domain/runnable"
	"chorus-server/experiment-api/internal/domain/session"
	"chorus-server/experiment-api/internal/infrastructure/metrics"
	"chorus-server/experiment-api/internal/infrastructure/observability"
)

// unsupportedMessagePrompt asks the model to tell the user, in the
// language being spoken, that their message type is not understood.
const unsupportedMessagePrompt = "The user sent a message of type '%s' which is not supported. " +
	"Tell the user, in the language of the conversation so far, that you cannot process that " +
	"kind of message and ask them to send text instead. Keep it to one or two sentences."

// transcriptionFailedPrompt produces the generic notice sent when audio
// fetch or transcription fails.
const transcriptionFailedPrompt = "Something went wrong while processing the user's voice message. " +
	"Apologize briefly, in the language of the conversation so far, and ask them to try again."

// Notifier reports conversation lifecycle events to external
// collaborators. Delivery is best effort; implementations log failures.
type Notifier interface {
	ParticipantJoined(ctx context.Context, teamID uint, experimentPublicID, identifier string)
	ConversationStarted(ctx context.Context, sessionPublicID string)
	NewHumanMessage(ctx context.Context, sessionPublicID, content string)
}

// SeedDispatcher enqueues asynchronous seed-message generation for
// freshly started web sessions.
type SeedDispatcher interface {
	EnqueueSeedMessage(ctx context.Context, sessionID uint) error
}

// RunnableFactory builds the generation strategy for one invocation.
type RunnableFactory func(
	exp *experiment.Experiment,
	sess *session.Session,
	participant *experiment.Participant,
	platform experiment.Platform,
) runnable.Runnable

// Orchestrator drives the shared conversation state machine: session
// resolution, consent gating, transcription, pipeline dispatch and reply
// delivery.
type Orchestrator struct {
	sessions    session.Store
	chats       chat.Store
	experiments experiment.Repository
	speech      llm.SpeechProvider
	newRunnable RunnableFactory
	events      Notifier
	seeds       SeedDispatcher
	log         zerolog.Logger
}

// New wires the orchestrator.
func New(
	sessions session.Store,
	chats chat.Store,
	experiments experiment.Repository,
	speech llm.SpeechProvider,
	newRunnable RunnableFactory,
	events Notifier,
	seeds SeedDispatcher,
	log zerolog.Logger,
) *Orchestrator {
	return &Orchestrator{
		sessions:    sessions,
		chats:       chats,
		experiments: experiments,
		speech:      speech,
		newRunnable: newRunnable,
		events:      events,
		seeds:       seeds,
		log:         log.With().Str("component", "orchestrator").Logger(),
	}
}

// HandleInbound processes one normalized inbound message end to end and
// returns the reply text (used directly by pull-style channels).
func (o *Orchestrator) HandleInbound(
	ctx context.Context,
	ch channel.Channel,
	exp *experiment.Experiment,
	expCh *experiment.Channel,
	msg channel.Message,
) (string, error) {
	ch.SetCurrent(msg)

	ctx, span := observability.StartInboundSpan(ctx, string(ch.Platform()), msg.ChatID)
	defer span.End()

	sess, created, err := o.resolveSession(ctx, exp, expCh, msg)
	if err != nil {
		observability.RecordError(span, err)
		return "", err
	}
	span.SetAttributes(observability.SessionAttributes(sess.PublicID, string(ch.Platform()), string(sess.Status))...)

	// Threaded platforms can move an ongoing conversation: a new Slack
	// top-level message carries a fresh thread key, and replies must
	// follow the participant there.
	if key := msg.ThreadKey(); key != "" && key != sess.ExternalChatID {
		if err := o.sessions.UpdateExternalChatID(ctx, sess.ID, key); err != nil {
			return "", fmt.Errorf("rebind session thread: %w", err)
		}
		sess.ExternalChatID = key
	}

	if slack, ok := ch.(interface{ SetSessionThread(string) }); ok {
		slack.SetSessionThread(sess.ExternalChatID)
	}

	participant, err := o.experiments.GetParticipant(ctx, sess.ParticipantID)
	if err != nil {
		return "", fmt.Errorf("load participant: %w", err)
	}

	if msg.Kind == channel.ContentUnsupported || !channel.Supports(ch, msg.Kind) {
		return "", o.handleUnsupported(ctx, ch, exp, sess, participant, msg)
	}

	// A reset that did not just recycle the session is a no-op on
	// non-web channels; the command itself is never forwarded.
	if msg.Kind == channel.ContentText && msg.Text == channel.ResetCommand &&
		ch.Platform() != experiment.PlatformWeb {
		return "", nil
	}

	gated := exp.ConversationalConsent && ch.Platform() != experiment.PlatformWeb
	if gated && sess.Status != session.StatusActive {
		return "", o.driveConsentGating(ctx, ch, exp, sess, participant, msg)
	}
	if !gated && sess.Status != session.StatusActive {
		if err := o.sessions.UpdateStatus(ctx, sess.ID, session.StatusActive); err != nil {
			return "", fmt.Errorf("activate session: %w", err)
		}
		sess.Status = session.StatusActive
		if created {
			o.events.ConversationStarted(ctx, sess.PublicID)
		}
	}

	o.events.NewHumanMessage(ctx, sess.PublicID, msg.Text)

	query, err := o.extractQuery(ctx, ch, exp, sess, participant, msg)
	if err != nil {
		return "", err
	}

	ch.SubmitInputToLLM(ctx, msg.ChatID)

	result, err := o.invokePipeline(ctx, ch.Platform(), exp, sess, participant, query, runnable.DefaultOptions())
	if err != nil {
		if runnable.IsCancelled(err) {
			// Partial output is discarded from the reply; side effects
			// already committed (persisted turns, thread ids) remain.
			o.log.Info().Uint("session_id", sess.ID).Msg("generation cancelled")
			return "", nil
		}
		return "", err
	}

	if err := o.dispatchReply(ctx, ch, exp, msg, result.Output); err != nil {
		return "", err
	}

	if err := o.sessions.ResetPingCount(ctx, sess.ID); err != nil {
		o.log.Warn().Err(err).Uint("session_id", sess.ID).Msg("reset ping count failed")
	}

	return result.Output, nil
}

// invokePipeline runs one generation with a span and metric accounting
// around it. Cancellation counts as its own outcome, not an error.
func (o *Orchestrator) invokePipeline(
	ctx context.Context,
	platform experiment.Platform,
	exp *experiment.Experiment,
	sess *session.Session,
	participant *experiment.Participant,
	input string,
	opts runnable.Options,
) (*runnable.GenerationResult, error) {
	strategy := runnable.StrategyName(exp)
	ctx, span := observability.StartGenerationSpan(ctx, strategy, exp.Model, sess.ChatID)
	defer span.End()

	started := time.Now()
	result, err := o.newRunnable(exp, sess, participant, platform).Invoke(ctx, input, opts)
	elapsed := time.Since(started).Seconds()

	switch {
	case err == nil:
		metrics.RecordGeneration(strategy, "ok", elapsed)
		metrics.RecordTokens(result.PromptTokens, result.CompletionTokens)
		observability.AddTokenUsage(span, result.PromptTokens, result.CompletionTokens)
	case runnable.IsCancelled(err):
		metrics.RecordGeneration(strategy, "cancelled", elapsed)
	default:
		metrics.RecordGeneration(strategy, "error", elapsed)
		observability.RecordError(span, err)
	}
	return result, err
}

// resolveSession finds the current session for the chat identity,
// recycling it on a reset command with prior engagement and creating a
// fresh one on first contact.
func (o *Orchestrator) resolveSession(
	ctx context.Context,
	exp *experiment.Experiment,
	expCh *experiment.Channel,
	msg channel.Message,
) (*session.Session, bool, error) {
	sess, err := o.sessions.FindCurrent(ctx, exp.ID, msg.ChatID)
	if err != nil && !errors.Is(err, session.ErrNotFound) {
		return nil, false, fmt.Errorf("find current session: %w", err)
	}

	if sess != nil {
		isReset := msg.Kind == channel.ContentText && msg.Text == channel.ResetCommand
		if !isReset {
			return sess, false, nil
		}

		engaged, err := o.userAlreadyEngaged(ctx, sess)
		if err != nil {
			return nil, false, err
		}
		if !engaged {
			return sess, false, nil
		}

		if err := o.sessions.End(ctx, sess.ID); err != nil {
			return nil, false, fmt.Errorf("end session on reset: %w", err)
		}
		fresh, err := o.startSession(ctx, exp, expCh, msg, session.StatusSetup)
		if err != nil {
			return nil, false, err
		}
		return fresh, true, nil
	}

	if !exp.AllowsParticipant(msg.ChatID) {
		return nil, false, experiment.ErrParticipantNotAllowed
	}

	fresh, err := o.startSession(ctx, exp, expCh, msg, session.StatusSetup)
	if err != nil {
		return nil, false, err
	}
	o.events.ParticipantJoined(ctx, exp.TeamID, exp.PublicID, msg.ChatID)
	return fresh, true, nil
}

func (o *Orchestrator) startSession(
	ctx context.Context,
	exp *experiment.Experiment,
	expCh *experiment.Channel,
	msg channel.Message,
	status session.Status,
) (*session.Session, error) {
	externalChatID := msg.ChatID
	if key := msg.ThreadKey(); key != "" {
		externalChatID = key
	}

	sess, err := o.sessions.Start(ctx, session.StartParams{
		TeamID:                exp.TeamID,
		ExperimentID:          exp.ID,
		ChannelID:             expCh.ID,
		ParticipantIdentifier: msg.ChatID,
		ExternalChatID:        externalChatID,
		Status:                status,
	})
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	return sess, nil
}

// userAlreadyEngaged reports whether the session saw at least one human
// history entry.
func (o *Orchestrator) userAlreadyEngaged(ctx context.Context, sess *session.Session) (bool, error) {
	count, err := o.chats.CountByType(ctx, sess.ChatID, chat.MessageTypeHuman)
	if err != nil {
		return false, fmt.Errorf("count human messages: %w", err)
	}
	return count > 0, nil
}

// driveConsentGating advances the gating state machine one step. The
// inbound message is appended to history as a human turn but is never
// forwarded to the pipeline while gating is incomplete.
func (o *Orchestrator) driveConsentGating(
	ctx context.Context,
	ch channel.Channel,
	exp *experiment.Experiment,
	sess *session.Session,
	participant *experiment.Participant,
	msg channel.Message,
) error {
	next, action := session.NextConsentState(sess.Status, msg.Text, exp.HasPreSurvey())
	if action == session.ActionNone {
		return nil
	}

	if err := o.chats.AppendMessage(ctx, &chat.Message{
		ChatID:  sess.ChatID,
		Type:    chat.MessageTypeHuman,
		Content: msg.Text,
	}); err != nil {
		return fmt.Errorf("persist gating turn: %w", err)
	}

	if next != sess.Status {
		if err := o.sessions.UpdateStatus(ctx, sess.ID, next); err != nil {
			return fmt.Errorf("advance consent state: %w", err)
		}
		observability.AddStatusTransition(trace.SpanFromContext(ctx), string(sess.Status), string(next))
		sess.Status = next
	}

	switch action {
	case session.ActionSendConsent:
		return o.deliverGatingPrompt(ctx, ch, sess, msg.ChatID, exp.ConsentFormText)
	case session.ActionSendSurvey:
		text := exp.PreSurveyLink
		if exp.PreSurveyConfirmation != "" {
			text = exp.PreSurveyConfirmation + "\n" + text
		}
		return o.deliverGatingPrompt(ctx, ch, sess, msg.ChatID, text)
	case session.ActionActivate:
		o.events.ConversationStarted(ctx, sess.PublicID)
		return o.sendActivationReply(ctx, ch, exp, sess, participant, msg)
	}
	return nil
}

// deliverGatingPrompt sends one gating prompt and records it as an ai
// turn, so the outbound half of the consent exchange is part of history.
func (o *Orchestrator) deliverGatingPrompt(
	ctx context.Context,
	ch channel.Channel,
	sess *session.Session,
	chatID, text string,
) error {
	if err := ch.DeliverText(ctx, chatID, text); err != nil {
		return err
	}
	if err := o.chats.AppendMessage(ctx, &chat.Message{
		ChatID:  sess.ChatID,
		Type:    chat.MessageTypeAI,
		Content: text,
	}); err != nil {
		return fmt.Errorf("persist gating prompt: %w", err)
	}
	return nil
}

// sendActivationReply delivers the consent confirmation and the seed
// message, if the experiment configures one.
func (o *Orchestrator) sendActivationReply(
	ctx context.Context,
	ch channel.Channel,
	exp *experiment.Experiment,
	sess *session.Session,
	participant *experiment.Participant,
	msg channel.Message,
) error {
	if exp.ConsentConfirmation != "" {
		if err := ch.DeliverText(ctx, msg.ChatID, exp.ConsentConfirmation); err != nil {
			return err
		}
	}
	if exp.SeedMessage == "" {
		return nil
	}

	result, err := o.invokePipeline(ctx, ch.Platform(), exp, sess, participant, exp.SeedMessage,
		runnable.Options{SaveInput: false, SaveOutput: true})
	if err != nil {
		if runnable.IsCancelled(err) {
			return nil
		}
		return fmt.Errorf("generate seed message: %w", err)
	}
	return ch.DeliverText(ctx, msg.ChatID, result.Output)
}

// handleUnsupported replies with a short LLM-authored explanation and
// records a system-type history entry. Neither side of the exchange is
// persisted as conversation.
func (o *Orchestrator) handleUnsupported(
	ctx context.Context,
	ch channel.Channel,
	exp *experiment.Experiment,
	sess *session.Session,
	participant *experiment.Participant,
	msg channel.Message,
) error {
	prompt := fmt.Sprintf(unsupportedMessagePrompt, msg.RawKind)
	result, err := o.invokePipeline(ctx, ch.Platform(), exp, sess, participant, prompt,
		runnable.Options{SaveInput: false, SaveOutput: false})
	if err != nil {
		if runnable.IsCancelled(err) {
			return nil
		}
		return fmt.Errorf("generate unsupported-message reply: %w", err)
	}

	if err := ch.DeliverText(ctx, msg.ChatID, result.Output); err != nil {
		return err
	}

	if err := o.chats.AppendMessage(ctx, &chat.Message{
		ChatID:  sess.ChatID,
		Type:    chat.MessageTypeSystem,
		Content: fmt.Sprintf("unsupported message type received: %s", msg.RawKind),
	}); err != nil {
		return fmt.Errorf("persist unsupported notice: %w", err)
	}
	return nil
}

// extractQuery returns the user's query text, running the transcription
// sub-flow for voice content.
func (o *Orchestrator) extractQuery(
	ctx context.Context,
	ch channel.Channel,
	exp *experiment.Experiment,
	sess *session.Session,
	participant *experiment.Participant,
	msg channel.Message,
) (string, error) {
	if msg.Kind != channel.ContentVoice {
		return msg.Text, nil
	}

	ch.TranscriptionStarted(ctx, msg.ChatID)

	transcript, err := o.transcribe(ctx, ch, msg)
	if err != nil {
		o.log.Error().Err(err).Uint("session_id", sess.ID).Msg("transcription failed")
		o.notifyTranscriptionFailure(ctx, ch, exp, sess, participant, msg)
		return "", err
	}

	ch.TranscriptionFinished(ctx, msg.ChatID, transcript)
	if exp.EchoTranscribedText {
		if err := ch.DeliverText(ctx, msg.ChatID, transcript); err != nil {
			o.log.Warn().Err(err).Uint("session_id", sess.ID).Msg("transcript echo failed")
		}
	}
	return transcript, nil
}

func (o *Orchestrator) transcribe(ctx context.Context, ch channel.Channel, msg channel.Message) (string, error) {
	audio, err := ch.FetchAudio(ctx, msg)
	if err != nil {
		return "", fmt.Errorf("fetch audio: %w", err)
	}
	transcript, err := o.speech.Transcribe(ctx, *audio)
	if err != nil {
		return "", fmt.Errorf("transcribe audio: %w", err)
	}
	return transcript, nil
}

// notifyTranscriptionFailure sends the generic failure notice. The
// original error is re-raised by the caller; this is best effort.
func (o *Orchestrator) notifyTranscriptionFailure(
	ctx context.Context,
	ch channel.Channel,
	exp *experiment.Experiment,
	sess *session.Session,
	participant *experiment.Participant,
	msg channel.Message,
) {
	result, err := o.invokePipeline(ctx, ch.Platform(), exp, sess, participant, transcriptionFailedPrompt,
		runnable.Options{SaveInput: false, SaveOutput: false})
	if err != nil {
		o.log.Warn().Err(err).Msg("failure-notice generation failed")
		return
	}
	if err := ch.DeliverText(ctx, msg.ChatID, result.Output); err != nil {
		o.log.Warn().Err(err).Msg("failure-notice delivery failed")
	}
}

// dispatchReply picks voice or text per the experiment's voice-response
// policy intersected with channel and experiment capability, falling
// back to text on synthesis failure.
func (o *Orchestrator) dispatchReply(
	ctx context.Context,
	ch channel.Channel,
	exp *experiment.Experiment,
	msg channel.Message,
	reply string,
) error {
	if reply == "" {
		return nil
	}

	if o.shouldReplyWithVoice(ch, exp, msg) {
		audio, err := o.speech.Synthesize(ctx, reply, exp.SyntheticVoice)
		if err == nil {
			if err := ch.DeliverVoice(ctx, msg.ChatID, audio); err == nil {
				return nil
			}
			o.log.Warn().Err(err).Msg("voice delivery failed, falling back to text")
		} else {
			o.log.Warn().Err(err).Msg("voice synthesis failed, falling back to text")
		}
	}

	if err := ch.DeliverText(ctx, msg.ChatID, reply); err != nil {
		return fmt.Errorf("deliver reply: %w", err)
	}
	return nil
}

func (o *Orchestrator) shouldReplyWithVoice(
	ch channel.Channel,
	exp *experiment.Experiment,
	msg channel.Message,
) bool {
	if !ch.VoiceRepliesSupported() || !exp.VoiceEnabled() {
		return false
	}
	switch exp.VoiceResponseBehavior {
	case experiment.VoiceAlways:
		return true
	case experiment.VoiceReciprocal:
		return msg.Kind == channel.ContentVoice
	default:
		return false
	}
}
