package orchestrator

import (
	"context"
	"fmt"

	"chorus-server/experiment-api/internal/domain/channel"
	"chorus-server/experiment-api/internal/domain/chat"
	"chorus-server/experiment-api/internal/domain/experiment"
	"chorus-server/experiment-api/internal/domain/runnable"
	"chorus-server/experiment-api/internal/domain/session"
)

// StartWebSessionParams carries the web/API session entry point inputs.
type StartWebSessionParams struct {
	ExperimentPublicID    string
	ParticipantIdentifier string
	ParticipantUserID     string
	Timezone              string
}

// StartWebSession opens a session from the web widget or API. The widget
// runs its own UI-driven consent flow, so the session is forced ACTIVE
// immediately. Seed-message generation, when configured, is enqueued for
// asynchronous execution.
func (o *Orchestrator) StartWebSession(ctx context.Context, params StartWebSessionParams) (*session.Session, error) {
	exp, err := o.experiments.GetByPublicID(ctx, params.ExperimentPublicID)
	if err != nil {
		return nil, fmt.Errorf("load experiment: %w", err)
	}
	if !exp.AllowsParticipant(params.ParticipantIdentifier) {
		return nil, experiment.ErrParticipantNotAllowed
	}

	webCh, err := o.experiments.FindChannelByExtra(ctx, experiment.PlatformWeb, "experiment", exp.PublicID)
	if err != nil {
		return nil, fmt.Errorf("find web channel: %w", err)
	}

	sess, err := o.sessions.Start(ctx, session.StartParams{
		TeamID:                exp.TeamID,
		ExperimentID:          exp.ID,
		ChannelID:             webCh.ID,
		ParticipantIdentifier: params.ParticipantIdentifier,
		ParticipantUserID:     params.ParticipantUserID,
		ExternalChatID:        params.ParticipantIdentifier,
		Status:                session.StatusActive,
	})
	if err != nil {
		return nil, fmt.Errorf("start web session: %w", err)
	}

	if params.Timezone != "" {
		if err := o.experiments.SaveParticipantMemory(ctx, sess.ParticipantID, map[string]string{
			"timezone": params.Timezone,
		}); err != nil {
			o.log.Warn().Err(err).Uint("participant_id", sess.ParticipantID).Msg("save timezone failed")
		}
	}

	o.events.ParticipantJoined(ctx, exp.TeamID, exp.PublicID, params.ParticipantIdentifier)
	o.events.ConversationStarted(ctx, sess.PublicID)

	if exp.SeedMessage != "" && o.seeds != nil {
		if err := o.seeds.EnqueueSeedMessage(ctx, sess.ID); err != nil {
			o.log.Error().Err(err).Uint("session_id", sess.ID).Msg("enqueue seed message failed")
		}
	}

	return sess, nil
}

// HandleSessionMessage processes a synchronous text message for an
// existing web/API session and returns the reply.
func (o *Orchestrator) HandleSessionMessage(ctx context.Context, sessionPublicID, text string) (string, error) {
	sess, exp, expCh, err := o.loadSessionContext(ctx, sessionPublicID)
	if err != nil {
		return "", err
	}

	var ch channel.Channel
	if expCh.Platform == experiment.PlatformAPI {
		ch = channel.NewAPIChannel()
	} else {
		ch = channel.NewWebChannel()
	}

	msg := channel.Message{
		ChatID:  sess.ExternalChatID,
		Kind:    channel.ContentText,
		RawKind: "text",
		Text:    text,
	}
	return o.HandleInbound(ctx, ch, exp, expCh, msg)
}

// GenerateSeedMessage runs the experiment's seed prompt for a freshly
// started session and persists the AI turn. Invoked by the background
// worker; the web widget polls the message log for the result.
func (o *Orchestrator) GenerateSeedMessage(ctx context.Context, sessionID uint) error {
	sess, exp, expCh, err := o.loadSessionContextByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if exp.SeedMessage == "" {
		return nil
	}

	participant, err := o.experiments.GetParticipant(ctx, sess.ParticipantID)
	if err != nil {
		return fmt.Errorf("load participant: %w", err)
	}

	_, err = o.invokePipeline(ctx, expCh.Platform, exp, sess, participant, exp.SeedMessage,
		runnable.Options{SaveInput: false, SaveOutput: true})
	if err != nil && !runnable.IsCancelled(err) {
		return fmt.Errorf("generate seed message: %w", err)
	}
	return nil
}

// CancelGeneration sets the durable cancellation flag; the pipeline
// picks it up on its next poll.
func (o *Orchestrator) CancelGeneration(ctx context.Context, sessionPublicID string) error {
	sess, err := o.sessions.GetByPublicID(ctx, sessionPublicID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if err := o.chats.SetMetadataValue(ctx, sess.ChatID, chat.MetadataKeyCancelled, "true"); err != nil {
		return fmt.Errorf("set cancellation flag: %w", err)
	}
	return nil
}

// SessionHistory returns the session's full ordered message log.
func (o *Orchestrator) SessionHistory(ctx context.Context, sessionPublicID string) ([]chat.Message, error) {
	sess, err := o.sessions.GetByPublicID(ctx, sessionPublicID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	history, err := o.chats.History(ctx, sess.ChatID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return history, nil
}

func (o *Orchestrator) loadSessionContext(ctx context.Context, sessionPublicID string) (*session.Session, *experiment.Experiment, *experiment.Channel, error) {
	sess, err := o.sessions.GetByPublicID(ctx, sessionPublicID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load session: %w", err)
	}
	return o.completeSessionContext(ctx, sess)
}

func (o *Orchestrator) loadSessionContextByID(ctx context.Context, sessionID uint) (*session.Session, *experiment.Experiment, *experiment.Channel, error) {
	sess, err := o.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load session %d: %w", sessionID, err)
	}
	return o.completeSessionContext(ctx, sess)
}

func (o *Orchestrator) completeSessionContext(ctx context.Context, sess *session.Session) (*session.Session, *experiment.Experiment, *experiment.Channel, error) {
	exp, err := o.experiments.GetByID(ctx, sess.ExperimentID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load experiment: %w", err)
	}
	expCh, err := o.experiments.GetChannel(ctx, sess.ChannelID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load channel: %w", err)
	}
	return sess, exp, expCh, nil
}
