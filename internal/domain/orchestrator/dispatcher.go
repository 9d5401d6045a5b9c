package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"chorus-server/experiment-api/internal/domain/channel"
	"chorus-server/experiment-api/internal/domain/experiment"
)

// Dispatcher turns queued raw transport payloads into HandleInbound
// calls: it parses the platform wire shape, locates the experiment
// channel and builds the matching adapter.
type Dispatcher struct {
	orch        *Orchestrator
	experiments experiment.Repository
	telegram    channel.TelegramAPI
	twilio      channel.TwilioAPI
	facebook    channel.FacebookAPI
	slack       channel.SlackAPI
	log         zerolog.Logger
}

// NewDispatcher wires the dispatcher.
func NewDispatcher(
	orch *Orchestrator,
	experiments experiment.Repository,
	telegram channel.TelegramAPI,
	twilio channel.TwilioAPI,
	facebook channel.FacebookAPI,
	slack channel.SlackAPI,
	log zerolog.Logger,
) *Dispatcher {
	return &Dispatcher{
		orch:        orch,
		experiments: experiments,
		telegram:    telegram,
		twilio:      twilio,
		facebook:    facebook,
		slack:       slack,
		log:         log.With().Str("component", "dispatcher").Logger(),
	}
}

// Dispatch handles one queued transport event. channelRef is the routing
// hint captured at webhook time (the URL's channel id for Telegram,
// empty for platforms whose payload carries its own routing).
func (d *Dispatcher) Dispatch(ctx context.Context, platform experiment.Platform, channelRef string, payload []byte) error {
	msg, expCh, err := d.resolve(ctx, platform, channelRef, payload)
	if err != nil {
		if errors.Is(err, channel.ErrIgnoredUpdate) {
			return nil
		}
		return err
	}

	exp, err := d.experiments.GetByID(ctx, expCh.ExperimentID)
	if err != nil {
		return fmt.Errorf("load experiment: %w", err)
	}

	ch, err := d.adapterFor(expCh)
	if err != nil {
		return err
	}

	_, err = d.orch.HandleInbound(ctx, ch, exp, expCh, *msg)
	return err
}

func (d *Dispatcher) resolve(ctx context.Context, platform experiment.Platform, channelRef string, payload []byte) (*channel.Message, *experiment.Channel, error) {
	switch platform {
	case experiment.PlatformTelegram:
		msg, err := channel.ParseTelegramUpdate(payload)
		if err != nil {
			return nil, nil, err
		}
		channelID, err := strconv.ParseUint(channelRef, 10, 64)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid telegram channel ref %q: %w", channelRef, err)
		}
		expCh, err := d.experiments.GetChannel(ctx, uint(channelID))
		if err != nil {
			return nil, nil, fmt.Errorf("find telegram channel: %w", err)
		}
		return msg, expCh, nil

	case experiment.PlatformWhatsApp:
		form, err := url.ParseQuery(string(payload))
		if err != nil {
			return nil, nil, fmt.Errorf("parse twilio form: %w", err)
		}
		msg, err := channel.ParseTwilioForm(form)
		if err != nil {
			return nil, nil, err
		}
		number := strings.TrimPrefix(form.Get("To"), "whatsapp:")
		expCh, err := d.experiments.FindChannelByExtra(ctx, experiment.PlatformWhatsApp, "number", number)
		if err != nil {
			return nil, nil, fmt.Errorf("find whatsapp channel for %s: %w", number, err)
		}
		return msg, expCh, nil

	case experiment.PlatformFacebook:
		msg, pageID, err := channel.ParseFacebookEvent(payload)
		if err != nil {
			return nil, nil, err
		}
		expCh, err := d.experiments.FindChannelByExtra(ctx, experiment.PlatformFacebook, "page_id", pageID)
		if err != nil {
			return nil, nil, fmt.Errorf("find facebook channel for page %s: %w", pageID, err)
		}
		return msg, expCh, nil

	case experiment.PlatformSlack:
		msg, teamID, err := channel.ParseSlackEvent(payload)
		if err != nil {
			return nil, nil, err
		}
		expCh, err := d.experiments.FindChannelByExtra(ctx, experiment.PlatformSlack, "slack_team_id", teamID)
		if err != nil {
			return nil, nil, fmt.Errorf("find slack channel for team %s: %w", teamID, err)
		}
		return msg, expCh, nil

	default:
		return nil, nil, fmt.Errorf("no dispatcher for platform %s", platform)
	}
}

func (d *Dispatcher) adapterFor(expCh *experiment.Channel) (channel.Channel, error) {
	switch expCh.Platform {
	case experiment.PlatformTelegram:
		return channel.NewTelegramChannel(d.telegram, expCh.ExtraData["bot_token"]), nil
	case experiment.PlatformWhatsApp:
		return channel.NewWhatsappChannel(d.twilio, expCh.ExtraData["number"]), nil
	case experiment.PlatformFacebook:
		return channel.NewFacebookChannel(d.facebook, expCh.ExtraData["page_access_token"]), nil
	case experiment.PlatformSlack:
		return channel.NewSlackChannel(d.slack, expCh.ExtraData["bot_token"]), nil
	case experiment.PlatformWeb:
		return channel.NewWebChannel(), nil
	case experiment.PlatformAPI:
		return channel.NewAPIChannel(), nil
	default:
		return nil, fmt.Errorf("no adapter for platform %s", expCh.Platform)
	}
}
