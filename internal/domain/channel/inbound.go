package channel

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ErrIgnoredUpdate marks transport events that are not user messages and
// must be dropped silently (e.g. Telegram chat member updates).
var ErrIgnoredUpdate = errors.New("ignored transport update")

// telegramUpdate mirrors the Telegram Bot API Update shape, restricted to
// the fields the adapter reads.
type telegramUpdate struct {
	UpdateID     int64            `json:"update_id"`
	Message      *telegramMessage `json:"message"`
	MyChatMember json.RawMessage  `json:"my_chat_member"`
}

type telegramMessage struct {
	MessageID int64 `json:"message_id"`
	Chat      struct {
		ID int64 `json:"id"`
	} `json:"chat"`
	Text  string `json:"text"`
	Voice *struct {
		FileID   string `json:"file_id"`
		MimeType string `json:"mime_type"`
	} `json:"voice"`
	Photo    json.RawMessage `json:"photo"`
	Document json.RawMessage `json:"document"`
	Sticker  json.RawMessage `json:"sticker"`
	Video    json.RawMessage `json:"video"`
	Location json.RawMessage `json:"location"`
	Contact  json.RawMessage `json:"contact"`
}

// ParseTelegramUpdate normalizes a Telegram webhook body. Chat member
// updates return ErrIgnoredUpdate.
func ParseTelegramUpdate(body []byte) (*Message, error) {
	var update telegramUpdate
	if err := json.Unmarshal(body, &update); err != nil {
		return nil, fmt.Errorf("parse telegram update: %w", err)
	}

	if len(update.MyChatMember) > 0 {
		return nil, ErrIgnoredUpdate
	}
	if update.Message == nil {
		return nil, ErrIgnoredUpdate
	}

	msg := &Message{
		ChatID:    strconv.FormatInt(update.Message.Chat.ID, 10),
		MessageID: strconv.FormatInt(update.Message.MessageID, 10),
	}

	switch {
	case update.Message.Voice != nil:
		msg.Kind = ContentVoice
		msg.RawKind = "voice"
		msg.MediaID = update.Message.Voice.FileID
	case update.Message.Text != "":
		msg.Kind = ContentText
		msg.RawKind = "text"
		msg.Text = update.Message.Text
	default:
		msg.Kind = ContentUnsupported
		msg.RawKind = telegramRawKind(update.Message)
	}
	return msg, nil
}

func telegramRawKind(m *telegramMessage) string {
	switch {
	case len(m.Photo) > 0:
		return "photo"
	case len(m.Document) > 0:
		return "document"
	case len(m.Sticker) > 0:
		return "sticker"
	case len(m.Video) > 0:
		return "video"
	case len(m.Location) > 0:
		return "location"
	case len(m.Contact) > 0:
		return "contact"
	default:
		return "unknown"
	}
}

// ParseTwilioForm normalizes a Twilio WhatsApp webhook form body.
// The sender arrives as "whatsapp:+<number>"; the number is the chat id.
func ParseTwilioForm(form url.Values) (*Message, error) {
	from := form.Get("From")
	if from == "" {
		return nil, fmt.Errorf("twilio payload missing From")
	}

	msg := &Message{
		ChatID:    strings.TrimPrefix(from, "whatsapp:"),
		MessageID: form.Get("MessageSid"),
	}

	numMedia, _ := strconv.Atoi(form.Get("NumMedia"))
	contentType := form.Get("MediaContentType0")

	switch {
	case numMedia > 0 && strings.HasPrefix(contentType, "audio/"):
		msg.Kind = ContentVoice
		msg.RawKind = contentType
		msg.MediaURL = form.Get("MediaUrl0")
	case numMedia > 0:
		msg.Kind = ContentUnsupported
		msg.RawKind = contentType
	default:
		msg.Kind = ContentText
		msg.RawKind = "text"
		msg.Text = form.Get("Body")
	}
	return msg, nil
}

// facebookEvent mirrors the Messenger webhook shape: the adapter reads
// entry[0].messaging[0] only, matching what senders actually post.
type facebookEvent struct {
	Entry []struct {
		ID        string `json:"id"`
		Messaging []struct {
			Sender struct {
				ID string `json:"id"`
			} `json:"sender"`
			Message struct {
				MID         string `json:"mid"`
				Text        string `json:"text"`
				Attachments []struct {
					Type    string `json:"type"`
					Payload struct {
						URL string `json:"url"`
					} `json:"payload"`
				} `json:"attachments"`
			} `json:"message"`
		} `json:"messaging"`
	} `json:"entry"`
}

// ParseFacebookEvent normalizes a Facebook Messenger webhook body and
// returns the page id alongside the message for channel lookup.
func ParseFacebookEvent(body []byte) (*Message, string, error) {
	var event facebookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, "", fmt.Errorf("parse facebook event: %w", err)
	}
	if len(event.Entry) == 0 || len(event.Entry[0].Messaging) == 0 {
		return nil, "", ErrIgnoredUpdate
	}

	pageID := event.Entry[0].ID
	messaging := event.Entry[0].Messaging[0]

	msg := &Message{
		ChatID:    messaging.Sender.ID,
		MessageID: messaging.Message.MID,
	}

	switch {
	case len(messaging.Message.Attachments) > 0 && messaging.Message.Attachments[0].Type == "audio":
		msg.Kind = ContentVoice
		msg.RawKind = "audio"
		msg.MediaURL = messaging.Message.Attachments[0].Payload.URL
	case len(messaging.Message.Attachments) > 0:
		msg.Kind = ContentUnsupported
		msg.RawKind = messaging.Message.Attachments[0].Type
	case messaging.Message.Text != "":
		msg.Kind = ContentText
		msg.RawKind = "text"
		msg.Text = messaging.Message.Text
	default:
		return nil, "", ErrIgnoredUpdate
	}
	return msg, pageID, nil
}

// slackEvent mirrors the Slack Events API callback shape.
type slackEvent struct {
	Type   string `json:"type"`
	TeamID string `json:"team_id"`
	Event  struct {
		Type     string `json:"type"`
		Subtype  string `json:"subtype"`
		BotID    string `json:"bot_id"`
		User     string `json:"user"`
		Text     string `json:"text"`
		Channel  string `json:"channel"`
		TS       string `json:"ts"`
		ThreadTS string `json:"thread_ts"`
		Files    []struct {
			Mimetype string `json:"mimetype"`
			URL      string `json:"url_private_download"`
		} `json:"files"`
	} `json:"event"`
}

// ParseSlackEvent normalizes a Slack Events API body and returns the
// workspace team id alongside the message for channel lookup. Bot
// messages and non-message events return ErrIgnoredUpdate. Replies are
// addressed to the thread the message arrived on (the message's own ts
// when it starts a new thread).
func ParseSlackEvent(body []byte) (*Message, string, error) {
	var event slackEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, "", fmt.Errorf("parse slack event: %w", err)
	}

	if event.Event.Type != "message" || event.Event.BotID != "" || event.Event.Subtype != "" {
		return nil, "", ErrIgnoredUpdate
	}

	threadTS := event.Event.ThreadTS
	if threadTS == "" {
		threadTS = event.Event.TS
	}

	msg := &Message{
		ChatID:    event.Event.User,
		ChannelID: event.Event.Channel,
		ThreadTS:  threadTS,
		MessageID: event.Event.TS,
	}

	switch {
	case len(event.Event.Files) > 0 && strings.HasPrefix(event.Event.Files[0].Mimetype, "audio/"):
		msg.Kind = ContentVoice
		msg.RawKind = event.Event.Files[0].Mimetype
		msg.MediaURL = event.Event.Files[0].URL
	case len(event.Event.Files) > 0:
		msg.Kind = ContentUnsupported
		msg.RawKind = event.Event.Files[0].Mimetype
	default:
		msg.Kind = ContentText
		msg.RawKind = "text"
		msg.Text = event.Event.Text
	}
	return msg, event.TeamID, nil
}
