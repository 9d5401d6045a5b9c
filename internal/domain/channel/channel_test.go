package channel_test

import (
	"context"
	"strings"
	"testing"

	"chorus-server/experiment-api/internal/domain/channel"
	"chorus-server/experiment-api/internal/domain/llm"
)

func TestSplitText_ShortTextIsUntouched(t *testing.T) {
	parts := channel.SplitText("hello", 4096)
	if len(parts) != 1 || parts[0] != "hello" {
		t.Errorf("SplitText() = %v, want the input unchanged", parts)
	}
}

func TestSplitText_BreaksOnNewline(t *testing.T) {
	text := strings.Repeat("a", 6) + "\n" + strings.Repeat("b", 6)
	parts := channel.SplitText(text, 10)
	if len(parts) != 2 {
		t.Fatalf("SplitText() produced %d parts, want 2: %v", len(parts), parts)
	}
	if !strings.HasSuffix(parts[0], "\n") {
		t.Errorf("first part should break after the newline, got %q", parts[0])
	}
	if parts[1] != strings.Repeat("b", 6) {
		t.Errorf("second part = %q", parts[1])
	}
}

func TestSplitText_BreaksOnSpaceWhenNoNewline(t *testing.T) {
	text := "alpha beta gamma delta"
	parts := channel.SplitText(text, 12)
	for _, part := range parts {
		if len([]rune(part)) > 12 {
			t.Errorf("part %q exceeds the limit", part)
		}
	}
	if got := strings.Join(parts, ""); got != text {
		t.Errorf("concatenated parts = %q, want original text", got)
	}
}

func TestSplitText_HardCutWithoutBoundaries(t *testing.T) {
	text := strings.Repeat("x", 25)
	parts := channel.SplitText(text, 10)
	if len(parts) != 3 {
		t.Fatalf("SplitText() produced %d parts, want 3", len(parts))
	}
	for i, part := range parts[:2] {
		if len(part) != 10 {
			t.Errorf("part %d length = %d, want a full 10-rune cut", i, len(part))
		}
	}
	if len(parts[2]) != 5 {
		t.Errorf("final part length = %d, want 5", len(parts[2]))
	}
}

func TestSplitText_CountsRunesNotBytes(t *testing.T) {
	text := strings.Repeat("ü", 8)
	parts := channel.SplitText(text, 10)
	if len(parts) != 1 {
		t.Errorf("8 runes should fit a 10-rune limit, got %d parts", len(parts))
	}
}

// fakeTelegramAPI records the chat actions sent through the Bot API.
type fakeTelegramAPI struct {
	actions []string
}

func (a *fakeTelegramAPI) SendMessage(ctx context.Context, botToken, chatID, text string) error {
	return nil
}

func (a *fakeTelegramAPI) SendVoice(ctx context.Context, botToken, chatID string, audio *llm.SynthesizedAudio) error {
	return nil
}

func (a *fakeTelegramAPI) SendChatAction(ctx context.Context, botToken, chatID, action string) error {
	a.actions = append(a.actions, action)
	return nil
}

func (a *fakeTelegramAPI) DownloadFile(ctx context.Context, botToken, fileID string) (*llm.Audio, error) {
	return &llm.Audio{Format: "ogg"}, nil
}

func TestTelegramChannel_SubmitInputSendsTypingAction(t *testing.T) {
	api := &fakeTelegramAPI{}
	ch := channel.NewTelegramChannel(api, "tok")

	ch.SubmitInputToLLM(context.Background(), "42")

	if len(api.actions) != 1 || api.actions[0] != "typing" {
		t.Errorf("chat actions = %v, want a typing indicator", api.actions)
	}
}
