package llm_test

import (
	"strings"
	"testing"

	"chorus-server/experiment-api/internal/domain/llm"
)

func TestTrimHistoryToBudget_UnderBudgetIsUntouched(t *testing.T) {
	messages := []llm.ChatMessage{
		{Role: "system", Content: "You are helpful."},
		{Role: "user", Content: "hi"},
	}

	result := llm.TrimHistoryToBudget(messages, 1000)
	if result.TrimmedCount != 0 {
		t.Errorf("TrimmedCount = %d, want 0", result.TrimmedCount)
	}
	if len(result.Messages) != 2 {
		t.Errorf("len(Messages) = %d, want 2", len(result.Messages))
	}
}

func TestTrimHistoryToBudget_DropsOldestNonSystemFirst(t *testing.T) {
	filler := strings.Repeat("x", 400)
	messages := []llm.ChatMessage{
		{Role: "system", Content: "You are helpful."},
		{Role: "user", Content: "oldest " + filler},
		{Role: "assistant", Content: "old reply " + filler},
		{Role: "user", Content: "newest question"},
	}

	result := llm.TrimHistoryToBudget(messages, 150)
	if result.TrimmedCount == 0 {
		t.Fatal("expected at least one message to be trimmed")
	}
	if result.Messages[0].Role != "system" {
		t.Errorf("system prompt was trimmed, got first role %q", result.Messages[0].Role)
	}
	last := result.Messages[len(result.Messages)-1]
	if last.Content != "newest question" {
		t.Errorf("final message = %q, want the current turn preserved", last.Content)
	}
}

func TestTrimHistoryToBudget_NeverDropsSystemOrFinalMessage(t *testing.T) {
	big := strings.Repeat("y", 10000)
	messages := []llm.ChatMessage{
		{Role: "system", Content: big},
		{Role: "user", Content: big},
	}

	result := llm.TrimHistoryToBudget(messages, 10)
	if len(result.Messages) != 2 {
		t.Fatalf("len(Messages) = %d, want 2 even when over budget", len(result.Messages))
	}
	if result.Messages[0].Role != "system" || result.Messages[1].Role != "user" {
		t.Error("protected messages were removed")
	}
}

func TestTrimHistoryToBudget_ZeroBudgetUsesDefault(t *testing.T) {
	messages := []llm.ChatMessage{
		{Role: "system", Content: "prompt"},
		{Role: "user", Content: "hello"},
	}

	result := llm.TrimHistoryToBudget(messages, 0)
	if result.TrimmedCount != 0 {
		t.Errorf("TrimmedCount = %d, want 0 with the default budget", result.TrimmedCount)
	}
}

func TestEstimateTokenCount(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"abcd", 1},
		{strings.Repeat("a", 40), 10},
	}
	for _, tt := range tests {
		if got := llm.EstimateTokenCount(tt.text); got != tt.want {
			t.Errorf("EstimateTokenCount(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}
