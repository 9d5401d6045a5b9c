package llm

import "unicode/utf8"

const (
	// DefaultTokenBudget is used when an experiment sets no explicit limit.
	DefaultTokenBudget = 8192

	// TokenEstimateRatio estimates ~4 characters per token.
	TokenEstimateRatio = 4

	// messageOverheadTokens accounts for role and framing per message.
	messageOverheadTokens = 10
)

// EstimateTokenCount provides a rough token estimate for a piece of text.
func EstimateTokenCount(text string) int {
	return utf8.RuneCountInString(text) / TokenEstimateRatio
}

// EstimateMessagesTokenCount estimates total tokens across all messages.
func EstimateMessagesTokenCount(messages []ChatMessage) int {
	total := 0
	for _, msg := range messages {
		total += messageOverheadTokens
		total += EstimateTokenCount(msg.Content)
	}
	return total
}

// TrimHistoryResult contains the result of trimming conversation history.
type TrimHistoryResult struct {
	Messages        []ChatMessage
	TrimmedCount    int
	EstimatedTokens int
}

// TrimHistoryToBudget drops the oldest non-system turns until the message
// list fits the token budget. The system prompt (index 0) and the final
// message (the current human turn) are never removed.
func TrimHistoryToBudget(messages []ChatMessage, tokenBudget int) TrimHistoryResult {
	if tokenBudget <= 0 {
		tokenBudget = DefaultTokenBudget
	}

	currentTokens := EstimateMessagesTokenCount(messages)
	if currentTokens <= tokenBudget {
		return TrimHistoryResult{
			Messages:        messages,
			TrimmedCount:    0,
			EstimatedTokens: currentTokens,
		}
	}

	result := make([]ChatMessage, len(messages))
	copy(result, messages)
	trimmedCount := 0

	firstRemovable := 0
	if len(result) > 0 && result[0].Role == "system" {
		firstRemovable = 1
	}

	for currentTokens > tokenBudget && len(result) > firstRemovable+1 {
		result = append(result[:firstRemovable], result[firstRemovable+1:]...)
		trimmedCount++
		currentTokens = EstimateMessagesTokenCount(result)
	}

	return TrimHistoryResult{
		Messages:        result,
		TrimmedCount:    trimmedCount,
		EstimatedTokens: currentTokens,
	}
}
