package runnable

import (
	"context"
	"fmt"
	"io"
	"strings"

	"chorus-server/experiment-api/internal/domain/llm"
)

// simpleRunnable is the plain single-turn completion strategy: prompt +
// compressed history + current turn, streamed with cooperative
// cancellation polling.
type simpleRunnable struct {
	base
}

func (r *simpleRunnable) Invoke(ctx context.Context, input string, opts Options) (*GenerationResult, error) {
	history, err := r.loadHistory(ctx)
	if err != nil {
		return nil, err
	}

	if opts.SaveInput {
		if err := r.saveHumanTurn(ctx, input); err != nil {
			return nil, err
		}
	}

	messages := r.buildMessages(history, input)

	temperature := r.exp.Temperature
	stream, err := r.deps.Provider.CreateChatCompletionStream(ctx, llm.ChatCompletionRequest{
		Model:         r.exp.Model,
		Messages:      messages,
		Temperature:   &temperature,
		Stream:        true,
		StreamOptions: &llm.StreamOptions{IncludeUsage: true},
	})
	if err != nil {
		return nil, fmt.Errorf("start completion stream: %w", err)
	}
	defer stream.Close()

	checker := newCancelChecker(r.deps, r.sess.ChatID)
	var output strings.Builder
	var usage *llm.Usage

	for {
		delta, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("consume completion stream: %w", err)
		}

		if delta.Usage != nil {
			usage = delta.Usage
		}
		for _, choice := range delta.Choices {
			output.WriteString(choice.Delta.Content)
		}

		if checker.Check(ctx) {
			partial := output.String()
			if opts.SaveOutput {
				if err := r.saveAITurn(ctx, partial, opts); err != nil {
					return nil, err
				}
			}
			return nil, &CancelledError{Result: GenerationResult{Output: partial}}
		}
	}

	result := &GenerationResult{Output: output.String()}
	if usage != nil {
		result.PromptTokens = usage.PromptTokens
		result.CompletionTokens = usage.CompletionTokens
	} else {
		result.PromptTokens = llm.EstimateMessagesTokenCount(messages)
		result.CompletionTokens = llm.EstimateTokenCount(result.Output)
	}

	if opts.SaveOutput {
		if err := r.saveAITurn(ctx, result.Output, opts); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// buildMessages assembles system prompt + compressed history + current
// turn, trimmed oldest-first to the experiment's token budget.
func (r *simpleRunnable) buildMessages(history []llm.ChatMessage, input string) []llm.ChatMessage {
	messages := make([]llm.ChatMessage, 0, len(history)+2)
	messages = append(messages, llm.ChatMessage{
		Role:    "system",
		Content: RenderSystemPrompt(r.exp, r.participant, r.platform, r.deps.now()),
	})
	messages = append(messages, history...)
	messages = append(messages, llm.ChatMessage{
		Role:    "user",
		Content: FormatInput(r.exp, input),
	})

	return llm.TrimHistoryToBudget(messages, r.exp.MaxTokenLimit).Messages
}
