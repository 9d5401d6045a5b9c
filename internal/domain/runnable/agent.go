package runnable

import (
	"context"
	"fmt"

	"chorus-server/experiment-api/internal/domain/llm"
	"chorus-server/experiment-api/internal/domain/tool"
)

// agentRunnable is the tool-calling strategy: the model may request tool
// executions (scheduling reminders, etc.) before producing its final
// answer. Total execution is bounded by the configured agent timeout and
// the cancellation flag is polled between loop iterations.
type agentRunnable struct {
	base
}

func (r *agentRunnable) Invoke(ctx context.Context, input string, opts Options) (*GenerationResult, error) {
	history, err := r.loadHistory(ctx)
	if err != nil {
		return nil, err
	}

	if opts.SaveInput {
		if err := r.saveHumanTurn(ctx, input); err != nil {
			return nil, err
		}
	}

	agentCtx, cancel := context.WithTimeout(ctx, r.deps.AgentTimeout)
	defer cancel()

	registry := r.deps.Tools
	if len(r.exp.Tools) > 0 {
		registry = registry.Filter(r.exp.Tools)
	}

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

	call := tool.Call{
		TeamID:        r.exp.TeamID,
		ExperimentID:  r.exp.ID,
		SessionID:     r.sess.ID,
		ParticipantID: r.participant.ID,
		Timezone:      r.participant.Timezone(),
	}

	checker := newCancelChecker(r.deps, r.sess.ChatID)
	result := &GenerationResult{}
	temperature := r.exp.Temperature

	for depth := 0; depth < r.deps.MaxToolDepth; depth++ {
		trimmed := llm.TrimHistoryToBudget(messages, r.exp.MaxTokenLimit).Messages

		completion, err := r.deps.Provider.CreateChatCompletion(agentCtx, llm.ChatCompletionRequest{
			Model:       r.exp.Model,
			Messages:    trimmed,
			Tools:       registry.Definitions(),
			Temperature: &temperature,
		})
		if err != nil {
			if agentCtx.Err() == context.DeadlineExceeded {
				return nil, fmt.Errorf("agent execution exceeded %s: %w", r.deps.AgentTimeout, err)
			}
			return nil, fmt.Errorf("agent completion: %w", err)
		}
		if len(completion.Choices) == 0 {
			return nil, fmt.Errorf("agent completion returned no choices")
		}

		if completion.Usage != nil {
			result.PromptTokens += completion.Usage.PromptTokens
			result.CompletionTokens += completion.Usage.CompletionTokens
		}

		assistantMsg := completion.Choices[0].Message
		messages = append(messages, assistantMsg)

		if len(assistantMsg.ToolCalls) == 0 {
			result.Output = assistantMsg.Content
			if opts.SaveOutput {
				if err := r.saveAITurn(ctx, result.Output, opts); err != nil {
					return nil, err
				}
			}
			return result, nil
		}

		if checker.Check(ctx) {
			if opts.SaveOutput && assistantMsg.Content != "" {
				if err := r.saveAITurn(ctx, assistantMsg.Content, opts); err != nil {
					return nil, err
				}
			}
			return nil, &CancelledError{Result: GenerationResult{
				Output:           assistantMsg.Content,
				PromptTokens:     result.PromptTokens,
				CompletionTokens: result.CompletionTokens,
			}}
		}

		for _, toolCall := range assistantMsg.ToolCalls {
			output, err := registry.Execute(agentCtx, toolCall.Function.Name, call, toolCall.Function.Arguments)
			if err != nil {
				r.deps.Log.Warn().Err(err).
					Str("tool", toolCall.Function.Name).
					Uint("session_id", r.sess.ID).
					Msg("tool execution failed")
				output = fmt.Sprintf("Error: %s", err)
			}
			callID := toolCall.ID
			messages = append(messages, llm.ChatMessage{
				Role:       "tool",
				Content:    output,
				ToolCallID: &callID,
			})
		}
	}

	return nil, fmt.Errorf("agent exceeded maximum tool depth %d", r.deps.MaxToolDepth)
}
