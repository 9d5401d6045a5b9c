package runnable

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"chorus-server/experiment-api/internal/domain/chat"
	"chorus-server/experiment-api/internal/domain/llm"
)

const (
	// assistantMaxAttempts bounds thread-busy retries.
	assistantMaxAttempts = 3
	// cancelPollMaxWait bounds the wait for a stuck run's cancellation.
	cancelPollMaxWait = 30 * time.Second
)

// threadBusyPattern matches the provider error raised when a message is
// submitted to a thread while a prior run on it is still active.
var threadBusyPattern = regexp.MustCompile(`(thread_[\w]+) while a run (run_[\w]+) is active`)

// runCancelledPattern matches provider errors for runs cancelled by
// another actor; those surface as a cancellation outcome, not a failure.
var runCancelledPattern = regexp.MustCompile(`cancelling|cancelled`)

// assistantRunnable delegates the conversation to a provider-hosted
// assistant thread. The thread id lives in chat metadata; instructions
// are re-interpolated with participant data on every call because the
// provider has no separate dynamic-instruction channel.
type assistantRunnable struct {
	base
}

func (r *assistantRunnable) Invoke(ctx context.Context, input string, opts Options) (*GenerationResult, error) {
	threadID, err := r.deps.Chats.GetMetadataValue(ctx, r.sess.ChatID, chat.MetadataKeyThreadID)
	if err != nil {
		return nil, fmt.Errorf("read thread id: %w", err)
	}

	if opts.SaveInput {
		if err := r.saveHumanTurn(ctx, input); err != nil {
			return nil, err
		}
	}

	req := llm.AssistantRunRequest{
		AssistantID:  r.exp.AssistantID,
		Instructions: RenderSystemPrompt(r.exp, r.participant, r.platform, r.deps.now()),
		Input:        FormatInput(r.exp, input),
	}

	var lastErr error
	for attempt := 1; attempt <= assistantMaxAttempts; attempt++ {
		runResult, err := r.runOnce(ctx, threadID, req)
		if err == nil {
			if threadID == "" {
				if metaErr := r.deps.Chats.SetMetadataValue(ctx, r.sess.ChatID, chat.MetadataKeyThreadID, runResult.ThreadID); metaErr != nil {
					return nil, fmt.Errorf("persist thread id: %w", metaErr)
				}
			}

			result := &GenerationResult{
				Output:           runResult.Output,
				PromptTokens:     runResult.Usage.PromptTokens,
				CompletionTokens: runResult.Usage.CompletionTokens,
			}
			if opts.SaveOutput {
				if err := r.saveAITurn(ctx, result.Output, opts); err != nil {
					return nil, err
				}
			}
			return result, nil
		}

		if runCancelledPattern.MatchString(err.Error()) {
			// The cancel may have been requested through the durable flag
			// as well; consume it alongside the provider-side cancellation.
			_ = chat.ClearCancelled(ctx, r.deps.Chats, r.sess.ChatID)
			return nil, &CancelledError{}
		}

		busyThreadID, busyRunID, ok := matchThreadBusy(err)
		if !ok {
			return nil, fmt.Errorf("assistant run: %w", err)
		}
		if threadID == "" || busyThreadID != threadID {
			return nil, fmt.Errorf("assistant error names thread %s, current is %s: %w", busyThreadID, threadID, err)
		}

		r.deps.Log.Warn().
			Str("thread_id", threadID).
			Str("run_id", busyRunID).
			Int("attempt", attempt).
			Msg("thread busy, cancelling stuck run")

		if err := r.cancelStuckRun(ctx, threadID, busyRunID); err != nil {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("assistant thread still busy after %d attempts: %w", assistantMaxAttempts, lastErr)
}

func (r *assistantRunnable) runOnce(ctx context.Context, threadID string, req llm.AssistantRunRequest) (*llm.AssistantRunResult, error) {
	if threadID == "" {
		return r.deps.Assistant.CreateThreadAndRun(ctx, req)
	}
	return r.deps.Assistant.SubmitMessageAndRun(ctx, threadID, req)
}

// cancelStuckRun cancels the named run and polls until the provider
// reports it is no longer active.
func (r *assistantRunnable) cancelStuckRun(ctx context.Context, threadID, runID string) error {
	if err := r.deps.Assistant.CancelRun(ctx, threadID, runID); err != nil {
		return fmt.Errorf("cancel stuck run %s: %w", runID, err)
	}

	deadline := r.deps.now().Add(cancelPollMaxWait)
	for {
		status, err := r.deps.Assistant.GetRunStatus(ctx, threadID, runID)
		if err != nil {
			return fmt.Errorf("poll cancelled run %s: %w", runID, err)
		}
		switch status {
		case "cancelled", "completed", "failed", "expired":
			return nil
		}

		if r.deps.now().After(deadline) {
			return fmt.Errorf("run %s still %s after %s", runID, status, cancelPollMaxWait)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.deps.AssistantPollDelay):
		}
	}
}

func matchThreadBusy(err error) (threadID, runID string, ok bool) {
	matches := threadBusyPattern.FindStringSubmatch(err.Error())
	if len(matches) != 3 {
		return "", "", false
	}
	return matches[1], matches[2], true
}
