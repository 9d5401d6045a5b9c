package runnable

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"chorus-server/experiment-api/internal/domain/chat"
	"chorus-server/experiment-api/internal/domain/experiment"
	"chorus-server/experiment-api/internal/domain/llm"
	"chorus-server/experiment-api/internal/domain/session"
	"chorus-server/experiment-api/internal/domain/tool"
)

// GenerationResult is the pipeline's output record: reply text plus token
// accounting. Produced once per invocation and never mutated.
type GenerationResult struct {
	Output           string
	PromptTokens     int
	CompletionTokens int
}

// Options control history persistence per invocation.
type Options struct {
	SaveInput        bool
	SaveOutput       bool
	AddExperimentTag bool
}

// DefaultOptions enables input and output persistence.
func DefaultOptions() Options {
	return Options{SaveInput: true, SaveOutput: true}
}

// Runnable is the common contract of the three generation strategies.
type Runnable interface {
	Invoke(ctx context.Context, input string, opts Options) (*GenerationResult, error)
}

// CancelledError signals a generation halted by the cancellation flag.
// It is expected control flow, not a failure; Result carries whatever
// partial output was accumulated before the halt.
type CancelledError struct {
	Result GenerationResult
}

func (e *CancelledError) Error() string {
	return "generation cancelled"
}

// IsCancelled reports whether err is a cancellation outcome.
func IsCancelled(err error) bool {
	var cancelled *CancelledError
	return errors.As(err, &cancelled)
}

// Deps bundles the collaborators shared by all runnable variants.
type Deps struct {
	Provider  llm.Provider
	Assistant llm.AssistantProvider
	Chats     chat.Store
	Tools     *tool.Registry
	Log       zerolog.Logger

	// CancelCheckInterval bounds how often the durable cancellation flag
	// is re-read mid-stream. Zero means check on every chunk.
	CancelCheckInterval time.Duration
	// AssistantPollDelay is the sleep between run-status polls while
	// waiting for a stuck run's cancellation to complete.
	AssistantPollDelay time.Duration
	// AgentTimeout bounds total agent execution.
	AgentTimeout time.Duration
	// MaxToolDepth bounds tool-call loop iterations.
	MaxToolDepth int

	// Now is replaceable for tests; nil means time.Now.
	Now func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// New selects the generation strategy for an experiment: hosted assistant
// when one is referenced, tool-calling agent when tools are enabled, and
// plain completion otherwise.
func New(
	deps Deps,
	exp *experiment.Experiment,
	sess *session.Session,
	participant *experiment.Participant,
	platform experiment.Platform,
) Runnable {
	base := base{
		deps:        deps,
		exp:         exp,
		sess:        sess,
		participant: participant,
		platform:    platform,
	}

	switch {
	case exp.AssistantID != "":
		return &assistantRunnable{base: base}
	case exp.ToolsEnabled:
		return &agentRunnable{base: base}
	default:
		return &simpleRunnable{base: base}
	}
}

// StrategyName reports which strategy New selects for the experiment.
// Used for log fields, metric labels and span names.
func StrategyName(exp *experiment.Experiment) string {
	switch {
	case exp.AssistantID != "":
		return "assistant"
	case exp.ToolsEnabled:
		return "agent"
	default:
		return "simple"
	}
}

// base holds the state and helpers shared by all variants.
type base struct {
	deps        Deps
	exp         *experiment.Experiment
	sess        *session.Session
	participant *experiment.Participant
	platform    experiment.Platform
}

// loadHistory returns the persisted conversation as chat-completion
// messages, oldest first. System-type log entries are skipped: they
// record operational notices, not conversation turns.
func (b *base) loadHistory(ctx context.Context) ([]llm.ChatMessage, error) {
	entries, err := b.deps.Chats.History(ctx, b.sess.ChatID)
	if err != nil {
		return nil, fmt.Errorf("load chat history: %w", err)
	}

	messages := make([]llm.ChatMessage, 0, len(entries))
	for _, entry := range entries {
		switch entry.Type {
		case chat.MessageTypeHuman:
			messages = append(messages, llm.ChatMessage{Role: "user", Content: entry.Content})
		case chat.MessageTypeAI:
			messages = append(messages, llm.ChatMessage{Role: "assistant", Content: entry.Content})
		}
	}
	return messages, nil
}

func (b *base) saveHumanTurn(ctx context.Context, content string) error {
	msg := &chat.Message{
		ChatID:  b.sess.ChatID,
		Type:    chat.MessageTypeHuman,
		Content: content,
	}
	if err := b.deps.Chats.AppendMessage(ctx, msg); err != nil {
		return fmt.Errorf("persist human turn: %w", err)
	}
	return nil
}

func (b *base) saveAITurn(ctx context.Context, content string, opts Options) error {
	msg := &chat.Message{
		ChatID:  b.sess.ChatID,
		Type:    chat.MessageTypeAI,
		Content: content,
	}
	if opts.AddExperimentTag {
		msg.Tag = b.exp.PublicID
	}
	if err := b.deps.Chats.AppendMessage(ctx, msg); err != nil {
		return fmt.Errorf("persist ai turn: %w", err)
	}
	return nil
}

// cancelChecker polls the durable cancellation flag at a bounded rate.
type cancelChecker struct {
	store     chat.Store
	chatID    uint
	interval  time.Duration
	now       func() time.Time
	lastCheck time.Time
}

func newCancelChecker(deps Deps, chatID uint) *cancelChecker {
	return &cancelChecker{
		store:     deps.Chats,
		chatID:    chatID,
		interval:  deps.CancelCheckInterval,
		now:       deps.now,
		lastCheck: deps.now(),
	}
}

// Check re-reads the flag when at least the configured interval elapsed
// since the last read. Read errors are swallowed: a flaky flag read must
// not kill a healthy generation. A detected flag is consumed immediately
// so it cancels this generation only.
func (c *cancelChecker) Check(ctx context.Context) bool {
	if c.now().Sub(c.lastCheck) < c.interval {
		return false
	}
	c.lastCheck = c.now()

	cancelled, err := chat.IsCancelled(ctx, c.store, c.chatID)
	if err != nil {
		return false
	}
	if cancelled {
		_ = chat.ClearCancelled(ctx, c.store, c.chatID)
	}
	return cancelled
}
