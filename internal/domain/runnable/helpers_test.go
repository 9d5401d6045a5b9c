package runnable_test

import (
	"context"
	"io"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"chorus-server/experiment-api/internal/domain/chat"
	"chorus-server/experiment-api/internal/domain/experiment"
	"chorus-server/experiment-api/internal/domain/llm"
	"chorus-server/experiment-api/internal/domain/runnable"
	"chorus-server/experiment-api/internal/domain/session"
)

// fakeChatStore is an in-memory chat.Store.
type fakeChatStore struct {
	messages []chat.Message
	metadata map[string]string
}

func newFakeChatStore() *fakeChatStore {
	return &fakeChatStore{metadata: map[string]string{}}
}

func (s *fakeChatStore) Create(ctx context.Context, teamID uint) (*chat.Chat, error) {
	return &chat.Chat{ID: 1, TeamID: teamID}, nil
}

func (s *fakeChatStore) Get(ctx context.Context, chatID uint) (*chat.Chat, error) {
	return &chat.Chat{ID: chatID, Metadata: s.metadata}, nil
}

func (s *fakeChatStore) AppendMessage(ctx context.Context, msg *chat.Message) error {
	msg.ID = uint(len(s.messages) + 1)
	s.messages = append(s.messages, *msg)
	return nil
}

func (s *fakeChatStore) History(ctx context.Context, chatID uint) ([]chat.Message, error) {
	return append([]chat.Message(nil), s.messages...), nil
}

func (s *fakeChatStore) CountByType(ctx context.Context, chatID uint, msgType chat.MessageType) (int64, error) {
	var n int64
	for _, m := range s.messages {
		if m.Type == msgType {
			n++
		}
	}
	return n, nil
}

func (s *fakeChatStore) GetMetadataValue(ctx context.Context, chatID uint, key string) (string, error) {
	return s.metadata[key], nil
}

func (s *fakeChatStore) SetMetadataValue(ctx context.Context, chatID uint, key, value string) error {
	s.metadata[key] = value
	return nil
}

func (s *fakeChatStore) lastMessage(t *testing.T) chat.Message {
	t.Helper()
	if len(s.messages) == 0 {
		t.Fatal("no messages persisted")
	}
	return s.messages[len(s.messages)-1]
}

// fakeStream replays a fixed sequence of deltas.
type fakeStream struct {
	deltas []llm.ChatCompletionDelta
	index  int
	closed bool
}

func (s *fakeStream) Recv() (*llm.ChatCompletionDelta, error) {
	if s.index >= len(s.deltas) {
		return nil, io.EOF
	}
	delta := s.deltas[s.index]
	s.index++
	return &delta, nil
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

func textDelta(content string) llm.ChatCompletionDelta {
	return llm.ChatCompletionDelta{
		Choices: []llm.ChatCompletionDeltaChoice{{Delta: llm.ChatMessage{Role: "assistant", Content: content}}},
	}
}

// fakeProvider implements llm.Provider with function fields.
type fakeProvider struct {
	createFunc func(ctx context.Context, req llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error)
	streamFunc func(ctx context.Context, req llm.ChatCompletionRequest) (llm.Stream, error)

	requests []llm.ChatCompletionRequest
}

func (p *fakeProvider) CreateChatCompletion(ctx context.Context, req llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error) {
	p.requests = append(p.requests, req)
	if p.createFunc != nil {
		return p.createFunc(ctx, req)
	}
	return &llm.ChatCompletionResponse{}, nil
}

func (p *fakeProvider) CreateChatCompletionStream(ctx context.Context, req llm.ChatCompletionRequest) (llm.Stream, error) {
	p.requests = append(p.requests, req)
	if p.streamFunc != nil {
		return p.streamFunc(ctx, req)
	}
	return &fakeStream{}, nil
}

// fakeAssistant implements llm.AssistantProvider with function fields.
type fakeAssistant struct {
	createThreadAndRunFunc  func(ctx context.Context, req llm.AssistantRunRequest) (*llm.AssistantRunResult, error)
	submitMessageAndRunFunc func(ctx context.Context, threadID string, req llm.AssistantRunRequest) (*llm.AssistantRunResult, error)
	cancelRunFunc           func(ctx context.Context, threadID, runID string) error
	getRunStatusFunc        func(ctx context.Context, threadID, runID string) (string, error)

	cancelledRuns []string
}

func (a *fakeAssistant) CreateThreadAndRun(ctx context.Context, req llm.AssistantRunRequest) (*llm.AssistantRunResult, error) {
	if a.createThreadAndRunFunc != nil {
		return a.createThreadAndRunFunc(ctx, req)
	}
	return &llm.AssistantRunResult{ThreadID: "thread_new", RunID: "run_1"}, nil
}

func (a *fakeAssistant) SubmitMessageAndRun(ctx context.Context, threadID string, req llm.AssistantRunRequest) (*llm.AssistantRunResult, error) {
	if a.submitMessageAndRunFunc != nil {
		return a.submitMessageAndRunFunc(ctx, threadID, req)
	}
	return &llm.AssistantRunResult{ThreadID: threadID, RunID: "run_1"}, nil
}

func (a *fakeAssistant) CancelRun(ctx context.Context, threadID, runID string) error {
	a.cancelledRuns = append(a.cancelledRuns, runID)
	if a.cancelRunFunc != nil {
		return a.cancelRunFunc(ctx, threadID, runID)
	}
	return nil
}

func (a *fakeAssistant) GetRunStatus(ctx context.Context, threadID, runID string) (string, error) {
	if a.getRunStatusFunc != nil {
		return a.getRunStatusFunc(ctx, threadID, runID)
	}
	return "cancelled", nil
}

func testDeps(store chat.Store, provider llm.Provider, assistant llm.AssistantProvider) runnable.Deps {
	return runnable.Deps{
		Provider:           provider,
		Assistant:          assistant,
		Chats:              store,
		Log:                zerolog.New(os.Stderr).Level(zerolog.Disabled),
		AssistantPollDelay: time.Millisecond,
		AgentTimeout:       5 * time.Second,
		MaxToolDepth:       4,
	}
}

func testExperiment() *experiment.Experiment {
	return &experiment.Experiment{
		ID:         1,
		PublicID:   "exp_abc",
		TeamID:     7,
		PromptText: "Be concise.",
		Model:      "gpt-4o",
	}
}

func testSession() *session.Session {
	return &session.Session{
		ID:           10,
		PublicID:     "sess_abc",
		TeamID:       7,
		ExperimentID: 1,
		ChatID:       1,
		Status:       session.StatusActive,
	}
}

func testParticipant() *experiment.Participant {
	return &experiment.Participant{
		ID:         3,
		TeamID:     7,
		Identifier: "tg:42",
	}
}
