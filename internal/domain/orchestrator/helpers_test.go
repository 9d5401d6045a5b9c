package orchestrator_test

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"chorus-server/experiment-api/internal/domain/channel"
	"chorus-server/experiment-api/internal/domain/chat"
	"chorus-server/experiment-api/internal/domain/experiment"
	"chorus-server/experiment-api/internal/domain/llm"
	"chorus-server/experiment-api/internal/domain/orchestrator"
	"chorus-server/experiment-api/internal/domain/runnable"
	"chorus-server/experiment-api/internal/domain/session"
)

// fakeSessionStore is an in-memory session.Store keyed on
// (experimentID, participant identifier).
type fakeSessionStore struct {
	sessions     map[uint]*session.Session
	participants map[string]uint
	nextID       uint
	chats        *fakeChatStore
}

func newFakeSessionStore(chats *fakeChatStore) *fakeSessionStore {
	return &fakeSessionStore{
		sessions:     map[uint]*session.Session{},
		participants: map[string]uint{},
		chats:        chats,
	}
}

func (s *fakeSessionStore) Start(ctx context.Context, params session.StartParams) (*session.Session, error) {
	s.nextID++
	pKey := fmt.Sprintf("%d/%s", params.TeamID, params.ParticipantIdentifier)
	participantID, ok := s.participants[pKey]
	if !ok {
		participantID = uint(len(s.participants) + 1)
		s.participants[pKey] = participantID
	}

	chatID := s.chats.create()
	sess := &session.Session{
		ID:             s.nextID,
		PublicID:       fmt.Sprintf("sess_%d", s.nextID),
		TeamID:         params.TeamID,
		ExperimentID:   params.ExperimentID,
		ParticipantID:  participantID,
		ChannelID:      params.ChannelID,
		ChatID:         chatID,
		Status:         params.Status,
		ExternalChatID: params.ExternalChatID,
	}
	s.sessions[sess.ID] = sess
	return sess, nil
}

func (s *fakeSessionStore) FindCurrent(ctx context.Context, experimentID uint, identifier string) (*session.Session, error) {
	var latest *session.Session
	for _, sess := range s.sessions {
		if sess.ExperimentID != experimentID || sess.Ended() {
			continue
		}
		pKey := fmt.Sprintf("%d/%s", sess.TeamID, identifier)
		if s.participants[pKey] != sess.ParticipantID {
			continue
		}
		if latest == nil || sess.ID > latest.ID {
			latest = sess
		}
	}
	if latest == nil {
		return nil, session.ErrNotFound
	}
	return latest, nil
}

func (s *fakeSessionStore) GetByID(ctx context.Context, sessionID uint) (*session.Session, error) {
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, session.ErrNotFound
	}
	return sess, nil
}

func (s *fakeSessionStore) GetByPublicID(ctx context.Context, publicID string) (*session.Session, error) {
	for _, sess := range s.sessions {
		if sess.PublicID == publicID {
			return sess, nil
		}
	}
	return nil, session.ErrNotFound
}

func (s *fakeSessionStore) UpdateStatus(ctx context.Context, sessionID uint, status session.Status) error {
	sess, ok := s.sessions[sessionID]
	if !ok {
		return session.ErrNotFound
	}
	sess.Status = status
	return nil
}

func (s *fakeSessionStore) End(ctx context.Context, sessionID uint) error {
	sess, ok := s.sessions[sessionID]
	if !ok {
		return session.ErrNotFound
	}
	now := time.Now()
	sess.EndedAt = &now
	return nil
}

func (s *fakeSessionStore) UpdateExternalChatID(ctx context.Context, sessionID uint, externalChatID string) error {
	sess, ok := s.sessions[sessionID]
	if !ok {
		return session.ErrNotFound
	}
	sess.ExternalChatID = externalChatID
	return nil
}

func (s *fakeSessionStore) ResetPingCount(ctx context.Context, sessionID uint) error {
	sess, ok := s.sessions[sessionID]
	if !ok {
		return session.ErrNotFound
	}
	sess.NoActivityPings = 0
	return nil
}

// fakeChatStore is an in-memory chat.Store shared across chats.
type fakeChatStore struct {
	nextChatID uint
	messages   map[uint][]chat.Message
	metadata   map[uint]map[string]string
}

func newFakeChatStore() *fakeChatStore {
	return &fakeChatStore{
		messages: map[uint][]chat.Message{},
		metadata: map[uint]map[string]string{},
	}
}

func (s *fakeChatStore) create() uint {
	s.nextChatID++
	s.messages[s.nextChatID] = nil
	s.metadata[s.nextChatID] = map[string]string{}
	return s.nextChatID
}

func (s *fakeChatStore) Create(ctx context.Context, teamID uint) (*chat.Chat, error) {
	return &chat.Chat{ID: s.create(), TeamID: teamID}, nil
}

func (s *fakeChatStore) Get(ctx context.Context, chatID uint) (*chat.Chat, error) {
	return &chat.Chat{ID: chatID, Metadata: s.metadata[chatID]}, nil
}

func (s *fakeChatStore) AppendMessage(ctx context.Context, msg *chat.Message) error {
	msg.ID = uint(len(s.messages[msg.ChatID]) + 1)
	s.messages[msg.ChatID] = append(s.messages[msg.ChatID], *msg)
	return nil
}

func (s *fakeChatStore) History(ctx context.Context, chatID uint) ([]chat.Message, error) {
	return append([]chat.Message(nil), s.messages[chatID]...), nil
}

func (s *fakeChatStore) CountByType(ctx context.Context, chatID uint, msgType chat.MessageType) (int64, error) {
	var n int64
	for _, m := range s.messages[chatID] {
		if m.Type == msgType {
			n++
		}
	}
	return n, nil
}

func (s *fakeChatStore) GetMetadataValue(ctx context.Context, chatID uint, key string) (string, error) {
	return s.metadata[chatID][key], nil
}

func (s *fakeChatStore) SetMetadataValue(ctx context.Context, chatID uint, key, value string) error {
	if s.metadata[chatID] == nil {
		s.metadata[chatID] = map[string]string{}
	}
	s.metadata[chatID][key] = value
	return nil
}

// fakeExperimentRepo serves a single experiment and channel.
type fakeExperimentRepo struct {
	exp    *experiment.Experiment
	expCh  *experiment.Channel
	memory map[uint]map[string]string
}

func newFakeExperimentRepo(exp *experiment.Experiment, expCh *experiment.Channel) *fakeExperimentRepo {
	return &fakeExperimentRepo{exp: exp, expCh: expCh, memory: map[uint]map[string]string{}}
}

func (r *fakeExperimentRepo) GetByID(ctx context.Context, id uint) (*experiment.Experiment, error) {
	if r.exp == nil || r.exp.ID != id {
		return nil, experiment.ErrNotFound
	}
	return r.exp, nil
}

func (r *fakeExperimentRepo) GetByPublicID(ctx context.Context, publicID string) (*experiment.Experiment, error) {
	if r.exp == nil || r.exp.PublicID != publicID {
		return nil, experiment.ErrNotFound
	}
	return r.exp, nil
}

func (r *fakeExperimentRepo) GetChannel(ctx context.Context, id uint) (*experiment.Channel, error) {
	if r.expCh == nil || r.expCh.ID != id {
		return nil, experiment.ErrNotFound
	}
	return r.expCh, nil
}

func (r *fakeExperimentRepo) FindChannelByExtra(ctx context.Context, platform experiment.Platform, key, value string) (*experiment.Channel, error) {
	if r.expCh != nil && r.expCh.Platform == platform && r.expCh.ExtraData[key] == value {
		return r.expCh, nil
	}
	return nil, experiment.ErrNotFound
}

func (r *fakeExperimentRepo) FindParticipant(ctx context.Context, teamID uint, identifier string) (*experiment.Participant, error) {
	return nil, experiment.ErrNotFound
}

func (r *fakeExperimentRepo) GetParticipant(ctx context.Context, id uint) (*experiment.Participant, error) {
	return &experiment.Participant{
		ID:         id,
		TeamID:     r.exp.TeamID,
		Identifier: fmt.Sprintf("participant-%d", id),
		Memory:     r.memory[id],
	}, nil
}

func (r *fakeExperimentRepo) SaveParticipantMemory(ctx context.Context, participantID uint, memory map[string]string) error {
	if r.memory[participantID] == nil {
		r.memory[participantID] = map[string]string{}
	}
	for k, v := range memory {
		r.memory[participantID][k] = v
	}
	return nil
}

// fakeChannel records deliveries for a configurable platform.
type fakeChannel struct {
	platform      experiment.Platform
	voiceReplies  bool
	kinds         []channel.ContentKind
	current       channel.Message
	sessionThread string

	delivered       []string
	voiceDelivered  int
	typingSignalled int
	audio           *llm.Audio
	fetchErr        error
}

func newFakeChannel(platform experiment.Platform) *fakeChannel {
	return &fakeChannel{
		platform: platform,
		kinds:    []channel.ContentKind{channel.ContentText, channel.ContentVoice},
	}
}

func (c *fakeChannel) Platform() experiment.Platform { return c.platform }

func (c *fakeChannel) VoiceRepliesSupported() bool { return c.voiceReplies }

func (c *fakeChannel) SupportedKinds() []channel.ContentKind { return c.kinds }

func (c *fakeChannel) SetCurrent(msg channel.Message) { c.current = msg }

func (c *fakeChannel) SetSessionThread(externalChatID string) { c.sessionThread = externalChatID }

func (c *fakeChannel) FetchAudio(ctx context.Context, msg channel.Message) (*llm.Audio, error) {
	if c.fetchErr != nil {
		return nil, c.fetchErr
	}
	if c.audio != nil {
		return c.audio, nil
	}
	return &llm.Audio{Format: "ogg", Data: []byte("fake")}, nil
}

func (c *fakeChannel) DeliverText(ctx context.Context, chatID, text string) error {
	c.delivered = append(c.delivered, text)
	return nil
}

func (c *fakeChannel) DeliverVoice(ctx context.Context, chatID string, audio *llm.SynthesizedAudio) error {
	c.voiceDelivered++
	return nil
}

func (c *fakeChannel) SubmitInputToLLM(ctx context.Context, chatID string) { c.typingSignalled++ }

func (c *fakeChannel) TranscriptionStarted(ctx context.Context, chatID string) {}

func (c *fakeChannel) TranscriptionFinished(ctx context.Context, chatID, transcript string) {}

// fakeSpeech implements llm.SpeechProvider.
type fakeSpeech struct {
	transcript    string
	transcribeErr error
	synthesizeErr error
}

func (s *fakeSpeech) Transcribe(ctx context.Context, audio llm.Audio) (string, error) {
	if s.transcribeErr != nil {
		return "", s.transcribeErr
	}
	return s.transcript, nil
}

func (s *fakeSpeech) Synthesize(ctx context.Context, text, voice string) (*llm.SynthesizedAudio, error) {
	if s.synthesizeErr != nil {
		return nil, s.synthesizeErr
	}
	return &llm.SynthesizedAudio{Format: "opus", Data: []byte("voice")}, nil
}

// fakeNotifier counts lifecycle events.
type fakeNotifier struct {
	joined   int
	started  int
	messages []string
}

func (n *fakeNotifier) ParticipantJoined(ctx context.Context, teamID uint, experimentPublicID, identifier string) {
	n.joined++
}

func (n *fakeNotifier) ConversationStarted(ctx context.Context, sessionPublicID string) {
	n.started++
}

func (n *fakeNotifier) NewHumanMessage(ctx context.Context, sessionPublicID, content string) {
	n.messages = append(n.messages, content)
}

// fakeSeeds records enqueued seed generations.
type fakeSeeds struct {
	enqueued []uint
}

func (s *fakeSeeds) EnqueueSeedMessage(ctx context.Context, sessionID uint) error {
	s.enqueued = append(s.enqueued, sessionID)
	return nil
}

// scriptedRunnable replies with a fixed output and records inputs.
type scriptedRunnable struct {
	store  *fakeChatStore
	chatID uint
	output string
	err    error
	inputs *[]string
}

func (r *scriptedRunnable) Invoke(ctx context.Context, input string, opts runnable.Options) (*runnable.GenerationResult, error) {
	*r.inputs = append(*r.inputs, input)
	if opts.SaveInput {
		_ = r.store.AppendMessage(ctx, &chat.Message{ChatID: r.chatID, Type: chat.MessageTypeHuman, Content: input})
	}
	if r.err != nil {
		return nil, r.err
	}
	if opts.SaveOutput {
		_ = r.store.AppendMessage(ctx, &chat.Message{ChatID: r.chatID, Type: chat.MessageTypeAI, Content: r.output})
	}
	return &runnable.GenerationResult{Output: r.output}, nil
}

// testHarness bundles the orchestrator with all its fakes.
type testHarness struct {
	orch     *orchestrator.Orchestrator
	sessions *fakeSessionStore
	chats    *fakeChatStore
	repo     *fakeExperimentRepo
	speech   *fakeSpeech
	events   *fakeNotifier
	seeds    *fakeSeeds

	invocations []string
	replyWith   string
	replyErr    error
}

func newTestHarness(exp *experiment.Experiment, expCh *experiment.Channel) *testHarness {
	h := &testHarness{
		chats:     newFakeChatStore(),
		repo:      newFakeExperimentRepo(exp, expCh),
		speech:    &fakeSpeech{transcript: "transcribed words"},
		events:    &fakeNotifier{},
		seeds:     &fakeSeeds{},
		replyWith: "assistant reply",
	}
	h.sessions = newFakeSessionStore(h.chats)

	factory := func(
		e *experiment.Experiment,
		sess *session.Session,
		participant *experiment.Participant,
		platform experiment.Platform,
	) runnable.Runnable {
		return &scriptedRunnable{
			store:  h.chats,
			chatID: sess.ChatID,
			output: h.replyWith,
			err:    h.replyErr,
			inputs: &h.invocations,
		}
	}

	h.orch = orchestrator.New(
		h.sessions,
		h.chats,
		h.repo,
		h.speech,
		factory,
		h.events,
		h.seeds,
		zerolog.New(os.Stderr).Level(zerolog.Disabled),
	)
	return h
}
